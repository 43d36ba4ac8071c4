package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skyhookml/distrain/distrain"
)

var Router = mux.NewRouter()

func init() {
	Router.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		distrain.JsonResponse(w, ListJobs())
	}).Methods("GET")

	Router.HandleFunc("/jobs/{job_id}", func(w http.ResponseWriter, r *http.Request) {
		jobID := distrain.ParseInt(mux.Vars(r)["job_id"])
		job := GetJob(jobID)
		if job == nil {
			http.Error(w, "no such job", 404)
			return
		}
		distrain.JsonResponse(w, job)
	}).Methods("GET")

	Router.HandleFunc("/jobs/{job_id}/histories", func(w http.ResponseWriter, r *http.Request) {
		jobID := distrain.ParseInt(mux.Vars(r)["job_id"])
		job := GetJob(jobID)
		if job == nil {
			http.Error(w, "no such job", 404)
			return
		}
		distrain.JsonResponse(w, job.Histories())
	}).Methods("GET")
}
