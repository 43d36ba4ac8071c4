package app

import (
	gouuid "github.com/google/uuid"

	"github.com/skyhookml/distrain/distrain"
)

// Job is one recorded fit run: its distributed configuration plus the
// per-partition training histories collected by the orchestrator.
type Job struct {
	ID         int
	UUID       string
	Name       string
	Mode       string
	Transport  string
	NumWorkers int
	// JSON-encoded orchestrator config (GetConfig output)
	Metadata  string
	StartTime string
	Done      bool
	Error     string
}

const JobQuery = "SELECT id, uuid, name, mode, transport, num_workers, metadata, start_time, done, error FROM jobs"

func jobListHelper(rows *Rows) []*Job {
	jobs := []*Job{}
	for rows.Next() {
		var j Job
		rows.Scan(&j.ID, &j.UUID, &j.Name, &j.Mode, &j.Transport, &j.NumWorkers, &j.Metadata, &j.StartTime, &j.Done, &j.Error)
		jobs = append(jobs, &j)
	}
	return jobs
}

func ListJobs() []*Job {
	rows := db.Query(JobQuery + " ORDER BY id DESC")
	return jobListHelper(rows)
}

func GetJob(id int) *Job {
	rows := db.Query(JobQuery+" WHERE id = ?", id)
	jobs := jobListHelper(rows)
	if len(jobs) == 1 {
		return jobs[0]
	} else {
		return nil
	}
}

func NewJob(name string, mode string, transport string, numWorkers int, metadata string) *Job {
	res := db.Exec(
		"INSERT INTO jobs (uuid, name, mode, transport, num_workers, metadata, start_time) VALUES (?, ?, ?, ?, ?, ?, datetime('now'))",
		gouuid.New().String(), name, mode, transport, numWorkers, metadata,
	)
	return GetJob(res.LastInsertId())
}

func (j *Job) SetDone(error string) {
	j.Done = true
	j.Error = error
	db.Exec("UPDATE jobs SET done = 1, error = ? WHERE id = ?", error, j.ID)
}

// AppendHistories stores the orchestrator's collected training histories
// for this job, in collection order.
func (j *Job) AppendHistories(histories []distrain.History) {
	for i, history := range histories {
		db.Exec(
			"INSERT INTO histories (job_id, idx, history) VALUES (?, ?, ?)",
			j.ID, i, string(distrain.JsonMarshal(history)),
		)
	}
}

func (j *Job) Histories() []distrain.History {
	rows := db.Query("SELECT history FROM histories WHERE job_id = ? ORDER BY idx", j.ID)
	histories := []distrain.History{}
	for rows.Next() {
		var raw string
		rows.Scan(&raw)
		var h distrain.History
		distrain.JsonUnmarshal([]byte(raw), &h)
		histories = append(histories, h)
	}
	return histories
}
