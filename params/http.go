package params

import (
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skyhookml/distrain/distrain"
)

// httpServer serves the parameter protocol over JSON/HTTP:
// GET /parameters returns the current weights, POST /update applies a delta.
type httpServer struct {
	store *Store
	port  int

	ln  net.Listener
	srv *http.Server
}

func (s *httpServer) Start() error {
	router := mux.NewRouter()

	router.HandleFunc("/parameters", func(w http.ResponseWriter, r *http.Request) {
		distrain.JsonResponse(w, s.store.Get())
	}).Methods("GET")

	router.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		var delta distrain.WeightSet
		if err := distrain.ParseJsonRequest(w, r, &delta); err != nil {
			return
		}
		if len(delta) == 0 {
			http.Error(w, "empty delta payload", 400)
			return
		}
		if err := s.store.ApplyDelta(delta); err != nil {
			// bad payload must not take the server down
			http.Error(w, err.Error(), 400)
			return
		}
		distrain.JsonResponse(w, map[string]bool{"ok": true})
	}).Methods("POST")

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("parameter server listen: %v", err)
	}
	s.ln = ln
	srv := &http.Server{Handler: router}
	s.srv = srv
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[params] http server: %v", err)
		}
	}()
	log.Printf("[params] http server listening on %s", ln.Addr().String())
	return nil
}

func (s *httpServer) Stop() error {
	if s.srv == nil {
		return nil
	}
	srv := s.srv
	s.srv = nil
	s.ln = nil
	return srv.Close()
}

func (s *httpServer) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

type httpClient struct {
	baseURL string
}

func (c *httpClient) SendDelta(delta distrain.WeightSet) error {
	return distrain.JsonPost(c.baseURL, "/update", delta, nil)
}

func (c *httpClient) GetParameters() (distrain.WeightSet, error) {
	var weights distrain.WeightSet
	if err := distrain.JsonGet(c.baseURL, "/parameters", &weights); err != nil {
		return nil, err
	}
	return weights, nil
}
