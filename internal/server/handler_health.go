package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Uptime     string `json:"uptime"`
	Store      string `json:"store"`
	Dispatcher string `json:"dispatcher"`
	Roster     string `json:"roster,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:     "healthy",
		Version:    "0.1.0",
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Store:      "ok",
		Dispatcher: "external",
	}
	if s.dispatcher != nil {
		resp.Dispatcher = "embedded"
	}

	if err := s.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Store = "unreachable: " + err.Error()
	}

	if s.roster != nil {
		if err := s.roster.Healthy(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Roster = "unreachable: " + err.Error()
		} else {
			resp.Roster = "ok"
		}
	}

	respondOK(w, reqID, resp)
}
