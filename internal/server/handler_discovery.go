package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "goshift API",
		Version:     "v1",
		Description: "goshift — asynchronous staff shift schedule generation",
		Endpoints: []endpointInfo{
			{"/api/schedules", []string{"GET", "POST"}, "Submit a schedule job or list jobs (?limit=&offset=&state=)"},
			{"/api/schedules/{id}", []string{"GET"}, "Job status, including the failure reason for FAILED jobs"},
			{"/api/schedules/{id}/assignments", []string{"GET"}, "Generated shift assignments once the job is COMPLETED"},
			{"/api/health", []string{"GET"}, "Server health and version"},
		},
	})
}
