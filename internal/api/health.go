package api

import (
	"net/http"
)

type healthResponse struct {
	Status   string `json:"status"`
	Datasets int    `json:"datasets"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Datasets: s.registry.DatasetCount(),
	})
}
