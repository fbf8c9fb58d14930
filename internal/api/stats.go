package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByComputation map[string]int `json:"by_computation"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	Datasets      int            `json:"datasets"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.JobStats(r.Context())
	if err != nil {
		s.writeRegistryError(w, err, "get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByComputation: stats.CountByComputation,
		AvgDurationMS: stats.AvgDurationMS,
		Datasets:      s.registry.DatasetCount(),
	})
}
