package api

import (
	"net/http"

	"github.com/seantiz/yieldlab/internal/compute"
)

type listComputationsResponse struct {
	Computations []compute.Info `json:"computations"`
}

func (s *Server) handleListComputations(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, listComputationsResponse{
		Computations: s.registry.Computations(),
	})
}
