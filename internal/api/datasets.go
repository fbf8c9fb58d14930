package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// createDatasetRequest is the JSON body for POST /v1/datasets.
type createDatasetRequest struct {
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
}

// createDatasetResponse mirrors the upload acknowledgement clients expect.
type createDatasetResponse struct {
	DatasetID string `json:"dataset_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// datasetSummary is a dataset without its payload.
type datasetSummary struct {
	DatasetID   string    `json:"dataset_id"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type listDatasetsResponse struct {
	Datasets []datasetSummary `json:"datasets"`
	Total    int              `json:"total"`
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(req.Payload) == 0 || bytes.Equal(req.Payload, []byte("null")) {
		s.writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	var payload any
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	ds, err := s.registry.CreateDataset(r.Context(), payload, req.Description)
	if err != nil {
		s.writeRegistryError(w, err, "create dataset")
		return
	}

	s.logger.Info("dataset created", "dataset_id", ds.ID)
	s.writeJSON(w, http.StatusCreated, createDatasetResponse{
		DatasetID: ds.ID,
		Status:    "success",
		Message:   fmt.Sprintf("Dataset successfully created (%d bytes).", len(req.Payload)),
	})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ds, err := s.registry.GetDataset(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, err, "get dataset")
		return
	}

	s.writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets := s.registry.ListDatasets(r.Context())

	summaries := make([]datasetSummary, len(datasets))
	for i, ds := range datasets {
		summaries[i] = datasetSummary{
			DatasetID:   ds.ID,
			Description: ds.Description,
			CreatedAt:   ds.CreatedAt,
		}
	}

	s.writeJSON(w, http.StatusOK, listDatasetsResponse{
		Datasets: summaries,
		Total:    len(summaries),
	})
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.DeleteDataset(r.Context(), id); err != nil {
		s.writeRegistryError(w, err, "delete dataset")
		return
	}

	s.logger.Info("dataset deleted", "dataset_id", id)
	w.WriteHeader(http.StatusNoContent)
}
