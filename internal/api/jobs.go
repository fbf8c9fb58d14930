package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/yieldlab/internal/model"
)

// jobEventsRoute is the chi pattern of the status event stream.
const jobEventsRoute = "/v1/jobs/{id}/events"

// errBadSubmission marks a submission rejected before reaching the registry.
var errBadSubmission = errors.New("bad submission")

// submitJobRequest is the JSON body for POST /v1/jobs.
type submitJobRequest struct {
	DatasetID   string       `json:"dataset_id"`
	Computation string       `json:"computation"`
	Params      model.Params `json:"params"`
}

type submitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// jobResponse is a job record whose result and error are always present,
// null until the job reaches a terminal status.
type jobResponse struct {
	*model.Job
	Result model.Result    `json:"result"`
	Error  *model.JobError `json:"error"`
}

type listJobsResponse struct {
	Jobs   []jobResponse `json:"jobs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func newJobResponse(j *model.Job) jobResponse {
	return jobResponse{Job: j, Result: j.Result, Error: j.Error}
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.submission("", errBadSubmission)
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.DatasetID == "" {
		metrics.submission(req.Computation, errBadSubmission)
		s.writeError(w, http.StatusBadRequest, "dataset_id is required")
		return
	}
	if req.Computation == "" {
		metrics.submission("", errBadSubmission)
		s.writeError(w, http.StatusBadRequest, "computation is required")
		return
	}

	job, err := s.registry.SubmitJob(r.Context(), req.DatasetID, req.Computation, req.Params)
	metrics.submission(req.Computation, err)
	if err != nil {
		s.writeRegistryError(w, err, "submit job")
		return
	}

	s.writeJSON(w, http.StatusAccepted, submitJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.registry.GetJobStatus(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, err, "get job")
		return
	}

	s.writeJSON(w, http.StatusOK, newJobResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	jobs, total, err := s.registry.ListJobs(r.Context(), limit, offset)
	if err != nil {
		s.writeRegistryError(w, err, "list jobs")
		return
	}

	resp := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = newJobResponse(j)
	}

	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:   resp,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
