package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seantiz/yieldlab/internal/compute"
	"github.com/seantiz/yieldlab/internal/store"
)

func TestSubmissionOutcomes(t *testing.T) {
	m := newAPIMetrics(prometheus.NewRegistry())

	m.submission("sum_rows", nil)
	m.submission("sum_rows", fmt.Errorf("submit job: %w", store.ErrDatasetNotFound))
	m.submission("no_such_thing", fmt.Errorf("submit job: %w", compute.ErrUnknownComputation))
	m.submission("another_typo", compute.ErrUnknownComputation)
	m.submission("sum_rows", errBadSubmission)
	m.submission("sum_rows", errors.New("disk full"))

	tests := []struct {
		computation, outcome string
		want                 float64
	}{
		{"sum_rows", outcomeAccepted, 1},
		{"sum_rows", outcomeDatasetNotFound, 1},
		{unmatched, outcomeUnknownComputation, 2},
		{unmatched, outcomeBadRequest, 1},
		{"sum_rows", outcomeError, 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.submissions.WithLabelValues(tt.computation, tt.outcome))
		if got != tt.want {
			t.Errorf("submissions{%s,%s} = %v, want %v", tt.computation, tt.outcome, got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(m.submissions); n != len(tests) {
		t.Errorf("series = %d, want %d", n, len(tests))
	}
}

func TestSubmitJobRecordsSubmission(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	accepted := metrics.submissions.WithLabelValues("sum_rows", outcomeAccepted)
	missing := metrics.submissions.WithLabelValues("sum_rows", outcomeDatasetNotFound)
	beforeAccepted := testutil.ToFloat64(accepted)
	beforeMissing := testutil.ToFloat64(missing)

	dsID := createDataset(t, ts.URL, map[string]any{"rows": 2})
	submitJob(t, ts.URL, dsID, "sum_rows", nil)

	resp := postJSON(t, ts.URL+"/v1/jobs", map[string]any{
		"dataset_id":  "does-not-exist",
		"computation": "sum_rows",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	if got := testutil.ToFloat64(accepted) - beforeAccepted; got != 1 {
		t.Errorf("accepted delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(missing) - beforeMissing; got != 1 {
		t.Errorf("dataset_not_found delta = %v, want 1", got)
	}

	mresp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(body), `yieldlab_job_submissions_total{computation="sum_rows",outcome="accepted"}`) {
		t.Error("metrics output missing job submission series")
	}
}

func TestEventStreamIsCountedNotTimed(t *testing.T) {
	m := newAPIMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.middleware)
	noop := func(w http.ResponseWriter, r *http.Request) {}
	r.Get(jobEventsRoute, noop)
	r.Get("/v1/jobs/{id}", noop)

	for _, path := range []string{"/v1/jobs/j1/events", "/v1/jobs/j1"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, jobEventsRoute, "200")); got != 1 {
		t.Errorf("event stream requests = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}
