package registry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/yieldlab/internal/compute"
	"github.com/seantiz/yieldlab/internal/engine"
	"github.com/seantiz/yieldlab/internal/model"
	"github.com/seantiz/yieldlab/internal/registry"
	"github.com/seantiz/yieldlab/internal/store"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	ds := store.NewDatasetStore(0, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	jobs := store.NewMemoryJobStore(ds)
	reg := compute.NewRegistry()
	compute.RegisterBuiltins(reg)
	reg.Register("value_error", "raises", func(context.Context, any, model.Params) (model.Result, error) {
		return nil, errors.New("ValueError: bad input")
	})

	eng := engine.NewEngine(ds, jobs, reg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(eng.Wait)
	return registry.New(ds, jobs, reg, eng)
}

func pollUntilTerminal(t *testing.T, r *registry.Registry, id string) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := r.GetJobStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJobStatus: %v", err)
		}
		if model.IsTerminal(j.Status) {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", id)
	return nil
}

func TestCreateDatasetRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	payload := map[string]any{"rows": 100, "scada": map[string]any{"wind_speed": []any{1.0, 2.0}}}

	d, err := r.CreateDataset(ctx, payload, "")
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	got, err := r.GetDataset(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if !reflect.DeepEqual(got.Payload, payload) {
		t.Errorf("payload = %v, want %v", got.Payload, payload)
	}
}

func TestSumRowsScenario(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	d, err := r.CreateDataset(ctx, map[string]any{"rows": 100}, "")
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	job, err := r.SubmitJob(ctx, d.ID, "sum_rows", nil)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if job.Status != model.StatusPending {
		t.Errorf("immediate status = %q, want pending", job.Status)
	}

	done := pollUntilTerminal(t, r, job.ID)
	if done.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed", done.Status)
	}
	if !reflect.DeepEqual(done.Result, model.Result{"sum": 100.0}) {
		t.Errorf("result = %v, want {sum: 100}", done.Result)
	}
}

func TestSubmitMissingDatasetScenario(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	job, err := r.SubmitJob(ctx, "does-not-exist", "sum_rows", nil)
	if !errors.Is(err, store.ErrDatasetNotFound) {
		t.Fatalf("SubmitJob error = %v, want ErrDatasetNotFound", err)
	}
	if job != nil {
		t.Errorf("job = %+v, want nil", job)
	}
	_, total, err := r.ListJobs(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if total != 0 {
		t.Errorf("job total = %d, want 0", total)
	}
}

func TestFailingComputationScenario(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	d, _ := r.CreateDataset(ctx, map[string]any{"rows": 1}, "")
	job, err := r.SubmitJob(ctx, d.ID, "value_error", nil)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	done := pollUntilTerminal(t, r, job.ID)
	if done.Status != model.StatusFailed {
		t.Fatalf("status = %q, want failed", done.Status)
	}
	if done.Error == nil || !strings.Contains(done.Error.Message, "bad input") {
		t.Errorf("error = %v, want message containing %q", done.Error, "bad input")
	}
	if done.Result != nil {
		t.Errorf("result = %v, want nil", done.Result)
	}
}

func TestGetJobStatusUnknown(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.GetJobStatus(context.Background(), "nope"); !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("GetJobStatus error = %v, want ErrJobNotFound", err)
	}
}

func TestDeletedDatasetRejectsNewJobs(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	d, _ := r.CreateDataset(ctx, map[string]any{"rows": 1}, "")
	if err := r.DeleteDataset(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	if _, err := r.SubmitJob(ctx, d.ID, "sum_rows", nil); !errors.Is(err, store.ErrDatasetNotFound) {
		t.Errorf("SubmitJob error = %v, want ErrDatasetNotFound", err)
	}
	if len(r.ListDatasets(ctx)) != 0 {
		t.Error("deleted dataset still listed")
	}
}

func TestComputationsListed(t *testing.T) {
	r := newTestRegistry(t)
	names := make(map[string]bool)
	for _, info := range r.Computations() {
		names[info.Name] = true
	}
	for _, want := range []string{compute.SumRows, compute.FlagRange, "value_error"} {
		if !names[want] {
			t.Errorf("computation %q not listed", want)
		}
	}
}

func TestJobStatsCountsTerminalJobs(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	d, _ := r.CreateDataset(ctx, map[string]any{"rows": 1}, "")

	ok, _ := r.SubmitJob(ctx, d.ID, "sum_rows", nil)
	bad, _ := r.SubmitJob(ctx, d.ID, "value_error", nil)
	pollUntilTerminal(t, r, ok.ID)
	pollUntilTerminal(t, r, bad.ID)

	stats, err := r.JobStats(ctx)
	if err != nil {
		t.Fatalf("JobStats: %v", err)
	}
	if stats.Total != 2 || stats.CountByStatus[model.StatusCompleted] != 1 || stats.CountByStatus[model.StatusFailed] != 1 {
		t.Errorf("stats = %+v, want one completed and one failed", stats)
	}
}
