// Package registry is the entry point the HTTP layer uses to create datasets,
// submit jobs and poll their status. It holds no state of its own.
package registry

import (
	"context"

	"github.com/seantiz/yieldlab/internal/compute"
	"github.com/seantiz/yieldlab/internal/engine"
	"github.com/seantiz/yieldlab/internal/model"
	"github.com/seantiz/yieldlab/internal/store"
)

// Registry composes the dataset store, the job store and the engine.
type Registry struct {
	datasets     *store.DatasetStore
	jobs         store.JobStore
	computations *compute.Registry
	engine       *engine.Engine
}

// New creates a Registry over the given components. The engine must have been
// built over the same stores.
func New(datasets *store.DatasetStore, jobs store.JobStore, computations *compute.Registry, eng *engine.Engine) *Registry {
	return &Registry{
		datasets:     datasets,
		jobs:         jobs,
		computations: computations,
		engine:       eng,
	}
}

// CreateDataset stores payload and returns the new dataset.
func (r *Registry) CreateDataset(_ context.Context, payload any, description string) (*model.Dataset, error) {
	return r.datasets.Put(payload, description)
}

// GetDataset returns the dataset stored under id.
func (r *Registry) GetDataset(_ context.Context, id string) (*model.Dataset, error) {
	return r.datasets.Get(id)
}

// ListDatasets returns all stored datasets, oldest first.
func (r *Registry) ListDatasets(_ context.Context) []*model.Dataset {
	return r.datasets.List()
}

// DeleteDataset evicts the dataset stored under id.
func (r *Registry) DeleteDataset(_ context.Context, id string) error {
	return r.datasets.Delete(id)
}

// SubmitJob admits a job running the named computation against a dataset and
// returns the pending record immediately.
func (r *Registry) SubmitJob(ctx context.Context, datasetID, computation string, params model.Params) (*model.Job, error) {
	return r.engine.Submit(ctx, datasetID, computation, params)
}

// GetJobStatus returns the current job record.
func (r *Registry) GetJobStatus(ctx context.Context, jobID string) (*model.Job, error) {
	return r.jobs.Get(ctx, jobID)
}

// ListJobs returns a page of jobs, newest first, and the total count.
func (r *Registry) ListJobs(ctx context.Context, limit, offset int) ([]*model.Job, int, error) {
	return r.jobs.List(ctx, limit, offset)
}

// JobStats returns aggregate job statistics.
func (r *Registry) JobStats(ctx context.Context) (*store.JobStats, error) {
	return r.jobs.Stats(ctx)
}

// Computations lists the computations jobs may name.
func (r *Registry) Computations() []compute.Info {
	return r.computations.List()
}

// SubscribeJob streams status transitions of a job. See engine.StatusBroker.
func (r *Registry) SubscribeJob(jobID string) (<-chan engine.StatusEvent, func()) {
	return r.engine.Broker().Subscribe(jobID)
}

// DatasetCount returns the number of stored datasets.
func (r *Registry) DatasetCount() int {
	return r.datasets.Count()
}
