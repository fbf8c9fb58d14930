package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/yieldlab/internal/model"
)

// Compile-time interface satisfaction check.
var _ JobStore = (*MemoryJobStore)(nil)

// jobEntry guards a single job record. Transitions on different jobs never
// contend on the same lock.
type jobEntry struct {
	mu  sync.Mutex
	job *model.Job
}

// MemoryJobStore implements JobStore in process memory. The store-wide lock
// only protects the id index; record contents are guarded per entry.
type MemoryJobStore struct {
	mu       sync.RWMutex
	jobs     map[string]*jobEntry
	datasets DatasetChecker
	now      func() time.Time
}

// NewMemoryJobStore creates an empty job store. When datasets is non-nil,
// Create rejects unknown dataset ids with ErrDatasetNotFound.
func NewMemoryJobStore(datasets DatasetChecker) *MemoryJobStore {
	return &MemoryJobStore{
		jobs:     make(map[string]*jobEntry),
		datasets: datasets,
		now:      time.Now,
	}
}

// Create inserts a new pending job record.
func (s *MemoryJobStore) Create(_ context.Context, datasetID, computation string, params model.Params) (*model.Job, error) {
	if err := checkDataset(s.datasets, datasetID); err != nil {
		return nil, err
	}
	id, err := model.NewJobID()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	j := &model.Job{
		ID:          id,
		DatasetID:   datasetID,
		Computation: computation,
		Params:      maps.Clone(params),
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.jobs[id] = &jobEntry{job: j}
	s.mu.Unlock()

	return j.Clone(), nil
}

func (s *MemoryJobStore) entry(id string) (*jobEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return e, nil
}

// Get returns a copy of the job record taken under its lock.
func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// snapshot copies every record.
func (s *MemoryJobStore) snapshot() []*model.Job {
	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.job.Clone())
		e.mu.Unlock()
	}
	return out
}

// List returns a page of jobs ordered newest first, along with the total count.
func (s *MemoryJobStore) List(_ context.Context, limit, offset int) ([]*model.Job, int, error) {
	all := s.snapshot()
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// Count returns the number of job records.
func (s *MemoryJobStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs), nil
}

// Stats aggregates job counts and the mean duration of finished jobs.
func (s *MemoryJobStore) Stats(_ context.Context) (*JobStats, error) {
	stats := newStats()
	var durSum, durN int
	for _, j := range s.snapshot() {
		stats.Total++
		stats.CountByStatus[j.Status]++
		stats.CountByComputation[j.Computation]++
		if j.DurationMS != nil {
			durSum += *j.DurationMS
			durN++
		}
	}
	if durN > 0 {
		stats.AvgDurationMS = float64(durSum) / float64(durN)
	}
	return stats, nil
}

// transition applies fn to the record under its lock if the record is
// currently in status from and may move to status to.
func (s *MemoryJobStore) transition(id, from, to string, fn func(j *model.Job, now time.Time)) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status != from || !model.ValidTransition(from, to) {
		return ErrInvalidTransition
	}
	now := s.now().UTC()
	e.job.Status = to
	e.job.UpdatedAt = now
	fn(e.job, now)
	return nil
}

// TransitionToRunning moves a pending job to running.
func (s *MemoryJobStore) TransitionToRunning(_ context.Context, id string) error {
	return s.transition(id, model.StatusPending, model.StatusRunning, func(j *model.Job, now time.Time) {
		j.StartedAt = &now
	})
}

// CompleteWith moves a running job to completed and records result.
func (s *MemoryJobStore) CompleteWith(_ context.Context, id string, result model.Result) error {
	if result == nil {
		result = model.Result{}
	}
	return s.transition(id, model.StatusRunning, model.StatusCompleted, func(j *model.Job, now time.Time) {
		j.Result = maps.Clone(result)
		finish(j, now)
	})
}

// FailWith moves a running job to failed and records jobErr.
func (s *MemoryJobStore) FailWith(_ context.Context, id string, jobErr *model.JobError) error {
	if jobErr == nil || jobErr.Message == "" {
		jobErr = &model.JobError{Message: unknownError}
	}
	return s.transition(id, model.StatusRunning, model.StatusFailed, func(j *model.Job, now time.Time) {
		j.Error = jobErr
		finish(j, now)
	})
}

// Close is a no-op for the in-memory store.
func (s *MemoryJobStore) Close() error {
	return nil
}

// finish stamps the terminal timestamps and duration on j.
func finish(j *model.Job, now time.Time) {
	j.FinishedAt = &now
	if j.StartedAt != nil {
		d := int(now.Sub(*j.StartedAt).Milliseconds())
		j.DurationMS = &d
	}
}
