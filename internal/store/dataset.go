package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/yieldlab/internal/model"
)

// DatasetStore is a thread-safe in-memory dataset store keyed by dataset id.
// Entries are stored as whole values and replaced, never edited in place.
// When ttl is positive, Run periodically evicts datasets older than ttl.
type DatasetStore struct {
	mu   sync.RWMutex
	data map[string]*model.Dataset
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time // injectable for deterministic tests
}

// NewDatasetStore creates a DatasetStore. A ttl of zero disables eviction.
func NewDatasetStore(ttl time.Duration, logger *slog.Logger) *DatasetStore {
	return &DatasetStore{
		data:   make(map[string]*model.Dataset),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Put admits payload under a freshly generated id. The only failure is id
// allocation, reported as model.ErrIDAllocation.
// Callers must not modify payload after calling Put.
func (s *DatasetStore) Put(payload any, description string) (*model.Dataset, error) {
	id, err := model.NewDatasetID()
	if err != nil {
		return nil, err
	}
	d := &model.Dataset{
		ID:          id,
		Description: description,
		Payload:     payload,
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.data[id] = d
	n := len(s.data)
	s.mu.Unlock()

	datasetsStored.Set(float64(n))
	out := *d
	return &out, nil
}

// Get returns the dataset stored under id or ErrDatasetNotFound.
func (s *DatasetStore) Get(id string) (*model.Dataset, error) {
	s.mu.RLock()
	d, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrDatasetNotFound
	}
	out := *d
	return &out, nil
}

// Exists reports whether a dataset is stored under id.
func (s *DatasetStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[id]
	return ok
}

// Delete removes the dataset stored under id. Jobs already submitted against
// it keep running with the payload they were handed.
func (s *DatasetStore) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.data[id]
	delete(s.data, id)
	n := len(s.data)
	s.mu.Unlock()

	if !ok {
		return ErrDatasetNotFound
	}
	datasetsStored.Set(float64(n))
	return nil
}

// List returns every stored dataset ordered by creation time, oldest first.
func (s *DatasetStore) List() []*model.Dataset {
	s.mu.RLock()
	out := make([]*model.Dataset, 0, len(s.data))
	for _, d := range s.data {
		c := *d
		out = append(out, &c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of stored datasets.
func (s *DatasetStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes datasets created at or before now minus TTL and returns how
// many were removed. It is a no-op when TTL is zero.
func (s *DatasetStore) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, d := range s.data {
		if !d.CreatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	n := len(s.data)
	s.mu.Unlock()

	datasetsStored.Set(float64(n))
	if removed > 0 {
		s.logger.Info("evicted expired datasets", "count", removed, "remaining", n)
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled. It returns at once
// when TTL is zero.
func (s *DatasetStore) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Evict(now)
		}
	}
}
