package compute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/yieldlab/internal/model"
)

// ErrUnknownComputation is returned when no computation is registered under
// the requested name.
var ErrUnknownComputation = errors.New("unknown computation")

// Computation consumes a dataset payload and caller parameters and produces a
// structured result. It must not retain or modify payload. The context is
// cancelled when the job's deadline, if any, passes.
type Computation func(ctx context.Context, payload any, params model.Params) (model.Result, error)

// Info describes a registered computation.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entry struct {
	description string
	fn          Computation
}

// Registry holds named computations.
type Registry struct {
	mu           sync.RWMutex
	computations map[string]entry
}

// NewRegistry creates an empty computation registry.
func NewRegistry() *Registry {
	return &Registry{
		computations: make(map[string]entry),
	}
}

// Register adds fn under name, replacing any computation already registered
// under it.
func (r *Registry) Register(name, description string, fn Computation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.computations[name] = entry{description: description, fn: fn}
}

// Resolve returns the computation registered under name, or an error wrapping
// ErrUnknownComputation.
func (r *Registry) Resolve(name string) (Computation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.computations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComputation, name)
	}
	return e.fn, nil
}

// List returns all registered computations sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.computations))
	for name, e := range r.computations {
		infos = append(infos, Info{Name: name, Description: e.description})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
