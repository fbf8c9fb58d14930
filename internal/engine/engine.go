package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/seantiz/yieldlab/internal/compute"
	"github.com/seantiz/yieldlab/internal/model"
	"github.com/seantiz/yieldlab/internal/store"
)

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of computations running at once. Jobs beyond
// the bound stay pending until a worker frees up. Zero means unbounded.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithTimeout sets a deadline for each computation. A computation still
// running at the deadline is recorded as failed. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithRetryWindow bounds how long a status write rejected by the job store for
// a transient reason, such as a locked database, is retried.
func WithRetryWindow(d time.Duration) Option {
	return func(e *Engine) {
		e.retryWindow = d
	}
}

const defaultRetryWindow = 30 * time.Second

// Engine runs computations asynchronously and records their outcome.
type Engine struct {
	datasets     *store.DatasetStore
	jobs         store.JobStore
	computations *compute.Registry
	logger       *slog.Logger
	broker       *StatusBroker

	sem         *semaphore.Weighted
	timeout     time.Duration
	retryWindow time.Duration
	wg          sync.WaitGroup
}

// NewEngine creates a new execution engine.
func NewEngine(datasets *store.DatasetStore, jobs store.JobStore, computations *compute.Registry, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		datasets:     datasets,
		jobs:         jobs,
		computations: computations,
		logger:       logger,
		broker:       NewStatusBroker(),
		retryWindow:  defaultRetryWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, info := range computations.List() {
		preinitMetrics(info.Name)
	}
	return e
}

// Broker returns the engine's status broker for event subscriptions.
func (e *Engine) Broker() *StatusBroker {
	return e.broker
}

// Submit admits a job and schedules it for execution, returning the pending
// record without waiting for the computation. Unknown datasets and unknown
// computations are rejected before any record is created.
func (e *Engine) Submit(ctx context.Context, datasetID, computation string, params model.Params) (*model.Job, error) {
	ds, err := e.datasets.Get(datasetID)
	if err != nil {
		return nil, err
	}
	fn, err := e.computations.Resolve(computation)
	if err != nil {
		return nil, err
	}

	job, err := e.jobs.Create(ctx, datasetID, computation, params)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	e.logger.Info("job submitted",
		"job_id", job.ID,
		"dataset_id", datasetID,
		"computation", computation,
	)

	activeJobs.Inc()
	payload := ds.Payload
	args := maps.Clone(params)
	e.wg.Go(func() {
		e.execute(job.ID, computation, fn, payload, args)
	})

	return job, nil
}

// Wait blocks until all in-flight jobs finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown waits for in-flight jobs until ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}

// execute runs the job lifecycle: pending→running→completed/failed.
func (e *Engine) execute(id, computation string, fn compute.Computation, payload any, params model.Params) {
	defer activeJobs.Dec()
	// Close the status stream when execution finishes, regardless of outcome.
	defer e.broker.Close(id)

	if e.sem != nil {
		// Acquire only fails on context cancellation.
		_ = e.sem.Acquire(context.Background(), 1)
		defer e.sem.Release(1)
	}

	if err := e.persist(func(ctx context.Context) error {
		return e.jobs.TransitionToRunning(ctx, id)
	}); err != nil {
		e.transitionFailed(id, model.StatusRunning, err)
		return
	}
	e.publish(id, model.StatusRunning)

	start := time.Now()
	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, jobErr := e.run(ctx, fn, payload, params)
	elapsed := time.Since(start)
	jobDuration.WithLabelValues(computation).Observe(elapsed.Seconds())

	if jobErr == nil {
		err := e.persist(func(ctx context.Context) error {
			return e.jobs.CompleteWith(ctx, id, result)
		})
		switch {
		case err == nil:
			jobsTotal.WithLabelValues(computation, model.StatusCompleted).Inc()
			e.logger.Info("job completed",
				"job_id", id,
				"computation", computation,
				"duration_ms", elapsed.Milliseconds(),
			)
			e.publish(id, model.StatusCompleted)
			return
		case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrJobNotFound):
			e.transitionFailed(id, model.StatusCompleted, err)
			return
		}
		// The result could not be stored; record the job as failed instead of
		// leaving it running.
		e.transitionFailed(id, model.StatusCompleted, err)
		jobErr = &model.JobError{Message: "record result: " + err.Error(), Detail: errorChain(err)}
	}

	if err := e.persist(func(ctx context.Context) error {
		return e.jobs.FailWith(ctx, id, jobErr)
	}); err != nil {
		e.transitionFailed(id, model.StatusFailed, err)
		return
	}
	jobsTotal.WithLabelValues(computation, model.StatusFailed).Inc()
	e.logger.Warn("job failed",
		"job_id", id,
		"computation", computation,
		"duration_ms", elapsed.Milliseconds(),
		"error", jobErr.Message,
	)
	e.publish(id, model.StatusFailed)
}

type outcome struct {
	result model.Result
	err    *model.JobError
}

// run invokes fn on its own goroutine so that a deadline is enforced even for
// computations that ignore ctx. A computation abandoned at its deadline keeps
// running until it returns; its outcome is discarded.
func (e *Engine) run(ctx context.Context, fn compute.Computation, payload any, params model.Params) (model.Result, *model.JobError) {
	ch := make(chan outcome, 1)
	go func() {
		res, err := invoke(ctx, fn, payload, params)
		ch <- outcome{result: res, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.err.Message = fmt.Sprintf("job timed out after %s: %s", e.timeout, o.err.Message)
		}
		return o.result, o.err
	case <-ctx.Done():
		return nil, &model.JobError{
			Message: fmt.Sprintf("job timed out after %s", e.timeout),
			Detail:  ctx.Err().Error(),
		}
	}
}

// invoke calls fn, converting a returned error or a panic into a JobError.
func invoke(ctx context.Context, fn compute.Computation, payload any, params model.Params) (res model.Result, jobErr *model.JobError) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			jobErr = &model.JobError{
				Message: fmt.Sprintf("computation panicked: %v", r),
				Detail:  string(debug.Stack()),
			}
		}
	}()

	res, err := fn(ctx, payload, params)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = fmt.Sprintf("computation failed (%T)", err)
		}
		return nil, &model.JobError{Message: msg, Detail: errorChain(err)}
	}
	if res == nil {
		res = model.Result{}
	}
	return res, nil
}

// errorChain describes the dynamic types along err's wrap chain.
func errorChain(err error) string {
	var parts []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		parts = append(parts, fmt.Sprintf("%T", e))
	}
	return strings.Join(parts, " <- ")
}

// persist runs a job store write, retrying with exponential backoff while the
// store fails for reasons other than the record's state.
func (e *Engine) persist(op func(ctx context.Context) error) error {
	ctx := context.Background()
	if e.retryWindow <= 0 {
		return op(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = e.retryWindow

	return backoff.Retry(func() error {
		err := op(ctx)
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrJobNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (e *Engine) publish(id, status string) {
	e.broker.Publish(StatusEvent{JobID: id, Status: status, At: time.Now().UTC()})
}

// transitionFailed logs a transition rejected by the store. The store leaves
// the record untouched in that case.
func (e *Engine) transitionFailed(id, to string, err error) {
	transitionErrors.Inc()
	e.logger.Error("job status transition rejected",
		"job_id", id,
		"to", to,
		"error", err,
	)
}
