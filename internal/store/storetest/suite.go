// Package storetest provides a re-usable set of tests that can be executed
// against any store.JobStore implementation.
package storetest

import (
	"context"
	"sync"

	gc "gopkg.in/check.v1"

	"github.com/seantiz/yieldlab/internal/model"
	"github.com/seantiz/yieldlab/internal/store"
)

// SuiteBase holds the job store under test. Embedding suites must call
// SetStore before each test, and SetDatasets when Create should be checked
// against a dataset store.
type SuiteBase struct {
	s        store.JobStore
	datasets *store.DatasetStore
}

// SetStore sets the job store under test.
func (s *SuiteBase) SetStore(js store.JobStore) {
	s.s = js
}

// SetDatasets sets the dataset store the job store was constructed with.
func (s *SuiteBase) SetDatasets(ds *store.DatasetStore) {
	s.datasets = ds
}

func (s *SuiteBase) newDataset(c *gc.C) string {
	d, err := s.datasets.Put(map[string]any{"rows": 1}, "")
	c.Assert(err, gc.IsNil)
	return d.ID
}

func (s *SuiteBase) newRunningJob(c *gc.C) *model.Job {
	ctx := context.Background()
	j, err := s.s.Create(ctx, s.newDataset(c), "sum_rows", nil)
	c.Assert(err, gc.IsNil)
	c.Assert(s.s.TransitionToRunning(ctx, j.ID), gc.IsNil)
	return j
}

func (s *SuiteBase) TestCreateAndGet(c *gc.C) {
	ctx := context.Background()
	dsID := s.newDataset(c)

	j, err := s.s.Create(ctx, dsID, "flag_range", model.Params{"column": "wind_speed"})
	c.Assert(err, gc.IsNil)
	c.Assert(j.ID, gc.Not(gc.Equals), "")
	c.Assert(j.Status, gc.Equals, model.StatusPending)

	got, err := s.s.Get(ctx, j.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(got.ID, gc.Equals, j.ID)
	c.Assert(got.DatasetID, gc.Equals, dsID)
	c.Assert(got.Computation, gc.Equals, "flag_range")
	c.Assert(got.Params["column"], gc.Equals, "wind_speed")
	c.Assert(got.Status, gc.Equals, model.StatusPending)
	c.Assert(got.Result, gc.IsNil)
	c.Assert(got.Error, gc.IsNil)
	c.Assert(got.CreatedAt.IsZero(), gc.Equals, false)
}

func (s *SuiteBase) TestCreateUnknownDataset(c *gc.C) {
	ctx := context.Background()
	before, err := s.s.Count(ctx)
	c.Assert(err, gc.IsNil)

	_, err = s.s.Create(ctx, "does-not-exist", "sum_rows", nil)
	c.Assert(err, gc.Equals, store.ErrDatasetNotFound)

	after, err := s.s.Count(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(after, gc.Equals, before, gc.Commentf("rejected create must not add a record"))
}

func (s *SuiteBase) TestGetUnknownJob(c *gc.C) {
	_, err := s.s.Get(context.Background(), "nope")
	c.Assert(err, gc.Equals, store.ErrJobNotFound)
}

func (s *SuiteBase) TestIDsAreNotReused(c *gc.C) {
	ctx := context.Background()
	dsID := s.newDataset(c)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		j, err := s.s.Create(ctx, dsID, "sum_rows", nil)
		c.Assert(err, gc.IsNil)
		c.Assert(seen[j.ID], gc.Equals, false, gc.Commentf("duplicate id %s", j.ID))
		seen[j.ID] = true
	}
}

func (s *SuiteBase) TestCompleteLifecycle(c *gc.C) {
	ctx := context.Background()
	j := s.newRunningJob(c)

	running, err := s.s.Get(ctx, j.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(running.Status, gc.Equals, model.StatusRunning)
	c.Assert(running.StartedAt, gc.NotNil)

	c.Assert(s.s.CompleteWith(ctx, j.ID, model.Result{"sum": 100.0}), gc.IsNil)

	got, err := s.s.Get(ctx, j.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(got.Status, gc.Equals, model.StatusCompleted)
	c.Assert(got.Result["sum"], gc.Equals, 100.0)
	c.Assert(got.Error, gc.IsNil)
	c.Assert(got.FinishedAt, gc.NotNil)
	c.Assert(got.DurationMS, gc.NotNil)
}

func (s *SuiteBase) TestFailLifecycle(c *gc.C) {
	ctx := context.Background()
	j := s.newRunningJob(c)

	c.Assert(s.s.FailWith(ctx, j.ID, &model.JobError{Message: "bad input", Detail: "trace"}), gc.IsNil)

	got, err := s.s.Get(ctx, j.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(got.Status, gc.Equals, model.StatusFailed)
	c.Assert(got.Result, gc.IsNil)
	c.Assert(got.Error, gc.NotNil)
	c.Assert(got.Error.Message, gc.Equals, "bad input")
	c.Assert(got.Error.Detail, gc.Equals, "trace")
}

func (s *SuiteBase) TestCompleteRequiresRunning(c *gc.C) {
	ctx := context.Background()
	j, err := s.s.Create(ctx, s.newDataset(c), "sum_rows", nil)
	c.Assert(err, gc.IsNil)

	c.Assert(s.s.CompleteWith(ctx, j.ID, model.Result{"sum": 1.0}), gc.Equals, store.ErrInvalidTransition)
	c.Assert(s.s.FailWith(ctx, j.ID, &model.JobError{Message: "x"}), gc.Equals, store.ErrInvalidTransition)

	got, err := s.s.Get(ctx, j.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(got.Status, gc.Equals, model.StatusPending)
}

func (s *SuiteBase) TestRunningRequiresPending(c *gc.C) {
	ctx := context.Background()
	j := s.newRunningJob(c)
	c.Assert(s.s.TransitionToRunning(ctx, j.ID), gc.Equals, store.ErrInvalidTransition)

	c.Assert(s.s.CompleteWith(ctx, j.ID, nil), gc.IsNil)
	c.Assert(s.s.TransitionToRunning(ctx, j.ID), gc.Equals, store.ErrInvalidTransition)
}

func (s *SuiteBase) TestTerminalStateIsFinal(c *gc.C) {
	ctx := context.Background()
	j := s.newRunningJob(c)
	c.Assert(s.s.CompleteWith(ctx, j.ID, model.Result{"sum": 7.0}), gc.IsNil)

	c.Assert(s.s.CompleteWith(ctx, j.ID, model.Result{"sum": 8.0}), gc.Equals, store.ErrInvalidTransition)
	c.Assert(s.s.FailWith(ctx, j.ID, &model.JobError{Message: "late"}), gc.Equals, store.ErrInvalidTransition)

	got, err := s.s.Get(ctx, j.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(got.Status, gc.Equals, model.StatusCompleted)
	c.Assert(got.Result["sum"], gc.Equals, 7.0)
	c.Assert(got.Error, gc.IsNil)
}

func (s *SuiteBase) TestTransitionsOnUnknownJob(c *gc.C) {
	ctx := context.Background()
	c.Assert(s.s.TransitionToRunning(ctx, "nope"), gc.Equals, store.ErrJobNotFound)
	c.Assert(s.s.CompleteWith(ctx, "nope", nil), gc.Equals, store.ErrJobNotFound)
	c.Assert(s.s.FailWith(ctx, "nope", nil), gc.Equals, store.ErrJobNotFound)
}

func (s *SuiteBase) TestConcurrentTerminalTransitionsHaveOneWinner(c *gc.C) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		j := s.newRunningJob(c)

		const attempts = 8
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					errs[i] = s.s.CompleteWith(ctx, j.ID, model.Result{"winner": float64(i)})
				} else {
					errs[i] = s.s.FailWith(ctx, j.ID, &model.JobError{Message: "loser"})
				}
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			c.Assert(err, gc.Equals, store.ErrInvalidTransition)
		}
		c.Assert(winners, gc.Equals, 1)

		got, err := s.s.Get(ctx, j.ID)
		c.Assert(err, gc.IsNil)
		c.Assert(model.IsTerminal(got.Status), gc.Equals, true)
		c.Assert((got.Result != nil) != (got.Error != nil), gc.Equals, true,
			gc.Commentf("exactly one of result/error must be set"))
	}
}

func (s *SuiteBase) TestListAndStats(c *gc.C) {
	ctx := context.Background()
	dsID := s.newDataset(c)

	var ids []string
	for i := 0; i < 5; i++ {
		j, err := s.s.Create(ctx, dsID, "sum_rows", nil)
		c.Assert(err, gc.IsNil)
		ids = append(ids, j.ID)
	}
	c.Assert(s.s.TransitionToRunning(ctx, ids[0]), gc.IsNil)
	c.Assert(s.s.CompleteWith(ctx, ids[0], model.Result{"sum": 1.0}), gc.IsNil)
	c.Assert(s.s.TransitionToRunning(ctx, ids[1]), gc.IsNil)
	c.Assert(s.s.FailWith(ctx, ids[1], &model.JobError{Message: "boom"}), gc.IsNil)

	page, total, err := s.s.List(ctx, 2, 0)
	c.Assert(err, gc.IsNil)
	c.Assert(total, gc.Equals, 5)
	c.Assert(page, gc.HasLen, 2)
	c.Assert(page[0].ID, gc.Equals, ids[4], gc.Commentf("newest job first"))

	rest, _, err := s.s.List(ctx, 10, 2)
	c.Assert(err, gc.IsNil)
	c.Assert(rest, gc.HasLen, 3)

	stats, err := s.s.Stats(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(stats.Total, gc.Equals, 5)
	c.Assert(stats.CountByStatus[model.StatusPending], gc.Equals, 3)
	c.Assert(stats.CountByStatus[model.StatusCompleted], gc.Equals, 1)
	c.Assert(stats.CountByStatus[model.StatusFailed], gc.Equals, 1)
	c.Assert(stats.CountByComputation["sum_rows"], gc.Equals, 5)
}

func (s *SuiteBase) TestFailWithEmptyMessageRecordsOne(c *gc.C) {
	ctx := context.Background()
	j := s.newRunningJob(c)

	c.Assert(s.s.FailWith(ctx, j.ID, &model.JobError{}), gc.IsNil)

	got, err := s.s.Get(ctx, j.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(got.Status, gc.Equals, model.StatusFailed)
	c.Assert(got.Error, gc.NotNil)
	c.Assert(got.Error.Message, gc.Not(gc.Equals), "")
}

func (s *SuiteBase) TestConcurrentTransitionsOnDistinctJobs(c *gc.C) {
	ctx := context.Background()
	dsID := s.newDataset(c)

	const n = 50
	ids := make([]string, n)
	for i := range ids {
		j, err := s.s.Create(ctx, dsID, "sum_rows", nil)
		c.Assert(err, gc.IsNil)
		ids[i] = j.ID
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Go(func() {
			if err := s.s.TransitionToRunning(ctx, id); err != nil {
				errs[i] = err
				return
			}
			errs[i] = s.s.CompleteWith(ctx, id, model.Result{"i": i})
		})
	}
	wg.Wait()

	for i, err := range errs {
		c.Check(err, gc.IsNil, gc.Commentf("job %d", i))
	}
	stats, err := s.s.Stats(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(stats.CountByStatus[model.StatusCompleted], gc.Equals, n)
}
