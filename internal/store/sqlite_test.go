package store_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"

	gc "gopkg.in/check.v1"

	"github.com/seantiz/yieldlab/internal/model"
	"github.com/seantiz/yieldlab/internal/store"
	"github.com/seantiz/yieldlab/internal/store/storetest"
)

var (
	_ = gc.Suite(&SQLiteJobStoreTestSuite{path: func(*gc.C) string { return ":memory:" }})
	_ = gc.Suite(&SQLiteJobStoreTestSuite{path: func(c *gc.C) string {
		return filepath.Join(c.MkDir(), "jobs.db")
	}})
	_ = gc.Suite(new(SQLiteRestartTestSuite))
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// SQLiteJobStoreTestSuite runs the shared job store tests against an
// in-memory database and against a database file.
type SQLiteJobStoreTestSuite struct {
	storetest.SuiteBase
	path func(*gc.C) string
	js   *store.SQLiteJobStore
}

func (s *SQLiteJobStoreTestSuite) SetUpTest(c *gc.C) {
	ds := store.NewDatasetStore(0, discardLogger())
	js, err := store.NewSQLiteJobStore(s.path(c), ds)
	c.Assert(err, gc.IsNil)
	s.js = js
	s.SetDatasets(ds)
	s.SetStore(js)
}

func (s *SQLiteJobStoreTestSuite) TearDownTest(c *gc.C) {
	if s.js != nil {
		c.Assert(s.js.Close(), gc.IsNil)
	}
}

type SQLiteRestartTestSuite struct{}

func (s *SQLiteRestartTestSuite) TestFailInterruptedAfterReopen(c *gc.C) {
	ctx := context.Background()
	path := filepath.Join(c.MkDir(), "jobs.db")

	js, err := store.NewSQLiteJobStore(path, nil)
	c.Assert(err, gc.IsNil)
	pending, err := js.Create(ctx, "ds", "sum_rows", nil)
	c.Assert(err, gc.IsNil)
	running, err := js.Create(ctx, "ds", "sum_rows", nil)
	c.Assert(err, gc.IsNil)
	c.Assert(js.TransitionToRunning(ctx, running.ID), gc.IsNil)
	completed, err := js.Create(ctx, "ds", "sum_rows", nil)
	c.Assert(err, gc.IsNil)
	c.Assert(js.TransitionToRunning(ctx, completed.ID), gc.IsNil)
	c.Assert(js.CompleteWith(ctx, completed.ID, model.Result{"sum": 1.0}), gc.IsNil)
	c.Assert(js.Close(), gc.IsNil)

	js, err = store.NewSQLiteJobStore(path, nil)
	c.Assert(err, gc.IsNil)
	defer js.Close()

	n, err := js.FailInterrupted(ctx, "interrupted by restart")
	c.Assert(err, gc.IsNil)
	c.Assert(n, gc.Equals, 2)

	for _, id := range []string{pending.ID, running.ID} {
		got, err := js.Get(ctx, id)
		c.Assert(err, gc.IsNil)
		c.Assert(got.Status, gc.Equals, model.StatusFailed)
		c.Assert(got.Error, gc.NotNil)
		c.Assert(got.Error.Message, gc.Equals, "interrupted by restart")
		c.Assert(got.FinishedAt, gc.NotNil)
	}

	got, err := js.Get(ctx, completed.ID)
	c.Assert(err, gc.IsNil)
	c.Assert(got.Status, gc.Equals, model.StatusCompleted)
	c.Assert(got.Result["sum"], gc.Equals, 1.0)

	n, err = js.FailInterrupted(ctx, "interrupted by restart")
	c.Assert(err, gc.IsNil)
	c.Assert(n, gc.Equals, 0)
}
