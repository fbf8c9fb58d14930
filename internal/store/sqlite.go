package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/seantiz/yieldlab/internal/model"

	_ "modernc.org/sqlite"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    dataset_id    TEXT NOT NULL,
    computation   TEXT NOT NULL,
    params        TEXT,
    status        TEXT NOT NULL,
    result        TEXT,
    error_message TEXT,
    error_detail  TEXT,
    duration_ms   INTEGER,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    started_at    DATETIME,
    finished_at   DATETIME
)`

const selectJobColumns = `SELECT id, dataset_id, computation, params, status, result,
	error_message, error_detail, duration_ms, created_at, updated_at, started_at, finished_at
	FROM jobs`

// Compile-time interface satisfaction check.
var _ JobStore = (*SQLiteJobStore)(nil)

// SQLiteJobStore implements JobStore using SQLite. Status transitions are
// conditional updates on the current status, so concurrent transitions on the
// same job have exactly one winner.
type SQLiteJobStore struct {
	db       *sql.DB
	datasets DatasetChecker
	now      func() time.Time
}

// busyTimeoutMS is how long a connection waits on a lock held by another
// writer before failing with SQLITE_BUSY.
const busyTimeoutMS = 5000

// NewSQLiteJobStore opens the SQLite database at dbPath and runs migrations.
// When datasets is non-nil, Create rejects unknown dataset ids.
func NewSQLiteJobStore(dbPath string, datasets DatasetChecker) (*SQLiteJobStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers inside the process, and ":memory:"
	// gives every connection its own database. The busy timeout covers other
	// processes sharing the file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if _, err := db.Exec(createJobsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}

	return &SQLiteJobStore{db: db, datasets: datasets, now: time.Now}, nil
}

// sqliteDSN sets the pragmas on the connection string so that every
// connection the pool opens gets them, not only the first.
func sqliteDSN(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	if dbPath != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + dbPath + "?" + q.Encode()
}

// FailInterrupted marks every pending or running job as failed with message
// and returns how many were changed. Call it once at startup, before any
// engine uses the store: such jobs belonged to a previous process and will
// never be run.
func (s *SQLiteJobStore) FailInterrupted(ctx context.Context, message string) (int, error) {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, error_detail = NULL,
		finished_at = ?, updated_at = ? WHERE status IN (?, ?)`,
		model.StatusFailed, message, now, now, model.StatusPending, model.StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}

// Create inserts a new pending job record.
func (s *SQLiteJobStore) Create(ctx context.Context, datasetID, computation string, params model.Params) (*model.Job, error) {
	if err := checkDataset(s.datasets, datasetID); err != nil {
		return nil, err
	}
	id, err := model.NewJobID()
	if err != nil {
		return nil, err
	}
	paramsJSON, err := marshalNullable(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, dataset_id, computation, params, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, datasetID, computation, paramsJSON, model.StatusPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.Get(ctx, id)
}

// Get retrieves a job by id.
func (s *SQLiteJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, selectJobColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// List returns a page of jobs ordered by created_at DESC, along with the
// total count of all jobs.
func (s *SQLiteJobStore) List(ctx context.Context, limit, offset int) ([]*model.Job, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		selectJobColumns+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// Count returns the number of job records.
func (s *SQLiteJobStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// Stats aggregates job counts and the mean duration of finished jobs.
func (s *SQLiteJobStore) Stats(ctx context.Context) (*JobStats, error) {
	stats := newStats()

	rows, err := s.db.QueryContext(ctx, "SELECT status, computation, COUNT(*) FROM jobs GROUP BY status, computation")
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, computation string
		var n int
		if err := rows.Scan(&status, &computation, &n); err != nil {
			return nil, fmt.Errorf("scan job counts: %w", err)
		}
		stats.Total += n
		stats.CountByStatus[status] += n
		stats.CountByComputation[computation] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job counts: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM jobs WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}
	return stats, nil
}

// TransitionToRunning moves a pending job to running.
func (s *SQLiteJobStore) TransitionToRunning(ctx context.Context, id string) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?",
		model.StatusRunning, now, now, id, model.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// CompleteWith moves a running job to completed and records result.
func (s *SQLiteJobStore) CompleteWith(ctx context.Context, id string, result model.Result) error {
	if result == nil {
		result = model.Result{}
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.finish(ctx, id, model.StatusCompleted, "result = ?", string(resultJSON))
}

// FailWith moves a running job to failed and records jobErr.
func (s *SQLiteJobStore) FailWith(ctx context.Context, id string, jobErr *model.JobError) error {
	if jobErr == nil || jobErr.Message == "" {
		jobErr = &model.JobError{Message: unknownError}
	}
	return s.finish(ctx, id, model.StatusFailed,
		"error_message = ?, error_detail = ?", jobErr.Message, jobErr.Detail)
}

// finish performs a running -> terminal transition. setClause assigns the
// outcome columns from args.
func (s *SQLiteJobStore) finish(ctx context.Context, id, status, setClause string, args ...any) error {
	var startedAt *time.Time
	err := s.db.QueryRowContext(ctx, "SELECT started_at FROM jobs WHERE id = ?", id).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("get job start time: %w", err)
	}

	now := s.now().UTC()
	var durationMS *int
	if startedAt != nil {
		d := int(now.Sub(*startedAt).Milliseconds())
		durationMS = &d
	}

	query := "UPDATE jobs SET status = ?, " + setClause +
		", duration_ms = ?, finished_at = ?, updated_at = ? WHERE id = ? AND status = ?"
	execArgs := append([]any{status}, args...)
	execArgs = append(execArgs, durationMS, now, now, id, model.StatusRunning)

	res, err := s.db.ExecContext(ctx, query, execArgs...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition maps a conditional update that touched no rows to
// ErrJobNotFound or ErrInvalidTransition.
func (s *SQLiteJobStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM jobs WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	return ErrInvalidTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var params, result, errMsg, errDetail sql.NullString
	if err := row.Scan(
		&j.ID, &j.DatasetID, &j.Computation, &params, &j.Status, &result,
		&errMsg, &errDetail, &j.DurationMS, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.FinishedAt,
	); err != nil {
		return nil, err
	}

	if params.Valid {
		if err := json.Unmarshal([]byte(params.String), &j.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &j.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	if errMsg.Valid {
		j.Error = &model.JobError{Message: errMsg.String, Detail: errDetail.String}
	}
	return j, nil
}

// marshalNullable encodes v as JSON, mapping a nil map to SQL NULL.
func marshalNullable(v model.Params) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
