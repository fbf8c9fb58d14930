package store

import (
	"context"
	"errors"

	"github.com/seantiz/yieldlab/internal/model"
)

var (
	// ErrDatasetNotFound is returned when a dataset id is not present in the store.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrJobNotFound is returned when a job id is not present in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a job status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// JobStats holds aggregate job statistics.
type JobStats struct {
	Total              int            `json:"total"`
	CountByStatus      map[string]int `json:"count_by_status"`
	CountByComputation map[string]int `json:"count_by_computation"`
	AvgDurationMS      float64        `json:"avg_duration_ms"`
}

// JobStore defines the operations on job records. Status changes only happen
// through the transition methods, each of which succeeds only from its single
// allowed source status; implementations must make the check and the write
// atomic per record.
type JobStore interface {
	// Create allocates a pending job for the given dataset and returns it.
	Create(ctx context.Context, datasetID, computation string, params model.Params) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, limit, offset int) ([]*model.Job, int, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*JobStats, error)

	TransitionToRunning(ctx context.Context, id string) error
	CompleteWith(ctx context.Context, id string, result model.Result) error
	FailWith(ctx context.Context, id string, jobErr *model.JobError) error

	Close() error
}

// unknownError is recorded when a job fails without a message.
const unknownError = "unknown error"

// DatasetChecker reports whether a dataset exists. *DatasetStore satisfies it.
type DatasetChecker interface {
	Exists(id string) bool
}

// checkDataset returns ErrDatasetNotFound when datasets is set and does not
// know datasetID.
func checkDataset(datasets DatasetChecker, datasetID string) error {
	if datasets != nil && !datasets.Exists(datasetID) {
		return ErrDatasetNotFound
	}
	return nil
}

func newStats() *JobStats {
	return &JobStats{
		CountByStatus: map[string]int{
			model.StatusPending:   0,
			model.StatusRunning:   0,
			model.StatusCompleted: 0,
			model.StatusFailed:    0,
		},
		CountByComputation: make(map[string]int),
	}
}
