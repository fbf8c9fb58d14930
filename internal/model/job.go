package model

import (
	"maps"
	"time"
)

// Job status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
// Terminal statuses have no entry.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// statusRank orders statuses along the job lifecycle.
var statusRank = map[string]int{
	StatusPending:   0,
	StatusRunning:   1,
	StatusCompleted: 2,
	StatusFailed:    2,
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is completed or failed.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// StatusRank returns the position of status in the lifecycle, or -1 if unknown.
func StatusRank(status string) int {
	r, ok := statusRank[status]
	if !ok {
		return -1
	}
	return r
}

// Params are the caller-supplied arguments of a computation.
type Params map[string]any

// Result is the structured output of a successful computation.
type Result map[string]any

// JobError describes why a job failed.
type JobError struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *JobError) Error() string {
	return e.Message
}

// Job is the record of one asynchronous computation against a dataset.
type Job struct {
	ID          string     `json:"job_id"`
	DatasetID   string     `json:"dataset_id"`
	Computation string     `json:"computation"`
	Params      Params     `json:"params,omitempty"`
	Status      string     `json:"status"`
	Result      Result     `json:"result,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	DurationMS  *int       `json:"duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a copy of j that shares no mutable state with it. Result and
// Params values are copied one level deep.
func (j *Job) Clone() *Job {
	c := *j
	c.Params = maps.Clone(j.Params)
	c.Result = maps.Clone(j.Result)
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.DurationMS != nil {
		d := *j.DurationMS
		c.DurationMS = &d
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
