package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ErrIDAllocation is returned when a fresh identifier cannot be generated.
var ErrIDAllocation = errors.New("id allocation failed")

// NewJobID generates a new ULID string for a job record.
func NewJobID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIDAllocation, err)
	}
	return id.String(), nil
}

// NewDatasetID generates a new random UUID string for a dataset.
func NewDatasetID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIDAllocation, err)
	}
	return id.String(), nil
}
