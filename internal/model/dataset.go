package model

import "time"

// Dataset is an uploaded analysis input. Payload is opaque to the registry and
// is never modified once the dataset has been stored.
type Dataset struct {
	ID          string    `json:"dataset_id"`
	Description string    `json:"description,omitempty"`
	Payload     any       `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}
