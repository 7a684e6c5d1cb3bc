package idempotency

import (
	"encoding/json"
	"time"
)

// Status of an idempotency record.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Record marks a logical operation that ran once. Result is the JSON
// snapshot returned to replays.
type Record struct {
	ID          string
	Key         string
	Scope       string
	Actor       string
	Status      Status
	Result      json.RawMessage
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Completed reports whether the operation committed.
func (r *Record) Completed() bool {
	return r != nil && r.Status == StatusCompleted
}
