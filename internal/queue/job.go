package queue

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a unit of deferred work. Rows are created by Enqueue, mutated only
// by the claim/complete/fail path, and deleted only by retention cleanup
// once terminal.
type Job struct {
	ID          string          `db:"id" json:"id"`
	CompanyID   *string         `db:"company_id" json:"company_id,omitempty"`
	Type        string          `db:"type" json:"type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      Status          `db:"status" json:"status"`
	ScheduledAt time.Time       `db:"scheduled_at" json:"scheduled_at"`
	Attempts    int             `db:"attempts" json:"attempts"`
	MaxAttempts int             `db:"max_attempts" json:"max_attempts"`
	Error       *string         `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	StartedAt   *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// StatusCounts holds per-status job totals for monitoring.
type StatusCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
