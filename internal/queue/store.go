package queue

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// DefaultMaxAttempts applies when EnqueueParams.MaxAttempts is zero.
	DefaultMaxAttempts = 3

	// DefaultBackoffBase is the base delay for exponential retry scheduling.
	DefaultBackoffBase = 30 * time.Second
)

// EnqueueParams describes a job to insert. Zero ScheduledAt means "now",
// zero MaxAttempts means DefaultMaxAttempts.
type EnqueueParams struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CompanyID   *string         `json:"company_id,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
}

// Store is the persistence boundary for jobs. All cross-worker coordination
// happens inside FetchForProcessing; callers never take additional locks.
type Store interface {
	// Enqueue inserts a single pending job and returns its id.
	Enqueue(ctx context.Context, params EnqueueParams) (string, error)

	// EnqueueBatch inserts all jobs in one transaction; on error none are kept.
	EnqueueBatch(ctx context.Context, batch []EnqueueParams) ([]string, error)

	// GetJob returns a job by id, or ErrJobNotFound.
	GetJob(ctx context.Context, id string) (*Job, error)

	// FetchForProcessing atomically claims up to limit due pending jobs,
	// ordered by scheduled time. Rows locked by a concurrent claimant are
	// skipped, never waited on. Claimed rows come back as processing with
	// attempts already incremented.
	FetchForProcessing(ctx context.Context, limit int) ([]Job, error)

	// Complete marks a job completed. Idempotent for already-completed jobs.
	Complete(ctx context.Context, id string) error

	// Fail records a handler failure. With retry and budget remaining the job
	// returns to pending with an exponentially backed-off schedule; otherwise
	// it becomes terminally failed with errMsg.
	Fail(ctx context.Context, id string, errMsg string, retry bool) error

	// Cancel flips a still-pending job to failed with a cancelled reason.
	// Claimed jobs cannot be cancelled and run to natural completion.
	Cancel(ctx context.Context, id string) error

	// Retry is the operator override: failed job back to pending, attempts
	// reset, scheduled immediately.
	Retry(ctx context.Context, id string) error

	// Stats returns per-status counts, optionally scoped to one company.
	Stats(ctx context.Context, companyID *string) (StatusCounts, error)

	// CleanupOld deletes terminal jobs older than the retention window and
	// returns the number removed. Pending and processing rows are never
	// deleted regardless of age.
	CleanupOld(ctx context.Context, retentionDays int) (int64, error)
}
