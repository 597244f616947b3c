package synclog

import (
	"context"
	"time"
)

const (
	// MaxActionsPerCompany caps each company's log; oldest entries are
	// evicted first once the cap is exceeded.
	MaxActionsPerCompany = 1000

	// ActionTTL is the rolling expiry refreshed on every append. A company
	// with no writes for this long loses its whole log.
	ActionTTL = 24 * time.Hour
)

// ActionLog is a bounded, lossy, per-company ordered event log. It is a
// retention-limited delivery buffer, not a durable event store: a client
// offline past the cap or TTL must fall back to a full state refetch.
type ActionLog interface {
	// Store appends the action under its company, ordered by timestamp, then
	// trims to MaxActionsPerCompany and refreshes the company's TTL. The
	// three steps are not transactional; both bounds are soft.
	Store(ctx context.Context, action Action) error

	// MissedSince returns the company's actions with timestamp strictly
	// greater than since, ascending. The result can be an incomplete history
	// because of eviction.
	MissedSince(ctx context.Context, companyID string, since int64) ([]Action, error)
}
