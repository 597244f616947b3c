package synclog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Broadcaster writes sync actions as a best-effort side effect of business
// mutations. Delivery is an optimization layered on top of the authoritative
// write, so Broadcast never surfaces an error to its caller; failures are
// logged and counted instead.
type Broadcaster struct {
	log     ActionLog
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster over the given log.
func NewBroadcaster(log ActionLog, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		log:    log,
		logger: logger,
	}
}

// Broadcast fills in id and timestamp defaults and appends the action to
// the company's log. The append is awaited but its failure is swallowed.
func (b *Broadcaster) Broadcast(ctx context.Context, action Action) Action {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.Timestamp == 0 {
		action.Timestamp = time.Now().UnixMilli()
	}

	if err := b.log.Store(ctx, action); err != nil {
		b.dropped.Add(1)
		b.logger.Error("Dropped sync action",
			slog.String("company_id", action.CompanyID),
			slog.String("module", action.Module),
			slog.String("type", string(action.Type)),
			slog.String("error", err.Error()),
			slog.Uint64("dropped_total", b.dropped.Load()),
		)
	}

	return action
}

// Dropped returns how many actions failed to reach the log since startup.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}
