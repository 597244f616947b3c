package synclog

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultPollInterval is the sleep between successful polls.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultErrorBackoff is the longer sleep after a failed poll.
	DefaultErrorBackoff = 2 * time.Second
)

// Subscription is one client's view of a company's action stream. Poll is
// the only transport-facing operation, so a push transport can later replace
// the polling loop without touching the log contract underneath.
type Subscription struct {
	log       ActionLog
	companyID string
}

// NewSubscription creates a subscription for one company.
func NewSubscription(log ActionLog, companyID string) *Subscription {
	return &Subscription{
		log:       log,
		companyID: companyID,
	}
}

// Poll fetches actions newer than since and returns them with the advanced
// watermark. On error the watermark is returned unchanged so the same range
// is retried.
func (s *Subscription) Poll(ctx context.Context, since int64) ([]Action, int64, error) {
	actions, err := s.log.MissedSince(ctx, s.companyID, since)
	if err != nil {
		return nil, since, err
	}

	next := since
	for _, action := range actions {
		if action.Timestamp > next {
			next = action.Timestamp
		}
	}

	return actions, next, nil
}

// Subscriber produces per-company action streams over an ActionLog.
type Subscriber struct {
	log          ActionLog
	logger       *slog.Logger
	pollInterval time.Duration
	errorBackoff time.Duration
}

// NewSubscriber creates a subscriber. Non-positive intervals fall back to
// the defaults.
func NewSubscriber(log ActionLog, logger *slog.Logger, pollInterval, errorBackoff time.Duration) *Subscriber {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if errorBackoff <= 0 {
		errorBackoff = DefaultErrorBackoff
	}
	return &Subscriber{
		log:          log,
		logger:       logger,
		pollInterval: pollInterval,
		errorBackoff: errorBackoff,
	}
}

// Subscribe returns a channel of the company's actions in non-decreasing
// timestamp order, starting from "now". The loop delivers at-least-once:
// the watermark only advances after a full batch has been sent, so a
// consumer that restarts may see a batch again. The channel closes when ctx
// is cancelled; cancellation is cooperative, checked between iterations.
func (s *Subscriber) Subscribe(ctx context.Context, companyID string) <-chan Action {
	ch := make(chan Action)

	go func() {
		defer close(ch)

		sub := NewSubscription(s.log, companyID)
		watermark := time.Now().UnixMilli()

		for {
			actions, next, err := sub.Poll(ctx, watermark)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("Sync poll failed, backing off",
					slog.String("company_id", companyID),
					slog.String("error", err.Error()),
				)
				if !sleepCtx(ctx, s.errorBackoff) {
					return
				}
				continue
			}

			for _, action := range actions {
				select {
				case ch <- action:
				case <-ctx.Done():
					return
				}
			}
			watermark = next

			if !sleepCtx(ctx, s.pollInterval) {
				return
			}
		}
	}()

	return ch
}

// sleepCtx sleeps for d unless ctx ends first; reports whether the full
// sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
