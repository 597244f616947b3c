package handler

import (
	"context"
	"log/slog"

	"github.com/nitinthakurcode/weddingflo-sub013/internal/queue"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/synclog"
)

// NudgePublisher sends best-effort "new work available" signals to idle
// dispatcher instances. Failures are logged, never surfaced to clients.
type NudgePublisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Store       queue.Store
	ActionLog   synclog.ActionLog
	Broadcaster *synclog.Broadcaster
	Subscriber  *synclog.Subscriber
	Nudger      NudgePublisher
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	store  queue.Store
	nudger NudgePublisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		store:  deps.Store,
		nudger: deps.Nudger,
	}
}

// SyncHandler handles sync broadcast and subscription HTTP requests
type SyncHandler struct {
	logger      *slog.Logger
	actionLog   synclog.ActionLog
	broadcaster *synclog.Broadcaster
	subscriber  *synclog.Subscriber
}

// NewSyncHandler creates a new SyncHandler instance
func NewSyncHandler(deps *Dependencies) *SyncHandler {
	return &SyncHandler{
		logger:      deps.Logger,
		actionLog:   deps.ActionLog,
		broadcaster: deps.Broadcaster,
		subscriber:  deps.Subscriber,
	}
}
