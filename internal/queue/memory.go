package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
// It mirrors the Postgres store's transition semantics; the claim operation
// is atomic under one mutex, so the no-double-claim guarantee holds for any
// number of concurrent callers.
type MemoryStore struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	backoffBase time.Duration

	// now is swappable so tests can control the clock.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore(backoffBase time.Duration) *MemoryStore {
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	return &MemoryStore{
		jobs:        make(map[string]*Job),
		backoffBase: backoffBase,
		now:         time.Now,
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, params EnqueueParams) (string, error) {
	ids, err := s.EnqueueBatch(ctx, []EnqueueParams{params})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *MemoryStore) EnqueueBatch(ctx context.Context, batch []EnqueueParams) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	ids := make([]string, 0, len(batch))

	for _, params := range batch {
		scheduledAt := params.ScheduledAt
		if scheduledAt.IsZero() {
			scheduledAt = now
		}
		maxAttempts := params.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = DefaultMaxAttempts
		}

		id := uuid.New().String()
		s.jobs[id] = &Job{
			ID:          id,
			CompanyID:   params.CompanyID,
			Type:        params.Type,
			Payload:     params.Payload,
			Status:      StatusPending,
			ScheduledAt: scheduledAt,
			MaxAttempts: maxAttempts,
			CreatedAt:   now,
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	copied := *job
	return &copied, nil
}

func (s *MemoryStore) FetchForProcessing(ctx context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	due := make([]*Job, 0)
	for _, job := range s.jobs {
		if job.Status == StatusPending && !job.ScheduledAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]Job, 0, len(due))
	for _, job := range due {
		job.Status = StatusProcessing
		startedAt := now
		job.StartedAt = &startedAt
		job.Attempts++
		claimed = append(claimed, *job)
	}

	return claimed, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}

	switch job.Status {
	case StatusCompleted:
		return nil
	case StatusProcessing:
		job.Status = StatusCompleted
		completedAt := s.now().UTC()
		job.CompletedAt = &completedAt
		return nil
	default:
		return ErrInvalidTransition
	}
}

func (s *MemoryStore) Fail(ctx context.Context, id string, errMsg string, retry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}

	outcome := Decide(job.Attempts, job.MaxAttempts, retry, s.backoffBase)
	job.Error = &errMsg

	if outcome.Status == StatusPending {
		job.Status = StatusPending
		job.ScheduledAt = s.now().UTC().Add(outcome.Delay)
	} else {
		job.Status = StatusFailed
		completedAt := s.now().UTC()
		job.CompletedAt = &completedAt
	}

	return nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusPending {
		return ErrJobNotPending
	}

	reason := "cancelled"
	job.Status = StatusFailed
	job.Error = &reason
	completedAt := s.now().UTC()
	job.CompletedAt = &completedAt

	return nil
}

func (s *MemoryStore) Retry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusFailed {
		return ErrJobNotFailed
	}

	job.Status = StatusPending
	job.Attempts = 0
	job.ScheduledAt = s.now().UTC()
	job.Error = nil
	job.StartedAt = nil
	job.CompletedAt = nil

	return nil
}

func (s *MemoryStore) Stats(ctx context.Context, companyID *string) (StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts StatusCounts
	for _, job := range s.jobs {
		if companyID != nil {
			if job.CompanyID == nil || *job.CompanyID != *companyID {
				continue
			}
		}
		switch job.Status {
		case StatusPending:
			counts.Pending++
		case StatusProcessing:
			counts.Processing++
		case StatusCompleted:
			counts.Completed++
		case StatusFailed:
			counts.Failed++
		}
	}

	return counts, nil
}

func (s *MemoryStore) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	var deleted int64
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}

	return deleted, nil
}
