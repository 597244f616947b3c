package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func startDispatcher(t *testing.T, store Store, concurrency int) *Dispatcher {
	t.Helper()

	d := NewDispatcher(&DispatcherConfig{
		Logger:       testLogger(),
		Store:        store,
		Concurrency:  concurrency,
		PollInterval: 10 * time.Millisecond,
		JobTimeout:   time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)

	t.Cleanup(func() {
		cancel()
		d.Stop()
	})

	return d
}

func TestDispatcher_ProcessesJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	d := NewDispatcher(&DispatcherConfig{
		Logger:       testLogger(),
		Store:        store,
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		JobTimeout:   time.Second,
	})

	var mu sync.Mutex
	var processed []string
	d.Register("send_email", func(ctx context.Context, job *Job) error {
		mu.Lock()
		processed = append(processed, job.ID)
		mu.Unlock()
		return nil
	})

	runCtx, cancel := context.WithCancel(ctx)
	go d.Start(runCtx)
	defer func() {
		cancel()
		d.Stop()
	}()

	id, err := store.Enqueue(ctx, EnqueueParams{Type: "send_email"})
	require.NoError(t, err)
	d.Wake()

	assert.Eventually(t, func() bool {
		job, err := store.GetJob(ctx, id)
		return err == nil && job.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{id}, processed)
}

func TestDispatcher_RetriesFailedJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Millisecond)
	d := startDispatcher(t, store, 1)

	var mu sync.Mutex
	calls := 0
	d.Register("flaky", func(ctx context.Context, job *Job) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	id, err := store.Enqueue(ctx, EnqueueParams{Type: "flaky", MaxAttempts: 5})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		job, err := store.GetJob(ctx, id)
		return err == nil && job.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestDispatcher_DeadLettersAfterBudget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Millisecond)
	d := startDispatcher(t, store, 1)

	d.Register("doomed", func(ctx context.Context, job *Job) error {
		return errors.New("always fails")
	})

	id, err := store.Enqueue(ctx, EnqueueParams{Type: "doomed", MaxAttempts: 2})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		job, err := store.GetJob(ctx, id)
		return err == nil && job.Status == StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "always fails", *job.Error)
}

func TestDispatcher_PermanentErrorSkipsRetry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	d := startDispatcher(t, store, 1)

	var mu sync.Mutex
	calls := 0
	d.Register("invalid", func(ctx context.Context, job *Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return Permanent(errors.New("malformed payload"))
	})

	id, err := store.Enqueue(ctx, EnqueueParams{Type: "invalid", MaxAttempts: 5})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		job, err := store.GetJob(ctx, id)
		return err == nil && job.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestDispatcher_UnknownTypeDeadLetters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	startDispatcher(t, store, 1)

	id, err := store.Enqueue(ctx, EnqueueParams{Type: "unregistered", MaxAttempts: 5})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		job, err := store.GetJob(ctx, id)
		return err == nil && job.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	// A missing handler is not retried; the budget is irrelevant.
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, ErrNoHandler.Error(), *job.Error)
}

func TestDispatcher_RecoversFromHandlerPanic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	d := startDispatcher(t, store, 1)

	d.Register("panics", func(ctx context.Context, job *Job) error {
		panic("handler bug")
	})
	d.Register("fine", func(ctx context.Context, job *Job) error {
		return nil
	})

	panicID, err := store.Enqueue(ctx, EnqueueParams{Type: "panics", MaxAttempts: 1})
	require.NoError(t, err)
	fineID, err := store.Enqueue(ctx, EnqueueParams{Type: "fine"})
	require.NoError(t, err)

	// The worker survives the panic and keeps processing other jobs.
	assert.Eventually(t, func() bool {
		panicked, err1 := store.GetJob(ctx, panicID)
		completed, err2 := store.GetJob(ctx, fineID)
		return err1 == nil && err2 == nil &&
			panicked.Status == StatusFailed &&
			completed.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	job, err := store.GetJob(ctx, panicID)
	require.NoError(t, err)
	assert.Contains(t, *job.Error, "handler panic")
}

func TestDispatcher_ConcurrentWorkersShareQueue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	d := startDispatcher(t, store, 4)

	var mu sync.Mutex
	seen := make(map[string]int)
	d.Register("work", func(ctx context.Context, job *Job) error {
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		return nil
	})

	const jobCount = 30
	batch := make([]EnqueueParams, jobCount)
	for i := range batch {
		batch[i] = EnqueueParams{Type: "work"}
	}
	ids, err := store.EnqueueBatch(ctx, batch)
	require.NoError(t, err)
	d.Wake()

	assert.Eventually(t, func() bool {
		counts, err := store.Stats(ctx, nil)
		return err == nil && counts.Completed == jobCount
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], "job %s", id)
	}
}

func TestDispatcher_WakeDoesNotBlock(t *testing.T) {
	d := NewDispatcher(&DispatcherConfig{
		Logger: testLogger(),
		Store:  NewMemoryStore(0),
	})

	// Wake before Start and repeated Wake calls must never block.
	for i := 0; i < 100; i++ {
		d.Wake()
	}
}
