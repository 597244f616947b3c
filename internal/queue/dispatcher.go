package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HandlerFunc processes one claimed job. A nil return completes the job; an
// error fails it and triggers the retry policy unless wrapped with Permanent.
type HandlerFunc func(ctx context.Context, job *Job) error

// DispatcherConfig holds dispatcher construction parameters.
type DispatcherConfig struct {
	Logger       *slog.Logger
	Store        Store
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Dispatcher runs the claim loop and a pool of worker goroutines. Claiming
// and handler execution are decoupled through a channel so one slow handler
// never blocks other workers from picking up their own jobs. Any number of
// dispatcher processes may run against the same store; the store's atomic
// claim is the only coordination point.
type Dispatcher struct {
	logger       *slog.Logger
	store        Store
	concurrency  int
	pollInterval time.Duration
	jobTimeout   time.Duration

	handlers map[string]HandlerFunc
	mu       sync.RWMutex

	jobsChan chan Job
	wakeChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Handlers must be registered before
// Start is called.
func NewDispatcher(cfg *DispatcherConfig) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Dispatcher{
		logger:       cfg.Logger,
		store:        cfg.Store,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		jobTimeout:   cfg.JobTimeout,
		handlers:     make(map[string]HandlerFunc),
		jobsChan:     make(chan Job, concurrency),
		wakeChan:     make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
	}
}

// Register adds a handler for a job type.
func (d *Dispatcher) Register(jobType string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = handler
}

// Wake nudges the claim loop to poll immediately instead of waiting for the
// next tick. Best effort; dropping the nudge is harmless because the poll
// ticker alone keeps the loop live.
func (d *Dispatcher) Wake() {
	select {
	case d.wakeChan <- struct{}{}:
	default:
	}
}

// Start runs the claim loop and worker pool until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("Starting dispatcher",
		slog.Int("concurrency", d.concurrency),
		slog.Duration("poll_interval", d.pollInterval),
		slog.Duration("job_timeout", d.jobTimeout),
	)

	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.workerLoop(ctx, i)
	}

	d.wg.Add(1)
	go d.claimLoop(ctx)

	<-ctx.Done()
	d.logger.Info("Dispatcher context canceled, stopping...")

	return nil
}

// Stop signals all loops to exit and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping dispatcher...")
	close(d.stopChan)
	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

// claimLoop repeatedly claims due jobs and hands them to the worker pool.
// A failed claim attempt is treated as "no jobs this tick": the rows stay
// pending and the next poll retries them.
func (d *Dispatcher) claimLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wakeChan:
		}

		jobs, err := d.store.FetchForProcessing(ctx, d.concurrency)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("Claim attempt failed, will retry next tick",
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, job := range jobs {
			select {
			case d.jobsChan <- job:
			case <-d.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context, workerNum int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		case job := <-d.jobsChan:
			d.processJob(ctx, &job, workerNum)
		}
	}
}

func (d *Dispatcher) processJob(ctx context.Context, job *Job, workerNum int) {
	d.mu.RLock()
	handler, ok := d.handlers[job.Type]
	d.mu.RUnlock()

	if !ok {
		// Unrecognized types dead-letter immediately; retrying cannot fix a
		// missing handler.
		d.logger.Error("No handler for job type",
			slog.String("job_id", job.ID),
			slog.String("job_type", job.Type),
		)
		d.reportFailure(ctx, job, ErrNoHandler.Error(), false)
		return
	}

	d.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.Int("attempt", job.Attempts),
		slog.Int("worker_num", workerNum),
	)

	err := d.runHandler(ctx, handler, job)
	if err != nil {
		d.logger.Error("Job handler failed",
			slog.String("job_id", job.ID),
			slog.String("job_type", job.Type),
			slog.String("error", err.Error()),
		)
		d.reportFailure(ctx, job, err.Error(), !IsPermanent(err))
		return
	}

	if err := d.store.Complete(ctx, job.ID); err != nil {
		d.logger.Error("Failed to mark job completed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	d.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
	)
}

// runHandler invokes the handler under the per-job deadline and converts
// panics into ordinary failures so the worker loop survives them.
func (d *Dispatcher) runHandler(ctx context.Context, handler HandlerFunc, job *Job) (err error) {
	jobCtx := ctx
	if d.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, d.jobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(jobCtx, job)
}

func (d *Dispatcher) reportFailure(ctx context.Context, job *Job, errMsg string, retry bool) {
	if err := d.store.Fail(ctx, job.ID, errMsg, retry); err != nil {
		d.logger.Error("Failed to record job failure",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
