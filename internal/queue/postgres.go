package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresStore implements Store on top of a jobs table indexed on
// (status, scheduled_at) for claim scans and on company_id for stats.
type PostgresStore struct {
	db          *sqlx.DB
	logger      *slog.Logger
	backoffBase time.Duration
}

// NewPostgresStore creates a Postgres-backed job store. backoffBase <= 0
// falls back to DefaultBackoffBase.
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger, backoffBase time.Duration) *PostgresStore {
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	return &PostgresStore{
		db:          db,
		logger:      logger,
		backoffBase: backoffBase,
	}
}

const jobColumns = `id, company_id, type, payload, status, scheduled_at,
	attempts, max_attempts, error, created_at, started_at, completed_at`

func (s *PostgresStore) Enqueue(ctx context.Context, params EnqueueParams) (string, error) {
	ids, err := s.EnqueueBatch(ctx, []EnqueueParams{params})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *PostgresStore) EnqueueBatch(ctx context.Context, batch []EnqueueParams) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO jobs (
			id, company_id, type, payload, status,
			scheduled_at, attempts, max_attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	`

	now := time.Now().UTC()
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
		if _, err := tx.ExecContext(ctx, query,
			id,
			params.CompanyID,
			params.Type,
			params.Payload,
			StatusPending,
			scheduledAt,
			maxAttempts,
			now,
		); err != nil {
			return nil, fmt.Errorf("failed to insert job: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit enqueue transaction: %w", err)
	}

	s.logger.Debug("Jobs enqueued",
		slog.Int("count", len(ids)),
	)

	return ids, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// FetchForProcessing claims due pending jobs in a single statement. The
// FOR UPDATE SKIP LOCKED subquery is what lets any number of dispatcher
// instances run the same loop against the same table without handing the
// same job to two workers.
func (s *PostgresStore) FetchForProcessing(ctx context.Context, limit int) ([]Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    started_at = NOW(),
		    attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = $2 AND scheduled_at <= NOW()
			ORDER BY scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var jobs []Job
	if err := s.db.SelectContext(ctx, &jobs, query, StatusProcessing, StatusPending, limit); err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}

	if len(jobs) > 0 {
		s.logger.Debug("Jobs claimed",
			slog.Int("count", len(jobs)),
		)
	}

	return jobs, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    completed_at = COALESCE(completed_at, NOW())
		WHERE id = $2 AND status IN ($1, $3)
	`

	result, err := s.db.ExecContext(ctx, query, StatusCompleted, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}

	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id string, errMsg string, retry bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin fail transaction: %w", err)
	}
	defer tx.Rollback()

	var job Job
	getQuery := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &job, getQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to read job for fail: %w", err)
	}

	outcome := Decide(job.Attempts, job.MaxAttempts, retry, s.backoffBase)

	if outcome.Status == StatusPending {
		query := `
			UPDATE jobs
			SET status = $1,
			    scheduled_at = NOW() + $2 * INTERVAL '1 second',
			    error = $3
			WHERE id = $4
		`
		if _, err := tx.ExecContext(ctx, query, StatusPending, outcome.Delay.Seconds(), errMsg, id); err != nil {
			return fmt.Errorf("failed to reschedule job: %w", err)
		}

		s.logger.Info("Job rescheduled after failure",
			slog.String("job_id", id),
			slog.Int("attempts", job.Attempts),
			slog.Duration("delay", outcome.Delay),
		)
	} else {
		query := `
			UPDATE jobs
			SET status = $1,
			    error = $2,
			    completed_at = NOW()
			WHERE id = $3
		`
		if _, err := tx.ExecContext(ctx, query, StatusFailed, errMsg, id); err != nil {
			return fmt.Errorf("failed to mark job failed: %w", err)
		}

		s.logger.Warn("Job dead-lettered",
			slog.String("job_id", id),
			slog.Int("attempts", job.Attempts),
			slog.String("error", errMsg),
		)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fail transaction: %w", err)
	}

	return nil
}

func (s *PostgresStore) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error = 'cancelled',
		    completed_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, StatusFailed, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrJobNotPending
	}

	return nil
}

func (s *PostgresStore) Retry(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    attempts = 0,
		    scheduled_at = NOW(),
		    error = NULL,
		    started_at = NULL,
		    completed_at = NULL
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, StatusPending, id, StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrJobNotFailed
	}

	return nil
}

func (s *PostgresStore) Stats(ctx context.Context, companyID *string) (StatusCounts, error) {
	query := `SELECT status, COUNT(*) AS count FROM jobs`
	args := []interface{}{}
	if companyID != nil {
		query += ` WHERE company_id = $1`
		args = append(args, *companyID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StatusCounts{}, fmt.Errorf("failed to scan job stats: %w", err)
		}
		switch status {
		case StatusPending:
			counts.Pending = count
		case StatusProcessing:
			counts.Processing = count
		case StatusCompleted:
			counts.Completed = count
		case StatusFailed:
			counts.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return StatusCounts{}, fmt.Errorf("failed to iterate job stats: %w", err)
	}

	return counts, nil
}

func (s *PostgresStore) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ($1, $2)
		  AND created_at < NOW() - make_interval(days => $3)
	`

	result, err := s.db.ExecContext(ctx, query, StatusCompleted, StatusFailed, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("Old jobs cleaned up",
			slog.Int64("deleted", deleted),
			slog.Int("retention_days", retentionDays),
		)
	}

	return deleted, nil
}
