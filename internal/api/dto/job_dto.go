package dto

import (
	"encoding/json"
	"time"
)

type EnqueueJobRequest struct {
	Type        string          `json:"type" binding:"required"`
	Payload     json.RawMessage `json:"payload" binding:"required"`
	CompanyID   *string         `json:"company_id"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	MaxAttempts int             `json:"max_attempts"`
}

type EnqueueJobsRequest struct {
	Jobs []EnqueueJobRequest `json:"jobs" binding:"required,min=1,dive"`
}

type EnqueueJobResponse struct {
	JobID string `json:"job_id"`
}

type EnqueueJobsResponse struct {
	JobIDs []string `json:"job_ids"`
}

type JobResponse struct {
	JobID       string          `json:"job_id"`
	CompanyID   *string         `json:"company_id,omitempty"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	ScheduledAt string          `json:"scheduled_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   string          `json:"created_at"`
	StartedAt   *string         `json:"started_at,omitempty"`
	CompletedAt *string         `json:"completed_at,omitempty"`
}

type JobStatsResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

type CleanupRequest struct {
	RetentionDays int `json:"retention_days" binding:"required,min=1"`
}

type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}
