package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/api/dto"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/queue"
)

// EnqueueJob handles POST /api/v1/jobs
// Inserts a single pending job and nudges idle dispatchers.
func (h *JobHandler) EnqueueJob(c *gin.Context) {
	var req dto.EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid enqueue request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	id, err := h.store.Enqueue(c.Request.Context(), enqueueParams(req))
	if err != nil {
		h.logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	h.nudge(c, []string{id})

	c.JSON(http.StatusCreated, dto.EnqueueJobResponse{JobID: id})
}

// EnqueueJobs handles POST /api/v1/jobs/batch
// Inserts all jobs in one transaction; on failure none are kept.
func (h *JobHandler) EnqueueJobs(c *gin.Context) {
	var req dto.EnqueueJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid batch enqueue request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	batch := make([]queue.EnqueueParams, len(req.Jobs))
	for i, job := range req.Jobs {
		batch[i] = enqueueParams(job)
	}

	ids, err := h.store.EnqueueBatch(c.Request.Context(), batch)
	if err != nil {
		h.logger.Error("Failed to enqueue job batch", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue jobs",
		})
		return
	}

	h.nudge(c, ids)

	c.JSON(http.StatusCreated, dto.EnqueueJobsResponse{JobIDs: ids})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobResponse(job))
}

// GetStats handles GET /api/v1/jobs/stats
// Returns per-status counts, optionally scoped by company_id.
func (h *JobHandler) GetStats(c *gin.Context) {
	var companyID *string
	if v := c.Query("company_id"); v != "" {
		companyID = &v
	}

	counts, err := h.store.Stats(c.Request.Context(), companyID)
	if err != nil {
		h.logger.Error("Failed to get job stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job stats",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatsResponse{
		Pending:    counts.Pending,
		Processing: counts.Processing,
		Completed:  counts.Completed,
		Failed:     counts.Failed,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Only a still-pending job can be cancelled; a claimed job runs to its
// natural completion or failure.
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	err := h.store.Cancel(c.Request.Context(), jobID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"job_id": jobID,
			"status": string(queue.StatusFailed),
		})
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
	case errors.Is(err, queue.ErrJobNotPending):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Only pending jobs can be cancelled",
		})
	default:
		h.logger.Error("Failed to cancel job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job",
		})
	}
}

// RetryJob handles POST /api/v1/jobs/:job_id/retry
// Operator override: failed job back to pending, bypassing backoff.
func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	err := h.store.Retry(c.Request.Context(), jobID)
	switch {
	case err == nil:
		h.nudge(c, []string{jobID})
		c.JSON(http.StatusOK, gin.H{
			"job_id": jobID,
			"status": string(queue.StatusPending),
		})
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
	case errors.Is(err, queue.ErrJobNotFailed):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Only failed jobs can be retried",
		})
	default:
		h.logger.Error("Failed to retry job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retry job",
		})
	}
}

// Cleanup handles POST /api/v1/jobs/cleanup
// Deletes terminal jobs past the retention window.
func (h *JobHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	deleted, err := h.store.CleanupOld(c.Request.Context(), req.RetentionDays)
	if err != nil {
		h.logger.Error("Failed to cleanup jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cleanup jobs",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CleanupResponse{Deleted: deleted})
}

// nudge tells idle dispatchers that new work exists. Best effort: enqueue
// already succeeded, so a publish failure is only a latency hit.
func (h *JobHandler) nudge(c *gin.Context, jobIDs []string) {
	if h.nudger == nil {
		return
	}

	body, err := json.Marshal(gin.H{"job_ids": jobIDs})
	if err != nil {
		return
	}

	if err := h.nudger.Publish(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Warn("Failed to publish enqueue nudge",
			slog.Int("job_count", len(jobIDs)),
			slog.String("error", err.Error()),
		)
	}
}

func enqueueParams(req dto.EnqueueJobRequest) queue.EnqueueParams {
	params := queue.EnqueueParams{
		Type:        req.Type,
		Payload:     req.Payload,
		CompanyID:   req.CompanyID,
		MaxAttempts: req.MaxAttempts,
	}
	if req.ScheduledAt != nil {
		params.ScheduledAt = *req.ScheduledAt
	}
	return params
}

func jobResponse(job *queue.Job) dto.JobResponse {
	resp := dto.JobResponse{
		JobID:       job.ID,
		CompanyID:   job.CompanyID,
		Type:        job.Type,
		Payload:     job.Payload,
		Status:      string(job.Status),
		ScheduledAt: job.ScheduledAt.Format(time.RFC3339),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
	}
	if job.StartedAt != nil {
		s := job.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if job.CompletedAt != nil {
		s := job.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}
