package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/api/dto"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/synclog"
)

// Broadcast handles POST /api/v1/sync/broadcast
// Called by mutation handlers right after a successful write. The append is
// awaited but a log failure never fails the request; delivery is best
// effort on top of the authoritative mutation.
func (h *SyncHandler) Broadcast(c *gin.Context) {
	var req dto.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid broadcast request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	action := h.broadcaster.Broadcast(c.Request.Context(), synclog.Action{
		Type:       synclog.ActionType(req.Type),
		Module:     req.Module,
		EntityID:   req.EntityID,
		CompanyID:  req.CompanyID,
		ClientID:   req.ClientID,
		UserID:     req.UserID,
		Data:       req.Data,
		QueryPaths: req.QueryPaths,
	})

	c.JSON(http.StatusAccepted, dto.BroadcastResponse{
		ActionID:  action.ID,
		Timestamp: action.Timestamp,
		Dropped:   h.broadcaster.Dropped(),
	})
}

// MissedActions handles GET /api/v1/sync/actions
// Catch-up read for a reconnecting client: actions strictly newer than its
// watermark. The log is bounded and lossy, so a client that was offline
// long enough may get an incomplete history and should fall back to a full
// state refetch.
func (h *SyncHandler) MissedActions(c *gin.Context) {
	var req dto.MissedActionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "company_id is required",
		})
		return
	}

	sub := synclog.NewSubscription(h.actionLog, req.CompanyID)
	actions, watermark, err := sub.Poll(c.Request.Context(), req.Since)
	if err != nil {
		h.logger.Error("Failed to read missed actions",
			slog.String("company_id", req.CompanyID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read sync actions",
		})
		return
	}

	if actions == nil {
		actions = []synclog.Action{}
	}

	c.JSON(http.StatusOK, gin.H{
		"actions":   actions,
		"watermark": watermark,
	})
}

// Subscribe handles GET /api/v1/sync/subscribe
// Streams a company's actions over SSE until the client disconnects. The
// stream starts at "now"; reconnecting clients replay history through
// MissedActions first.
func (h *SyncHandler) Subscribe(c *gin.Context) {
	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "company_id is required",
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ch := h.subscriber.Subscribe(c.Request.Context(), companyID)

	c.Stream(func(w io.Writer) bool {
		action, ok := <-ch
		if !ok {
			return false
		}
		c.SSEvent("sync", action)
		return true
	})
}
