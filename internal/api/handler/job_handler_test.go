package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinthakurcode/weddingflo-sub013/internal/api/handler"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/api/router"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/queue"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/synclog"
)

type recordingNudger struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (n *recordingNudger) Publish(ctx context.Context, body []byte, contentType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bodies = append(n.bodies, body)
	return nil
}

func (n *recordingNudger) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.bodies)
}

type testEnv struct {
	router *gin.Engine
	store  *queue.MemoryStore
	log    *synclog.MemoryLog
	nudger *recordingNudger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))

	store := queue.NewMemoryStore(0)
	actionLog := synclog.NewMemoryLog()
	nudger := &recordingNudger{}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:      logger,
		Store:       store,
		ActionLog:   actionLog,
		Broadcaster: synclog.NewBroadcaster(actionLog, logger),
		Subscriber:  synclog.NewSubscriber(actionLog, logger, 0, 0),
		Nudger:      nudger,
	})

	return &testEnv{router: r, store: store, log: actionLog, nudger: nudger}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestEnqueueJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/jobs", gin.H{
		"type":    "send_email",
		"payload": gin.H{"to": "user@example.com"},
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)

	job, err := env.store.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, job.Status)
	assert.Equal(t, "send_email", job.Type)

	assert.Equal(t, 1, env.nudger.count())
}

func TestEnqueueJob_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/jobs", gin.H{
		"payload": gin.H{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnqueueJobs_Batch(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/jobs/batch", gin.H{
		"jobs": []gin.H{
			{"type": "a", "payload": gin.H{}},
			{"type": "b", "payload": gin.H{}},
		},
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		JobIDs []string `json:"job_ids"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.JobIDs, 2)
}

func TestEnqueueJobs_EmptyBatchRejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/jobs/batch", gin.H{
		"jobs": []gin.H{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.store.Enqueue(ctx, queue.EnqueueParams{
		Type:    "send_email",
		Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/jobs/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.JobID)
		assert.Equal(t, "pending", resp.Status)
	})

	t.Run("not found", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/jobs/11111111-1111-1111-1111-111111111111", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("pending job cancels", func(t *testing.T) {
		id, err := env.store.Enqueue(ctx, queue.EnqueueParams{
			Type:    "job",
			Payload: json.RawMessage(`{}`),
		})
		require.NoError(t, err)

		w := env.do(http.MethodPost, "/api/v1/jobs/"+id+"/cancel", nil)
		require.Equal(t, http.StatusOK, w.Code)

		job, err := env.store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, job.Status)
	})

	t.Run("claimed job conflicts", func(t *testing.T) {
		id, err := env.store.Enqueue(ctx, queue.EnqueueParams{
			Type:    "job",
			Payload: json.RawMessage(`{}`),
		})
		require.NoError(t, err)

		jobs, err := env.store.FetchForProcessing(ctx, 10)
		require.NoError(t, err)
		require.NotEmpty(t, jobs)

		w := env.do(http.MethodPost, "/api/v1/jobs/"+id+"/cancel", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestRetryJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.store.Enqueue(ctx, queue.EnqueueParams{
		Type:        "job",
		Payload:     json.RawMessage(`{}`),
		MaxAttempts: 1,
	})
	require.NoError(t, err)

	t.Run("non-failed job conflicts", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/jobs/"+id+"/retry", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	jobs, err := env.store.FetchForProcessing(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, env.store.Fail(ctx, id, "boom", true))

	t.Run("failed job retries and nudges", func(t *testing.T) {
		before := env.nudger.count()

		w := env.do(http.MethodPost, "/api/v1/jobs/"+id+"/retry", nil)
		require.Equal(t, http.StatusOK, w.Code)

		job, err := env.store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPending, job.Status)
		assert.Equal(t, 0, job.Attempts)

		assert.Equal(t, before+1, env.nudger.count())
	})
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c1 := "c1"
	_, err := env.store.Enqueue(ctx, queue.EnqueueParams{
		Type: "job", Payload: json.RawMessage(`{}`), CompanyID: &c1,
	})
	require.NoError(t, err)
	_, err = env.store.Enqueue(ctx, queue.EnqueueParams{
		Type: "job", Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	t.Run("all companies", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/jobs/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Pending int `json:"pending"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Pending)
	})

	t.Run("scoped to one company", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/jobs/stats?company_id=c1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Pending int `json:"pending"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Pending)
	})
}

func TestCleanup(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/jobs/cleanup", gin.H{
		"retention_days": 30,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(0), resp.Deleted)

	w = env.do(http.MethodPost, "/api/v1/jobs/cleanup", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
