package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nitinthakurcode/weddingflo-sub013/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "job-sync-api",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	syncHandler := handler.NewSyncHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.EnqueueJob)
			jobs.POST("/batch", jobHandler.EnqueueJobs)
			jobs.GET("/stats", jobHandler.GetStats)
			jobs.POST("/cleanup", jobHandler.Cleanup)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
			jobs.POST("/:job_id/retry", jobHandler.RetryJob)
		}

		sync := v1.Group("/sync")
		{
			sync.POST("/broadcast", syncHandler.Broadcast)
			sync.GET("/actions", syncHandler.MissedActions)
			sync.GET("/subscribe", syncHandler.Subscribe)
		}
	}

	return r
}
