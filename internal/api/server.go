package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer builds the HTTP router: public feed documents, health and
// metrics, and the admin API under /api.
func NewServer(handler *Handler, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/feeds/:file", handler.FeedDocument)

	admin := r.Group("/api")
	{
		admin.GET("/feeds", handler.ListFeeds)
		admin.POST("/feeds", handler.AddFeed)
		admin.PATCH("/feeds/:id", handler.UpdateFeed)
		admin.DELETE("/feeds/:id", handler.DeleteFeed)
		admin.POST("/feeds/:id/sync", handler.SyncFeed)
		admin.POST("/feeds/:id/history", handler.SyncHistory)

		admin.POST("/sync", handler.SyncAll)
		admin.GET("/sync/status", handler.SyncStatus)

		admin.GET("/credentials", handler.ListCredentials)
		admin.POST("/credentials", handler.SaveCredential)
		admin.PATCH("/credentials/:id", handler.UpdateCredential)
		admin.DELETE("/credentials/:id", handler.DeleteCredential)
		admin.POST("/credentials/:id/login", handler.StartLogin)
	}

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
