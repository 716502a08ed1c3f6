package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/forum-inference/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(handler.logger),
		corsMiddleware(cfg.HTTP.CORSOrigins),
		errorHandlingMiddleware(handler.logger),
		rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger),
	)

	api := router.Group("/api/v1")
	{
		api.POST("/forums", handler.CreateForum)
		api.GET("/forums", handler.ListForums)
		api.GET("/forums/:id", handler.GetForum)
		api.DELETE("/forums/:id", handler.DeleteForum)
		api.GET("/forums/:id/posts/:postId", handler.GetPost)
		api.POST("/forums/:id/inferences", handler.BuildInferences)
		api.GET("/forums/:id/inferences", handler.GetInferences)
		api.DELETE("/forums/:id/inferences", handler.DeleteInferences)
		api.POST("/forums/:id/relations", handler.RankRelations)
		api.POST("/forums/:id/qa", handler.TargetedQA)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, handler.logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "latency_ms", latency.Milliseconds())
	}
}
