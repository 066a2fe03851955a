// Package router sets up the API routes for the application.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/api/handler"
	"github.com/rostilos/CodeCrow-sub008/internal/api/middleware"
	"github.com/rostilos/CodeCrow-sub008/internal/config"
	"github.com/rostilos/CodeCrow-sub008/internal/database"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
)

// Deps are the components the routes are served by
type Deps struct {
	Store     store.Store
	Providers handler.ProviderSource
	Runner    handler.Runner
	Pushes    handler.PushResolver
	Queue     handler.Submitter

	// Metrics serves /metrics when non-nil
	Metrics http.Handler
	// HealthCheck overrides the database ping used by /health
	HealthCheck func() error
}

// Setup configures all API routes
func Setup(r *gin.Engine, cfg *config.Config, deps Deps) {
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: cfg.Logging.AccessLog,
	}))
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))
	r.Use(otelgin.Middleware(consts.ServiceName))

	healthCheck := deps.HealthCheck
	if healthCheck == nil {
		healthCheck = database.HealthCheck
	}
	r.GET("/health", func(c *gin.Context) {
		if err := healthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": consts.Version,
			"uptime":  consts.GetUptime().Round(time.Second).String(),
		})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// webhooks authenticate with provider signatures instead of JWTs
	secrets := make(map[string]string, len(cfg.Providers))
	for _, p := range cfg.Providers {
		secrets[p.Type] = p.WebhookSecret
	}
	webhookHandler := handler.NewWebhookHandler(deps.Providers, secrets, deps.Store.Project(), deps.Pushes, deps.Queue)
	v1.POST("/webhooks/:provider", webhookHandler.HandleWebhook)

	// without a signing secret there is no way to authenticate API callers
	if cfg.Auth.JWTSecret == "" {
		return
	}

	tokens := handler.NewTokenService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenExpiry)*time.Hour)
	analysisHandler := handler.NewAnalysisHandler(deps.Runner, deps.Store)

	api := v1.Group("")
	api.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	api.Use(middleware.JWTAuth(tokens))
	{
		api.POST("/analysis", analysisHandler.Trigger)
		api.GET("/projects/:id/analyses", analysisHandler.ListAnalyses)
		api.GET("/analyses/:id", analysisHandler.GetAnalysis)
		api.GET("/locks", analysisHandler.ListLocks)
	}
}
