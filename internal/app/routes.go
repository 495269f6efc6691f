package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/pulse/internal/database"
	"github.com/pulsetrack/pulse/internal/middleware"
	"github.com/pulsetrack/pulse/internal/modules/site/token"
	"github.com/pulsetrack/pulse/internal/modules/system/admin"
	"github.com/pulsetrack/pulse/internal/modules/system/core/health"
	"github.com/pulsetrack/pulse/internal/modules/tracking/collect"
	"github.com/pulsetrack/pulse/internal/modules/tracking/live"
	"github.com/pulsetrack/pulse/internal/modules/widget/loader"
	"github.com/pulsetrack/pulse/internal/pkg/metrics"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

func (a *App) registerRoutes() error {
	r := a.router
	cfg := a.cfg

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	script, err := loader.NewHandler(cfg.PublicURL)
	if err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	script.RegisterRoutes(r)

	if a.registry != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler(a.registry)))
	}

	api := r.Group("/api")
	apiLimit := middleware.RateLimit(a.limiter, a.policies.API, a.logger, a.metrics)

	collector := collect.NewService(a.tokens, a.presence, a.events, a.limiter,
		collect.WithLogger(a.logger),
		collect.WithMetrics(a.metrics),
		collect.WithHeartbeatPolicy(a.policies.Heartbeat),
		collect.WithStrictPresence(cfg.Collect.StrictPresence),
	)
	collect.NewHandler(collector, a.metrics).RegisterRoutes(api,
		middleware.PublicCORS(),
		apiLimit,
		middleware.Timeout(cfg.Collect.Timeout),
	)

	live.NewHandler(a.tokens, a.presence, a.events, a.logger).
		RegisterRoutes(api, middleware.PublicCORS(), middleware.NoStore())

	token.NewHandler(a.tokens).RegisterRoutes(api,
		middleware.RateLimit(a.limiter, a.policies.TokenCreate, a.logger, a.metrics))

	adminGroup := api.Group("/admin", adminCORS(cfg.AllowedOrigins, cfg.IsDev()))
	// Preflights never carry the bearer key.
	adminGroup.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	adminGroup.Use(middleware.AdminAuth(cfg.AdminKey))

	adminSvc := admin.NewService(a.tokens, a.presence, a.events, cfg.Abuse.Threshold, a.logger)
	admin.NewHandler(adminSvc).RegisterRoutes(adminGroup)

	health.NewHandler(a.healthChecks(), a.sched, cfg.LogDir()).RegisterRoutes(api, adminGroup)
	return nil
}

func (a *App) healthChecks() map[string]health.Check {
	checks := map[string]health.Check{
		"database": func(context.Context) error { return database.Ping(a.db) },
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	if a.mongo != nil {
		checks["mongo"] = a.mongo.Ping
	}
	return checks
}
