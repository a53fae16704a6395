package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/api/handlers"
	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/types"
)

// publicPaths 不需要认证的端点
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// routes 路由依赖
type routes struct {
	health     *handlers.HealthHandler
	workflows  *handlers.WorkflowHandler
	executions *handlers.ExecutionHandler
	sessions   *handlers.SessionHandler
	metrics    HTTPRecorder
}

// newRouter 构建 API 路由与中间件链。ctx 结束时停止限流器的后台清理。
func newRouter(ctx context.Context, cfg *config.Config, rt routes, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(logger),
	)
	if rt.metrics != nil {
		r.Use(MetricsMiddleware(rt.metrics))
	}
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-Cache"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(RateLimiter(ctx, float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst, logger))
	if cfg.JWT.Enabled {
		r.Use(JWTAuth(cfg.JWT, publicPaths, logger))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		handlers.WriteErrorMessage(w, req, http.StatusNotFound, types.ErrNotFound, "route not found", logger)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		handlers.WriteErrorMessage(w, req, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", logger)
	})

	if rt.health != nil {
		r.Get("/health", rt.health.HandleHealth)
		r.Get("/healthz", rt.health.HandleHealth)
		r.Get("/ready", rt.health.HandleReady)
		r.Get("/readyz", rt.health.HandleReady)
		r.Get("/version", rt.health.HandleVersion(Version, BuildTime, GitCommit))
	}

	r.Route("/api/v1", func(api chi.Router) {
		if rt.workflows != nil {
			api.Route("/workflows", rt.workflows.Routes)
		}
		if rt.executions != nil {
			api.Route("/executions", rt.executions.Routes)
		}
		if rt.sessions != nil {
			api.Route("/sessions", rt.sessions.Routes)
		}
	})

	return r
}
