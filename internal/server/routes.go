package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/workzone/workzone-mcp/internal/config"
	"github.com/workzone/workzone-mcp/internal/handler"
	"github.com/workzone/workzone-mcp/internal/middleware"
)

func (s *Server) setupRoutes() http.Handler {
	cfg := s.cfg
	deps := s.deps

	log.Info().
		Str("workzone_api_url", cfg.WorkzoneAPIURL).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Bool("audit_logging", cfg.EnableAuditLogging).
		Int("rate_limit_per_minute", cfg.RateLimitPerMinute).
		Msg("service configuration")

	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("WARNING: auth enabled but no API keys configured - all API requests will be rejected")
	}

	// ─── Handlers ────────────────────────────────────────────────────────────────
	healthH := handler.NewHealthHandler(deps.Client, config.DefaultServiceName, config.Version)
	casesH := handler.NewCasesHandler(deps.Cases, deps.Audit)
	if cfg.BreakerCooldownSeconds > 0 {
		casesH.CircuitRetryAfter = cfg.BreakerCooldownSeconds
	}
	mcpH := newMCPHandler(deps.Tools)

	// ─── Router ──────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)

	// Public routes
	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))

	// Auth + rate limiting for everything that reaches the backend
	apiMiddleware := []func(http.Handler) http.Handler{
		middleware.RateLimit(cfg.RateLimitPerMinute, cfg.APIKeyHeader),
	}
	if cfg.EnableAuth && len(cfg.APIKeys) > 0 {
		apiMiddleware = append(apiMiddleware, middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
	}

	r.Group(func(r chi.Router) {
		for _, m := range apiMiddleware {
			r.Use(m)
		}

		r.Handle("/mcp", mcpH)
		r.Route(cfg.APIPrefix+"/cases", casesH.Routes)
	})

	return r
}
