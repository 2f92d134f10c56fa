package server

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/workzone/workzone-mcp/internal/apiclient"
	"github.com/workzone/workzone-mcp/internal/config"
	"github.com/workzone/workzone-mcp/internal/metrics"
	"github.com/workzone/workzone-mcp/internal/security"
	"github.com/workzone/workzone-mcp/internal/tools"
	"github.com/workzone/workzone-mcp/internal/workzone"
)

// Dependencies is the object graph shared by the stdio and HTTP modes.
type Dependencies struct {
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Client   *apiclient.Client
	Cases    *workzone.Service
	Audit    *security.AuditLogger
	Tools    *tools.Registry
}

func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client, err := apiclient.New(cfg.WorkzoneAPIURL,
		apiclient.WithBearerToken(cfg.WorkzoneAPIKey),
		apiclient.WithTimeout(cfg.Timeout()),
		apiclient.WithRetry(cfg.MaxRetryAttempts, cfg.RetryDelay()),
		apiclient.WithMaxRetryDelay(cfg.RetryMaxDelay()),
		apiclient.WithBreaker(cfg.BreakerFailureThreshold, cfg.BreakerCooldown()),
		apiclient.WithRateLimit(cfg.RateLimitPerSecond),
		apiclient.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("create workzone client: %w", err)
	}
	if cfg.WorkzoneAPIKey == "" {
		log.Warn().Msg("WORKZONE_API_KEY not set - backend requests are sent without credentials")
	}

	cases := workzone.NewService(client)
	audit := security.NewAuditLogger(cfg.EnableAuditLogging)

	return &Dependencies{
		Registry: reg,
		Metrics:  m,
		Client:   client,
		Cases:    cases,
		Audit:    audit,
		Tools:    tools.NewRegistry(cases, tools.WithMetrics(m), tools.WithAudit(audit)),
	}, nil
}
