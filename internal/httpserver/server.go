// Package httpserver is a thin admin/webhook HTTP surface around the
// orchestrator: agents consume pkg/payctl directly as a library, but an
// operator still needs somewhere for inbound custodial/fiat webhooks to
// land and a place to see ledger/circuit-breaker state.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cedrospay/agentpay/internal/circuitbreaker"
	"github.com/cedrospay/agentpay/internal/config"
	"github.com/cedrospay/agentpay/internal/logger"
	"github.com/cedrospay/agentpay/internal/metrics"
	"github.com/cedrospay/agentpay/internal/ratelimit"
	stripesvc "github.com/cedrospay/agentpay/internal/stripe"
	"github.com/cedrospay/agentpay/pkg/cctp"
	"github.com/cedrospay/agentpay/pkg/payctl"
	"github.com/cedrospay/agentpay/pkg/webhook"
)

// Server wires the orchestrator's admin/webhook routes, middleware, and
// dependencies into a standard net/http.Server.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg        *config.Config
	facade     *payctl.Facade
	webhooks   *webhook.Parser
	stripe     *stripesvc.FiatSettlementNotifier
	breakers   *circuitbreaker.Manager
	mintFinal  *cctp.ManualMintFinalizer
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// New builds the HTTP server with a configured chi router. Any of
// webhookParser/stripeNotifier/mintFinalizer may be nil, in which case the
// routes that depend on them respond with an internal_error API error.
// breakers may be nil, in which case calls run without a circuit breaker
// and the breaker status route reports enabled: false.
func New(
	cfg *config.Config,
	facade *payctl.Facade,
	webhookParser *webhook.Parser,
	stripeNotifier *stripesvc.FiatSettlementNotifier,
	breakers *circuitbreaker.Manager,
	mintFinalizer *cctp.ManualMintFinalizer,
	metricsCollector *metrics.Metrics,
	appLogger zerolog.Logger,
) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:       cfg,
			facade:    facade,
			webhooks:  webhookParser,
			stripe:    stripeNotifier,
			breakers:  breakers,
			mintFinal: mintFinalizer,
			metrics:   metricsCollector,
			logger:    appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	ConfigureRouter(router, s.handlers)
	return s
}

// ConfigureRouter attaches the orchestrator's admin/webhook routes to an
// existing chi router, so a caller embedding this surface into a larger
// service can mount it under its own prefix.
func ConfigureRouter(router chi.Router, h handlers) {
	if router == nil {
		return
	}

	if len(h.cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   h.cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	rateLimitCfg := ratelimit.Config{
		GlobalEnabled:    h.cfg.RateLimit.GlobalEnabled,
		GlobalLimit:      h.cfg.RateLimit.GlobalLimit,
		GlobalWindow:     h.cfg.RateLimit.GlobalWindow.Duration,
		PerWalletEnabled: h.cfg.RateLimit.PerWalletEnabled,
		PerWalletLimit:   h.cfg.RateLimit.PerWalletLimit,
		PerWalletWindow:  h.cfg.RateLimit.PerWalletWindow.Duration,
		PerIPEnabled:     h.cfg.RateLimit.PerIPEnabled,
		PerIPLimit:       h.cfg.RateLimit.PerIPLimit,
		PerIPWindow:      h.cfg.RateLimit.PerIPWindow.Duration,
		Metrics:          h.metrics,
	}
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.WalletLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	prefix := h.cfg.Server.RoutePrefix

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/healthz", h.health)
		r.With(adminMetricsAuth(h.cfg.Server.AdminMetricsAPIKey)).Handle(prefix+"/metrics", promhttp.Handler())
		r.With(adminMetricsAuth(h.cfg.Server.AdminMetricsAPIKey)).Get(prefix+"/admin/circuit-breakers", h.circuitBreakerStatus)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post(prefix+"/v1/pay", h.pay)
		r.Post(prefix+"/v1/simulate", h.simulate)
		r.Get(prefix+"/v1/ledger", h.queryLedger)
		r.With(adminMetricsAuth(h.cfg.Server.AdminMetricsAPIKey)).Post(prefix+"/admin/cctp/finalize-manual-mint", h.finalizeManualMint)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Post(prefix+"/webhooks/circle", h.handleCircleWebhook)
		r.Post(prefix+"/webhooks/stripe", h.handleStripeWebhook)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
