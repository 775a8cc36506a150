// Command agentpay-server runs the orchestrator's admin/webhook HTTP
// surface: agents embed pkg/payctl directly as a library, but an operator
// still needs a running process for inbound Circle/Stripe webhooks, a
// metrics scrape target, and manual CCTP mint finalization.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cedrospay/agentpay/internal/circuitbreaker"
	"github.com/cedrospay/agentpay/internal/config"
	"github.com/cedrospay/agentpay/internal/httpserver"
	"github.com/cedrospay/agentpay/internal/logger"
	"github.com/cedrospay/agentpay/internal/metrics"
	stripesvc "github.com/cedrospay/agentpay/internal/stripe"
	"github.com/cedrospay/agentpay/pkg/cctp"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payctl"
	"github.com/cedrospay/agentpay/pkg/storage"
	"github.com/cedrospay/agentpay/pkg/wallet"
	"github.com/cedrospay/agentpay/pkg/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("load config: " + err.Error())
	}

	appLog := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "agentpay-server",
		Environment: cfg.Logging.Environment,
	})

	store, err := buildStore(cfg.Storage)
	if err != nil {
		appLog.Fatal().Err(err).Msg("build storage backend")
	}

	// A real deployment injects a Circle-backed wallet.Provider here; the
	// in-memory provider keeps this entry point runnable without custodial
	// credentials configured.
	provider := wallet.NewMemoryProvider()

	breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)
	promMetrics := metrics.New(prometheus.DefaultRegisterer)

	facade, err := payctl.New(
		payctl.WithStore(store),
		payctl.WithWalletProvider(provider),
		payctl.WithMetrics(promMetrics),
		payctl.WithLogger(appLog),
	)
	if err != nil {
		appLog.Fatal().Err(err).Msg("build payment facade")
	}
	defer facade.Close()

	var webhookParser *webhook.Parser
	if cfg.Circle.WebhookPublicKey != "" {
		webhookParser, err = webhook.NewParser(cfg.Circle.WebhookPublicKey)
		if err != nil {
			appLog.Fatal().Err(err).Msg("build circle webhook parser")
		}
	} else {
		appLog.Warn().Msg("circle.webhook_public_key not configured; /webhooks/circle will reject all requests")
	}

	var stripeNotifier *stripesvc.FiatSettlementNotifier
	if cfg.Stripe.SecretKey != "" {
		stripeNotifier = stripesvc.New(cfg.Stripe, facade.Ledger(), breakers)
	} else {
		appLog.Warn().Msg("stripe.secret_key not configured; /webhooks/stripe will reject all requests")
	}

	gasChecker := cctp.NewEVMGasChecker(provider, breakers, map[network.Network]string{})
	attestationClient := cctp.NewHTTPAttestationClient("https://iris-api.circle.com", &http.Client{Timeout: 10 * time.Second})
	fsm := cctp.New(provider, attestationClient, gasChecker)
	mintFinalizer := cctp.NewManualMintFinalizer(fsm, store)

	srv := httpserver.New(cfg, facade, webhookParser, stripeNotifier, breakers, mintFinalizer, promMetrics, appLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		appLog.Info().Str("address", cfg.Server.Address).Msg("agentpay-server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal().Err(err).Msg("http server exited")
		}
	}()

	<-ctx.Done()
	appLog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func buildStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return storage.NewPostgresStore(cfg.PostgresURL)
	case "mongodb":
		return storage.NewMongoStore(context.Background(), cfg.MongoDBURL, cfg.MongoDBDatabase)
	default:
		return storage.NewMemoryStore(), nil
	}
}
