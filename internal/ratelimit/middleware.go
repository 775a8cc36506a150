// Package ratelimit provides chi middleware for the orchestrator's thin
// admin/webhook HTTP surface: a global cap, a per-wallet cap keyed off the
// caller-supplied wallet identifier, and a per-IP fallback for requests
// that carry no wallet identifier at all.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/cedrospay/agentpay/internal/metrics"
)

// Config holds rate limiting configuration.
type Config struct {
	GlobalEnabled bool
	GlobalLimit   int
	GlobalWindow  time.Duration

	PerWalletEnabled bool
	PerWalletLimit   int
	PerWalletWindow  time.Duration

	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	Metrics *metrics.Metrics
}

// DefaultConfig returns generous limits meant to stop spam without
// restricting legitimate operator tooling.
func DefaultConfig() Config {
	return Config{
		GlobalEnabled:    true,
		GlobalLimit:      1000,
		GlobalWindow:     time.Minute,
		PerWalletEnabled: true,
		PerWalletLimit:   60,
		PerWalletWindow:  time.Minute,
		PerIPEnabled:     true,
		PerIPLimit:       120,
		PerIPWindow:      time.Minute,
	}
}

type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

func limitHandler(limitType string, windowSeconds int, extractIdentifier func(*http.Request) string, m *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := "all"
		if extractIdentifier != nil {
			if id := extractIdentifier(r); id != "" {
				identifier = id
			}
		}
		if m != nil {
			m.ObserveRateLimit(limitType, identifier)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           fmt.Sprintf("%s rate limit exceeded, retry after %ds", limitType, windowSeconds),
			RetryAfterSeconds: windowSeconds,
		})
	}
}

// GlobalLimiter caps total request volume across every caller.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(limitHandler("global", int(cfg.GlobalWindow.Seconds()), nil, cfg.Metrics)),
	)
}

// WalletLimiter caps requests per X-Wallet-ID header, falling back to
// per-IP keying when the header is absent.
func WalletLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerWalletEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		cfg.PerWalletLimit,
		cfg.PerWalletWindow,
		httprate.WithKeyFuncs(walletKeyExtractor),
		httprate.WithLimitHandler(limitHandler("per_wallet", int(cfg.PerWalletWindow.Seconds()), extractWalletID, cfg.Metrics)),
	)
}

// IPLimiter caps requests per remote IP; used for routes with no wallet
// context, e.g. inbound custodial webhooks.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(limitHandler("per_ip", int(cfg.PerIPWindow.Seconds()), func(r *http.Request) string { return r.RemoteAddr }, cfg.Metrics)),
	)
}

func walletKeyExtractor(r *http.Request) (string, error) {
	if wallet := extractWalletID(r); wallet != "" {
		return "wallet:" + wallet, nil
	}
	return httprate.KeyByIP(r)
}

func extractWalletID(r *http.Request) string {
	return r.Header.Get("X-Wallet-ID")
}
