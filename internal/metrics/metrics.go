// Package metrics holds the Prometheus instrumentation for the payment
// orchestrator: one counter/histogram set per pipeline stage (router,
// guard chain, trust gate, CCTP, webhook delivery), registered once and
// passed down to whichever component observes it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the orchestrator.
type Metrics struct {
	PaymentsTotal        *prometheus.CounterVec
	PaymentsSuccessTotal *prometheus.CounterVec
	PaymentsFailedTotal  *prometheus.CounterVec
	PaymentAmountTotal   *prometheus.CounterVec
	PaymentDuration      *prometheus.HistogramVec
	SettlementDuration   *prometheus.HistogramVec

	GuardChecksTotal    *prometheus.CounterVec
	GuardBlockedTotal   *prometheus.CounterVec
	GuardReserveLatency *prometheus.HistogramVec

	TrustEvaluationsTotal *prometheus.CounterVec
	TrustLatency          prometheus.Histogram

	CCTPStepsTotal         *prometheus.CounterVec
	CCTPAttestationLatency prometheus.Histogram
	CCTPManualMintPending  prometheus.Gauge

	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec
	RPCErrorsTotal  *prometheus.CounterVec

	WebhooksTotal       *prometheus.CounterVec
	WebhookRetriesTotal *prometheus.CounterVec
	WebhookDLQTotal     *prometheus.CounterVec
	WebhookDuration     *prometheus.HistogramVec

	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics against registry. A nil
// registry registers against prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_payments_total", Help: "Total number of payment attempts"},
			[]string{"method"},
		),
		PaymentsSuccessTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_payments_success_total", Help: "Total number of successful payments"},
			[]string{"method"},
		),
		PaymentsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_payments_failed_total", Help: "Total number of failed payments"},
			[]string{"method", "reason"},
		),
		PaymentAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_payment_amount_atomic_total", Help: "Total payment amount in atomic asset units"},
			[]string{"method", "asset"},
		),
		PaymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentpay_payment_duration_seconds",
				Help:    "Time taken to process a payment end to end",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"method"},
		),
		SettlementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentpay_settlement_duration_seconds",
				Help:    "Time from payment initiation to on-chain settlement",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
			},
			[]string{"network"},
		),

		GuardChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_guard_checks_total", Help: "Total number of guard chain checks"},
			[]string{"guard"},
		),
		GuardBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_guard_blocked_total", Help: "Total number of payments blocked by a guard"},
			[]string{"guard"},
		),
		GuardReserveLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentpay_guard_reserve_latency_seconds",
				Help:    "Latency of the guard chain's reserve phase",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"outcome"},
		),

		TrustEvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_trust_evaluations_total", Help: "Total number of Trust Gate evaluations"},
			[]string{"verdict"},
		),
		TrustLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentpay_trust_evaluation_latency_seconds",
				Help:    "Trust Gate end-to-end evaluation latency",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),

		CCTPStepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_cctp_steps_total", Help: "Total number of CCTP state machine steps"},
			[]string{"step", "outcome"},
		),
		CCTPAttestationLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentpay_cctp_attestation_latency_seconds",
				Help:    "Time spent polling Circle's attestation service",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		CCTPManualMintPending: factory.NewGauge(
			prometheus.GaugeOpts{Name: "agentpay_cctp_manual_mint_pending", Help: "Number of CCTP transfers awaiting a manual mint"},
		),

		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_rpc_calls_total", Help: "Total number of RPC calls to a blockchain node"},
			[]string{"method", "network"},
		),
		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentpay_rpc_call_duration_seconds",
				Help:    "Duration of RPC calls to blockchain nodes",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "network"},
		),
		RPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_rpc_errors_total", Help: "Total number of RPC errors"},
			[]string{"method", "network"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_webhooks_total", Help: "Total number of outbound webhook deliveries"},
			[]string{"event_type", "status"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_webhook_retries_total", Help: "Total number of webhook retry attempts"},
			[]string{"event_type"},
		),
		WebhookDLQTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_webhook_dlq_total", Help: "Total number of webhooks sent to the dead-letter queue"},
			[]string{"event_type"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentpay_webhook_duration_seconds",
				Help:    "Time taken for a webhook delivery attempt",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"event_type"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "agentpay_rate_limit_hits_total", Help: "Total number of admin/webhook rate limit hits"},
			[]string{"limit_type", "identifier"},
		),
	}
}

// ObservePayment records a payment attempt and its outcome.
func (m *Metrics) ObservePayment(method string, success bool, duration time.Duration, amountAtomic int64, asset string) {
	m.PaymentsTotal.WithLabelValues(method).Inc()
	if success {
		m.PaymentsSuccessTotal.WithLabelValues(method).Inc()
		m.PaymentAmountTotal.WithLabelValues(method, asset).Add(float64(amountAtomic))
	}
	m.PaymentDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObservePaymentFailure records a failed payment with reason.
func (m *Metrics) ObservePaymentFailure(method, reason string) {
	m.PaymentsFailedTotal.WithLabelValues(method, reason).Inc()
}

// ObserveGuardCheck records one guard's check outcome.
func (m *Metrics) ObserveGuardCheck(guardName string, allowed bool) {
	m.GuardChecksTotal.WithLabelValues(guardName).Inc()
	if !allowed {
		m.GuardBlockedTotal.WithLabelValues(guardName).Inc()
	}
}

// ObserveTrustEvaluation records one Trust Gate evaluation.
func (m *Metrics) ObserveTrustEvaluation(verdict string, duration time.Duration) {
	m.TrustEvaluationsTotal.WithLabelValues(verdict).Inc()
	m.TrustLatency.Observe(duration.Seconds())
}

// ObserveCCTPStep records one CCTP state machine transition.
func (m *Metrics) ObserveCCTPStep(step, outcome string) {
	m.CCTPStepsTotal.WithLabelValues(step, outcome).Inc()
}

// ObserveWebhook records an outbound webhook delivery attempt.
func (m *Metrics) ObserveWebhook(eventType, status string, duration time.Duration, attempt int, sentToDLQ bool) {
	m.WebhooksTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	if attempt > 1 {
		m.WebhookRetriesTotal.WithLabelValues(eventType).Inc()
	}
	if sentToDLQ {
		m.WebhookDLQTotal.WithLabelValues(eventType).Inc()
	}
}

// ObserveRateLimit records a rate limit hit on an admin/webhook route.
func (m *Metrics) ObserveRateLimit(limitType, identifier string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType, identifier).Inc()
}
