// Package callbacks notifies an operator-configured endpoint of payment
// lifecycle events (completed, failed, blocked) with exponential-backoff
// retry and a dead-letter queue for deliveries that exhaust every attempt.
package callbacks

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cedrospay/agentpay/internal/httputil"
	"github.com/cedrospay/agentpay/internal/metrics"
	"github.com/cedrospay/agentpay/pkg/payment"
)

// Event is a normalized payment lifecycle notification. EventID is the
// idempotency key every retry of the same delivery reuses.
type Event struct {
	EventID     string            `json:"eventId"`
	EventType   string            `json:"eventType"`
	OccurredAt  time.Time         `json:"occurredAt"`
	WalletID    string            `json:"walletId"`
	Recipient   string            `json:"recipient"`
	AmountAtomic int64            `json:"amountAtomic"`
	AssetCode   string            `json:"assetCode"`
	Method      payment.Method    `json:"method"`
	Status      payment.Status    `json:"status"`
	TxHash      string            `json:"txHash,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Notifier delivers payment lifecycle events. NoopNotifier is used when no
// endpoint is configured.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NoopNotifier discards every event.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Event) {}

// DLQStore persists deliveries that exhausted every retry attempt.
type DLQStore interface {
	SaveFailedEvent(ctx context.Context, entry FailedEvent) error
	ListFailedEvents(ctx context.Context, limit int) ([]FailedEvent, error)
	DeleteFailedEvent(ctx context.Context, id string) error
}

// FailedEvent is a delivery that was retried to exhaustion.
type FailedEvent struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Payload     []byte    `json:"payload"`
	EventType   string    `json:"eventType"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"lastError"`
	LastAttempt time.Time `json:"lastAttempt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RetryConfig controls the exponential backoff schedule.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Timeout         time.Duration
}

// DefaultRetryConfig matches the operator defaults: 5 attempts, 1s initial
// backoff doubling up to a 5 minute cap, 10s per-attempt timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     5 * time.Minute,
		Multiplier:      2.0,
		Timeout:         10 * time.Second,
	}
}

// RetryableNotifier posts payment events to a configured URL with
// exponential backoff, falling back to a DLQStore once retries exhaust.
type RetryableNotifier struct {
	url        string
	headers    map[string]string
	retryCfg   RetryConfig
	httpClient *http.Client
	logger     zerolog.Logger
	dlq        DLQStore
	metrics    *metrics.Metrics
}

// Option customizes a RetryableNotifier.
type Option func(*RetryableNotifier)

func WithLogger(logger zerolog.Logger) Option {
	return func(n *RetryableNotifier) { n.logger = logger }
}

func WithDLQStore(store DLQStore) Option {
	return func(n *RetryableNotifier) { n.dlq = store }
}

func WithRetryConfig(cfg RetryConfig) Option {
	return func(n *RetryableNotifier) { n.retryCfg = cfg }
}

func WithHeaders(headers map[string]string) Option {
	return func(n *RetryableNotifier) { n.headers = headers }
}

// WithMetrics attaches a Prometheus instrumentation set so webhook delivery
// attempts, retries, and DLQ fallbacks are observable.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *RetryableNotifier) { n.metrics = m }
}

// New builds a RetryableNotifier posting to url. An empty url
// yields a NoopNotifier-equivalent: Notify becomes a silent no-op.
func New(url string, opts ...Option) Notifier {
	if url == "" {
		return NoopNotifier{}
	}
	n := &RetryableNotifier{
		url:        url,
		retryCfg:   DefaultRetryConfig(),
		httpClient: httputil.NewClient(10 * time.Second),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify dispatches event asynchronously with retry; on exhaustion it is
// handed to the configured DLQStore, if any.
func (n *RetryableNotifier) Notify(ctx context.Context, event Event) {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	go func() {
		start := time.Now()
		payload, err := json.Marshal(event)
		if err != nil {
			n.logger.Error().Err(err).Msg("callbacks: failed to serialize payment event")
			return
		}

		attempts, err := n.sendWithRetry(context.Background(), payload, event.EventType)
		sentToDLQ := false
		status := "delivered"
		if err != nil {
			status = "failed"
			n.logger.Error().
				Err(err).
				Str("event_id", event.EventID).
				Msg("callbacks: payment notification failed after all retries")
			if n.dlq != nil {
				n.saveToDLQ(context.Background(), payload, event.EventType, err)
				sentToDLQ = true
			}
		}
		if n.metrics != nil {
			n.metrics.ObserveWebhook(event.EventType, status, time.Since(start), attempts, sentToDLQ)
		}
	}()
}

func (n *RetryableNotifier) sendWithRetry(ctx context.Context, payload []byte, eventType string) (int, error) {
	var lastErr error
	interval := n.retryCfg.InitialInterval

	for attempt := 1; attempt <= n.retryCfg.MaxAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, n.retryCfg.Timeout)
		err := n.sendHTTP(reqCtx, payload)
		cancel()

		if err == nil {
			if attempt > 1 {
				n.logger.Info().Int("attempt", attempt).Str("eventType", eventType).
					Msg("callbacks: notification succeeded after retry")
			}
			return attempt, nil
		}

		lastErr = err
		n.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", n.retryCfg.MaxAttempts).
			Str("eventType", eventType).
			Dur("nextRetry", interval).
			Msg("callbacks: notification attempt failed")

		if attempt < n.retryCfg.MaxAttempts {
			time.Sleep(interval)
			interval = time.Duration(float64(interval) * n.retryCfg.Multiplier)
			if interval > n.retryCfg.MaxInterval {
				interval = n.retryCfg.MaxInterval
			}
		}
	}

	return n.retryCfg.MaxAttempts, fmt.Errorf("notification failed after %d attempts: %w", n.retryCfg.MaxAttempts, lastErr)
}

func (n *RetryableNotifier) sendHTTP(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("received status %d from %s", resp.StatusCode, n.url)
	}
	return nil
}

func (n *RetryableNotifier) saveToDLQ(ctx context.Context, payload []byte, eventType string, lastErr error) {
	entry := FailedEvent{
		ID:          generateEventID(),
		URL:         n.url,
		Payload:     payload,
		EventType:   eventType,
		Attempts:    n.retryCfg.MaxAttempts,
		LastError:   lastErr.Error(),
		LastAttempt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}

	if err := n.dlq.SaveFailedEvent(ctx, entry); err != nil {
		n.logger.Error().Err(err).Str("id", entry.ID).Msg("callbacks: failed to save to DLQ")
		return
	}
	n.logger.Info().Str("id", entry.ID).Str("eventType", eventType).
		Int("attempts", entry.Attempts).Msg("callbacks: saved failed notification to DLQ")
}

func generateEventID() string {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	return "evt_" + hex.EncodeToString(randomBytes)
}
