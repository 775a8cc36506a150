package callbacks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrospay/agentpay/pkg/payment"
)

func TestRetryableNotifier_SuccessFirstAttempt(t *testing.T) {
	var requestCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dlq := NewMemoryDLQStore()
	notifier := New(server.URL,
		WithLogger(zerolog.Nop()),
		WithDLQStore(dlq),
		WithRetryConfig(RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2.0,
			Timeout:         1 * time.Second,
		}),
	)

	notifier.Notify(context.Background(), Event{
		EventType: "payment.completed",
		WalletID:  "wallet_1",
		Method:    payment.MethodTransfer,
		Status:    payment.StatusCompleted,
	})

	require.Eventually(t, func() bool { return requestCount.Load() == 1 }, time.Second, 10*time.Millisecond)

	items, err := dlq.ListFailedEvents(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRetryableNotifier_ExhaustsRetriesIntoDLQ(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dlq := NewMemoryDLQStore()
	notifier := New(server.URL,
		WithLogger(zerolog.Nop()),
		WithDLQStore(dlq),
		WithRetryConfig(RetryConfig{
			MaxAttempts:     2,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     10 * time.Millisecond,
			Multiplier:      2.0,
			Timeout:         500 * time.Millisecond,
		}),
	)

	notifier.Notify(context.Background(), Event{EventType: "payment.failed", WalletID: "wallet_1"})

	require.Eventually(t, func() bool {
		items, _ := dlq.ListFailedEvents(context.Background(), 100)
		return len(items) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNew_EmptyURLIsNoop(t *testing.T) {
	notifier := New("")
	_, ok := notifier.(NoopNotifier)
	assert.True(t, ok)
	notifier.Notify(context.Background(), Event{})
}
