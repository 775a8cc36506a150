package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrospay/agentpay/internal/config"
	"github.com/cedrospay/agentpay/pkg/payment"
)

type fakeLedger struct {
	entries []payment.LedgerEntry
	updated map[string]payment.Status
}

func newFakeLedger(entries ...payment.LedgerEntry) *fakeLedger {
	return &fakeLedger{entries: entries, updated: make(map[string]payment.Status)}
}

func (f *fakeLedger) Query(_ context.Context, filter payment.Filter) ([]payment.LedgerEntry, error) {
	var out []payment.LedgerEntry
	for _, e := range f.entries {
		if filter.EntryType != "" && e.EntryType != filter.EntryType {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLedger) UpdateStatus(_ context.Context, entryID string, status payment.Status, _ string, _ map[string]interface{}) error {
	f.updated[entryID] = status
	return nil
}

func TestReconcile_MatchesByResourceID(t *testing.T) {
	ledger := newFakeLedger(payment.LedgerEntry{
		ID:        "intent-1",
		EntryType: payment.EntryTypeIntent,
		Status:    payment.StatusPending,
		Metadata:  map[string]interface{}{"resource_id": "res-42"},
	})
	n := New(config.StripeConfig{WebhookSecret: "whsec_test"}, ledger, nil)

	err := n.reconcile(context.Background(), "res-42", checkoutCompleted{ID: "cs_test_1", Currency: "usd", AmountTotal: 1050})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, ledger.updated["intent-1"])
}

func TestReconcile_NoMatchingIntent(t *testing.T) {
	ledger := newFakeLedger()
	n := New(config.StripeConfig{WebhookSecret: "whsec_test"}, ledger, nil)

	err := n.reconcile(context.Background(), "res-missing", checkoutCompleted{ID: "cs_test_2", Currency: "usd", AmountTotal: 1050})
	assert.ErrorContains(t, err, "no pending intent found")
}

func TestHandleWebhook_MissingSecret(t *testing.T) {
	n := New(config.StripeConfig{}, newFakeLedger(), nil)
	err := n.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.ErrorContains(t, err, "webhook secret not configured")
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	n := New(config.StripeConfig{WebhookSecret: "whsec_test"}, newFakeLedger(), nil)
	err := n.HandleWebhook(context.Background(), []byte(`{"type":"checkout.session.completed"}`), "t=1,v1=bogus")
	assert.Error(t, err)
}
