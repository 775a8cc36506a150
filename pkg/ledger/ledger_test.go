package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(storage.NewMemoryStore())
}

func usdc(t *testing.T, atomic int64) money.Money {
	t.Helper()
	asset, err := money.GetAsset("USDC")
	require.NoError(t, err)
	return money.New(asset, atomic)
}

func TestRecordAndGet(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	entry, err := l.Record(ctx, payment.LedgerEntry{
		WalletID:  "wallet-1",
		Recipient: "0x000000000000000000000000000000000000aa",
		Amount:    usdc(t, 1_000_000),
		EntryType: payment.EntryTypePayment,
		Status:    payment.StatusPending,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)

	got, err := l.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, got.Status)
	assert.Equal(t, int64(1_000_000), got.Amount.Atomic)
}

func TestUpdateStatusMergesMetadata(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	entry, err := l.Record(ctx, payment.LedgerEntry{
		WalletID:  "wallet-1",
		Amount:    usdc(t, 500),
		EntryType: payment.EntryTypeIntent,
		Status:    payment.StatusPending,
		Metadata:  map[string]interface{}{"resource_id": "res-1"},
	})
	require.NoError(t, err)

	err = l.UpdateStatus(ctx, entry.ID, payment.StatusCompleted, "0xabc", map[string]interface{}{"settled_via": "stripe"})
	require.NoError(t, err)

	got, err := l.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, got.Status)
	assert.Equal(t, "0xabc", got.TxHash)
	assert.Equal(t, "res-1", got.Metadata["resource_id"])
	assert.Equal(t, "stripe", got.Metadata["settled_via"])
}

func TestArchiveOldPayments_SkipsPending(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	pending, err := l.Record(ctx, payment.LedgerEntry{
		WalletID:  "wallet-1",
		Amount:    usdc(t, 1),
		EntryType: payment.EntryTypePayment,
		Status:    payment.StatusPending,
		Timestamp: time.Now().Add(-365 * 24 * time.Hour),
	})
	require.NoError(t, err)

	completed, err := l.Record(ctx, payment.LedgerEntry{
		WalletID:  "wallet-1",
		Amount:    usdc(t, 1),
		EntryType: payment.EntryTypePayment,
		Status:    payment.StatusCompleted,
		Timestamp: time.Now().Add(-365 * 24 * time.Hour),
	})
	require.NoError(t, err)

	removed, err := l.ArchiveOldPayments(ctx, ArchivalConfig{RetainFor: 24 * time.Hour, BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = l.Get(ctx, completed.ID)
	assert.Error(t, err)

	_, err = l.Get(ctx, pending.ID)
	assert.NoError(t, err)
}
