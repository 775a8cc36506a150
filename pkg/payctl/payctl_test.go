package payctl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/guard"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/trust"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

const testRecipient = "0x00000000000000000000000000000000000000aa"

func newTestFacade(t *testing.T) (*Facade, *wallet.MemoryProvider) {
	t.Helper()

	provider := wallet.NewMemoryProvider()
	provider.RegisterWallet(wallet.Wallet{
		ID:         "wallet_1",
		Address:    "0x000000000000000000000000000000000000ff",
		Blockchain: network.BaseMainnet,
		State:      wallet.StateLive,
	}, map[string]string{"USDC": "100.000000"})

	f, err := New(WithWalletProvider(provider))
	require.NoError(t, err)
	return f, provider
}

func TestFacade_Pay_Succeeds(t *testing.T) {
	f, _ := newTestFacade(t)
	asset, err := money.GetAsset("USDC")
	require.NoError(t, err)

	result, err := f.Pay(context.Background(), payment.Request{
		WalletID:  "wallet_1",
		Recipient: testRecipient,
		Amount:    money.New(asset, 1_000_000),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, payment.StatusCompleted, result.Status)
	assert.Equal(t, payment.MethodTransfer, result.Method)

	entries, err := f.Ledger().Query(context.Background(), payment.Filter{WalletID: "wallet_1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, payment.StatusCompleted, entries[0].Status)
}

func TestFacade_Pay_GuardBlocked(t *testing.T) {
	f, _ := newTestFacade(t)
	asset, err := money.GetAsset("USDC")
	require.NoError(t, err)

	err = f.Guards().SetGuards(context.Background(), guard.ScopeWallet, "wallet_1", []guard.Config{
		{
			ID:       "max5",
			Name:     "max5",
			Type:     guard.KindSingleTx,
			SingleTx: &guard.SingleTxConfig{MaxAmount: 5_000_000},
		},
	})
	require.NoError(t, err)

	result, err := f.Pay(context.Background(), payment.Request{
		WalletID:  "wallet_1",
		Recipient: testRecipient,
		Amount:    money.New(asset, 10_000_000),
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusBlocked, result.Status)
	assert.Contains(t, result.Error, "max")

	entries, err := f.Ledger().Query(context.Background(), payment.Filter{WalletID: "wallet_1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, payment.StatusBlocked, entries[0].Status)
}

func TestFacade_Pay_TrustGateBlocks(t *testing.T) {
	f, _ := newTestFacade(t)
	f.trust = blockingTrustChecker{}

	asset, err := money.GetAsset("USDC")
	require.NoError(t, err)

	result, err := f.Pay(context.Background(), payment.Request{
		WalletID:  "wallet_1",
		Recipient: testRecipient,
		Amount:    money.New(asset, 1_000_000),
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusBlocked, result.Status)
}

type blockingTrustChecker struct{}

func (blockingTrustChecker) Evaluate(context.Context, string, string, string, int64) trust.TrustCheckResult {
	return trust.TrustCheckResult{Verdict: trust.VerdictBlocked, BlockReason: "blocklisted"}
}
