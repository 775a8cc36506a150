package cctp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/storage"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

type finalizeFakeProvider struct{}

func (finalizeFakeProvider) GetWallet(ctx context.Context, walletID string) (wallet.Wallet, error) {
	return wallet.Wallet{ID: walletID}, nil
}
func (finalizeFakeProvider) ListWallets(ctx context.Context, walletSetID string, blockchain network.Network) ([]wallet.Wallet, error) {
	return nil, nil
}
func (finalizeFakeProvider) GetWalletBalances(ctx context.Context, walletID string) ([]wallet.Balance, error) {
	return nil, nil
}
func (finalizeFakeProvider) CreateTransfer(ctx context.Context, walletID, tokenID, destinationAddress, amount string, fee wallet.FeeLevel, idempotencyKey string) (wallet.Tx, error) {
	return wallet.Tx{}, nil
}
func (finalizeFakeProvider) CreateContractExecution(ctx context.Context, walletID, contractAddress, signature string, params []wallet.ContractParam, fee wallet.FeeLevel, idempotencyKey string) (wallet.Tx, error) {
	return wallet.Tx{ID: "tx-1", State: wallet.TxStateConfirmed, TxHash: "0xmint"}, nil
}
func (finalizeFakeProvider) GetTransaction(ctx context.Context, txID string) (wallet.Tx, error) {
	return wallet.Tx{ID: txID, State: wallet.TxStateConfirmed, TxHash: "0xmint"}, nil
}
func (finalizeFakeProvider) ListTransactions(ctx context.Context, walletID string, blockchain network.Network) ([]wallet.Tx, error) {
	return nil, nil
}

func TestManualMintFinalizer_RejectsReusedNonce(t *testing.T) {
	store := storage.NewMemoryStore()
	fsm := New(finalizeFakeProvider{}, nil, nil)
	finalizer := NewManualMintFinalizer(fsm, store)

	ctx := context.Background()
	_, err := finalizer.Finalize(ctx, "nonce-1", "executor-wallet", network.BaseSepolia, "msg", "attest", "idem-1")
	require.NoError(t, err)

	_, err = finalizer.Finalize(ctx, "nonce-1", "executor-wallet", network.BaseSepolia, "msg", "attest", "idem-1")
	assert.ErrorIs(t, err, ErrNonceReused)
}

func TestManualMintFinalizer_RequiresNonce(t *testing.T) {
	store := storage.NewMemoryStore()
	fsm := New(finalizeFakeProvider{}, nil, nil)
	finalizer := NewManualMintFinalizer(fsm, store)

	_, err := finalizer.Finalize(context.Background(), "", "executor-wallet", network.BaseSepolia, "msg", "attest", "idem-1")
	assert.Error(t, err)
}
