package cctp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/storage"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

const collManualMintNonces = "cctp_manual_mint_nonces"

// ErrNonceReused is returned when a manual-mint finalization nonce has
// already been consumed, the sign a human operator (or an attacker who
// captured the finalization request) is retrying a completed mint.
var ErrNonceReused = errors.New("cctp: manual mint nonce already used")

// ManualMintFinalizer lets an operator complete a transfer a Transfer call
// left in the manual_mint_required state: FSM.Transfer returns the Circle
// message/attestation pair in the ledger entry's metadata, and an operator
// picks an executor wallet on the destination network to mint into.
type ManualMintFinalizer struct {
	fsm   *FSM
	store storage.Store
}

// NewManualMintFinalizer binds a finalizer to the FSM that performs the
// mint and the store that guards against replayed finalization nonces.
func NewManualMintFinalizer(fsm *FSM, store storage.Store) *ManualMintFinalizer {
	return &ManualMintFinalizer{fsm: fsm, store: store}
}

// Finalize consumes nonce exactly once, then mints message/attestation on
// dest using executorWalletID. A reused nonce returns ErrNonceReused
// without touching the chain.
func (m *ManualMintFinalizer) Finalize(ctx context.Context, nonce, executorWalletID string, dest network.Network, message, attestation, idempotencyKey string) (wallet.Tx, error) {
	if nonce == "" {
		return wallet.Tx{}, errors.New("cctp: finalize: nonce required")
	}

	if _, err := m.store.Get(ctx, collManualMintNonces, nonce); err == nil {
		return wallet.Tx{}, ErrNonceReused
	} else if !errors.Is(err, storage.ErrNotFound) {
		return wallet.Tx{}, fmt.Errorf("cctp: finalize: nonce lookup: %w", err)
	}

	if err := m.store.Save(ctx, collManualMintNonces, nonce, map[string]interface{}{
		"consumed_at":      time.Now().Format(time.RFC3339Nano),
		"executor_wallet":  executorWalletID,
		"idempotency_key":  idempotencyKey,
	}); err != nil {
		return wallet.Tx{}, fmt.Errorf("cctp: finalize: reserve nonce: %w", err)
	}

	return m.fsm.mint(ctx, executorWalletID, dest, message, attestation, idempotencyKey)
}
