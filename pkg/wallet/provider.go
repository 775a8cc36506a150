// Package wallet defines the narrow interface the orchestrator consumes
// from a custodial wallet provider. Key material never crosses this
// boundary — every mutating call is a request by wallet_id, resolved and
// signed entirely on the provider side.
package wallet

import (
	"context"
	"time"

	"github.com/cedrospay/agentpay/pkg/network"
)

// State is the lifecycle state of a managed wallet.
type State string

const (
	StateLive   State = "LIVE"
	StateFrozen State = "FROZEN"
)

// CustodyType distinguishes developer-controlled from end-user-controlled wallets.
type CustodyType string

const (
	CustodyDeveloper CustodyType = "developer"
	CustodyEndUser   CustodyType = "end_user"
)

// Wallet is the read-only view of a provider-managed wallet.
type Wallet struct {
	ID          string
	Address     string
	Blockchain  network.Network
	State       State
	WalletSetID string
	CustodyType CustodyType
	AccountType string
}

// Token identifies a balance line item on a wallet.
type Token struct {
	ID       string
	Symbol   string
	Decimals uint8
}

// Balance pairs a token with the wallet's holding, expressed as a decimal string.
type Balance struct {
	Token  Token
	Amount string // decimal string, e.g. "123.456789"
}

// TxState is the provider's terminal/non-terminal transaction state.
type TxState string

const (
	TxStateInitiated TxState = "INITIATED"
	TxStatePending   TxState = "PENDING"
	TxStateComplete  TxState = "COMPLETE"
	TxStateConfirmed TxState = "CONFIRMED"
	TxStateFailed    TxState = "FAILED"
	TxStateCancelled TxState = "CANCELLED"
	TxStateCleared   TxState = "CLEARED"
)

// IsTerminal reports whether the state will never change further.
func (s TxState) IsTerminal() bool {
	switch s {
	case TxStateComplete, TxStateConfirmed, TxStateFailed, TxStateCancelled, TxStateCleared:
		return true
	default:
		return false
	}
}

// Tx is a provider-side transaction record.
type Tx struct {
	ID     string
	State  TxState
	TxHash string
	Error  string
}

// FeeLevel selects the provider's fee/priority tier for a transaction.
type FeeLevel string

const (
	FeeLow    FeeLevel = "LOW"
	FeeMedium FeeLevel = "MEDIUM"
	FeeHigh   FeeLevel = "HIGH"
)

// ContractParam is a single positional argument to create_contract_execution,
// tagged with its Solidity type so the provider (or a local ABI encoder) can
// pack it correctly.
type ContractParam struct {
	Type  string
	Value interface{}
}

// Provider is the narrow surface the orchestrator consumes from a custodial
// wallet backend. Implementations hold the entity secret and all signing
// material; the orchestrator only ever passes opaque wallet_id values.
type Provider interface {
	GetWallet(ctx context.Context, walletID string) (Wallet, error)
	ListWallets(ctx context.Context, walletSetID string, blockchain network.Network) ([]Wallet, error)
	GetWalletBalances(ctx context.Context, walletID string) ([]Balance, error)

	// CreateTransfer submits a same-chain token transfer. amount is a
	// decimal string in major units (USDC, not micro-USDC).
	CreateTransfer(ctx context.Context, walletID, tokenID, destinationAddress, amount string, fee FeeLevel, idempotencyKey string) (Tx, error)

	// CreateContractExecution submits an arbitrary contract call (used for
	// CCTP approve/burn/receiveMessage) signed by the provider on behalf
	// of walletID. signature is the Solidity function signature, e.g.
	// "approve(address,uint256)".
	CreateContractExecution(ctx context.Context, walletID, contractAddress, signature string, params []ContractParam, fee FeeLevel, idempotencyKey string) (Tx, error)

	GetTransaction(ctx context.Context, txID string) (Tx, error)
	ListTransactions(ctx context.Context, walletID string, blockchain network.Network) ([]Tx, error)
}

// PollTransaction polls GetTransaction every interval until a terminal
// state is reached or timeout elapses. Used by TransferAdapter and the
// CCTP FSM's approve/burn/mint steps alike.
func PollTransaction(ctx context.Context, p Provider, txID string, interval, timeout time.Duration) (Tx, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tx, err := p.GetTransaction(ctx, txID)
		if err != nil {
			return Tx{}, err
		}
		if tx.State.IsTerminal() {
			return tx, nil
		}
		if time.Now().After(deadline) {
			return tx, ErrPollTimeout
		}

		select {
		case <-ctx.Done():
			return Tx{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ErrPollTimeout is returned when PollTransaction exceeds its deadline
// without reaching a terminal state.
var ErrPollTimeout = pollTimeoutError{}

type pollTimeoutError struct{}

func (pollTimeoutError) Error() string { return "wallet: transaction poll timed out" }
