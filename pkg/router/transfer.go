package router

import (
	"context"
	"fmt"
	"time"

	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

// TransferAdapter carries same-chain transfers: the recipient matches the
// source network's own address format and no destination_chain is given,
// or it equals the source.
type TransferAdapter struct {
	provider     wallet.Provider
	pollInterval time.Duration
}

// NewTransferAdapter builds a TransferAdapter against a wallet provider.
func NewTransferAdapter(provider wallet.Provider) *TransferAdapter {
	return &TransferAdapter{provider: provider, pollInterval: 2 * time.Second}
}

func (a *TransferAdapter) Method() payment.Method { return payment.MethodTransfer }
func (a *TransferAdapter) Priority() int          { return PriorityTransfer }

func (a *TransferAdapter) Supports(_ context.Context, source network.Network, req payment.Request) bool {
	kind, chain, address := ClassifyRecipient(req.Recipient)

	if req.DestinationChain != "" {
		dest, err := network.Parse(req.DestinationChain)
		if err != nil || dest != source {
			return false
		}
	}

	switch kind {
	case RecipientEVMAddress:
		return source.IsEVM()
	case RecipientSolanaAddress:
		return source.IsSolana()
	case RecipientLegacyChainAddress:
		dest, err := network.Parse(chain)
		if err != nil || dest != source {
			return false
		}
		addrKind, _, _ := ClassifyRecipient(address)
		return addrKind == RecipientEVMAddress || addrKind == RecipientSolanaAddress
	default:
		return false
	}
}

// findUSDCToken locates the USDC token ID on a wallet from its balances.
func (a *TransferAdapter) findUSDCToken(ctx context.Context, walletID string) (wallet.Token, error) {
	balances, err := a.provider.GetWalletBalances(ctx, walletID)
	if err != nil {
		return wallet.Token{}, fmt.Errorf("router: transfer: balances: %w", err)
	}
	for _, b := range balances {
		if b.Token.Symbol == "USDC" {
			return b.Token, nil
		}
	}
	return wallet.Token{}, fmt.Errorf("router: transfer: wallet %s has no USDC balance line", walletID)
}

func (a *TransferAdapter) Execute(ctx context.Context, source network.Network, req payment.Request) (payment.Result, error) {
	_, _, address := ClassifyRecipient(req.Recipient)

	token, err := a.findUSDCToken(ctx, req.WalletID)
	if err != nil {
		return payment.Result{}, err
	}

	fee := wallet.FeeLevel(req.FeeLevel)
	if fee == "" {
		fee = wallet.FeeMedium
	}

	tx, err := a.provider.CreateTransfer(ctx, req.WalletID, token.ID, address, req.Amount.ToMajor(), fee, req.IdempotencyKey)
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: transfer: create transfer: %w", err)
	}

	if req.WaitForCompletion {
		timeout := req.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		tx, err = wallet.PollTransaction(ctx, a.provider, tx.ID, a.pollInterval, timeout)
		if err != nil && err != wallet.ErrPollTimeout {
			return payment.Result{}, fmt.Errorf("router: transfer: poll: %w", err)
		}
	}

	return payment.Result{
		Success:       mapTxState(tx.State) == payment.StatusCompleted,
		TransactionID: tx.ID,
		BlockchainTx:  tx.TxHash,
		Amount:        req.Amount,
		Recipient:     req.Recipient,
		Method:        payment.MethodTransfer,
		Status:        mapTxState(tx.State),
		Error:         tx.Error,
		Metadata:      map[string]interface{}{"source_network": string(source)},
	}, nil
}

// mapTxState maps a provider terminal transaction state onto a payment
// status: COMPLETE -> COMPLETED; FAILED/CANCELLED/CLEARED -> FAILED;
// anything non-terminal -> PROCESSING.
func mapTxState(s wallet.TxState) payment.Status {
	switch s {
	case wallet.TxStateComplete, wallet.TxStateConfirmed:
		return payment.StatusCompleted
	case wallet.TxStateFailed, wallet.TxStateCancelled, wallet.TxStateCleared:
		return payment.StatusFailed
	default:
		return payment.StatusProcessing
	}
}

func (a *TransferAdapter) Simulate(ctx context.Context, source network.Network, req payment.Request) (payment.SimulationResult, error) {
	if !a.Supports(ctx, source, req) {
		return payment.SimulationResult{WouldSucceed: false, Reason: "recipient does not match source network address format"}, nil
	}
	if _, err := a.findUSDCToken(ctx, req.WalletID); err != nil {
		return payment.SimulationResult{WouldSucceed: false, Reason: err.Error()}, nil
	}
	fee := money.Zero(req.Amount.Asset)
	return payment.SimulationResult{WouldSucceed: true, Route: payment.MethodTransfer, EstimatedFee: &fee}, nil
}
