package router

import (
	"context"
	"fmt"

	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

// CrossChainTransferer drives the CCTP burn/attest/mint state machine. It
// lives in pkg/cctp; GatewayAdapter only depends on this narrow interface
// so the two packages don't import each other directly.
type CrossChainTransferer interface {
	Transfer(ctx context.Context, sourceWalletID string, source, dest network.Network, recipient string, amount money.Money, idempotencyKey string) (payment.Result, error)
}

// GatewayAdapter dispatches same-chain transfers when resolution collapses
// source and destination to the same network, and otherwise drives the
// CCTP cross-chain transfer.
type GatewayAdapter struct {
	provider wallet.Provider
	cctp     CrossChainTransferer
}

// NewGatewayAdapter builds a GatewayAdapter.
func NewGatewayAdapter(provider wallet.Provider, cctp CrossChainTransferer) *GatewayAdapter {
	return &GatewayAdapter{provider: provider, cctp: cctp}
}

func (a *GatewayAdapter) Method() payment.Method { return payment.MethodCrossChain }
func (a *GatewayAdapter) Priority() int          { return PriorityGateway }

// resolveDestination determines the destination network for req, given
// source. Returns ok=false when no destination can be resolved (e.g. a
// plain address with no destination_chain and no ambiguity).
func (a *GatewayAdapter) resolveDestination(source network.Network, req payment.Request) (dest network.Network, ok bool) {
	if req.DestinationChain != "" {
		dest, err := network.Parse(req.DestinationChain)
		if err != nil {
			return "", false
		}
		return dest, true
	}

	// Ambiguous cross-chain: an EVM source wallet paying a Solana-looking
	// address (or vice versa) implies a cross-chain transfer even without
	// an explicit destination_chain.
	kind, _, _ := ClassifyRecipient(req.Recipient)
	switch {
	case kind == RecipientSolanaAddress && source.IsEVM():
		return network.SolMainnet, true
	case kind == RecipientEVMAddress && source.IsSolana():
		return network.EthMainnet, true
	}
	return "", false
}

func (a *GatewayAdapter) Supports(_ context.Context, source network.Network, req payment.Request) bool {
	dest, ok := a.resolveDestination(source, req)
	if !ok {
		return false
	}
	return dest != source
}

func (a *GatewayAdapter) Execute(ctx context.Context, source network.Network, req payment.Request) (payment.Result, error) {
	dest, ok := a.resolveDestination(source, req)
	if !ok {
		return payment.Result{}, fmt.Errorf("router: gateway: cannot resolve destination for recipient %q", req.Recipient)
	}

	if dest == source {
		_, _, address := ClassifyRecipient(req.Recipient)
		token, err := (&TransferAdapter{provider: a.provider}).findUSDCToken(ctx, req.WalletID)
		if err != nil {
			return payment.Result{}, err
		}
		fee := wallet.FeeLevel(req.FeeLevel)
		if fee == "" {
			fee = wallet.FeeMedium
		}
		tx, err := a.provider.CreateTransfer(ctx, req.WalletID, token.ID, address, req.Amount.ToMajor(), fee, req.IdempotencyKey)
		if err != nil {
			return payment.Result{}, fmt.Errorf("router: gateway: same-chain transfer: %w", err)
		}
		return payment.Result{
			Success:       mapTxState(tx.State) == payment.StatusCompleted,
			TransactionID: tx.ID,
			BlockchainTx:  tx.TxHash,
			Amount:        req.Amount,
			Recipient:     req.Recipient,
			Method:        payment.MethodCrossChain,
			Status:        mapTxState(tx.State),
			Error:         tx.Error,
			Metadata:      map[string]interface{}{"same_chain": true},
		}, nil
	}

	_, _, address := ClassifyRecipient(req.Recipient)
	return a.cctp.Transfer(ctx, req.WalletID, source, dest, address, req.Amount, req.IdempotencyKey)
}

func (a *GatewayAdapter) Simulate(ctx context.Context, source network.Network, req payment.Request) (payment.SimulationResult, error) {
	dest, ok := a.resolveDestination(source, req)
	if !ok {
		return payment.SimulationResult{WouldSucceed: false, Reason: "cannot resolve destination network"}, nil
	}
	if dest == source {
		fee := money.Zero(req.Amount.Asset)
		return payment.SimulationResult{WouldSucceed: true, Route: payment.MethodCrossChain, EstimatedFee: &fee}, nil
	}
	if !source.SupportsCCTP() || !dest.SupportsCCTP() {
		return payment.SimulationResult{WouldSucceed: false, Reason: fmt.Sprintf("CCTP not supported between %s and %s", source, dest)}, nil
	}
	fee := money.New(req.Amount.Asset, 500)
	return payment.SimulationResult{WouldSucceed: true, Route: payment.MethodCrossChain, EstimatedFee: &fee, Reason: "cross-chain via CCTP"}, nil
}
