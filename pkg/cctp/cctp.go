// Package cctp drives Circle's Cross-Chain Transfer Protocol: approve the
// TokenMessenger, burn USDC on the source chain, poll Circle's attestation
// service, then either let the relayer mint on the destination or mint
// agent-side when the destination has no relayer.
package cctp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

// State is a CCTP transfer's position in the burn/attest/mint pipeline.
type State string

const (
	StateInit                State = "INIT"
	StateApproving           State = "APPROVING"
	StateApproved            State = "APPROVED"
	StateBurning             State = "BURNING"
	StateBurned              State = "BURNED"
	StatePollingAttestation  State = "POLLING_ATTESTATION"
	StateAttested            State = "ATTESTED"
	StateRelayed             State = "RELAYED"
	StateMinting             State = "MINTING"
	StateMinted              State = "MINTED"
	StateDone                State = "DONE"
	StateFailed              State = "FAILED"
)

// FailedError carries the state a transfer was in when it failed, so
// callers can tell a burn-side failure from an attestation or mint failure.
type FailedError struct {
	Reason    string
	LastState State
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("cctp: failed at %s: %s", e.LastState, e.Reason)
}

func fail(state State, reason string, args ...interface{}) error {
	return &FailedError{Reason: fmt.Sprintf(reason, args...), LastState: state}
}

// AttestationClient fetches Circle's attestation for a burn transaction.
// Implemented by pkg/cctp's HTTP client; narrowed here so the FSM is
// testable without a live network dependency.
type AttestationClient interface {
	PollAttestation(ctx context.Context, sourceDomain int, burnTxHash string, interval, timeout time.Duration) (message, attestation string, err error)
}

// GasChecker reports a wallet's native-gas balance in wei-equivalent atomic
// units, used for the pre-flight minimum-gas check.
type GasChecker interface {
	NativeBalance(ctx context.Context, walletID string, n network.Network) (string, error)
}

// FSM runs the full burn/attest/mint pipeline for one transfer.
type FSM struct {
	provider     wallet.Provider
	attestation  AttestationClient
	gas          GasChecker
	pollApprove  time.Duration
	pollBurn     time.Duration
	approveWait  time.Duration
	burnWait     time.Duration
	attestWait   time.Duration
}

// New builds a CCTP FSM.
func New(provider wallet.Provider, attestation AttestationClient, gas GasChecker) *FSM {
	return &FSM{
		provider:    provider,
		attestation: attestation,
		gas:         gas,
		pollApprove: 2 * time.Second,
		pollBurn:    2 * time.Second,
		approveWait: 2 * time.Minute,
		burnWait:    5 * time.Minute,
		attestWait:  20 * time.Minute,
	}
}

// Transfer drives source -> dest for recipient, settling amount of USDC.
// It implements router.CrossChainTransferer.
func (f *FSM) Transfer(ctx context.Context, sourceWalletID string, source, dest network.Network, recipient string, amount money.Money, idempotencyKey string) (payment.Result, error) {
	if !source.SupportsCCTP() || !dest.SupportsCCTP() {
		return payment.Result{}, fail(StateInit, "CCTP not supported between %s and %s", source, dest)
	}

	asset, err := money.GetAsset(amount.Asset.Code)
	if err != nil {
		return payment.Result{}, err
	}
	tokenMessenger, ok := asset.Metadata.CCTPTokenMessenger[string(source)]
	if !ok || tokenMessenger == "" {
		return payment.Result{}, fail(StateInit, "no TokenMessenger registered for %s", source)
	}
	usdcContract, ok := asset.Metadata.EVMContracts[string(source)]
	if !ok || usdcContract == "" {
		return payment.Result{}, fail(StateInit, "no USDC contract registered for %s", source)
	}

	if err := f.preflightGas(ctx, sourceWalletID, source); err != nil {
		return payment.Result{}, err
	}

	log.Info().Str("state", string(StateApproving)).Str("source", string(source)).Str("dest", string(dest)).Msg("cctp.transition")
	approveTx, err := f.approve(ctx, sourceWalletID, usdcContract, tokenMessenger, amount, idempotencyKey)
	if err != nil {
		return payment.Result{}, err
	}
	log.Info().Str("state", string(StateApproved)).Str("tx", approveTx.TxHash).Msg("cctp.transition")

	destDomain, err := dest.CCTPDomain()
	if err != nil {
		return payment.Result{}, fail(StateBurning, "destination domain lookup: %v", err)
	}
	sourceDomain, err := source.CCTPDomain()
	if err != nil {
		return payment.Result{}, fail(StateBurning, "source domain lookup: %v", err)
	}

	log.Info().Str("state", string(StateBurning)).Msg("cctp.transition")
	burnTx, maxFee, err := f.burn(ctx, sourceWalletID, tokenMessenger, usdcContract, recipient, amount, destDomain, dest, idempotencyKey)
	if err != nil {
		return payment.Result{}, err
	}
	log.Info().Str("state", string(StateBurned)).Str("tx", burnTx.TxHash).Msg("cctp.transition")

	log.Info().Str("state", string(StatePollingAttestation)).Msg("cctp.transition")
	message, attestation, err := f.attestation.PollAttestation(ctx, sourceDomain, burnTx.TxHash, 5*time.Second, f.attestWait)
	if err != nil {
		return payment.Result{}, fail(StatePollingAttestation, "attestation timed out: %v", err)
	}
	log.Info().Str("state", string(StateAttested)).Msg("cctp.transition")

	metadata := map[string]interface{}{
		"source_domain": sourceDomain,
		"dest_domain":    destDomain,
	}

	if dest.IsSolana() {
		splMint, splAmount, err := money.NewSPLAdapter().ToSPLAmount(amount)
		if err != nil {
			return payment.Result{}, fail(StateBurning, "spl amount encoding: %v", err)
		}
		metadata["spl_mint"] = splMint
		metadata["spl_amount"] = splAmount
	}

	if maxFee > 0 && !dest.ManualMintOnly() {
		metadata["flow"] = "burn_attestation_relay"
		metadata["manual_mint_required"] = false
		log.Info().Str("state", string(StateRelayed)).Msg("cctp.transition")
		return payment.Result{
			Success:       true,
			BlockchainTx:  burnTx.TxHash,
			Amount:        amount,
			Recipient:     recipient,
			Method:        payment.MethodCrossChain,
			Status:        payment.StatusCompleted,
			Metadata:      metadata,
		}, nil
	}

	executor, err := findExecutor(ctx, f.provider, dest)
	if err != nil {
		metadata["flow"] = "burn_attestation_manual"
		metadata["manual_mint_required"] = true
		metadata["attestation"] = attestation
		metadata["message"] = message
		return payment.Result{
			Success:      true,
			BlockchainTx: burnTx.TxHash,
			Amount:       amount,
			Recipient:    recipient,
			Method:       payment.MethodCrossChain,
			Status:       payment.StatusCompleted,
			Metadata:     metadata,
		}, nil
	}

	log.Info().Str("state", string(StateMinting)).Str("executor", executor.ID).Msg("cctp.transition")
	mintTx, err := f.mint(ctx, executor.ID, dest, message, attestation, idempotencyKey)
	if err != nil {
		metadata["flow"] = "burn_attestation_manual"
		metadata["manual_mint_required"] = true
		metadata["attestation"] = attestation
		metadata["message"] = message
		metadata["mint_error"] = err.Error()
		return payment.Result{
			Success:      true,
			BlockchainTx: burnTx.TxHash,
			Amount:       amount,
			Recipient:    recipient,
			Method:       payment.MethodCrossChain,
			Status:       payment.StatusCompleted,
			Metadata:     metadata,
		}, nil
	}

	metadata["flow"] = "burn_attestation_agent_mint"
	metadata["manual_mint_required"] = false
	metadata["mint_tx_hash"] = mintTx.TxHash
	log.Info().Str("state", string(StateDone)).Msg("cctp.transition")

	return payment.Result{
		Success:      true,
		BlockchainTx: burnTx.TxHash,
		Amount:       amount,
		Recipient:    recipient,
		Method:       payment.MethodCrossChain,
		Status:       payment.StatusCompleted,
		Metadata:     metadata,
	}, nil
}

func (f *FSM) preflightGas(ctx context.Context, walletID string, n network.Network) error {
	if n.ManualMintOnly() {
		// Arc testnet pays gas in USDC; no native-gas pre-flight applies.
		return nil
	}
	if f.gas == nil {
		return nil
	}
	balance, err := f.gas.NativeBalance(ctx, walletID, n)
	if err != nil {
		return fail(StateInit, "gas balance check: %v", err)
	}
	bal, err := strconv.ParseInt(balance, 10, 64)
	if err != nil {
		return nil
	}
	min, _ := strconv.ParseInt(minGasReserveWei, 10, 64)
	if bal < min {
		return fail(StateInit, "insufficient native gas on %s: have %s, need %s", n, balance, minGasReserveWei)
	}
	return nil
}

func (f *FSM) approve(ctx context.Context, walletID, usdcContract, tokenMessenger string, amount money.Money, idempotencyKey string) (wallet.Tx, error) {
	tx, err := f.provider.CreateContractExecution(ctx, walletID, usdcContract, "approve(address,uint256)",
		[]wallet.ContractParam{
			{Type: "address", Value: tokenMessenger},
			{Type: "uint256", Value: strconv.FormatInt(amount.Atomic, 10)},
		}, wallet.FeeMedium, idempotencyKey+":approve")
	if err != nil {
		return wallet.Tx{}, fail(StateApproving, "submit approve: %v", err)
	}

	final, err := wallet.PollTransaction(ctx, f.provider, tx.ID, f.pollApprove, f.approveWait)
	if err != nil {
		return wallet.Tx{}, fail(StateApproving, "poll approve: %v", err)
	}
	if final.State == wallet.TxStateFailed || final.State == wallet.TxStateCancelled {
		return wallet.Tx{}, fail(StateApproving, "approval failed: %s", final.Error)
	}
	return final, nil
}

func (f *FSM) burn(ctx context.Context, walletID, tokenMessenger, usdcContract, recipient string, amount money.Money, destDomain int, dest network.Network, idempotencyKey string) (wallet.Tx, int64, error) {
	mintRecipient := padToBytes32(recipient)
	zeroCaller := strings.Repeat("0", 64)

	var maxFee int64 = defaultMaxFeeAtomic
	finality := finalityThresholdFast
	if dest.ManualMintOnly() {
		maxFee = 0
		finality = finalityThresholdStandard
	}

	tx, err := f.provider.CreateContractExecution(ctx, walletID, tokenMessenger,
		"depositForBurn(uint256,uint32,bytes32,address,bytes32,uint256,uint32)",
		[]wallet.ContractParam{
			{Type: "uint256", Value: strconv.FormatInt(amount.Atomic, 10)},
			{Type: "uint32", Value: destDomain},
			{Type: "bytes32", Value: mintRecipient},
			{Type: "address", Value: usdcContract},
			{Type: "bytes32", Value: zeroCaller},
			{Type: "uint256", Value: strconv.FormatInt(maxFee, 10)},
			{Type: "uint32", Value: finality},
		}, wallet.FeeMedium, idempotencyKey+":burn")
	if err != nil {
		return wallet.Tx{}, 0, fail(StateBurning, "submit burn: %v", err)
	}

	final, err := wallet.PollTransaction(ctx, f.provider, tx.ID, f.pollBurn, f.burnWait)
	if err != nil {
		return wallet.Tx{}, 0, fail(StateBurning, "poll burn: %v", err)
	}
	if final.State == wallet.TxStateFailed || final.State == wallet.TxStateCancelled {
		return wallet.Tx{}, 0, fail(StateBurning, "burn reverted: %s", final.Error)
	}
	return final, maxFee, nil
}

func (f *FSM) mint(ctx context.Context, executorWalletID string, dest network.Network, message, attestation, idempotencyKey string) (wallet.Tx, error) {
	target := messageTransmitterAddress(dest)
	if target == "" {
		return wallet.Tx{}, fmt.Errorf("cctp: no MessageTransmitter registered for %s", dest)
	}

	tx, err := f.provider.CreateContractExecution(ctx, executorWalletID, target, "receiveMessage(bytes,bytes)",
		[]wallet.ContractParam{
			{Type: "bytes", Value: message},
			{Type: "bytes", Value: attestation},
		}, wallet.FeeMedium, idempotencyKey+":mint")
	if err != nil {
		return wallet.Tx{}, err
	}

	final, err := wallet.PollTransaction(ctx, f.provider, tx.ID, 2*time.Second, 2*time.Minute)
	if err != nil {
		return wallet.Tx{}, err
	}
	if final.State == wallet.TxStateFailed || final.State == wallet.TxStateCancelled {
		return wallet.Tx{}, fmt.Errorf("mint reverted: %s", final.Error)
	}
	return final, nil
}

// findExecutor locates a LIVE wallet on dest to carry out an agent-side
// mint. Providers that support wallet rotation (pkg/wallet.MemoryProvider)
// expose this via ExecutorWallet; a generic provider falls back to
// scanning ListWallets.
type executorLister interface {
	ExecutorWallet(ctx context.Context, blockchain network.Network) (wallet.Wallet, error)
}

func findExecutor(ctx context.Context, p wallet.Provider, dest network.Network) (wallet.Wallet, error) {
	if el, ok := p.(executorLister); ok {
		return el.ExecutorWallet(ctx, dest)
	}

	wallets, err := p.ListWallets(ctx, "", dest)
	if err != nil {
		return wallet.Wallet{}, err
	}
	for _, w := range wallets {
		if w.State == wallet.StateLive {
			return w, nil
		}
	}
	return wallet.Wallet{}, fmt.Errorf("cctp: no LIVE executor wallet found on %s", dest)
}

// padToBytes32 left-pads an address (with or without a 0x prefix) to a
// 32-byte, 64-hex-character string, as depositForBurn/receiveMessage expect
// for their bytes32 recipient/caller arguments.
func padToBytes32(address string) string {
	clean := strings.TrimPrefix(address, "0x")
	if len(clean) >= 64 {
		return clean[len(clean)-64:]
	}
	return strings.Repeat("0", 64-len(clean)) + clean
}
