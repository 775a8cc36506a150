// Package payctl is the Payment Facade: the single entry point a caller's
// `pay(wallet, recipient, amount, …)` resolves to. It wires the Trust Gate,
// Guard Chain, Payment Router, Ledger, and the outbound notifier into one
// call that records a ledger entry, reserves guard quota, selects a
// transport, executes it, and settles the ledger and guard reservation
// accordingly.
package payctl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cedrospay/agentpay/internal/lifecycle"
	"github.com/cedrospay/agentpay/internal/logger"
	"github.com/cedrospay/agentpay/internal/metrics"
	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/callbacks"
	"github.com/cedrospay/agentpay/pkg/guard"
	"github.com/cedrospay/agentpay/pkg/intent"
	"github.com/cedrospay/agentpay/pkg/ledger"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/router"
	"github.com/cedrospay/agentpay/pkg/storage"
	"github.com/cedrospay/agentpay/pkg/trust"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

// TrustChecker is the narrow slice of trust.Gate the facade consumes, so a
// caller that has no Trust Gate configured can pass AllowAllTrustChecker
// instead of standing up the full identity/reputation pipeline.
type TrustChecker interface {
	Evaluate(ctx context.Context, walletID, agentID, recipientAddress string, amountAtomic int64) trust.TrustCheckResult
}

// AllowAllTrustChecker approves every payment without consulting a
// registry. It is the facade's default when no Trust Gate is configured —
// appropriate for development or deployments that enforce trust policy
// upstream of the SDK.
type AllowAllTrustChecker struct{}

func (AllowAllTrustChecker) Evaluate(context.Context, string, string, string, int64) trust.TrustCheckResult {
	return trust.TrustCheckResult{Verdict: trust.VerdictApproved}
}

// walletNetworkResolver adapts a wallet.Provider to router.SourceNetworkResolver.
type walletNetworkResolver struct {
	provider wallet.Provider
}

func (r walletNetworkResolver) ResolveSourceNetwork(ctx context.Context, walletID string) (network.Network, error) {
	w, err := r.provider.GetWallet(ctx, walletID)
	if err != nil {
		return "", fmt.Errorf("payctl: resolve source network: %w", err)
	}
	return w.Blockchain, nil
}

// Facade is the assembled orchestrator. Construct with New.
type Facade struct {
	store     storage.Store
	provider  wallet.Provider
	router    *router.Router
	guards    *guard.Manager
	trust     TrustChecker
	ledger    *ledger.Ledger
	intents   *intent.Service
	notifier  callbacks.Notifier
	resources *lifecycle.Manager
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option customizes Facade construction.
type Option func(*options)

type options struct {
	store      storage.Store
	provider   wallet.Provider
	router     *router.Router
	guards     *guard.Manager
	trust      TrustChecker
	notifier   callbacks.Notifier
	confirmCB  guard.ConfirmCallback
	intentTTL  time.Duration
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// WithStore sets a custom storage backend. Defaults to an in-memory store.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithWalletProvider injects the custodial wallet provider. Defaults to an
// in-memory test provider — never use the default in production.
func WithWalletProvider(p wallet.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithRouter overrides the assembled router entirely (e.g. to register
// adapters beyond the TransferAdapter, the only one the default router
// holds).
func WithRouter(r *router.Router) Option {
	return func(o *options) { o.router = r }
}

// WithGuardManager overrides the guard manager. Defaults to a manager with
// no persisted guard configuration, i.e. every payment's guard chain is
// empty until SetGuards is called.
func WithGuardManager(m *guard.Manager) Option {
	return func(o *options) { o.guards = m }
}

// WithTrustChecker injects a Trust Gate (or any TrustChecker). Defaults to
// AllowAllTrustChecker.
func WithTrustChecker(t TrustChecker) Option {
	return func(o *options) { o.trust = t }
}

// WithNotifier injects the outbound payment-event notifier. Defaults to a
// no-op notifier.
func WithNotifier(n callbacks.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithConfirmCallback supplies the async approval hook ConfirmGuard invokes.
func WithConfirmCallback(cb guard.ConfirmCallback) Option {
	return func(o *options) { o.confirmCB = cb }
}

// WithIntentExpiry overrides the default REQUIRES_CONFIRMATION window.
func WithIntentExpiry(d time.Duration) Option {
	return func(o *options) { o.intentTTL = d }
}

// WithLogger sets the facade's structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics attaches a Prometheus instrumentation set. Unset, Pay simply
// skips recording metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New assembles a Facade. Unconfigured collaborators default to in-memory,
// no-op, or allow-all implementations suitable for local development; a
// production deployment supplies WithStore, WithWalletProvider, and
// WithTrustChecker at minimum.
func New(opts ...Option) (*Facade, error) {
	o := &options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	resources := lifecycle.NewManager()

	f := &Facade{
		resources: resources,
		logger:    o.logger,
	}

	if o.store != nil {
		f.store = o.store
	} else {
		f.store = storage.NewMemoryStore()
		f.logger.Warn().Msg("payctl: defaulting to in-memory store – do not use this backend in production")
	}

	if o.provider != nil {
		f.provider = o.provider
	} else {
		f.provider = wallet.NewMemoryProvider()
		f.logger.Warn().Msg("payctl: defaulting to in-memory wallet provider – do not use this backend in production")
	}

	if o.router != nil {
		f.router = o.router
	} else {
		f.router = router.New(walletNetworkResolver{provider: f.provider})
		f.router.Register(router.NewTransferAdapter(f.provider))
	}

	if o.guards != nil {
		f.guards = o.guards
	} else {
		f.guards = guard.NewManager(f.store, o.confirmCB)
	}

	if o.trust != nil {
		f.trust = o.trust
	} else {
		f.trust = AllowAllTrustChecker{}
	}

	if o.notifier != nil {
		f.notifier = o.notifier
	} else {
		f.notifier = callbacks.NoopNotifier{}
	}

	f.metrics = o.metrics
	f.ledger = ledger.New(f.store)
	f.intents = intent.New(f.store, simulator{f}, executor{f}, balanceSource{f}, o.intentTTL)

	return f, nil
}

// simulator/executor/balanceSource adapt Facade to the narrow interfaces
// intent.Service consumes, so intent.Service never depends on payctl and
// payctl's Simulate/Pay stay the single entry points for both direct and
// intent-confirmed payments.
type simulator struct{ f *Facade }

func (s simulator) Simulate(ctx context.Context, req payment.Request) (payment.SimulationResult, error) {
	return s.f.Simulate(ctx, req)
}

type executor struct{ f *Facade }

func (e executor) Pay(ctx context.Context, req payment.Request) (payment.Result, error) {
	return e.f.Pay(ctx, req)
}

type balanceSource struct{ f *Facade }

func (b balanceSource) AvailableBalance(ctx context.Context, walletID, assetCode string) (money.Money, error) {
	balances, err := b.f.provider.GetWalletBalances(ctx, walletID)
	if err != nil {
		return money.Money{}, fmt.Errorf("payctl: available balance: %w", err)
	}
	asset, err := money.GetAsset(assetCode)
	if err != nil {
		return money.Money{}, err
	}
	for _, bal := range balances {
		if bal.Token.Symbol != assetCode {
			continue
		}
		amt, err := money.FromMajor(asset, bal.Amount)
		if err != nil {
			return money.Money{}, fmt.Errorf("payctl: parse provider balance: %w", err)
		}
		return amt, nil
	}
	return money.Zero(asset), nil
}

// Intents exposes the two-phase intent service for Create/Confirm/Cancel.
func (f *Facade) Intents() *intent.Service { return f.intents }

// Ledger exposes the ledger for direct querying.
func (f *Facade) Ledger() *ledger.Ledger { return f.ledger }

// Guards exposes the guard manager so callers can configure SetGuards.
func (f *Facade) Guards() *guard.Manager { return f.guards }

// Close releases every resource the facade registered during construction.
func (f *Facade) Close() error {
	return f.resources.Close()
}

// Pay executes the facade's five-step control flow: record a PENDING
// ledger entry, reserve guard quota atomically, evaluate the Trust Gate,
// select and execute a router adapter, then settle the guard reservation
// and ledger entry according to outcome.
func (f *Facade) Pay(ctx context.Context, req payment.Request) (payment.Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = f.logger
	}
	log.Info().
		Str("walletID", req.WalletID).
		Str("recipient", logger.TruncateAddress(req.Recipient)).
		Str("amount", req.Amount.ToMajor()).
		Msg("payctl: pay: starting")

	entry, err := f.ledger.Record(ctx, payment.LedgerEntry{
		WalletID:    req.WalletID,
		WalletSetID: req.WalletSetID,
		Recipient:   req.Recipient,
		Amount:      req.Amount,
		EntryType:   payment.EntryTypePayment,
		Status:      payment.StatusPending,
		Purpose:     req.Purpose,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return payment.Result{}, fmt.Errorf("payctl: pay: record ledger: %w", err)
	}

	chain, err := f.guards.EffectiveChain(ctx, req.WalletID, req.WalletSetID)
	if err != nil {
		return payment.Result{}, fmt.Errorf("payctl: pay: build guard chain: %w", err)
	}

	gctx := guard.Context{
		WalletID:  req.WalletID,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Now:       time.Now(),
	}

	tokens, passed, err := chain.Reserve(ctx, gctx)
	if err != nil {
		if f.metrics != nil {
			f.metrics.ObserveGuardCheck("chain", false)
			f.metrics.ObservePaymentFailure("unresolved", "guard_blocked")
		}
		_ = f.ledger.UpdateStatus(ctx, entry.ID, payment.StatusBlocked, "", map[string]interface{}{"error": err.Error()})
		return payment.Result{
			Success:   false,
			Amount:    req.Amount,
			Recipient: req.Recipient,
			Status:    payment.StatusBlocked,
			Error:     err.Error(),
		}, nil
	}

	trustStart := time.Now()
	trustResult := f.trust.Evaluate(ctx, req.WalletID, "", req.Recipient, req.Amount.Atomic)
	if f.metrics != nil {
		f.metrics.ObserveTrustEvaluation(string(trustResult.Verdict), time.Since(trustStart))
	}
	if trustResult.Verdict != trust.VerdictApproved {
		_ = chain.Release(ctx, tokens)
		status := payment.StatusBlocked
		if trustResult.Verdict == trust.VerdictHeld {
			status = payment.StatusPending
		}
		if f.metrics != nil {
			f.metrics.ObservePaymentFailure("unresolved", "trust_"+string(trustResult.Verdict))
		}
		_ = f.ledger.UpdateStatus(ctx, entry.ID, status, "", map[string]interface{}{
			"trust_verdict": string(trustResult.Verdict),
			"trust_reason":  trustResult.BlockReason,
		})
		return payment.Result{
			Success:   false,
			Amount:    req.Amount,
			Recipient: req.Recipient,
			Status:    status,
			Error:     fmt.Sprintf("trust gate: %s: %s", trustResult.Verdict, trustResult.BlockReason),
		}, nil
	}

	result, err := f.router.Pay(ctx, req)
	if err != nil {
		_ = chain.Release(ctx, tokens)
		_ = f.ledger.UpdateStatus(ctx, entry.ID, payment.StatusFailed, "", map[string]interface{}{"error": err.Error()})
		return payment.Result{}, fmt.Errorf("payctl: pay: execute: %w", err)
	}
	result.GuardsPassed = passed

	if result.Success {
		if err := chain.Commit(ctx, tokens); err != nil {
			f.logger.Error().Err(err).Str("ledgerID", entry.ID).Msg("payctl: guard commit failed after successful payment")
		}
	} else {
		_ = chain.Release(ctx, tokens)
	}

	_ = f.ledger.UpdateStatus(ctx, entry.ID, result.Status, result.BlockchainTx, map[string]interface{}{
		"method": string(result.Method),
		"error":  result.Error,
	})

	if f.metrics != nil {
		f.metrics.ObservePayment(string(result.Method), result.Success, time.Since(start), req.Amount.Atomic, req.Amount.Asset.Code)
		if !result.Success {
			f.metrics.ObservePaymentFailure(string(result.Method), "router_failed")
		}
	}

	log.Info().
		Str("walletID", req.WalletID).
		Str("status", string(result.Status)).
		Str("method", string(result.Method)).
		Msg("payctl: pay: finished")

	f.notifier.Notify(ctx, callbacks.Event{
		EventType:    "payment." + string(result.Status),
		WalletID:     req.WalletID,
		Recipient:    req.Recipient,
		AmountAtomic: req.Amount.Atomic,
		AssetCode:    req.Amount.Asset.Code,
		Method:       result.Method,
		Status:       result.Status,
		TxHash:       result.BlockchainTx,
		Error:        result.Error,
	})

	return result, nil
}

// Simulate performs the same guard-check and router-selection path as Pay
// without reserving quota or executing anything.
func (f *Facade) Simulate(ctx context.Context, req payment.Request) (payment.SimulationResult, error) {
	chain, err := f.guards.EffectiveChain(ctx, req.WalletID, req.WalletSetID)
	if err != nil {
		return payment.SimulationResult{}, fmt.Errorf("payctl: simulate: build guard chain: %w", err)
	}

	gctx := guard.Context{
		WalletID:  req.WalletID,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Now:       time.Now(),
	}

	allowed, reason, _, err := chain.Check(ctx, gctx)
	if err != nil {
		return payment.SimulationResult{}, fmt.Errorf("payctl: simulate: guard check: %w", err)
	}
	if !allowed {
		return payment.SimulationResult{WouldSucceed: false, Reason: reason}, nil
	}

	trustResult := f.trust.Evaluate(ctx, req.WalletID, "", req.Recipient, req.Amount.Atomic)
	if trustResult.Verdict != trust.VerdictApproved {
		return payment.SimulationResult{
			WouldSucceed: false,
			Reason:       fmt.Sprintf("trust gate: %s: %s", trustResult.Verdict, trustResult.BlockReason),
		}, nil
	}

	return f.router.Simulate(ctx, req)
}
