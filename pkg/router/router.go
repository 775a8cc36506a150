// Package router implements priority-ordered dispatch across protocol
// adapters: given a recipient and source/destination networks, it picks
// exactly one adapter capable of executing the payment, or returns a
// synthetic failed result rather than raising when none match.
package router

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payment"
)

var (
	evmAddressRe    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solanaAddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	urlRe           = regexp.MustCompile(`^https?://`)
)

// RecipientKind classifies a recipient string so adapters can decide
// supports() without re-parsing it themselves.
type RecipientKind int

const (
	RecipientUnknown RecipientKind = iota
	RecipientEVMAddress
	RecipientSolanaAddress
	RecipientURL
	RecipientLegacyChainAddress // "chain:address" form
)

// ClassifyRecipient inspects recipient and reports its kind, plus the
// explicit chain and address parsed out of the legacy "chain:address" form
// (empty otherwise).
func ClassifyRecipient(recipient string) (kind RecipientKind, chain, address string) {
	if urlRe.MatchString(recipient) {
		return RecipientURL, "", recipient
	}
	if strings.Contains(recipient, ":") && !strings.HasPrefix(recipient, "0x") {
		parts := strings.SplitN(recipient, ":", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return RecipientLegacyChainAddress, parts[0], parts[1]
		}
	}
	if evmAddressRe.MatchString(recipient) {
		return RecipientEVMAddress, "", recipient
	}
	if solanaAddressRe.MatchString(recipient) && !strings.HasPrefix(recipient, "0x") && isValidSolanaAddress(recipient) {
		return RecipientSolanaAddress, "", recipient
	}
	return RecipientUnknown, "", recipient
}

// Adapter is the common contract every protocol adapter implements.
type Adapter interface {
	Method() payment.Method
	Priority() int

	// Supports reports whether this adapter can carry the payment, given
	// the already-resolved source network and the request's own fields.
	Supports(ctx context.Context, sourceNetwork network.Network, req payment.Request) bool

	Execute(ctx context.Context, sourceNetwork network.Network, req payment.Request) (payment.Result, error)
	Simulate(ctx context.Context, sourceNetwork network.Network, req payment.Request) (payment.SimulationResult, error)
}

// SourceNetworkResolver looks up the blockchain a wallet lives on, so
// adapters never need to consult global configuration themselves.
type SourceNetworkResolver interface {
	ResolveSourceNetwork(ctx context.Context, walletID string) (network.Network, error)
}

// Router holds adapters sorted ascending by priority (lower value = higher
// precedence); ties keep registration order, since sort.SliceStable never
// reorders equal elements.
type Router struct {
	adapters []Adapter
	resolver SourceNetworkResolver
}

// New builds an empty Router bound to a source-network resolver.
func New(resolver SourceNetworkResolver) *Router {
	return &Router{resolver: resolver}
}

// Register adds an adapter and keeps the adapter list sorted by priority.
func (r *Router) Register(a Adapter) {
	r.adapters = append(r.adapters, a)
	sort.SliceStable(r.adapters, func(i, j int) bool {
		return r.adapters[i].Priority() < r.adapters[j].Priority()
	})
}

// selectAdapter resolves the source network then returns the first adapter
// in priority order whose Supports() returns true.
func (r *Router) selectAdapter(ctx context.Context, req payment.Request) (Adapter, network.Network, error) {
	source, err := r.resolver.ResolveSourceNetwork(ctx, req.WalletID)
	if err != nil {
		return nil, "", err
	}
	for _, a := range r.adapters {
		if a.Supports(ctx, source, req) {
			return a, source, nil
		}
	}
	return nil, source, nil
}

// Pay resolves the source network, selects an adapter, and delegates
// execution. It never retries; the caller (guard chain, ledger) owns
// retry/backoff policy. If no adapter matches, it returns a synthetic
// FAILED result rather than an error.
func (r *Router) Pay(ctx context.Context, req payment.Request) (payment.Result, error) {
	adapter, source, err := r.selectAdapter(ctx, req)
	if err != nil {
		return payment.Result{}, err
	}
	if adapter == nil {
		return payment.Result{
			Success:   false,
			Amount:    req.Amount,
			Recipient: req.Recipient,
			Status:    payment.StatusFailed,
			Error:     "No adapter found",
		}, nil
	}

	result, err := adapter.Execute(ctx, source, req)
	if err != nil {
		return payment.Result{}, err
	}
	result.Method = adapter.Method()
	return result, nil
}

// Simulate performs the same selection as Pay but delegates to the
// adapter's non-mutating Simulate.
func (r *Router) Simulate(ctx context.Context, req payment.Request) (payment.SimulationResult, error) {
	adapter, source, err := r.selectAdapter(ctx, req)
	if err != nil {
		return payment.SimulationResult{}, err
	}
	if adapter == nil {
		return payment.SimulationResult{WouldSucceed: false, Reason: "No adapter found"}, nil
	}
	return adapter.Simulate(ctx, source, req)
}
