package trust

import (
	"context"
	"strings"
	"time"
)

// PolicyResolver resolves a wallet-specific trust policy override. ok=false
// means no override exists and the gate's default policy applies.
type PolicyResolver interface {
	PolicyFor(ctx context.Context, walletID string) (policy Policy, ok bool, err error)
}

// NoPolicyOverrides always falls through to the default policy.
type NoPolicyOverrides struct{}

func (NoPolicyOverrides) PolicyFor(context.Context, string) (Policy, bool, error) {
	return Policy{}, false, nil
}

// Gate is the Trust Gate pipeline: resolve policy, resolve identity,
// compute reputation, run the Policy Engine's ordered checks.
type Gate struct {
	identity      *IdentityResolver
	reputation    *ReputationAggregator
	policies      PolicyResolver
	defaultPolicy Policy
}

// NewGate builds a Gate. policies may be NoPolicyOverrides{} when every
// wallet shares the operator default.
func NewGate(identity *IdentityResolver, reputation *ReputationAggregator, policies PolicyResolver, defaultPolicy Policy) *Gate {
	if policies == nil {
		policies = NoPolicyOverrides{}
	}
	return &Gate{
		identity:      identity,
		reputation:    reputation,
		policies:      policies,
		defaultPolicy: defaultPolicy,
	}
}

// Evaluate runs the full pipeline for one payment. recipientAddress is the
// agent's wallet/owner address (used as the identity lookup key when
// agentID is unknown); agentID may be empty.
func (g *Gate) Evaluate(ctx context.Context, walletID, agentID, recipientAddress string, amountAtomic int64) TrustCheckResult {
	start := time.Now()

	policy, fromOverride, err := g.policies.PolicyFor(ctx, walletID)
	if err != nil || !fromOverride {
		policy = g.defaultPolicy
	}

	identity, identityFound, cacheHit, err := g.resolveIdentity(ctx, agentID, recipientAddress)
	if err != nil {
		return TrustCheckResult{
			Verdict:     policy.UnresolvableAction,
			BlockReason: "trust gate: registry unavailable: " + err.Error(),
			LatencyMS:   time.Since(start).Milliseconds(),
			CacheHit:    cacheHit,
		}
	}

	var reputation ReputationScore
	if identityFound {
		reputation, err = g.reputation.Score(ctx, identity.AgentID, identity.Owner)
		if err != nil {
			return TrustCheckResult{
				Verdict:     policy.UnresolvableAction,
				BlockReason: "trust gate: reputation registry unavailable: " + err.Error(),
				LatencyMS:   time.Since(start).Milliseconds(),
				CacheHit:    cacheHit,
			}
		}
	} else {
		reputation = ReputationScore{NewAgent: true, Flags: []string{"new_agent", "no_feedback"}}
	}

	verdict, reason := evaluatePolicy(policy, identityFound, identity, reputation, recipientAddress, amountAtomic)

	return TrustCheckResult{
		Verdict:      verdict,
		WTS:          reputation.WTS,
		SampleSize:   reputation.SampleSize,
		Flags:        reputation.Flags,
		Attestations: identity.SupportedTrust,
		BlockReason:  reason,
		LatencyMS:    time.Since(start).Milliseconds(),
		CacheHit:     cacheHit,
	}
}

// resolveIdentity looks up the identity, treating "no agent NFT owned by
// this address" as identityFound=false rather than an error so the policy
// engine's identity_required check can handle it, while genuine registry
// I/O failures (RPC down, circuit open) propagate as errors.
func (g *Gate) resolveIdentity(ctx context.Context, agentID, recipientAddress string) (identity Identity, found bool, cacheHit bool, err error) {
	identity, err = g.identity.Resolve(ctx, agentID, recipientAddress)
	if err != nil {
		if isNotRegistered(err) {
			return Identity{}, false, false, nil
		}
		return Identity{}, false, false, err
	}
	return identity, true, false, nil
}

// isNotRegistered reports whether err represents "this address has no
// registered agent identity" rather than a registry I/O failure. The
// on-chain client's BalanceOf(0) path returns exactly this shape of error.
func isNotRegistered(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no agent NFT owned by")
}
