// Package trust implements the Trust Gate: cache -> on-chain identity
// lookup -> reputation aggregation -> policy verdict, the pipeline every
// payment above a wallet's configured trust policy must clear before the
// router is invoked.
package trust

import "time"

// Verdict is the Policy Engine's final decision.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictBlocked  Verdict = "BLOCKED"
	VerdictHeld     Verdict = "HELD"
)

// Identity is the resolved on-chain + off-chain agent identity.
type Identity struct {
	AgentID       string
	Owner         string // wallet/address controlling the agent NFT
	RegistryURI   string
	Name          string
	Description   string
	Active        bool
	X402Support   bool
	SupportedTrust []string
	Services      []Service
}

// Service is one entry in an ERC-8004 registration file's services[] array.
type Service struct {
	Name     string
	Endpoint string
	Version  string
}

// FeedbackSignal is one raw reputation data point read from the
// Reputation Registry.
type FeedbackSignal struct {
	AgentID        string
	ClientAddress  string
	FeedbackIndex  int64
	Value          int64 // int128 in the registry; fits int64 for realistic scores
	ValueDecimals  uint8
	Tag1           string
	Tag2           string
	IsRevoked      bool
	SubmitterOwner string // the submitter's own agent owner, for self-review detection
}

// ReputationScore is the aggregated output of the Reputation Aggregator.
type ReputationScore struct {
	WTS        int
	SampleSize int
	NewAgent   bool
	Flags      []string
	Breakdown  map[string]interface{}
}

// Policy configures the Policy Engine's ten ordered checks for a wallet
// (or the operator default).
type Policy struct {
	PolicyID             string
	IdentityRequired      bool
	MinWTS                int
	MinFeedbackCount      int
	RequireAttestations   []string
	OrgWhitelist          []string
	AddressBlocklist      []string
	NewAgentAction        Verdict
	FraudTagAction        Verdict
	UnresolvableAction    Verdict
	HighValueThreshold    int64 // atomic units
	HighValueMinWTS       int
	MinSampleSize         int // below this, new_agent applies; spec default 3
}

// DefaultPolicy returns Circle/CedrosPay's permissive-by-default operator
// policy: identity not required, no WTS floor, new agents pass through.
func DefaultPolicy() Policy {
	return Policy{
		PolicyID:           "default",
		MinFeedbackCount:   0,
		MinSampleSize:      3,
		NewAgentAction:     VerdictApproved,
		FraudTagAction:     VerdictBlocked,
		UnresolvableAction: VerdictApproved,
		HighValueThreshold: 0,
		HighValueMinWTS:    0,
	}
}

// TrustCheckResult is the Trust Gate's final output for one evaluate() call.
type TrustCheckResult struct {
	Verdict      Verdict
	WTS          int
	SampleSize   int
	Flags        []string
	Attestations []string
	BlockReason  string
	LatencyMS    int64
	CacheHit     bool
}

// cachedIdentity is what identity.go persists in storage.CollIdentityCache.
type cachedIdentity struct {
	Identity  Identity
	CachedAt  time.Time
}

// cachedReputation is what reputation.go persists in storage.CollWTSCache.
type cachedReputation struct {
	Score    ReputationScore
	CachedAt time.Time
}
