package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cedrospay/agentpay/internal/cacheutil"
	"github.com/cedrospay/agentpay/internal/circuitbreaker"
	"github.com/cedrospay/agentpay/pkg/storage"
)

// fraudTags is the closed set of reputation tags that trigger the "fraud" flag.
var fraudTags = map[string]bool{
	"fraud":     true,
	"scam":      true,
	"malicious": true,
	"spam":      true,
	"phishing":  true,
}

// ReputationRegistryClient reads raw feedback signals from the on-chain
// Reputation Registry. Bulk is preferred when the deployed registry
// supports it; Paginated is the getClients -> getLastIndex -> readFeedback
// fallback.
type ReputationRegistryClient interface {
	// Bulk returns every feedback signal for agentID in one round trip, or
	// ok=false if the deployed registry has no bulk read method.
	Bulk(ctx context.Context, agentID string) (signals []FeedbackSignal, ok bool, err error)

	// Clients lists every client address that has ever submitted feedback
	// for agentID.
	Clients(ctx context.Context, agentID string) ([]string, error)

	// LastIndex returns the highest feedback index client has submitted for
	// agentID (feedback indices are append-only per client).
	LastIndex(ctx context.Context, agentID, client string) (int64, error)

	// ReadFeedback returns the feedback signal at the given index.
	ReadFeedback(ctx context.Context, agentID, client string, index int64) (FeedbackSignal, error)
}

// VerifiedSubmitters is a caller-supplied set of client addresses whose
// feedback counts 1.5x toward the weighted mean (e.g. addresses that have
// themselves passed identity verification).
type VerifiedSubmitters interface {
	IsVerified(clientAddress string) bool
}

// NoVerifiedSubmitters treats no submitter as verified.
type NoVerifiedSubmitters struct{}

func (NoVerifiedSubmitters) IsVerified(string) bool { return false }

// ReputationAggregator computes a wallet-agent's Weighted Trust Score from
// raw feedback signals, cached two-tier the same way IdentityResolver is.
type ReputationAggregator struct {
	registry   ReputationRegistryClient
	verified   VerifiedSubmitters
	store      storage.Store
	breakers   *circuitbreaker.Manager
	ttl        time.Duration
	minSample  int

	mu    sync.RWMutex
	local map[string]cacheutil.CachedValue[ReputationScore]
}

// NewReputationAggregator builds a ReputationAggregator. minSample is the
// sample-size floor below which an agent is "new" (spec default 3).
func NewReputationAggregator(registry ReputationRegistryClient, verified VerifiedSubmitters, store storage.Store, breakers *circuitbreaker.Manager, ttl time.Duration, minSample int) *ReputationAggregator {
	if verified == nil {
		verified = NoVerifiedSubmitters{}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if minSample <= 0 {
		minSample = 3
	}
	return &ReputationAggregator{
		registry:  registry,
		verified:  verified,
		store:     store,
		breakers:  breakers,
		ttl:       ttl,
		minSample: minSample,
		local:     make(map[string]cacheutil.CachedValue[ReputationScore]),
	}
}

// Score computes (or returns the cached) ReputationScore for agentID.
func (a *ReputationAggregator) Score(ctx context.Context, agentID, ownerAddress string) (ReputationScore, error) {
	return cacheutil.ReadThrough(
		&a.mu,
		func(now time.Time) (ReputationScore, bool) {
			entry, ok := a.local[agentID]
			if ok && now.Sub(entry.FetchedAt) < a.ttl {
				return entry.Value, true
			}
			return ReputationScore{}, false
		},
		func(now time.Time) (ReputationScore, error) {
			if cached, found := a.readPersistentCache(ctx, agentID); found {
				a.local[agentID] = cacheutil.CachedValue[ReputationScore]{Value: cached, FetchedAt: now}
				return cached, nil
			}

			score, err := a.computeFresh(ctx, agentID, ownerAddress)
			if err != nil {
				return ReputationScore{}, err
			}

			a.local[agentID] = cacheutil.CachedValue[ReputationScore]{Value: score, FetchedAt: now}
			a.writePersistentCache(ctx, agentID, score, now)
			return score, nil
		},
	)
}

func (a *ReputationAggregator) readPersistentCache(ctx context.Context, agentID string) (ReputationScore, bool) {
	rec, err := a.store.Get(ctx, storage.CollWTSCache, agentID)
	if err != nil {
		return ReputationScore{}, false
	}
	payload, err := json.Marshal(rec.Value)
	if err != nil {
		return ReputationScore{}, false
	}
	var cached cachedReputation
	if err := json.Unmarshal(payload, &cached); err != nil {
		return ReputationScore{}, false
	}
	if time.Since(cached.CachedAt) > a.ttl {
		return ReputationScore{}, false
	}
	return cached.Score, true
}

func (a *ReputationAggregator) writePersistentCache(ctx context.Context, agentID string, score ReputationScore, now time.Time) {
	payload, err := json.Marshal(cachedReputation{Score: score, CachedAt: now})
	if err != nil {
		return
	}
	var value map[string]interface{}
	if err := json.Unmarshal(payload, &value); err != nil {
		return
	}
	_ = a.store.Save(ctx, storage.CollWTSCache, agentID, value)
}

func (a *ReputationAggregator) computeFresh(ctx context.Context, agentID, ownerAddress string) (ReputationScore, error) {
	result, err := a.breakers.Execute(circuitbreaker.ServiceReputationRegistry, func() (interface{}, error) {
		return a.fetchSignals(ctx, agentID)
	})
	if err != nil {
		return ReputationScore{}, fmt.Errorf("trust: reputation registry: %w", err)
	}
	signals := result.([]FeedbackSignal)
	return aggregate(signals, ownerAddress, a.verified, a.minSample), nil
}

func (a *ReputationAggregator) fetchSignals(ctx context.Context, agentID string) ([]FeedbackSignal, error) {
	if bulk, ok, err := a.registry.Bulk(ctx, agentID); err != nil {
		return nil, err
	} else if ok {
		return bulk, nil
	}

	clients, err := a.registry.Clients(ctx, agentID)
	if err != nil {
		return nil, err
	}

	var signals []FeedbackSignal
	for _, client := range clients {
		last, err := a.registry.LastIndex(ctx, agentID, client)
		if err != nil {
			return nil, err
		}
		for idx := int64(0); idx <= last; idx++ {
			signal, err := a.registry.ReadFeedback(ctx, agentID, client, idx)
			if err != nil {
				return nil, err
			}
			signals = append(signals, signal)
		}
	}
	return signals, nil
}

// aggregate is the pure WTS computation: filter self-reviews and revoked
// signals, clamp each normalised value to [0,100], apply recency decay by
// index band, weight verified submitters 1.5x, take the weighted mean.
func aggregate(signals []FeedbackSignal, ownerAddress string, verified VerifiedSubmitters, minSample int) ReputationScore {
	ownerLower := strings.ToLower(ownerAddress)

	var active []FeedbackSignal
	for _, s := range signals {
		if s.IsRevoked {
			continue
		}
		if ownerAddress != "" && strings.ToLower(s.SubmitterOwner) == ownerLower {
			continue
		}
		active = append(active, s)
	}

	breakdown := map[string]interface{}{
		"total_feedback_count": len(signals),
		"active_feedback_count": len(active),
	}

	flags := []string{}
	if hasFraudTag(signals) {
		flags = append(flags, "fraud")
	}

	if len(active) == 0 {
		flags = append(flags, "new_agent", "no_feedback")
		return ReputationScore{WTS: 0, SampleSize: 0, NewAgent: true, Flags: flags, Breakdown: breakdown}
	}

	sort.Slice(active, func(i, j int) bool { return active[i].FeedbackIndex < active[j].FeedbackIndex })
	maxIndex := active[len(active)-1].FeedbackIndex

	var weightedSum, weightTotal float64
	for _, s := range active {
		normalized := clampScore(float64(s.Value) / math.Pow10(int(s.ValueDecimals)))
		weight := recencyWeight(s.FeedbackIndex, maxIndex)
		if verified.IsVerified(s.ClientAddress) {
			weight *= 1.5
		}
		weightedSum += normalized * weight
		weightTotal += weight
	}

	wts := 0
	if weightTotal > 0 {
		wts = int(math.Round(weightedSum / weightTotal))
	}
	if wts < 0 {
		wts = 0
	}
	if wts > 100 {
		wts = 100
	}

	newAgent := len(active) < minSample
	if newAgent {
		flags = append(flags, "new_agent")
	}
	if wts < 30 && !hasFraudTag(signals) {
		flags = append(flags, "low_wts")
	}

	breakdown["max_feedback_index"] = maxIndex
	breakdown["weight_total"] = weightTotal

	return ReputationScore{
		WTS:        wts,
		SampleSize: len(active),
		NewAgent:   newAgent,
		Flags:      flags,
		Breakdown:  breakdown,
	}
}

func hasFraudTag(signals []FeedbackSignal) bool {
	for _, s := range signals {
		if s.IsRevoked {
			continue
		}
		if fraudTags[strings.ToLower(s.Tag1)] || fraudTags[strings.ToLower(s.Tag2)] {
			return true
		}
	}
	return false
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// recencyWeight implements decay-by-index-band: the top third of feedback
// indices (by recency, not wall-clock time — the registry only exposes
// monotonic indices) gets full weight, the middle third half weight, the
// bottom third a fifth weight.
func recencyWeight(index, maxIndex int64) float64 {
	if maxIndex <= 0 {
		return 1.0
	}
	position := float64(index) / float64(maxIndex)
	switch {
	case position >= 2.0/3.0:
		return 1.0
	case position >= 1.0/3.0:
		return 0.5
	default:
		return 0.2
	}
}
