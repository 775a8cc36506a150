package trust

import "strings"

// evaluatePolicy runs the ten ordered policy checks against a resolved
// identity and reputation score, first-fail wins. identityFound is false
// when no Identity Registry entry could be resolved for the recipient.
func evaluatePolicy(policy Policy, identityFound bool, identity Identity, reputation ReputationScore, recipient string, amountAtomic int64) (verdict Verdict, reason string) {
	recipientLower := strings.ToLower(recipient)

	// 1. Address blocklist.
	for _, blocked := range policy.AddressBlocklist {
		if strings.ToLower(blocked) == recipientLower {
			return VerdictBlocked, "recipient is on the address blocklist"
		}
	}

	// 2. Org whitelist short-circuits to APPROVED.
	for _, org := range policy.OrgWhitelist {
		if strings.EqualFold(org, identity.Owner) {
			return VerdictApproved, ""
		}
	}

	// 3. identity_required.
	if policy.IdentityRequired && !identityFound {
		return VerdictBlocked, "identity required but none registered for recipient"
	}

	// 4. fraud flag.
	if hasFlag(reputation.Flags, "fraud") {
		return policy.FraudTagAction, "reputation carries a fraud flag"
	}

	// 5. new agent.
	minSample := policy.MinSampleSize
	if minSample <= 0 {
		minSample = 3
	}
	if reputation.SampleSize < minSample && policy.NewAgentAction != VerdictApproved {
		return policy.NewAgentAction, "agent has fewer than the minimum reputation sample size"
	}

	// 6. min_feedback_count.
	if reputation.SampleSize < policy.MinFeedbackCount {
		return VerdictHeld, "feedback sample size below policy minimum"
	}

	// 7. min_wts.
	if reputation.WTS < policy.MinWTS {
		return VerdictBlocked, "weighted trust score below policy minimum"
	}

	// 8. high-value threshold.
	if policy.HighValueThreshold > 0 && amountAtomic >= policy.HighValueThreshold && reputation.WTS < policy.HighValueMinWTS {
		return VerdictHeld, "high-value payment requires a higher trust score"
	}

	// 9. required attestations.
	if missing := missingAttestations(policy.RequireAttestations, identity.SupportedTrust); missing != "" {
		return VerdictHeld, "missing required attestation: " + missing
	}

	// 10. otherwise approved.
	return VerdictApproved, ""
}

func hasFlag(flags []string, target string) bool {
	for _, f := range flags {
		if f == target {
			return true
		}
	}
	return false
}

func missingAttestations(required, supported []string) string {
	supportedSet := make(map[string]bool, len(supported))
	for _, s := range supported {
		supportedSet[s] = true
	}
	for _, r := range required {
		if !supportedSet[r] {
			return r
		}
	}
	return ""
}
