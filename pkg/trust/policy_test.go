package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluatePolicy_Blocklist(t *testing.T) {
	policy := DefaultPolicy()
	policy.AddressBlocklist = []string{"0xBAD"}

	verdict, reason := evaluatePolicy(policy, true, Identity{Owner: "0xGood"}, ReputationScore{WTS: 90, SampleSize: 10}, "0xbad", 100)

	assert.Equal(t, VerdictBlocked, verdict)
	assert.Contains(t, reason, "blocklist")
}

func TestEvaluatePolicy_WhitelistShortCircuits(t *testing.T) {
	policy := DefaultPolicy()
	policy.AddressBlocklist = []string{"0xSomeoneElse"}
	policy.OrgWhitelist = []string{"0xTrustedOrg"}
	policy.MinWTS = 99

	verdict, _ := evaluatePolicy(policy, true, Identity{Owner: "0xTrustedOrg"}, ReputationScore{WTS: 0, SampleSize: 0}, "0xrecipient", 100)

	assert.Equal(t, VerdictApproved, verdict)
}

func TestEvaluatePolicy_IdentityRequired(t *testing.T) {
	policy := DefaultPolicy()
	policy.IdentityRequired = true

	verdict, reason := evaluatePolicy(policy, false, Identity{}, ReputationScore{}, "0xrecipient", 100)

	assert.Equal(t, VerdictBlocked, verdict)
	assert.Contains(t, reason, "identity")
}

func TestEvaluatePolicy_FraudFlag(t *testing.T) {
	policy := DefaultPolicy()
	policy.FraudTagAction = VerdictBlocked

	verdict, _ := evaluatePolicy(policy, true, Identity{}, ReputationScore{WTS: 90, SampleSize: 10, Flags: []string{"fraud"}}, "0xrecipient", 100)

	assert.Equal(t, VerdictBlocked, verdict)
}

func TestEvaluatePolicy_NewAgentAction(t *testing.T) {
	policy := DefaultPolicy()
	policy.NewAgentAction = VerdictHeld
	policy.MinSampleSize = 3

	verdict, _ := evaluatePolicy(policy, true, Identity{}, ReputationScore{WTS: 50, SampleSize: 1}, "0xrecipient", 100)

	assert.Equal(t, VerdictHeld, verdict)
}

func TestEvaluatePolicy_MinFeedbackCountHolds(t *testing.T) {
	policy := DefaultPolicy()
	policy.NewAgentAction = VerdictApproved
	policy.MinFeedbackCount = 10

	verdict, _ := evaluatePolicy(policy, true, Identity{}, ReputationScore{WTS: 50, SampleSize: 5}, "0xrecipient", 100)

	assert.Equal(t, VerdictHeld, verdict)
}

func TestEvaluatePolicy_MinWTSBlocks(t *testing.T) {
	policy := DefaultPolicy()
	policy.NewAgentAction = VerdictApproved
	policy.MinWTS = 50

	verdict, _ := evaluatePolicy(policy, true, Identity{}, ReputationScore{WTS: 20, SampleSize: 10}, "0xrecipient", 100)

	assert.Equal(t, VerdictBlocked, verdict)
}

func TestEvaluatePolicy_HighValueHolds(t *testing.T) {
	policy := DefaultPolicy()
	policy.NewAgentAction = VerdictApproved
	policy.HighValueThreshold = 1_000_000
	policy.HighValueMinWTS = 80

	verdict, _ := evaluatePolicy(policy, true, Identity{}, ReputationScore{WTS: 60, SampleSize: 10}, "0xrecipient", 1_000_000)

	assert.Equal(t, VerdictHeld, verdict)
}

func TestEvaluatePolicy_HighValueAtThresholdTriggers(t *testing.T) {
	policy := DefaultPolicy()
	policy.NewAgentAction = VerdictApproved
	policy.HighValueThreshold = 1_000_000
	policy.HighValueMinWTS = 80

	// Exactly at the threshold must still trigger the check.
	verdict, _ := evaluatePolicy(policy, true, Identity{}, ReputationScore{WTS: 79, SampleSize: 10}, "0xrecipient", 1_000_000)

	assert.Equal(t, VerdictHeld, verdict)
}

func TestEvaluatePolicy_MissingAttestationHolds(t *testing.T) {
	policy := DefaultPolicy()
	policy.NewAgentAction = VerdictApproved
	policy.RequireAttestations = []string{"kyc"}

	verdict, reason := evaluatePolicy(policy, true, Identity{SupportedTrust: []string{"other"}}, ReputationScore{WTS: 90, SampleSize: 10}, "0xrecipient", 100)

	assert.Equal(t, VerdictHeld, verdict)
	assert.Contains(t, reason, "kyc")
}

func TestEvaluatePolicy_DefaultApproves(t *testing.T) {
	policy := DefaultPolicy()

	verdict, reason := evaluatePolicy(policy, true, Identity{}, ReputationScore{WTS: 80, SampleSize: 10}, "0xrecipient", 100)

	assert.Equal(t, VerdictApproved, verdict)
	assert.Empty(t, reason)
}
