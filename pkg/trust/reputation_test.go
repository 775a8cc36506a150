package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_EmptyFeedbackIsNewAgentNoFeedback(t *testing.T) {
	score := aggregate(nil, "0xowner", NoVerifiedSubmitters{}, 3)

	assert.Equal(t, 0, score.WTS)
	assert.Equal(t, 0, score.SampleSize)
	assert.True(t, score.NewAgent)
	assert.Contains(t, score.Flags, "new_agent")
	assert.Contains(t, score.Flags, "no_feedback")
}

func TestAggregate_FiltersSelfReviewsAndRevoked(t *testing.T) {
	signals := []FeedbackSignal{
		{ClientAddress: "0xclient1", SubmitterOwner: "0xOWNER", FeedbackIndex: 0, Value: 90, ValueDecimals: 0},
		{ClientAddress: "0xclient2", SubmitterOwner: "0xother", FeedbackIndex: 1, Value: 80, ValueDecimals: 0, IsRevoked: true},
		{ClientAddress: "0xclient3", SubmitterOwner: "0xother", FeedbackIndex: 2, Value: 70, ValueDecimals: 0},
	}

	score := aggregate(signals, "0xowner", NoVerifiedSubmitters{}, 3)

	assert.Equal(t, 1, score.SampleSize)
	assert.Equal(t, 3, score.Breakdown["total_feedback_count"])
}

func TestAggregate_ClampsOutOfRangeScores(t *testing.T) {
	signals := []FeedbackSignal{
		{ClientAddress: "0xc1", SubmitterOwner: "0xother", FeedbackIndex: 0, Value: 150, ValueDecimals: 0},
		{ClientAddress: "0xc2", SubmitterOwner: "0xother", FeedbackIndex: 1, Value: -50, ValueDecimals: 0},
		{ClientAddress: "0xc3", SubmitterOwner: "0xother", FeedbackIndex: 2, Value: 80, ValueDecimals: 0},
	}

	score := aggregate(signals, "", NoVerifiedSubmitters{}, 3)

	assert.GreaterOrEqual(t, score.WTS, 0)
	assert.LessOrEqual(t, score.WTS, 100)
}

func TestAggregate_FraudFlagFromTag(t *testing.T) {
	signals := []FeedbackSignal{
		{ClientAddress: "0xc1", SubmitterOwner: "0xother", FeedbackIndex: 0, Value: 90, ValueDecimals: 0, Tag1: "scam"},
		{ClientAddress: "0xc2", SubmitterOwner: "0xother", FeedbackIndex: 1, Value: 90, ValueDecimals: 0},
		{ClientAddress: "0xc3", SubmitterOwner: "0xother", FeedbackIndex: 2, Value: 90, ValueDecimals: 0},
	}

	score := aggregate(signals, "", NoVerifiedSubmitters{}, 3)

	assert.Contains(t, score.Flags, "fraud")
}

func TestAggregate_RecencyDecayWeightsRecentSignalsMore(t *testing.T) {
	// Ten signals at indices 0-9: indices 6-9, the top band
	// (index/max >= 2/3), score 100 and the rest score 0. The unweighted
	// mean is 40; with decay the weighted mean lands above 50.
	var signals []FeedbackSignal
	for i := int64(0); i < 10; i++ {
		value := int64(0)
		if i >= 6 {
			value = 100
		}
		signals = append(signals, FeedbackSignal{
			ClientAddress:  "0xc",
			SubmitterOwner: "0xother",
			FeedbackIndex:  i,
			Value:          value,
			ValueDecimals:  0,
		})
	}

	score := aggregate(signals, "", NoVerifiedSubmitters{}, 3)

	assert.Greater(t, score.WTS, 50)
}

func TestAggregate_LowWTSFlag(t *testing.T) {
	signals := []FeedbackSignal{
		{ClientAddress: "0xc1", SubmitterOwner: "0xother", FeedbackIndex: 0, Value: 10, ValueDecimals: 0},
		{ClientAddress: "0xc2", SubmitterOwner: "0xother", FeedbackIndex: 1, Value: 10, ValueDecimals: 0},
		{ClientAddress: "0xc3", SubmitterOwner: "0xother", FeedbackIndex: 2, Value: 10, ValueDecimals: 0},
	}

	score := aggregate(signals, "", NoVerifiedSubmitters{}, 3)

	assert.Contains(t, score.Flags, "low_wts")
	assert.NotContains(t, score.Flags, "new_agent")
}

type fakeVerified map[string]bool

func (f fakeVerified) IsVerified(addr string) bool { return f[addr] }

func TestAggregate_VerifiedSubmitterWeightsMore(t *testing.T) {
	signals := []FeedbackSignal{
		{ClientAddress: "0xverified", SubmitterOwner: "0xother", FeedbackIndex: 0, Value: 100, ValueDecimals: 0},
		{ClientAddress: "0xplain1", SubmitterOwner: "0xother", FeedbackIndex: 1, Value: 0, ValueDecimals: 0},
		{ClientAddress: "0xplain2", SubmitterOwner: "0xother", FeedbackIndex: 2, Value: 0, ValueDecimals: 0},
	}

	withoutVerification := aggregate(signals, "", NoVerifiedSubmitters{}, 3)
	withVerification := aggregate(signals, "", fakeVerified{"0xverified": true}, 3)

	assert.Greater(t, withVerification.WTS, withoutVerification.WTS)
}
