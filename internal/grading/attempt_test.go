package grading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAttemptPolicyTwoAttemptsThenRejected(t *testing.T) {
	policy := NewAttemptPolicy(0)
	at := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	state := AttemptState{}

	first := policy.Evaluate(state, AttemptSubmission{Score: 60, Passed: false, At: at}, false, false)
	require.True(t, first.Accepted)
	require.Equal(t, 1, first.Attempts)
	require.Equal(t, 60.0, first.BestScore)
	require.Equal(t, 1, first.AttemptsRemaining)

	state = AttemptState{Attempts: first.Attempts, BestScore: first.BestScore}
	second := policy.Evaluate(state, AttemptSubmission{Score: 85, Passed: true, At: at}, false, false)
	require.True(t, second.Accepted)
	require.Equal(t, 2, second.Attempts)
	require.Equal(t, 85.0, second.BestScore)
	require.True(t, second.Passed)
	require.Equal(t, 0, second.AttemptsRemaining)

	state = AttemptState{Attempts: second.Attempts, BestScore: second.BestScore}
	third := policy.Evaluate(state, AttemptSubmission{Score: 95, Passed: true, At: at}, false, false)
	require.False(t, third.Accepted)
	require.Equal(t, RejectMaxAttempts, third.Reason)
	require.Equal(t, 2, third.Attempts)
	require.Equal(t, 85.0, third.BestScore)
}

func TestAttemptPolicyPerfectScoreLocksForever(t *testing.T) {
	policy := NewAttemptPolicy(2)
	state := AttemptState{Attempts: 1, BestScore: 100}

	for i := 0; i < 3; i++ {
		decision := policy.Evaluate(state, AttemptSubmission{Score: 50, Unlimited: true}, false, true)
		require.False(t, decision.Accepted)
		require.Equal(t, RejectAlreadyPerfect, decision.Reason)
		require.Equal(t, 1, decision.Attempts)
		require.Equal(t, 100.0, decision.BestScore)
	}
}

func TestAttemptPolicyExpiryUnlessUnlocked(t *testing.T) {
	policy := NewAttemptPolicy(2)

	expired := policy.Evaluate(AttemptState{}, AttemptSubmission{Score: 70}, true, false)
	require.False(t, expired.Accepted)
	require.Equal(t, RejectExpired, expired.Reason)

	unlocked := policy.Evaluate(AttemptState{}, AttemptSubmission{Score: 70}, true, true)
	require.True(t, unlocked.Accepted)
}

func TestAttemptPolicyRuleOrder(t *testing.T) {
	policy := NewAttemptPolicy(2)

	decision := policy.Evaluate(AttemptState{Attempts: 5, BestScore: 100}, AttemptSubmission{}, true, false)
	require.Equal(t, RejectAlreadyPerfect, decision.Reason)

	decision = policy.Evaluate(AttemptState{Attempts: 5, BestScore: 40}, AttemptSubmission{}, true, false)
	require.Equal(t, RejectExpired, decision.Reason)
}

func TestAttemptPolicyUnlimitedAndCustomLimit(t *testing.T) {
	policy := NewAttemptPolicy(2)

	unlimited := policy.Evaluate(AttemptState{Attempts: 40, BestScore: 10}, AttemptSubmission{Score: 20, Unlimited: true}, false, false)
	require.True(t, unlimited.Accepted)
	require.Equal(t, 41, unlimited.Attempts)
	require.Equal(t, -1, unlimited.AttemptsRemaining)

	custom := policy.Evaluate(AttemptState{Attempts: 2, BestScore: 10}, AttemptSubmission{Score: 20, MaxAttempts: 3}, false, false)
	require.True(t, custom.Accepted)
	require.Equal(t, 0, custom.AttemptsRemaining)
}

func TestAttemptPolicyBestScoreIsRunningMax(t *testing.T) {
	policy := NewAttemptPolicy(0)
	scores := []float64{40, 75, 60, 90, 10}

	state := AttemptState{}
	var accepted int
	var best float64
	for _, score := range scores {
		decision := policy.Evaluate(state, AttemptSubmission{Score: score, Unlimited: true}, false, false)
		require.True(t, decision.Accepted)
		accepted++
		if score > best {
			best = score
		}
		require.Equal(t, accepted, decision.Attempts)
		require.Equal(t, best, decision.BestScore)
		require.Equal(t, score, decision.LastScore)
		state = AttemptState{Attempts: decision.Attempts, BestScore: decision.BestScore}
	}
}
