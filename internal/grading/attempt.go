package grading

import "time"

// DefaultMaxAttempts is the attempt limit when the caller does not supply one.
const DefaultMaxAttempts = 2

// RejectReason explains why an attempt was refused.
type RejectReason string

const (
	RejectAlreadyPerfect RejectReason = "already_perfect"
	RejectExpired        RejectReason = "expired"
	RejectMaxAttempts    RejectReason = "max_attempts_reached"
)

// AttemptState is the stored quiz state read before a new attempt.
type AttemptState struct {
	Attempts  int
	BestScore float64
}

// AttemptSubmission is a new quiz attempt.
type AttemptSubmission struct {
	Score       float64
	Passed      bool
	MaxAttempts int
	Unlimited   bool
	At          time.Time
}

// AttemptDecision is the outcome of the attempt policy. On rejection the state fields
// carry the unchanged stored state.
type AttemptDecision struct {
	Accepted          bool
	Reason            RejectReason
	Attempts          int
	BestScore         float64
	LastScore         float64
	Passed            bool
	Unlimited         bool
	AttemptsRemaining int
	At                time.Time
}

// AttemptPolicy governs quiz attempts.
type AttemptPolicy struct {
	MaxAttempts int
}

// NewAttemptPolicy builds a policy with the given default limit; non-positive values use DefaultMaxAttempts.
func NewAttemptPolicy(maxAttempts int) AttemptPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return AttemptPolicy{MaxAttempts: maxAttempts}
}

func (p AttemptPolicy) limit(sub AttemptSubmission) int {
	if sub.MaxAttempts > 0 {
		return sub.MaxAttempts
	}
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Evaluate applies the rules in order: perfect lock, expiry unless unlocked, attempt limit.
func (p AttemptPolicy) Evaluate(state AttemptState, sub AttemptSubmission, pastDue, unlocked bool) AttemptDecision {
	limit := p.limit(sub)
	decision := AttemptDecision{
		Attempts:  state.Attempts,
		BestScore: state.BestScore,
		Unlimited: sub.Unlimited,
	}
	decision.AttemptsRemaining = remaining(limit, state.Attempts, sub.Unlimited)

	switch {
	case state.BestScore >= 100:
		decision.Reason = RejectAlreadyPerfect
		return decision
	case pastDue && !unlocked:
		decision.Reason = RejectExpired
		return decision
	case !sub.Unlimited && state.Attempts >= limit:
		decision.Reason = RejectMaxAttempts
		return decision
	}

	decision.Accepted = true
	decision.Attempts = state.Attempts + 1
	decision.BestScore = state.BestScore
	if sub.Score > decision.BestScore {
		decision.BestScore = sub.Score
	}
	decision.LastScore = sub.Score
	decision.Passed = sub.Passed
	decision.At = sub.At
	decision.AttemptsRemaining = remaining(limit, decision.Attempts, sub.Unlimited)
	return decision
}

func remaining(limit, used int, unlimited bool) int {
	if unlimited {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}
