package ai

import (
	"context"
	"errors"
)

// ErrGraderUnavailable is returned when no grading model is configured.
var ErrGraderUnavailable = errors.New("ai grader unavailable")

// GradingInput carries the artefacts needed to grade one written or coded submission.
type GradingInput struct {
	AssignmentID string
	Kind         string
	Rubric       string
	Language     string
	Submission   string
}

// GradingResult is the structured grade returned by a model.
type GradingResult struct {
	Score    float64            `json:"score"`
	Feedback string             `json:"feedback"`
	Rubric   map[string]float64 `json:"rubric,omitempty"`
}

// Grader describes an AI model capable of grading course submissions on a 0-100 scale.
type Grader interface {
	Grade(ctx context.Context, input GradingInput) (GradingResult, error)
}

// UnavailableGrader always fails; used when no model is configured.
type UnavailableGrader struct{}

// Grade implements Grader.
func (UnavailableGrader) Grade(context.Context, GradingInput) (GradingResult, error) {
	return GradingResult{}, ErrGraderUnavailable
}
