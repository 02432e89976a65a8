package dto

import (
	"math"
	"time"

	"github.com/noah-isme/csharp-course-api/internal/grading"
)

// GradedWorkRequest submits a lab, homework or final. RawScore is set when the work was
// scored outside the platform; otherwise Content is graded by the AI grader.
type GradedWorkRequest struct {
	AssignmentID string   `json:"assignment_id" validate:"required,max=64"`
	RawScore     *float64 `json:"raw_score" validate:"omitempty,gte=0,lte=100"`
	Content      string   `json:"content" validate:"max=200000"`
	Language     string   `json:"language" validate:"omitempty,max=32"`
}

// GradedWorkResponse is the outcome of a graded work submission.
type GradedWorkResponse struct {
	AssignmentID   string             `json:"assignment_id"`
	GradingStatus  string             `json:"grading_status"`
	FinalScore     *float64           `json:"final_score"`
	OriginalScore  *float64           `json:"original_score"`
	IsLate         bool               `json:"is_late"`
	DaysLate       int                `json:"days_late"`
	PenaltyPercent float64            `json:"penalty_percent"`
	IsZero         bool               `json:"is_zero"`
	Feedback       string             `json:"feedback,omitempty"`
	Rubric         map[string]float64 `json:"rubric,omitempty"`
	GradingError   string             `json:"grading_error,omitempty"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

// NewGradedWorkResponse converts an applied late penalty into a response.
func NewGradedWorkResponse(assignmentID string, penalty grading.LatePenalty, submittedAt time.Time) GradedWorkResponse {
	final := Round2(penalty.FinalScore)
	original := Round2(penalty.OriginalScore)
	return GradedWorkResponse{
		AssignmentID:   assignmentID,
		FinalScore:     &final,
		OriginalScore:  &original,
		IsLate:         penalty.IsLate,
		DaysLate:       penalty.DaysLate,
		PenaltyPercent: penalty.PenaltyPercent,
		IsZero:         penalty.IsZero,
		SubmittedAt:    submittedAt,
	}
}

// Round2 rounds a display value to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round2Ptr rounds an optional display value to two decimals.
func Round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	rounded := Round2(*v)
	return &rounded
}
