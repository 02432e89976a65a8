package dto

import (
	"time"

	"github.com/noah-isme/csharp-course-api/internal/grading"
	"github.com/noah-isme/csharp-course-api/internal/models"
)

// QuizAttemptRequest submits one scored quiz attempt.
type QuizAttemptRequest struct {
	Score             *float64 `json:"score" validate:"required,gte=0,lte=100"`
	Passed            bool     `json:"passed"`
	UnlimitedAttempts bool     `json:"unlimited_attempts"`
	MaxAttempts       int      `json:"max_attempts" validate:"omitempty,gte=1,lte=100"`
}

// QuizAttemptResponse reports the attempt decision together with the current state, so a
// rejected caller can explain why.
type QuizAttemptResponse struct {
	QuizID            string    `json:"quiz_id"`
	Accepted          bool      `json:"accepted"`
	Reason            string    `json:"reason,omitempty"`
	Attempt           int       `json:"attempt"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	Unlimited         bool      `json:"unlimited"`
	BestScore         float64   `json:"best_score"`
	LastScore         *float64  `json:"last_score,omitempty"`
	Passed            *bool     `json:"passed,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewQuizAttemptResponse converts an attempt decision into a response.
func NewQuizAttemptResponse(quizID string, decision grading.AttemptDecision) QuizAttemptResponse {
	response := QuizAttemptResponse{
		QuizID:            quizID,
		Accepted:          decision.Accepted,
		Reason:            string(decision.Reason),
		Attempt:           decision.Attempts,
		AttemptsRemaining: decision.AttemptsRemaining,
		Unlimited:         decision.Unlimited,
		BestScore:         Round2(decision.BestScore),
		Timestamp:         decision.At,
	}
	if decision.Accepted {
		last := Round2(decision.LastScore)
		passed := decision.Passed
		response.LastScore = &last
		response.Passed = &passed
	}
	return response
}

// AttemptHistoryItem is one accepted attempt, newest first in listings.
type AttemptHistoryItem struct {
	Attempt   int       `json:"attempt"`
	Score     float64   `json:"score"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
}

// AttemptHistoryResponse lists the attempts of one quiz.
type AttemptHistoryResponse struct {
	QuizID    string               `json:"quiz_id"`
	Attempts  int                  `json:"attempts"`
	BestScore *float64             `json:"best_score"`
	Unlocked  bool                 `json:"unlocked"`
	History   []AttemptHistoryItem `json:"history"`
}

// NewAttemptHistoryResponse converts a stored record and its history.
func NewAttemptHistoryResponse(quizID string, record models.ProgressRecord, entries []models.AttemptHistoryEntry) AttemptHistoryResponse {
	items := make([]AttemptHistoryItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, AttemptHistoryItem{
			Attempt:   entry.Attempt,
			Score:     Round2(entry.Score),
			Passed:    entry.Passed,
			Timestamp: entry.Timestamp,
		})
	}

	response := AttemptHistoryResponse{
		QuizID:   quizID,
		Attempts: record.AttemptCount(),
		Unlocked: record.Unlocked,
		History:  items,
	}
	if record.BestScore != nil || record.Score != nil {
		best := Round2(record.Best())
		response.BestScore = &best
	}
	return response
}

// ParticipationRequest records one engagement event for a lesson section.
type ParticipationRequest struct {
	SectionID string `json:"section_id" validate:"required,max=128"`
}

// ParticipationResponse echoes the event together with the derived weekly score.
type ParticipationResponse struct {
	SectionID string    `json:"section_id"`
	Week      int       `json:"week"`
	WeekScore float64   `json:"week_score"`
	Timestamp time.Time `json:"timestamp"`
}
