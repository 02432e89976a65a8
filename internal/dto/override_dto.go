package dto

import (
	"time"

	"github.com/noah-isme/csharp-course-api/internal/models"
)

// OverrideScoreRequest replaces a stored score.
type OverrideScoreRequest struct {
	UserID       string   `json:"user_id" validate:"required,max=128"`
	AssignmentID string   `json:"assignment_id" validate:"required,max=64"`
	Score        *float64 `json:"score" validate:"required,gte=0,lte=100"`
	Reason       string   `json:"reason" validate:"required,min=3,max=500"`
}

// OverrideTargetRequest names the record an override action applies to.
type OverrideTargetRequest struct {
	UserID       string `json:"user_id" validate:"required,max=128"`
	AssignmentID string `json:"assignment_id" validate:"required,max=64"`
	Reason       string `json:"reason" validate:"omitempty,max=500"`
}

// AuditQuery pages the audit trail.
type AuditQuery struct {
	Limit int `query:"limit" validate:"omitempty,gte=1,lte=1000"`
}

// AuditEntryResponse is one override audit entry.
type AuditEntryResponse struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	UserID        string    `json:"user_id"`
	AssignmentID  string    `json:"assignment_id"`
	PreviousScore *float64  `json:"previous_score"`
	NewScore      *float64  `json:"new_score"`
	Reason        string    `json:"reason,omitempty"`
	Instructor    string    `json:"instructor"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewAuditEntryResponse converts an audit entry.
func NewAuditEntryResponse(entry models.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:            entry.ID,
		Action:        entry.Action,
		UserID:        entry.UserID,
		AssignmentID:  entry.AssignmentID,
		PreviousScore: Round2Ptr(entry.PreviousScore),
		NewScore:      Round2Ptr(entry.NewScore),
		Reason:        entry.Reason,
		Instructor:    entry.Instructor,
		Timestamp:     entry.Timestamp,
	}
}

// NewAuditEntryResponseSlice converts audit entries.
func NewAuditEntryResponseSlice(entries []models.AuditEntry) []AuditEntryResponse {
	responses := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, NewAuditEntryResponse(entry))
	}
	return responses
}

// ProgressRecordResponse is the stored record after an override.
type ProgressRecordResponse struct {
	AssignmentID   string     `json:"assignment_id"`
	Score          *float64   `json:"score"`
	OriginalScore  *float64   `json:"original_score,omitempty"`
	Status         string     `json:"status,omitempty"`
	Attempts       int        `json:"attempts"`
	BestScore      *float64   `json:"best_score,omitempty"`
	IsLate         bool       `json:"is_late"`
	DaysLate       *int       `json:"days_late,omitempty"`
	Penalty        *float64   `json:"penalty,omitempty"`
	IsOverride     bool       `json:"is_override"`
	OverrideReason string     `json:"override_reason,omitempty"`
	OverrideBy     string     `json:"override_by,omitempty"`
	OverrideAt     *time.Time `json:"override_at,omitempty"`
	PreviousScore  *float64   `json:"previous_score,omitempty"`
	Unlocked       bool       `json:"unlocked"`
}

// NewProgressRecordResponse converts a canonical record.
func NewProgressRecordResponse(record models.ProgressRecord) ProgressRecordResponse {
	return ProgressRecordResponse{
		AssignmentID:   record.AssignmentID,
		Score:          Round2Ptr(record.Score),
		OriginalScore:  Round2Ptr(record.OriginalScore),
		Status:         string(record.Status),
		Attempts:       record.AttemptCount(),
		BestScore:      Round2Ptr(record.BestScore),
		IsLate:         record.Late(),
		DaysLate:       record.DaysLate,
		Penalty:        record.Penalty,
		IsOverride:     record.IsOverride,
		OverrideReason: record.OverrideReason,
		OverrideBy:     record.OverrideBy,
		OverrideAt:     record.OverrideAt,
		PreviousScore:  Round2Ptr(record.PreviousScore),
		Unlocked:       record.Unlocked,
	}
}

// OverrideResponse reports an applied override.
type OverrideResponse struct {
	Audit  AuditEntryResponse     `json:"audit"`
	Record ProgressRecordResponse `json:"record"`
}
