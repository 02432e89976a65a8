package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionArchive keeps the full submitted artefact of graded work alongside the grading outcome.
type SubmissionArchive struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	UserID        string            `gorm:"size:128;not null;index:idx_archive_user_assignment" json:"user_id"`
	AssignmentID  string            `gorm:"size:64;not null;index:idx_archive_user_assignment" json:"assignment_id"`
	Content       string            `gorm:"type:text" json:"content"`
	RawScore      *float64          `json:"raw_score"`
	FinalScore    *float64          `json:"final_score"`
	DaysLate      int               `json:"days_late"`
	GradingStatus string            `gorm:"size:32;not null" json:"grading_status"`
	Feedback      string            `gorm:"type:text" json:"feedback"`
	Rubric        datatypes.JSONMap `gorm:"type:jsonb" json:"rubric"`
	SubmittedAt   time.Time         `gorm:"not null" json:"submitted_at"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Grading outcomes stored on the archive row.
const (
	GradingStatusGraded   = "graded"
	GradingStatusUngraded = "ungraded"
	GradingStatusProvided = "provided"
)
