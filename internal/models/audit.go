package models

import "time"

// Override actions recorded in the audit trail.
const (
	OverrideActionScore      = "override_score"
	OverrideActionUnlockQuiz = "unlock_quiz"
	OverrideActionWaive      = "waive_penalty"
	OverrideActionReset      = "reset_attempt"
	OverrideActionDropLowest = "drop_lowest_attempt"
)

// AuditEntry is one immutable instructor override record.
type AuditEntry struct {
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
