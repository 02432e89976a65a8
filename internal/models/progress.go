package models

import (
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a progress record.
type Status string

const (
	StatusNotStarted   Status = "not_started"
	StatusInProgress   Status = "in_progress"
	StatusAttempted    Status = "attempted"
	StatusParticipated Status = "participated"
	StatusCompleted    Status = "completed"
	StatusSubmitted    Status = "submitted"
	StatusUngraded     Status = "ungraded"
)

var knownStatuses = map[Status]struct{}{
	StatusNotStarted:   {},
	StatusInProgress:   {},
	StatusAttempted:    {},
	StatusParticipated: {},
	StatusCompleted:    {},
	StatusSubmitted:    {},
	StatusUngraded:     {},
}

// ParseStatus maps a stored value to a known status, or "" when unrecognised.
func ParseStatus(value string) Status {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := knownStatuses[status]; ok {
		return status
	}
	return ""
}

// Stored field names inside the per-student progress hash. Each is addressed as
// "<assignmentId>:<field>".
const (
	FieldScore          = "score"
	FieldOriginalScore  = "originalScore"
	FieldStatus         = "status"
	FieldAttempts       = "attempts"
	FieldBestScore      = "bestScore"
	FieldLastScore      = "lastScore"
	FieldPassed         = "passed"
	FieldIsLate         = "isLate"
	FieldDaysLate       = "daysLate"
	FieldPenalty        = "penalty"
	FieldIsOverride     = "isOverride"
	FieldOverrideReason = "overrideReason"
	FieldOverrideBy     = "overrideBy"
	FieldOverrideAt     = "overrideAt"
	FieldPreviousScore  = "previousScore"
	FieldUnlocked       = "unlocked"
	FieldSubmittedAt    = "submittedAt"
	FieldGradedAt       = "gradedAt"
	FieldTimestamp      = "timestamp"
	FieldFeedback       = "feedback"
	FieldSavedCode      = "savedCode"
	FieldGradingError   = "gradingError"
)

// ProgressRecord is the canonical view of one student's record for one assignment.
// Every field is optional: readers treat absence as "not yet submitted".
type ProgressRecord struct {
	AssignmentID   string     `json:"assignment_id"`
	Score          *float64   `json:"score,omitempty"`
	OriginalScore  *float64   `json:"original_score,omitempty"`
	Status         Status     `json:"status,omitempty"`
	Attempts       *int       `json:"attempts,omitempty"`
	BestScore      *float64   `json:"best_score,omitempty"`
	LastScore      *float64   `json:"last_score,omitempty"`
	Passed         *bool      `json:"passed,omitempty"`
	IsLate         *bool      `json:"is_late,omitempty"`
	DaysLate       *int       `json:"days_late,omitempty"`
	Penalty        *float64   `json:"penalty,omitempty"`
	IsOverride     bool       `json:"is_override,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`
	OverrideBy     string     `json:"override_by,omitempty"`
	OverrideAt     *time.Time `json:"override_at,omitempty"`
	PreviousScore  *float64   `json:"previous_score,omitempty"`
	Unlocked       bool       `json:"unlocked,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	GradedAt       *time.Time `json:"graded_at,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	Feedback       string     `json:"feedback,omitempty"`
	SavedCode      string     `json:"-"`
	GradingError   string     `json:"grading_error,omitempty"`
}

// HasScore reports whether a score has been recorded.
func (r ProgressRecord) HasScore() bool {
	return r.Score != nil
}

// AttemptCount returns the recorded attempt count, zero when absent.
func (r ProgressRecord) AttemptCount() int {
	if r.Attempts == nil {
		return 0
	}
	return *r.Attempts
}

// Best returns the best quiz score, falling back to score, zero when absent.
func (r ProgressRecord) Best() float64 {
	if r.BestScore != nil {
		return *r.BestScore
	}
	if r.Score != nil {
		return *r.Score
	}
	return 0
}

// Late reports whether the record is flagged late.
func (r ProgressRecord) Late() bool {
	return r.IsLate != nil && *r.IsLate
}

// RecordFromFields decodes the stored field map of a single assignment. Unparseable
// values are treated as absent.
func RecordFromFields(assignmentID string, fields map[string]string) ProgressRecord {
	record := ProgressRecord{AssignmentID: assignmentID}
	for name, value := range fields {
		applyField(&record, name, value)
	}
	return record
}

func applyField(record *ProgressRecord, name, value string) {
	switch name {
	case FieldScore:
		record.Score = parseFloat(value)
	case FieldOriginalScore:
		record.OriginalScore = parseFloat(value)
	case FieldStatus:
		record.Status = ParseStatus(value)
	case FieldAttempts:
		record.Attempts = parseInt(value)
	case FieldBestScore:
		record.BestScore = parseFloat(value)
	case FieldLastScore:
		record.LastScore = parseFloat(value)
	case FieldPassed:
		record.Passed = parseBool(value)
	case FieldIsLate:
		record.IsLate = parseBool(value)
	case FieldDaysLate:
		record.DaysLate = parseInt(value)
	case FieldPenalty:
		record.Penalty = parseFloat(value)
	case FieldIsOverride:
		if b := parseBool(value); b != nil {
			record.IsOverride = *b
		}
	case FieldOverrideReason:
		record.OverrideReason = value
	case FieldOverrideBy:
		record.OverrideBy = value
	case FieldOverrideAt:
		record.OverrideAt = parseTime(value)
	case FieldPreviousScore:
		record.PreviousScore = parseFloat(value)
	case FieldUnlocked:
		if b := parseBool(value); b != nil {
			record.Unlocked = *b
		}
	case FieldSubmittedAt:
		record.SubmittedAt = parseTime(value)
	case FieldGradedAt:
		record.GradedAt = parseTime(value)
	case FieldTimestamp:
		record.Timestamp = parseTime(value)
	case FieldFeedback:
		record.Feedback = value
	case FieldSavedCode:
		record.SavedCode = value
	case FieldGradingError:
		record.GradingError = value
	}
}

// FormatFloat renders a score for storage.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatTime renders an instant for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatBool renders a flag for storage.
func FormatBool(v bool) string {
	return strconv.FormatBool(v)
}

func parseFloat(value string) *float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseInt(value string) *int {
	trimmed := strings.TrimSpace(value)
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		f, ferr := strconv.ParseFloat(trimmed, 64)
		if ferr != nil {
			return nil
		}
		parsed = int(f)
	}
	return &parsed
}

func parseBool(value string) *bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		v := true
		return &v
	case "false", "0", "no":
		v := false
		return &v
	}
	return nil
}

func parseTime(value string) *time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return &t
	}
	if ms, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Fields encodes every present field for storage.
func (r ProgressRecord) Fields() map[string]string {
	fields := make(map[string]string)
	putFloat := func(name string, v *float64) {
		if v != nil {
			fields[name] = FormatFloat(*v)
		}
	}
	putInt := func(name string, v *int) {
		if v != nil {
			fields[name] = strconv.Itoa(*v)
		}
	}
	putBool := func(name string, v *bool) {
		if v != nil {
			fields[name] = FormatBool(*v)
		}
	}
	putTime := func(name string, v *time.Time) {
		if v != nil {
			fields[name] = FormatTime(*v)
		}
	}
	putString := func(name, v string) {
		if v != "" {
			fields[name] = v
		}
	}

	putFloat(FieldScore, r.Score)
	putFloat(FieldOriginalScore, r.OriginalScore)
	putString(FieldStatus, string(r.Status))
	putInt(FieldAttempts, r.Attempts)
	putFloat(FieldBestScore, r.BestScore)
	putFloat(FieldLastScore, r.LastScore)
	putBool(FieldPassed, r.Passed)
	putBool(FieldIsLate, r.IsLate)
	putInt(FieldDaysLate, r.DaysLate)
	putFloat(FieldPenalty, r.Penalty)
	if r.IsOverride {
		fields[FieldIsOverride] = FormatBool(true)
	}
	putString(FieldOverrideReason, r.OverrideReason)
	putString(FieldOverrideBy, r.OverrideBy)
	putTime(FieldOverrideAt, r.OverrideAt)
	putFloat(FieldPreviousScore, r.PreviousScore)
	if r.Unlocked {
		fields[FieldUnlocked] = FormatBool(true)
	}
	putTime(FieldSubmittedAt, r.SubmittedAt)
	putTime(FieldGradedAt, r.GradedAt)
	putTime(FieldTimestamp, r.Timestamp)
	putString(FieldFeedback, r.Feedback)
	putString(FieldSavedCode, r.SavedCode)
	putString(FieldGradingError, r.GradingError)
	return fields
}
