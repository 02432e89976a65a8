package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ShapeVersion names a historical storage layout of progress data.
type ShapeVersion int

const (
	// ShapeLegacyBlob is the original single JSON document per student:
	// {"assignments": {"week-01-quiz": {"score": 80, "completed": true, ...}}}.
	ShapeLegacyBlob ShapeVersion = iota + 1
	// ShapeLegacySubmission is one JSON document per (student, assignment) written by the
	// first submission handlers.
	ShapeLegacySubmission
	// ShapeFieldHash is the current layout: one hash per student with "<assignmentId>:<field>" keys.
	ShapeFieldHash
)

// ProgressShape is one raw piece of progress data in any of the known layouts.
type ProgressShape struct {
	Version      ShapeVersion
	AssignmentID string
	Blob         []byte
	Fields       map[string]string
}

type legacyEntry struct {
	Score         *float64        `json:"score"`
	OriginalScore *float64        `json:"originalScore"`
	BestScore     *float64        `json:"bestScore"`
	Attempts      *int            `json:"attempts"`
	Passed        *bool           `json:"passed"`
	Completed     *bool           `json:"completed"`
	Status        string          `json:"status"`
	IsLate        *bool           `json:"isLate"`
	DaysLate      *int            `json:"daysLate"`
	Penalty       *float64        `json:"penalty"`
	Feedback      string          `json:"feedback"`
	SubmittedAt   json.RawMessage `json:"submittedAt"`
	Timestamp     json.RawMessage `json:"timestamp"`
}

type legacyBlob struct {
	Assignments map[string]legacyEntry `json:"assignments"`
}

// NormalizeProgress folds every shape into one canonical record per assignment. Shapes
// are applied oldest layout first, so a field present in the current hash always wins over
// the same field from a legacy document. Malformed legacy documents are skipped.
func NormalizeProgress(shapes []ProgressShape) map[string]ProgressRecord {
	records := make(map[string]ProgressRecord)

	for _, version := range []ShapeVersion{ShapeLegacyBlob, ShapeLegacySubmission, ShapeFieldHash} {
		for _, shape := range shapes {
			if shape.Version != version {
				continue
			}
			switch shape.Version {
			case ShapeLegacyBlob:
				var blob legacyBlob
				if err := json.Unmarshal(shape.Blob, &blob); err != nil {
					continue
				}
				for id, entry := range blob.Assignments {
					mergeRecord(records, entry.toRecord(id))
				}
			case ShapeLegacySubmission:
				if strings.TrimSpace(shape.AssignmentID) == "" {
					continue
				}
				var entry legacyEntry
				if err := json.Unmarshal(shape.Blob, &entry); err != nil {
					continue
				}
				mergeRecord(records, entry.toRecord(shape.AssignmentID))
			case ShapeFieldHash:
				for id, fields := range SplitFieldHash(shape.Fields) {
					mergeRecord(records, RecordFromFields(id, fields))
				}
			}
		}
	}

	return records
}

// SplitFieldHash groups "<assignmentId>:<field>" keys by assignment. Keys without a
// separator are ignored.
func SplitFieldHash(hash map[string]string) map[string]map[string]string {
	grouped := make(map[string]map[string]string)
	for key, value := range hash {
		idx := strings.LastIndex(key, ":")
		if idx <= 0 || idx == len(key)-1 {
			continue
		}
		id, field := key[:idx], key[idx+1:]
		if grouped[id] == nil {
			grouped[id] = make(map[string]string)
		}
		grouped[id][field] = value
	}
	return grouped
}

func (e legacyEntry) toRecord(id string) ProgressRecord {
	record := ProgressRecord{
		AssignmentID:  id,
		Score:         e.Score,
		OriginalScore: e.OriginalScore,
		BestScore:     e.BestScore,
		Attempts:      e.Attempts,
		Passed:        e.Passed,
		IsLate:        e.IsLate,
		DaysLate:      e.DaysLate,
		Penalty:       e.Penalty,
		Feedback:      e.Feedback,
		Status:        ParseStatus(e.Status),
		SubmittedAt:   legacyTime(e.SubmittedAt),
		Timestamp:     legacyTime(e.Timestamp),
	}
	if record.Status == "" && e.Completed != nil && *e.Completed {
		record.Status = StatusCompleted
	}
	if record.Score == nil && record.BestScore != nil {
		record.Score = record.BestScore
	}
	return record
}

// legacyTime accepts RFC3339 strings or epoch milliseconds.
func legacyTime(raw json.RawMessage) *time.Time {
	if len(raw) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return parseTime(text)
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}

func mergeRecord(records map[string]ProgressRecord, src ProgressRecord) {
	dst, ok := records[src.AssignmentID]
	if !ok {
		records[src.AssignmentID] = src
		return
	}

	if src.Score != nil {
		dst.Score = src.Score
	}
	if src.OriginalScore != nil {
		dst.OriginalScore = src.OriginalScore
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.Attempts != nil {
		dst.Attempts = src.Attempts
	}
	if src.BestScore != nil {
		dst.BestScore = src.BestScore
	}
	if src.LastScore != nil {
		dst.LastScore = src.LastScore
	}
	if src.Passed != nil {
		dst.Passed = src.Passed
	}
	if src.IsLate != nil {
		dst.IsLate = src.IsLate
	}
	if src.DaysLate != nil {
		dst.DaysLate = src.DaysLate
	}
	if src.Penalty != nil {
		dst.Penalty = src.Penalty
	}
	if src.IsOverride {
		dst.IsOverride = true
	}
	if src.OverrideReason != "" {
		dst.OverrideReason = src.OverrideReason
	}
	if src.OverrideBy != "" {
		dst.OverrideBy = src.OverrideBy
	}
	if src.OverrideAt != nil {
		dst.OverrideAt = src.OverrideAt
	}
	if src.PreviousScore != nil {
		dst.PreviousScore = src.PreviousScore
	}
	if src.Unlocked {
		dst.Unlocked = true
	}
	if src.SubmittedAt != nil {
		dst.SubmittedAt = src.SubmittedAt
	}
	if src.GradedAt != nil {
		dst.GradedAt = src.GradedAt
	}
	if src.Timestamp != nil {
		dst.Timestamp = src.Timestamp
	}
	if src.Feedback != "" {
		dst.Feedback = src.Feedback
	}
	if src.SavedCode != "" {
		dst.SavedCode = src.SavedCode
	}
	if src.GradingError != "" {
		dst.GradingError = src.GradingError
	}

	records[src.AssignmentID] = dst
}

// StripLegacyAssignment removes one assignment from a legacy blob document. It reports
// false, with the input untouched, when the document is malformed or has no such entry.
func StripLegacyAssignment(blob []byte, assignmentID string) ([]byte, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(blob, &doc); err != nil {
		return blob, false
	}
	var assignments map[string]json.RawMessage
	if err := json.Unmarshal(doc["assignments"], &assignments); err != nil {
		return blob, false
	}
	if _, ok := assignments[assignmentID]; !ok {
		return blob, false
	}
	delete(assignments, assignmentID)
	encoded, err := json.Marshal(assignments)
	if err != nil {
		return blob, false
	}
	doc["assignments"] = encoded
	out, err := json.Marshal(doc)
	if err != nil {
		return blob, false
	}
	return out, true
}
