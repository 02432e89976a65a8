package models

import "time"

// AttemptHistoryEntry is one accepted quiz attempt.
type AttemptHistoryEntry struct {
	Attempt   int       `json:"attempt"`
	Score     float64   `json:"score"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
}

// ParticipationEvent records one engagement ping (checkpoint, try-it run) for a section.
type ParticipationEvent struct {
	SectionID string    `json:"section_id"`
	Week      int       `json:"week"`
	Timestamp time.Time `json:"timestamp"`
}
