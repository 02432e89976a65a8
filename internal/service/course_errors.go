package service

import "errors"

var (
	// ErrUnknownAssignment indicates the identifier is not a week-NN-kind assignment.
	ErrUnknownAssignment = errors.New("unknown assignment")
	// ErrNotGradedWork indicates the assignment is not a lab, homework or final.
	ErrNotGradedWork = errors.New("assignment does not accept graded work")
	// ErrNotQuiz indicates the assignment is not a quiz.
	ErrNotQuiz = errors.New("assignment is not a quiz")
	// ErrSubmissionContentRequired indicates neither content nor a raw score was supplied.
	ErrSubmissionContentRequired = errors.New("submission content or raw score is required")
	// ErrUnknownSection indicates a participation section outside the course weeks.
	ErrUnknownSection = errors.New("section does not belong to a course week")
	// ErrCodeNotText indicates the editor payload is not plain text.
	ErrCodeNotText = errors.New("code payload must be plain text")
	// ErrNoOriginalScore indicates there is no pre-penalty score to restore.
	ErrNoOriginalScore = errors.New("record has no original score to restore")
	// ErrUnknownStudent indicates an empty or unknown student identifier.
	ErrUnknownStudent = errors.New("unknown student")
	// ErrNotInstructor indicates the caller is not on the instructor allow-list.
	ErrNotInstructor = errors.New("instructor access required")
	// ErrNoAttempts indicates the quiz has no recorded attempts.
	ErrNoAttempts = errors.New("quiz has no recorded attempts")
)
