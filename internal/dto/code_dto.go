package dto

import "github.com/noah-isme/csharp-course-api/pkg/docker"

// CodeSaveRequest stores the editor contents for an assignment.
type CodeSaveRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required,max=64"`
	Code         string `json:"code" validate:"required,max=100000"`
}

// CodeRunRequest saves the editor contents and runs them in the sandbox.
type CodeRunRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required,max=64"`
	Code         string `json:"code" validate:"required,max=100000"`
	Stdin        string `json:"stdin" validate:"max=10000"`
}

// CodeSaveResponse acknowledges a save.
type CodeSaveResponse struct {
	AssignmentID string `json:"assignment_id"`
	Saved        bool   `json:"saved"`
	Bytes        int    `json:"bytes"`
}

// CodeRunResponse is the sandbox outcome. Saved is true even when the run failed.
type CodeRunResponse struct {
	AssignmentID string              `json:"assignment_id"`
	Saved        bool                `json:"saved"`
	Ran          bool                `json:"ran"`
	Stdout       string              `json:"stdout"`
	Stderr       string              `json:"stderr"`
	ExitCode     int                 `json:"exit_code"`
	TimedOut     bool                `json:"timed_out"`
	DurationMS   int64               `json:"duration_ms"`
	Diagnostics  []docker.Diagnostic `json:"diagnostics"`
	Error        string              `json:"error,omitempty"`
}
