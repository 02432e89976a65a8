package service

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/models"
	"github.com/noah-isme/csharp-course-api/internal/observability"
	"github.com/noah-isme/csharp-course-api/internal/repository"
	"github.com/noah-isme/csharp-course-api/pkg/docker"
)

const sandboxUnavailableMessage = "code runner is unavailable; your code was saved"

// CodeRunner compiles and runs C# source.
type CodeRunner interface {
	Run(ctx context.Context, source, stdin string) (docker.RunOutput, error)
}

// CodeService saves editor contents and runs them in the sandbox.
type CodeService interface {
	Save(ctx context.Context, identity auth.Identity, payload dto.CodeSaveRequest) (dto.CodeSaveResponse, error)
	Run(ctx context.Context, identity auth.Identity, payload dto.CodeRunRequest) (dto.CodeRunResponse, error)
}

type codeService struct {
	progress  repository.ProgressRepository
	runner    CodeRunner
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewCodeService constructs the code service. runner may be nil when no sandbox is configured.
func NewCodeService(progress repository.ProgressRepository, runner CodeRunner, validate *validator.Validate, logger zerolog.Logger) CodeService {
	return &codeService{
		progress:  progress,
		runner:    runner,
		validator: validate,
		logger:    logger.With().Str("component", "code_service").Logger(),
		now:       time.Now,
	}
}

func (s *codeService) Save(ctx context.Context, identity auth.Identity, payload dto.CodeSaveRequest) (dto.CodeSaveResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CodeSaveResponse{}, err
	}

	assignmentID, err := s.save(ctx, identity.SubjectID, payload.AssignmentID, payload.Code)
	if err != nil {
		return dto.CodeSaveResponse{}, err
	}

	return dto.CodeSaveResponse{AssignmentID: assignmentID, Saved: true, Bytes: len(payload.Code)}, nil
}

func (s *codeService) Run(ctx context.Context, identity auth.Identity, payload dto.CodeRunRequest) (dto.CodeRunResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CodeRunResponse{}, err
	}

	assignmentID, err := s.save(ctx, identity.SubjectID, payload.AssignmentID, payload.Code)
	if err != nil {
		return dto.CodeRunResponse{}, err
	}

	response := dto.CodeRunResponse{AssignmentID: assignmentID, Saved: true, Diagnostics: []docker.Diagnostic{}}
	if s.runner == nil {
		observability.CodeRuns().WithLabelValues("unavailable").Inc()
		response.Error = sandboxUnavailableMessage
		return response, nil
	}

	tracer := otel.Tracer("github.com/noah-isme/csharp-course-api/internal/service/code")
	runCtx, span := tracer.Start(ctx, "code.run")
	span.SetAttributes(attribute.String("code.assignment_id", assignmentID))
	defer span.End()

	output, err := s.runner.Run(runCtx, payload.Code, payload.Stdin)
	if err != nil {
		span.RecordError(err)
		observability.CodeRuns().WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("assignment_id", assignmentID).Msg("sandbox run failed")
		response.Error = sandboxUnavailableMessage
		return response, nil
	}

	response.Ran = true
	response.Stdout = output.Stdout
	response.Stderr = output.Stderr
	response.ExitCode = output.ExitCode
	response.TimedOut = output.TimedOut
	response.DurationMS = output.Duration.Milliseconds()
	if output.Diagnostics != nil {
		response.Diagnostics = output.Diagnostics
	}

	outcome := "ok"
	switch {
	case output.TimedOut:
		outcome = "timeout"
		response.Error = "execution timed out"
	case docker.HasErrors(output.Diagnostics):
		outcome = "compile_error"
	case output.ExitCode != 0:
		outcome = "runtime_error"
	}
	observability.CodeRuns().WithLabelValues(outcome).Inc()

	return response, nil
}

func (s *codeService) save(ctx context.Context, userID, rawAssignmentID, code string) (string, error) {
	assignmentID := strings.TrimSpace(rawAssignmentID)
	if _, ok := course.SectionWeek(assignmentID); !ok {
		return "", ErrUnknownAssignment
	}
	if !isPlainText(code) {
		return "", ErrCodeNotText
	}

	now := s.now().UTC()
	if err := s.progress.RegisterStudent(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to register student")
		return "", err
	}

	record, err := s.progress.Get(ctx, userID, assignmentID)
	if err != nil {
		return "", err
	}
	fields := map[string]string{
		models.FieldSavedCode: code,
		models.FieldTimestamp: models.FormatTime(now),
	}
	if record.Status == "" || record.Status == models.StatusNotStarted {
		fields[models.FieldStatus] = string(models.StatusInProgress)
	}
	if err := s.progress.Save(ctx, userID, assignmentID, fields); err != nil {
		s.logger.Error().Err(err).Str("assignment_id", assignmentID).Msg("failed to save code")
		return "", err
	}
	return assignmentID, nil
}

func isPlainText(code string) bool {
	for mime := mimetype.Detect([]byte(code)); mime != nil; mime = mime.Parent() {
		if mime.Is("text/plain") {
			return true
		}
	}
	return false
}
