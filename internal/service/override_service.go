package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/events"
	"github.com/noah-isme/csharp-course-api/internal/models"
	"github.com/noah-isme/csharp-course-api/internal/observability"
	"github.com/noah-isme/csharp-course-api/internal/repository"
)

// OverrideService applies audited instructor changes to stored records.
type OverrideService interface {
	OverrideScore(ctx context.Context, instructor auth.Identity, payload dto.OverrideScoreRequest) (dto.OverrideResponse, error)
	UnlockQuiz(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error)
	WaivePenalty(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error)
	ResetAttempt(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error)
	DropLowestAttempt(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error)
	AuditLog(ctx context.Context, query dto.AuditQuery) ([]dto.AuditEntryResponse, error)
}

type overrideService struct {
	instructors *auth.InstructorAllowList
	progress    repository.ProgressRepository
	history     repository.AttemptHistoryRepository
	audit       repository.AuditRepository
	publisher   events.Publisher
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewOverrideService constructs the override service. Every operation re-checks the
// allow-list, independent of any transport-level gate.
func NewOverrideService(instructors *auth.InstructorAllowList, progress repository.ProgressRepository, history repository.AttemptHistoryRepository, audit repository.AuditRepository, publisher events.Publisher, validate *validator.Validate, logger zerolog.Logger) OverrideService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &overrideService{
		instructors: instructors,
		progress:    progress,
		history:     history,
		audit:       audit,
		publisher:   publisher,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("github.com/noah-isme/csharp-course-api/internal/service/override"),
		logger:      logger.With().Str("component", "override_service").Logger(),
		now:         time.Now,
	}
}

// overrideTarget is a validated, loaded override subject.
type overrideTarget struct {
	userID     string
	assignment course.Assignment
	record     models.ProgressRecord
}

func (s *overrideService) OverrideScore(ctx context.Context, instructor auth.Identity, payload dto.OverrideScoreRequest) (dto.OverrideResponse, error) {
	ctx, span := s.start(ctx, models.OverrideActionScore, payload.UserID, payload.AssignmentID)
	defer span.End()

	if err := s.authorize(instructor, payload); err != nil {
		return dto.OverrideResponse{}, err
	}

	target, err := s.target(ctx, payload.UserID, payload.AssignmentID)
	if err != nil {
		return dto.OverrideResponse{}, err
	}

	now := s.now().UTC()
	reason := s.cleanReason(payload.Reason)
	newScore := *payload.Score
	fields := map[string]string{
		models.FieldScore:          models.FormatFloat(newScore),
		models.FieldIsOverride:     models.FormatBool(true),
		models.FieldOverrideReason: reason,
		models.FieldOverrideBy:     instructor.Email,
		models.FieldOverrideAt:     models.FormatTime(now),
		models.FieldStatus:         string(models.StatusSubmitted),
		models.FieldTimestamp:      models.FormatTime(now),
	}
	clear := []string{models.FieldGradingError}
	if target.record.Score != nil {
		fields[models.FieldPreviousScore] = models.FormatFloat(*target.record.Score)
	} else {
		clear = append(clear, models.FieldPreviousScore)
	}

	if err := s.write(ctx, target, fields, clear...); err != nil {
		span.SetStatus(codes.Error, "store_failed")
		return dto.OverrideResponse{}, err
	}

	return s.finish(ctx, instructor, target, models.OverrideActionScore, target.record.Score, &newScore, reason, now)
}

func (s *overrideService) UnlockQuiz(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error) {
	ctx, span := s.start(ctx, models.OverrideActionUnlockQuiz, payload.UserID, payload.AssignmentID)
	defer span.End()

	if err := s.authorize(instructor, payload); err != nil {
		return dto.OverrideResponse{}, err
	}

	target, err := s.target(ctx, payload.UserID, payload.AssignmentID)
	if err != nil {
		return dto.OverrideResponse{}, err
	}
	if !target.assignment.Kind.IsQuiz() {
		return dto.OverrideResponse{}, ErrNotQuiz
	}

	now := s.now().UTC()
	if err := s.write(ctx, target, map[string]string{
		models.FieldUnlocked:  models.FormatBool(true),
		models.FieldTimestamp: models.FormatTime(now),
	}); err != nil {
		span.SetStatus(codes.Error, "store_failed")
		return dto.OverrideResponse{}, err
	}

	score := target.record.Score
	return s.finish(ctx, instructor, target, models.OverrideActionUnlockQuiz, score, score, s.cleanReason(payload.Reason), now)
}

func (s *overrideService) WaivePenalty(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error) {
	ctx, span := s.start(ctx, models.OverrideActionWaive, payload.UserID, payload.AssignmentID)
	defer span.End()

	if err := s.authorize(instructor, payload); err != nil {
		return dto.OverrideResponse{}, err
	}

	target, err := s.target(ctx, payload.UserID, payload.AssignmentID)
	if err != nil {
		return dto.OverrideResponse{}, err
	}
	if target.record.OriginalScore == nil {
		return dto.OverrideResponse{}, ErrNoOriginalScore
	}

	now := s.now().UTC()
	restored := *target.record.OriginalScore
	if err := s.write(ctx, target, map[string]string{
		models.FieldScore:     models.FormatFloat(restored),
		models.FieldTimestamp: models.FormatTime(now),
	}, models.FieldIsLate, models.FieldDaysLate, models.FieldPenalty); err != nil {
		span.SetStatus(codes.Error, "store_failed")
		return dto.OverrideResponse{}, err
	}

	return s.finish(ctx, instructor, target, models.OverrideActionWaive, target.record.Score, &restored, s.cleanReason(payload.Reason), now)
}

func (s *overrideService) ResetAttempt(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error) {
	ctx, span := s.start(ctx, models.OverrideActionReset, payload.UserID, payload.AssignmentID)
	defer span.End()

	if err := s.authorize(instructor, payload); err != nil {
		return dto.OverrideResponse{}, err
	}

	target, err := s.target(ctx, payload.UserID, payload.AssignmentID)
	if err != nil {
		return dto.OverrideResponse{}, err
	}

	now := s.now().UTC()
	if err := s.write(ctx, target, map[string]string{
		models.FieldStatus:    string(models.StatusNotStarted),
		models.FieldTimestamp: models.FormatTime(now),
	},
		models.FieldAttempts, models.FieldBestScore, models.FieldLastScore, models.FieldScore,
		models.FieldPassed, models.FieldOriginalScore, models.FieldIsLate, models.FieldDaysLate,
		models.FieldPenalty, models.FieldGradingError,
	); err != nil {
		span.SetStatus(codes.Error, "store_failed")
		return dto.OverrideResponse{}, err
	}

	if target.assignment.Kind.IsQuiz() {
		if err := s.history.Clear(ctx, target.userID, target.assignment.ID); err != nil {
			s.logger.Error().Err(err).Str("assignment_id", target.assignment.ID).Msg("failed to clear attempt history")
			return dto.OverrideResponse{}, err
		}
	}

	return s.finish(ctx, instructor, target, models.OverrideActionReset, target.record.Score, nil, s.cleanReason(payload.Reason), now)
}

func (s *overrideService) DropLowestAttempt(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error) {
	ctx, span := s.start(ctx, models.OverrideActionDropLowest, payload.UserID, payload.AssignmentID)
	defer span.End()

	if err := s.authorize(instructor, payload); err != nil {
		return dto.OverrideResponse{}, err
	}

	target, err := s.target(ctx, payload.UserID, payload.AssignmentID)
	if err != nil {
		return dto.OverrideResponse{}, err
	}
	if !target.assignment.Kind.IsQuiz() {
		return dto.OverrideResponse{}, ErrNotQuiz
	}

	entries, err := s.history.List(ctx, target.userID, target.assignment.ID)
	if err != nil {
		return dto.OverrideResponse{}, err
	}
	if len(entries) == 0 && target.record.AttemptCount() == 0 {
		return dto.OverrideResponse{}, ErrNoAttempts
	}

	remaining := dropLowest(entries)
	attempts := target.record.AttemptCount() - 1
	if attempts < 0 {
		attempts = 0
	}

	now := s.now().UTC()
	fields := map[string]string{
		models.FieldAttempts:  strconv.Itoa(attempts),
		models.FieldTimestamp: models.FormatTime(now),
	}
	var clear []string
	newScore := target.record.Score

	switch {
	case len(entries) == 0:
		// Legacy attempts without history: only the counter can be corrected.
	case len(remaining) == 0:
		clear = append(clear, models.FieldBestScore, models.FieldLastScore, models.FieldPassed)
		if !target.record.IsOverride {
			clear = append(clear, models.FieldScore)
			newScore = nil
		}
		fields[models.FieldStatus] = string(models.StatusNotStarted)
	default:
		best := remaining[0].Score
		for _, entry := range remaining[1:] {
			if entry.Score > best {
				best = entry.Score
			}
		}
		fields[models.FieldBestScore] = models.FormatFloat(best)
		fields[models.FieldLastScore] = models.FormatFloat(remaining[0].Score)
		fields[models.FieldPassed] = models.FormatBool(remaining[0].Passed)
		if !target.record.IsOverride {
			fields[models.FieldScore] = models.FormatFloat(best)
			newScore = &best
		}
	}

	if len(entries) > 0 {
		if err := s.history.Replace(ctx, target.userID, target.assignment.ID, remaining); err != nil {
			s.logger.Error().Err(err).Str("assignment_id", target.assignment.ID).Msg("failed to rewrite attempt history")
			return dto.OverrideResponse{}, err
		}
	}

	if err := s.write(ctx, target, fields, clear...); err != nil {
		span.SetStatus(codes.Error, "store_failed")
		return dto.OverrideResponse{}, err
	}

	return s.finish(ctx, instructor, target, models.OverrideActionDropLowest, target.record.Score, newScore, s.cleanReason(payload.Reason), now)
}

func (s *overrideService) AuditLog(ctx context.Context, query dto.AuditQuery) ([]dto.AuditEntryResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}
	entries, err := s.audit.List(ctx, query.Limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list audit entries")
		return nil, err
	}
	return dto.NewAuditEntryResponseSlice(entries), nil
}

// dropLowest removes the lowest scoring attempt; ties drop the oldest. Entries are newest first.
func dropLowest(entries []models.AttemptHistoryEntry) []models.AttemptHistoryEntry {
	if len(entries) == 0 {
		return entries
	}
	lowest := 0
	for i, entry := range entries {
		if entry.Score <= entries[lowest].Score {
			lowest = i
		}
	}
	remaining := make([]models.AttemptHistoryEntry, 0, len(entries)-1)
	remaining = append(remaining, entries[:lowest]...)
	return append(remaining, entries[lowest+1:]...)
}

func (s *overrideService) start(ctx context.Context, action, userID, assignmentID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "override."+action, trace.WithAttributes(
		attribute.String("override.user_id", userID),
		attribute.String("override.assignment_id", assignmentID),
	))
}

func (s *overrideService) authorize(instructor auth.Identity, payload interface{}) error {
	if !s.instructors.Allows(instructor) {
		s.logger.Warn().Str("email", instructor.Email).Msg("override rejected: caller not on instructor allow-list")
		return ErrNotInstructor
	}
	return s.validator.Struct(payload)
}

func (s *overrideService) target(ctx context.Context, userID, assignmentID string) (overrideTarget, error) {
	assignment, ok := course.ParseAssignment(strings.TrimSpace(assignmentID))
	if !ok {
		return overrideTarget{}, ErrUnknownAssignment
	}
	userID = strings.TrimSpace(userID)
	record, err := s.progress.Get(ctx, userID, assignment.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load record for override")
		return overrideTarget{}, err
	}
	return overrideTarget{userID: userID, assignment: assignment, record: record}, nil
}

func (s *overrideService) write(ctx context.Context, target overrideTarget, fields map[string]string, clear ...string) error {
	if err := s.progress.RegisterStudent(ctx, target.userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", target.userID).Msg("failed to register student")
		return err
	}
	if err := s.progress.ClearFields(ctx, target.userID, target.assignment.ID, clear...); err != nil {
		s.logger.Error().Err(err).Str("assignment_id", target.assignment.ID).Msg("failed to clear fields for override")
		return err
	}
	if err := s.progress.Save(ctx, target.userID, target.assignment.ID, fields); err != nil {
		s.logger.Error().Err(err).Str("assignment_id", target.assignment.ID).Msg("failed to save override")
		return err
	}
	return nil
}

func (s *overrideService) finish(ctx context.Context, instructor auth.Identity, target overrideTarget, action string, previous, next *float64, reason string, now time.Time) (dto.OverrideResponse, error) {
	entry := models.AuditEntry{
		ID:            uuid.NewString(),
		Action:        action,
		UserID:        target.userID,
		AssignmentID:  target.assignment.ID,
		PreviousScore: previous,
		NewScore:      next,
		Reason:        reason,
		Instructor:    instructor.Email,
		Timestamp:     now,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("failed to append audit entry")
		return dto.OverrideResponse{}, err
	}

	observability.Overrides().WithLabelValues(action).Inc()
	if err := s.publisher.Publish(ctx, events.GradeEvent{
		Type:         events.TypeOverride,
		UserID:       target.userID,
		AssignmentID: target.assignment.ID,
		Score:        next,
		Actor:        instructor.Email,
		At:           now,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to publish grade event")
	}

	record, err := s.progress.Get(ctx, target.userID, target.assignment.ID)
	if err != nil {
		return dto.OverrideResponse{}, err
	}

	s.logger.Info().
		Str("action", action).
		Str("user_id", target.userID).
		Str("assignment_id", target.assignment.ID).
		Str("instructor", instructor.Email).
		Msg("override applied")

	return dto.OverrideResponse{
		Audit:  dto.NewAuditEntryResponse(entry),
		Record: dto.NewProgressRecordResponse(record),
	}, nil
}

func (s *overrideService) cleanReason(reason string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(reason))
}
