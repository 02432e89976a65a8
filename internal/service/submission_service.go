package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/events"
	"github.com/noah-isme/csharp-course-api/internal/grading"
	"github.com/noah-isme/csharp-course-api/internal/models"
	"github.com/noah-isme/csharp-course-api/internal/observability"
	"github.com/noah-isme/csharp-course-api/internal/repository"
	"github.com/noah-isme/csharp-course-api/pkg/ai"
)

// gradingUnavailableMessage is stored on records whose grading call failed.
const gradingUnavailableMessage = "AI grading unavailable; awaiting instructor review"

// overrideMetadata is cleared when a fresh submission replaces an overridden score.
var overrideMetadata = []string{
	models.FieldOverrideReason, models.FieldOverrideBy, models.FieldOverrideAt, models.FieldPreviousScore,
}

// SubmissionService records labs, homework and finals.
type SubmissionService interface {
	SubmitGradedWork(ctx context.Context, identity auth.Identity, payload dto.GradedWorkRequest) (dto.GradedWorkResponse, error)
}

type submissionService struct {
	calendar  *course.Calendar
	progress  repository.ProgressRepository
	archive   repository.SubmissionArchiveRepository
	grader    ai.Grader
	publisher events.Publisher
	profiles  ProfileService
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance. archive may be nil when no
// relational store is configured.
func NewSubmissionService(calendar *course.Calendar, progress repository.ProgressRepository, archive repository.SubmissionArchiveRepository, grader ai.Grader, publisher events.Publisher, profiles ProfileService, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	if grader == nil {
		grader = ai.UnavailableGrader{}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &submissionService{
		calendar:  calendar,
		progress:  progress,
		archive:   archive,
		grader:    grader,
		publisher: publisher,
		profiles:  profiles,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "submission_service").Logger(),
		now:       time.Now,
	}
}

func (s *submissionService) SubmitGradedWork(ctx context.Context, identity auth.Identity, payload dto.GradedWorkRequest) (dto.GradedWorkResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/csharp-course-api/internal/service/submission")
	ctx, span := tracer.Start(ctx, "submission.graded_work")
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.GradedWorkResponse{}, err
	}

	assignment, ok := course.ParseAssignment(strings.TrimSpace(payload.AssignmentID))
	if !ok {
		return dto.GradedWorkResponse{}, ErrUnknownAssignment
	}
	if !assignment.Kind.Graded() {
		return dto.GradedWorkResponse{}, ErrNotGradedWork
	}

	content := strings.TrimSpace(payload.Content)
	if payload.RawScore == nil && content == "" {
		return dto.GradedWorkResponse{}, ErrSubmissionContentRequired
	}

	span.SetAttributes(
		attribute.String("submission.assignment_id", assignment.ID),
		attribute.String("submission.user_id", identity.SubjectID),
	)

	now := s.now().UTC()
	archive := models.SubmissionArchive{
		UserID:       identity.SubjectID,
		AssignmentID: assignment.ID,
		Content:      payload.Content,
		SubmittedAt:  now,
	}

	var (
		raw      float64
		graded   bool
		feedback string
		rubric   map[string]float64
	)

	switch {
	case payload.RawScore != nil:
		raw = *payload.RawScore
		graded = true
		archive.GradingStatus = models.GradingStatusProvided
	default:
		result, err := s.grader.Grade(ctx, ai.GradingInput{
			AssignmentID: assignment.ID,
			Kind:         string(assignment.Kind),
			Language:     payload.Language,
			Submission:   content,
		})
		if err != nil {
			span.RecordError(err)
			s.logger.Warn().Err(err).Str("assignment_id", assignment.ID).Msg("ai grading failed; recording submission as ungraded")
			archive.GradingStatus = models.GradingStatusUngraded
		} else {
			raw = result.Score
			graded = true
			feedback = strings.TrimSpace(s.sanitizer.Sanitize(result.Feedback))
			rubric = result.Rubric
			archive.GradingStatus = models.GradingStatusGraded
		}
	}

	var (
		response dto.GradedWorkResponse
		fields   map[string]string
		clear    []string
	)

	if graded {
		penalty := s.penaltyFor(assignment, raw, now)
		response = dto.NewGradedWorkResponse(assignment.ID, penalty, now)
		response.GradingStatus = archive.GradingStatus
		response.Feedback = feedback
		response.Rubric = rubric

		fields = map[string]string{
			models.FieldScore:         models.FormatFloat(penalty.FinalScore),
			models.FieldOriginalScore: models.FormatFloat(penalty.OriginalScore),
			models.FieldStatus:        string(models.StatusCompleted),
			models.FieldIsLate:        models.FormatBool(penalty.IsLate),
			models.FieldDaysLate:      strconv.Itoa(penalty.DaysLate),
			models.FieldPenalty:       models.FormatFloat(penalty.PenaltyPercent),
			models.FieldIsOverride:    models.FormatBool(false),
			models.FieldSubmittedAt:   models.FormatTime(now),
			models.FieldGradedAt:      models.FormatTime(now),
			models.FieldTimestamp:     models.FormatTime(now),
		}
		if feedback != "" {
			fields[models.FieldFeedback] = feedback
		}
		clear = append([]string{models.FieldGradingError}, overrideMetadata...)

		archive.RawScore = models.Float(penalty.OriginalScore)
		archive.FinalScore = models.Float(penalty.FinalScore)
		archive.DaysLate = penalty.DaysLate
		archive.Feedback = feedback
		if len(rubric) > 0 {
			archive.Rubric = make(datatypes.JSONMap, len(rubric))
			for criterion, points := range rubric {
				archive.Rubric[criterion] = points
			}
		}
	} else {
		response = dto.GradedWorkResponse{
			AssignmentID:  assignment.ID,
			GradingStatus: models.GradingStatusUngraded,
			GradingError:  gradingUnavailableMessage,
			SubmittedAt:   now,
		}
		fields = map[string]string{
			models.FieldStatus:       string(models.StatusUngraded),
			models.FieldGradingError: gradingUnavailableMessage,
			models.FieldIsOverride:   models.FormatBool(false),
			models.FieldSubmittedAt:  models.FormatTime(now),
			models.FieldTimestamp:    models.FormatTime(now),
		}
		clear = append([]string{
			models.FieldScore, models.FieldOriginalScore, models.FieldIsLate,
			models.FieldDaysLate, models.FieldPenalty, models.FieldGradedAt, models.FieldFeedback,
		}, overrideMetadata...)
	}

	if s.archive != nil {
		if err := s.archive.Create(ctx, &archive); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "archive_failed")
			s.logger.Error().Err(err).Str("assignment_id", assignment.ID).Msg("failed to archive submission")
			return dto.GradedWorkResponse{}, err
		}
	}

	if err := s.writeRecord(ctx, identity.SubjectID, assignment.ID, fields, clear); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store_failed")
		return dto.GradedWorkResponse{}, err
	}

	if graded {
		if err := s.progress.MarkCompleted(ctx, identity.SubjectID, assignment.ID); err != nil {
			s.logger.Error().Err(err).Str("assignment_id", assignment.ID).Msg("failed to mark assignment completed")
			return dto.GradedWorkResponse{}, err
		}
	}

	s.profiles.Remember(ctx, identity)

	outcome := archive.GradingStatus
	observability.Submissions().WithLabelValues(string(assignment.Kind), outcome).Inc()

	event := events.GradeEvent{
		Type:         events.TypeSubmissionGraded,
		UserID:       identity.SubjectID,
		AssignmentID: assignment.ID,
		Score:        response.FinalScore,
		At:           now,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("assignment_id", assignment.ID).Msg("failed to publish grade event")
	}

	s.logger.Info().
		Str("user_id", identity.SubjectID).
		Str("assignment_id", assignment.ID).
		Str("grading_status", outcome).
		Bool("late", response.IsLate).
		Msg("graded work recorded")

	return response, nil
}

func (s *submissionService) penaltyFor(assignment course.Assignment, raw float64, submitted time.Time) grading.LatePenalty {
	due, ok := s.calendar.DueInstant(assignment.Week)
	if !ok {
		return grading.ApplyLatePenalty(raw, 0)
	}
	return grading.SubmissionPenalty(raw, due, submitted)
}

func (s *submissionService) writeRecord(ctx context.Context, userID, assignmentID string, fields map[string]string, clear []string) error {
	if err := s.progress.RegisterStudent(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to register student")
		return err
	}
	if err := s.progress.ClearFields(ctx, userID, assignmentID, clear...); err != nil {
		s.logger.Error().Err(err).Str("assignment_id", assignmentID).Msg("failed to clear progress fields")
		return err
	}
	if err := s.progress.Save(ctx, userID, assignmentID, fields); err != nil {
		s.logger.Error().Err(err).Str("assignment_id", assignmentID).Msg("failed to save progress")
		return err
	}
	return nil
}
