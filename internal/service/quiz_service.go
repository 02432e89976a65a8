package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/events"
	"github.com/noah-isme/csharp-course-api/internal/grading"
	"github.com/noah-isme/csharp-course-api/internal/models"
	"github.com/noah-isme/csharp-course-api/internal/observability"
	"github.com/noah-isme/csharp-course-api/internal/repository"
)

// QuizService applies the attempt policy to quiz submissions.
type QuizService interface {
	SubmitAttempt(ctx context.Context, identity auth.Identity, quizID string, payload dto.QuizAttemptRequest) (dto.QuizAttemptResponse, error)
	History(ctx context.Context, userID, quizID string) (dto.AttemptHistoryResponse, error)
}

type quizService struct {
	calendar  *course.Calendar
	policy    grading.AttemptPolicy
	progress  repository.ProgressRepository
	history   repository.AttemptHistoryRepository
	publisher events.Publisher
	profiles  ProfileService
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewQuizService constructs the quiz service.
func NewQuizService(calendar *course.Calendar, policy grading.AttemptPolicy, progress repository.ProgressRepository, history repository.AttemptHistoryRepository, publisher events.Publisher, profiles ProfileService, validate *validator.Validate, logger zerolog.Logger) QuizService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &quizService{
		calendar:  calendar,
		policy:    policy,
		progress:  progress,
		history:   history,
		publisher: publisher,
		profiles:  profiles,
		validator: validate,
		logger:    logger.With().Str("component", "quiz_service").Logger(),
		now:       time.Now,
	}
}

func parseQuiz(quizID string) (course.Assignment, error) {
	assignment, ok := course.ParseAssignment(strings.TrimSpace(quizID))
	if !ok {
		return course.Assignment{}, ErrUnknownAssignment
	}
	if !assignment.Kind.IsQuiz() {
		return course.Assignment{}, ErrNotQuiz
	}
	return assignment, nil
}

func (s *quizService) SubmitAttempt(ctx context.Context, identity auth.Identity, quizID string, payload dto.QuizAttemptRequest) (dto.QuizAttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuizAttemptResponse{}, err
	}

	quiz, err := parseQuiz(quizID)
	if err != nil {
		return dto.QuizAttemptResponse{}, err
	}

	record, err := s.progress.Get(ctx, identity.SubjectID, quiz.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("quiz_id", quiz.ID).Msg("failed to load quiz record")
		return dto.QuizAttemptResponse{}, err
	}

	state := grading.AttemptState{Attempts: record.AttemptCount(), BestScore: record.Best()}
	if record.IsOverride && record.Score != nil && *record.Score > state.BestScore {
		state.BestScore = *record.Score
	}

	now := s.now().UTC()
	decision := s.policy.Evaluate(
		state,
		grading.AttemptSubmission{
			Score:       *payload.Score,
			Passed:      payload.Passed,
			MaxAttempts: payload.MaxAttempts,
			Unlimited:   payload.UnlimitedAttempts,
			At:          now,
		},
		s.calendar.IsPastDue(quiz.ID, now),
		record.Unlocked,
	)

	if !decision.Accepted {
		decision.At = now
		observability.QuizAttempts().WithLabelValues(string(decision.Reason)).Inc()
		s.logger.Info().
			Str("user_id", identity.SubjectID).
			Str("quiz_id", quiz.ID).
			Str("reason", string(decision.Reason)).
			Msg("quiz attempt rejected")
		return dto.NewQuizAttemptResponse(quiz.ID, decision), nil
	}

	status := models.StatusAttempted
	if decision.Passed || decision.BestScore >= 100 {
		status = models.StatusCompleted
	}

	fields := map[string]string{
		models.FieldAttempts:  strconv.Itoa(decision.Attempts),
		models.FieldBestScore: models.FormatFloat(decision.BestScore),
		models.FieldLastScore: models.FormatFloat(decision.LastScore),
		models.FieldPassed:    models.FormatBool(decision.Passed),
		models.FieldTimestamp: models.FormatTime(now),
	}
	// An overridden quiz keeps the instructor's score and status; attempts
	// are still counted and kept in history.
	if !record.IsOverride {
		fields[models.FieldScore] = models.FormatFloat(decision.BestScore)
		fields[models.FieldStatus] = string(status)
	}

	if err := s.progress.RegisterStudent(ctx, identity.SubjectID); err != nil {
		s.logger.Error().Err(err).Str("user_id", identity.SubjectID).Msg("failed to register student")
		return dto.QuizAttemptResponse{}, err
	}
	if err := s.progress.Save(ctx, identity.SubjectID, quiz.ID, fields); err != nil {
		s.logger.Error().Err(err).Str("quiz_id", quiz.ID).Msg("failed to save quiz attempt")
		return dto.QuizAttemptResponse{}, err
	}

	entry := models.AttemptHistoryEntry{
		Attempt:   decision.Attempts,
		Score:     decision.LastScore,
		Passed:    decision.Passed,
		Timestamp: now,
	}
	if err := s.history.Push(ctx, identity.SubjectID, quiz.ID, entry); err != nil {
		s.logger.Error().Err(err).Str("quiz_id", quiz.ID).Msg("failed to append attempt history")
		return dto.QuizAttemptResponse{}, err
	}

	if status == models.StatusCompleted {
		if err := s.progress.MarkCompleted(ctx, identity.SubjectID, quiz.ID); err != nil {
			s.logger.Error().Err(err).Str("quiz_id", quiz.ID).Msg("failed to mark quiz completed")
			return dto.QuizAttemptResponse{}, err
		}
	}

	s.profiles.Remember(ctx, identity)
	observability.QuizAttempts().WithLabelValues("accepted").Inc()

	best := decision.BestScore
	if err := s.publisher.Publish(ctx, events.GradeEvent{
		Type:         events.TypeQuizAttempt,
		UserID:       identity.SubjectID,
		AssignmentID: quiz.ID,
		Score:        &best,
		At:           now,
	}); err != nil {
		s.logger.Warn().Err(err).Str("quiz_id", quiz.ID).Msg("failed to publish grade event")
	}

	return dto.NewQuizAttemptResponse(quiz.ID, decision), nil
}

func (s *quizService) History(ctx context.Context, userID, quizID string) (dto.AttemptHistoryResponse, error) {
	quiz, err := parseQuiz(quizID)
	if err != nil {
		return dto.AttemptHistoryResponse{}, err
	}

	record, err := s.progress.Get(ctx, userID, quiz.ID)
	if err != nil {
		return dto.AttemptHistoryResponse{}, err
	}

	entries, err := s.history.List(ctx, userID, quiz.ID)
	if err != nil {
		return dto.AttemptHistoryResponse{}, err
	}

	return dto.NewAttemptHistoryResponse(quiz.ID, record, entries), nil
}
