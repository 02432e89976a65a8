package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/grading"
	"github.com/noah-isme/csharp-course-api/internal/models"
	"github.com/noah-isme/csharp-course-api/internal/repository"
)

// ParticipationService records engagement pings for lesson sections.
type ParticipationService interface {
	Record(ctx context.Context, identity auth.Identity, payload dto.ParticipationRequest) (dto.ParticipationResponse, error)
}

type participationService struct {
	calendar      *course.Calendar
	progress      repository.ProgressRepository
	participation repository.ParticipationRepository
	profiles      ProfileService
	validator     *validator.Validate
	logger        zerolog.Logger
	now           func() time.Time
}

// NewParticipationService constructs the participation service.
func NewParticipationService(calendar *course.Calendar, progress repository.ProgressRepository, participation repository.ParticipationRepository, profiles ProfileService, validate *validator.Validate, logger zerolog.Logger) ParticipationService {
	return &participationService{
		calendar:      calendar,
		progress:      progress,
		participation: participation,
		profiles:      profiles,
		validator:     validate,
		logger:        logger.With().Str("component", "participation_service").Logger(),
		now:           time.Now,
	}
}

func (s *participationService) Record(ctx context.Context, identity auth.Identity, payload dto.ParticipationRequest) (dto.ParticipationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ParticipationResponse{}, err
	}

	sectionID := strings.TrimSpace(payload.SectionID)
	week, ok := course.SectionWeek(sectionID)
	if !ok {
		return dto.ParticipationResponse{}, ErrUnknownSection
	}
	if _, configured := s.calendar.Week(week); !configured {
		return dto.ParticipationResponse{}, ErrUnknownSection
	}
	if assignment, isAssignment := course.ParseAssignment(sectionID); isAssignment && assignment.Kind != course.KindParticipation {
		return dto.ParticipationResponse{}, ErrUnknownSection
	}

	now := s.now().UTC()
	event := models.ParticipationEvent{SectionID: sectionID, Week: week, Timestamp: now}

	if err := s.progress.RegisterStudent(ctx, identity.SubjectID); err != nil {
		s.logger.Error().Err(err).Str("user_id", identity.SubjectID).Msg("failed to register student")
		return dto.ParticipationResponse{}, err
	}
	if err := s.participation.Append(ctx, identity.SubjectID, event); err != nil {
		s.logger.Error().Err(err).Str("section_id", sectionID).Msg("failed to append participation event")
		return dto.ParticipationResponse{}, err
	}
	if err := s.progress.Save(ctx, identity.SubjectID, sectionID, map[string]string{
		models.FieldStatus:    string(models.StatusParticipated),
		models.FieldTimestamp: models.FormatTime(now),
	}); err != nil {
		s.logger.Error().Err(err).Str("section_id", sectionID).Msg("failed to save participation status")
		return dto.ParticipationResponse{}, err
	}

	s.profiles.Remember(ctx, identity)

	logged, err := s.participation.List(ctx, identity.SubjectID)
	if err != nil {
		return dto.ParticipationResponse{}, err
	}
	weekEvents := make([]models.ParticipationEvent, 0, len(logged))
	for _, e := range logged {
		if e.Week == week {
			weekEvents = append(weekEvents, e)
		}
	}

	return dto.ParticipationResponse{
		SectionID: sectionID,
		Week:      week,
		WeekScore: dto.Round2(grading.ParticipationScore(week, weekEvents, s.calendar.ExpectedSections(week))),
		Timestamp: now,
	}, nil
}
