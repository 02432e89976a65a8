package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/grading"
	"github.com/noah-isme/csharp-course-api/internal/repository"
)

// StudentGrades pairs a student's normalised progress with its aggregation.
type StudentGrades struct {
	Progress grading.StudentProgress
	Summary  grading.Summary
}

// GradeService computes student summaries and the instructor gradebook.
type GradeService interface {
	StudentSummary(ctx context.Context, userID string) (dto.GradeSummaryResponse, error)
	Gradebook(ctx context.Context) (dto.GradebookResponse, error)
	Cohort(ctx context.Context) ([]StudentGrades, error)
}

type gradeService struct {
	calendar      *course.Calendar
	aggregator    *grading.Aggregator
	progress      repository.ProgressRepository
	participation repository.ParticipationRepository
	profiles      ProfileService
	logger        zerolog.Logger
	now           func() time.Time
}

// NewGradeService constructs the grade service.
func NewGradeService(calendar *course.Calendar, progress repository.ProgressRepository, participation repository.ParticipationRepository, profiles ProfileService, logger zerolog.Logger) GradeService {
	return &gradeService{
		calendar:      calendar,
		aggregator:    grading.NewAggregator(calendar),
		progress:      progress,
		participation: participation,
		profiles:      profiles,
		logger:        logger.With().Str("component", "grade_service").Logger(),
		now:           time.Now,
	}
}

func (s *gradeService) StudentSummary(ctx context.Context, userID string) (dto.GradeSummaryResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return dto.GradeSummaryResponse{}, ErrUnknownStudent
	}

	now := s.now()
	grades, err := s.load(ctx, userID, now)
	if err != nil {
		return dto.GradeSummaryResponse{}, err
	}
	return dto.NewGradeSummaryResponse(grades.Summary, now.UTC()), nil
}

func (s *gradeService) Gradebook(ctx context.Context) (dto.GradebookResponse, error) {
	now := s.now()
	cohort, err := s.cohortAt(ctx, now)
	if err != nil {
		return dto.GradebookResponse{}, err
	}

	ids := make([]string, 0, len(cohort))
	for _, student := range cohort {
		ids = append(ids, student.Summary.UserID)
	}
	names := s.profiles.Names(ctx, ids)

	roster := s.calendar.Roster()
	response := dto.GradebookResponse{
		Roster:      make([]string, 0, len(roster)),
		Rows:        make([]dto.GradebookRow, 0, len(cohort)),
		GeneratedAt: now.UTC(),
	}
	for _, assignment := range roster {
		response.Roster = append(response.Roster, assignment.ID)
	}
	for _, student := range cohort {
		response.Rows = append(response.Rows, dto.NewGradebookRow(student.Summary, names[student.Summary.UserID]))
	}
	return response, nil
}

func (s *gradeService) Cohort(ctx context.Context) ([]StudentGrades, error) {
	return s.cohortAt(ctx, s.now())
}

func (s *gradeService) cohortAt(ctx context.Context, now time.Time) ([]StudentGrades, error) {
	students, err := s.progress.Students(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list students")
		return nil, err
	}

	cohort := make([]StudentGrades, 0, len(students))
	for _, userID := range students {
		grades, err := s.load(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		cohort = append(cohort, grades)
	}
	return cohort, nil
}

func (s *gradeService) load(ctx context.Context, userID string, now time.Time) (StudentGrades, error) {
	records, err := s.progress.Load(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load progress")
		return StudentGrades{}, err
	}
	events, err := s.participation.List(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load participation")
		return StudentGrades{}, err
	}

	progress := grading.StudentProgress{UserID: userID, Records: records, Participation: events}
	return StudentGrades{Progress: progress, Summary: s.aggregator.Aggregate(progress, now)}, nil
}
