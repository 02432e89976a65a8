package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/events"
	"github.com/noah-isme/csharp-course-api/internal/models"
	"github.com/noah-isme/csharp-course-api/internal/repository"
	"github.com/noah-isme/csharp-course-api/pkg/ai"
	"github.com/noah-isme/csharp-course-api/pkg/docker"
)

var (
	testStudent    = auth.Identity{SubjectID: "student-1", Email: "student@example.edu", Name: "Ada Student"}
	testInstructor = auth.Identity{SubjectID: "prof-1", Email: "prof@x.edu"}
)

type courseHarness struct {
	mini          *miniredis.Miniredis
	client        *redis.Client
	db            *gorm.DB
	calendar      *course.Calendar
	progress      repository.ProgressRepository
	history       repository.AttemptHistoryRepository
	participation repository.ParticipationRepository
	audit         repository.AuditRepository
	archive       repository.SubmissionArchiveRepository
	profiles      ProfileService
	instructors   *auth.InstructorAllowList
	publisher     *recordingPublisher
	validator     *validator.Validate
	logger        zerolog.Logger
}

func newCourseHarness(t *testing.T) *courseHarness {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SubmissionArchive{}))

	logger := zerolog.Nop()
	return &courseHarness{
		mini:          mini,
		client:        client,
		db:            db,
		calendar:      course.DefaultCalendar(),
		progress:      repository.NewProgressRepository(client),
		history:       repository.NewAttemptHistoryRepository(client),
		participation: repository.NewParticipationRepository(client),
		audit:         repository.NewAuditRepository(client),
		archive:       repository.NewSubmissionArchiveRepository(db),
		profiles:      NewProfileService(repository.NewProfileRepository(client), logger),
		instructors:   auth.NewInstructorAllowList([]string{"prof@x.edu"}, nil),
		publisher:     &recordingPublisher{},
		validator:     validator.New(),
		logger:        logger,
	}
}

// at returns a wall-clock instant in the course timezone.
func (h *courseHarness) at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, h.calendar.Location())
}

func (h *courseHarness) record(t *testing.T, userID, assignmentID string) models.ProgressRecord {
	t.Helper()
	record, err := h.progress.Get(context.Background(), userID, assignmentID)
	require.NoError(t, err)
	return record
}

func fixedClock(instant time.Time) func() time.Time {
	return func() time.Time { return instant }
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.GradeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.GradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []events.GradeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.GradeEvent(nil), p.events...)
}

type fakeGrader struct {
	result ai.GradingResult
	err    error
	calls  int
}

func (g *fakeGrader) Grade(context.Context, ai.GradingInput) (ai.GradingResult, error) {
	g.calls++
	return g.result, g.err
}

type fakeRunner struct {
	output docker.RunOutput
	err    error
	source string
}

func (r *fakeRunner) Run(_ context.Context, source, _ string) (docker.RunOutput, error) {
	r.source = source
	return r.output, r.err
}

var errSandboxDown = errors.New("sandbox unreachable")

// compactCalendar is a two-week UTC calendar used by the aggregation and export tests.
const compactCalendar = `
timezone = "UTC"

[[weeks]]
number = 1
unlock = "2026-01-12T00:00:00"
due = "2026-01-18T23:59:59"
participation_sections = 2
assignments = ["lab", "homework"]

[[weeks]]
number = 2
unlock = "2026-01-19T00:00:00"
due = "2026-01-25T23:59:59"
participation_sections = 2
assignments = ["lab", "quiz"]
`

func (h *courseHarness) useCompactCalendar(t *testing.T) {
	t.Helper()
	cal, err := course.ParseCalendar([]byte(compactCalendar))
	require.NoError(t, err)
	h.calendar = cal
}

func (h *courseHarness) seed(t *testing.T, userID, assignmentID string, fields map[string]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.progress.RegisterStudent(ctx, userID))
	require.NoError(t, h.progress.Save(ctx, userID, assignmentID, fields))
}
