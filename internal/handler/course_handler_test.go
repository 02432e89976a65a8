package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/config"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/grading"
	"github.com/noah-isme/csharp-course-api/internal/handler"
	"github.com/noah-isme/csharp-course-api/internal/middleware"
	"github.com/noah-isme/csharp-course-api/internal/models"
	"github.com/noah-isme/csharp-course-api/internal/ratelimit"
	"github.com/noah-isme/csharp-course-api/internal/repository"
	"github.com/noah-isme/csharp-course-api/internal/router"
	"github.com/noah-isme/csharp-course-api/internal/service"
)

const testSecret = "handler-test-secret"

type courseApp struct {
	app      *fiber.App
	mini     *miniredis.Miniredis
	progress repository.ProgressRepository
}

func newCourseApp(t *testing.T) *courseApp {
	t.Helper()

	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SubmissionArchive{}))

	logger := zerolog.Nop()
	validate := validator.New()
	calendar := course.DefaultCalendar()
	instructors := auth.NewInstructorAllowList([]string{"prof@x.edu"}, nil)

	progress := repository.NewProgressRepository(client)
	history := repository.NewAttemptHistoryRepository(client)
	participation := repository.NewParticipationRepository(client)
	profiles := service.NewProfileService(repository.NewProfileRepository(client), logger)

	grades := service.NewGradeService(calendar, progress, participation, profiles, logger)
	studentHandler := handler.NewStudentHandler(handler.StudentServices{
		Submissions:   service.NewSubmissionService(calendar, progress, repository.NewSubmissionArchiveRepository(db), nil, nil, profiles, validate, logger),
		Quizzes:       service.NewQuizService(calendar, grading.NewAttemptPolicy(0), progress, history, nil, profiles, validate, logger),
		Participation: service.NewParticipationService(calendar, progress, participation, profiles, validate, logger),
		Code:          service.NewCodeService(progress, nil, validate, logger),
		Grades:        grades,
	}, middleware.RateLimit("code_run", ratelimit.New(2, 0.001, nil)), logger)

	instructorHandler := handler.NewInstructorHandler(
		grades,
		service.NewOverrideService(instructors, progress, history, repository.NewAuditRepository(client), nil, validate, logger),
		service.NewExportService(calendar, grades, profiles, logger),
		logger,
	)

	app := fiber.New()
	cfg := config.Config{AppName: "course-test", AppEnv: "test"}
	router.Register(app, cfg, router.Dependencies{
		StudentHandler:    studentHandler,
		InstructorHandler: instructorHandler,
		HealthChecks: map[string]handler.DependencyCheck{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		},
		JWTMiddleware:  middleware.Authenticate(auth.NewJWTVerifier(testSecret)),
		InstructorGate: middleware.RequireInstructor(instructors, logger),
	})

	return &courseApp{app: app, mini: mini, progress: progress}
}

func token(t *testing.T, subject, email, name string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"name":  name,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func studentToken(t *testing.T) string {
	return token(t, "student-1", "student@example.edu", "Ada Student")
}

func instructorToken(t *testing.T) string {
	return token(t, "prof-1", "prof@x.edu", "Prof")
}

func (a *courseApp) do(t *testing.T, method, path, bearer string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func validateContract(t *testing.T, schemaName string, resp *http.Response) map[string]interface{} {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", "contracts", schemaName))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload), string(body))

	return payload.(map[string]interface{})
}

func TestGradesRequireAuthentication(t *testing.T) {
	app := newCourseApp(t)

	resp := app.do(t, http.MethodGet, "/api/v1/grades/me", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestStudentGradeSummaryContract(t *testing.T) {
	app := newCourseApp(t)
	ctx := context.Background()
	require.NoError(t, app.progress.RegisterStudent(ctx, "student-1"))
	require.NoError(t, app.progress.Save(ctx, "student-1", "week-02-lab", map[string]string{
		models.FieldScore:  "90",
		models.FieldStatus: string(models.StatusCompleted),
	}))

	resp := app.do(t, http.MethodGet, "/api/v1/grades/me", studentToken(t), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	envelope := validateContract(t, "grade_summary.schema.json", resp)
	data := envelope["data"].(map[string]interface{})
	require.Equal(t, "student-1", data["user_id"])
	require.Equal(t, true, data["has_grades"])
}

func TestInstructorReadsStudentGrades(t *testing.T) {
	app := newCourseApp(t)
	ctx := context.Background()
	require.NoError(t, app.progress.RegisterStudent(ctx, "student-2"))
	require.NoError(t, app.progress.Save(ctx, "student-2", "week-01-lab", map[string]string{
		models.FieldScore:  "64",
		models.FieldStatus: string(models.StatusCompleted),
	}))

	resp := app.do(t, http.MethodGet, "/api/v1/instructor/students/student-2/grades", instructorToken(t), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	envelope := validateContract(t, "grade_summary.schema.json", resp)
	data := envelope["data"].(map[string]interface{})
	require.Equal(t, "student-2", data["user_id"])
	require.NotNil(t, data["total"])
}

func TestSubmissionWithRawScoreIsCreated(t *testing.T) {
	app := newCourseApp(t)

	resp := app.do(t, http.MethodPost, "/api/v1/submissions", studentToken(t), map[string]interface{}{
		"assignment_id": "week-03-lab",
		"raw_score":     90,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	data := decode(t, resp)["data"].(map[string]interface{})
	require.Equal(t, "week-03-lab", data["assignment_id"])
	require.Equal(t, models.GradingStatusProvided, data["grading_status"])
	require.EqualValues(t, 90, data["original_score"])

	record, err := app.progress.Get(context.Background(), "student-1", "week-03-lab")
	require.NoError(t, err)
	require.NotNil(t, record.Score)
}

func TestSubmissionRejectsQuizAssignments(t *testing.T) {
	app := newCourseApp(t)

	resp := app.do(t, http.MethodPost, "/api/v1/submissions", studentToken(t), map[string]interface{}{
		"assignment_id": "week-02-quiz",
		"raw_score":     90,
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestQuizAttemptRejectionReturnsConflictWithState(t *testing.T) {
	app := newCourseApp(t)

	unlock := app.do(t, http.MethodPost, "/api/v1/instructor/overrides/unlock", instructorToken(t), map[string]interface{}{
		"user_id":       "student-1",
		"assignment_id": "week-02-quiz",
		"reason":        "extension",
	})
	require.Equal(t, fiber.StatusOK, unlock.StatusCode)

	first := app.do(t, http.MethodPost, "/api/v1/quizzes/week-02-quiz/attempts", studentToken(t), map[string]interface{}{
		"score":        60,
		"max_attempts": 1,
	})
	require.Equal(t, fiber.StatusOK, first.StatusCode)
	accepted := decode(t, first)["data"].(map[string]interface{})
	require.Equal(t, true, accepted["accepted"])
	require.EqualValues(t, 1, accepted["attempt"])

	second := app.do(t, http.MethodPost, "/api/v1/quizzes/week-02-quiz/attempts", studentToken(t), map[string]interface{}{
		"score":        80,
		"max_attempts": 1,
	})
	require.Equal(t, fiber.StatusConflict, second.StatusCode)
	envelope := decode(t, second)
	require.Equal(t, false, envelope["success"])
	rejected := envelope["data"].(map[string]interface{})
	require.Equal(t, "max_attempts_reached", rejected["reason"])
	require.EqualValues(t, 60, rejected["best_score"])

	history := app.do(t, http.MethodGet, "/api/v1/quizzes/week-02-quiz/attempts", studentToken(t), nil)
	require.Equal(t, fiber.StatusOK, history.StatusCode)
	listed := decode(t, history)["data"].(map[string]interface{})
	require.Len(t, listed["history"], 1)
}

func TestParticipationUnknownSectionIsNotFound(t *testing.T) {
	app := newCourseApp(t)

	resp := app.do(t, http.MethodPost, "/api/v1/participation", studentToken(t), map[string]interface{}{
		"section_id": "week-99-loops",
	})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCodeRunWithoutSandboxSavesAndIsRateLimited(t *testing.T) {
	app := newCourseApp(t)
	body := map[string]interface{}{
		"assignment_id": "week-03-lab",
		"code":          "Console.WriteLine(\"hi\");",
	}

	for i := 0; i < 2; i++ {
		resp := app.do(t, http.MethodPost, "/api/v1/code/run", studentToken(t), body)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		data := decode(t, resp)["data"].(map[string]interface{})
		require.Equal(t, true, data["saved"])
		require.Equal(t, false, data["ran"])
	}

	resp := app.do(t, http.MethodPost, "/api/v1/code/run", studentToken(t), body)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	save := app.do(t, http.MethodPost, "/api/v1/code/save", studentToken(t), body)
	require.Equal(t, fiber.StatusOK, save.StatusCode)
}

func TestInstructorRoutesRejectStudents(t *testing.T) {
	app := newCourseApp(t)

	for _, path := range []string{"/api/v1/instructor/gradebook", "/api/v1/instructor/export.csv", "/api/v1/instructor/audit"} {
		resp := app.do(t, http.MethodGet, path, studentToken(t), nil)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode, path)
	}

	resp := app.do(t, http.MethodPost, "/api/v1/instructor/overrides/score", studentToken(t), map[string]interface{}{
		"user_id":       "student-1",
		"assignment_id": "week-02-lab",
		"score":         100,
		"reason":        "self-service",
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestGradebookContract(t *testing.T) {
	app := newCourseApp(t)
	ctx := context.Background()
	require.NoError(t, app.progress.RegisterStudent(ctx, "student-1"))
	require.NoError(t, app.progress.Save(ctx, "student-1", "week-02-lab", map[string]string{
		models.FieldScore:  "75",
		models.FieldStatus: string(models.StatusCompleted),
	}))

	resp := app.do(t, http.MethodGet, "/api/v1/instructor/gradebook", instructorToken(t), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	envelope := validateContract(t, "gradebook.schema.json", resp)
	rows := envelope["data"].(map[string]interface{})["rows"].([]interface{})
	require.Len(t, rows, 1)
	require.Equal(t, "student-1", rows[0].(map[string]interface{})["user_id"])
}

func TestOverrideScoreContractAndAudit(t *testing.T) {
	app := newCourseApp(t)
	ctx := context.Background()
	require.NoError(t, app.progress.RegisterStudent(ctx, "student-1"))
	require.NoError(t, app.progress.Save(ctx, "student-1", "week-02-lab", map[string]string{
		models.FieldScore:  "70",
		models.FieldStatus: string(models.StatusCompleted),
	}))

	resp := app.do(t, http.MethodPost, "/api/v1/instructor/overrides/score", instructorToken(t), map[string]interface{}{
		"user_id":       "student-1",
		"assignment_id": "week-02-lab",
		"score":         95,
		"reason":        "regrade",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	envelope := validateContract(t, "override.schema.json", resp)
	audit := envelope["data"].(map[string]interface{})["audit"].(map[string]interface{})
	require.EqualValues(t, 70, audit["previous_score"])
	require.EqualValues(t, 95, audit["new_score"])
	require.Equal(t, "prof@x.edu", audit["instructor"])

	log := app.do(t, http.MethodGet, "/api/v1/instructor/audit?limit=10", instructorToken(t), nil)
	require.Equal(t, fiber.StatusOK, log.StatusCode)
	entries := decode(t, log)["data"].([]interface{})
	require.Len(t, entries, 1)
}

func TestOverrideScoreValidation(t *testing.T) {
	app := newCourseApp(t)

	resp := app.do(t, http.MethodPost, "/api/v1/instructor/overrides/score", instructorToken(t), map[string]interface{}{
		"user_id":       "student-1",
		"assignment_id": "week-02-lab",
		"score":         140,
		"reason":        "",
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	bad := app.do(t, http.MethodGet, "/api/v1/instructor/audit?limit=abc", instructorToken(t), nil)
	require.Equal(t, fiber.StatusBadRequest, bad.StatusCode)
}

func TestWaivePenaltyWithoutOriginalScoreConflicts(t *testing.T) {
	app := newCourseApp(t)

	resp := app.do(t, http.MethodPost, "/api/v1/instructor/overrides/waive-penalty", instructorToken(t), map[string]interface{}{
		"user_id":       "student-1",
		"assignment_id": "week-02-lab",
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestExportCSVDownload(t *testing.T) {
	app := newCourseApp(t)
	ctx := context.Background()
	require.NoError(t, app.progress.RegisterStudent(ctx, "student-1"))
	require.NoError(t, app.progress.Save(ctx, "student-1", "week-02-lab", map[string]string{
		models.FieldScore:  "88",
		models.FieldStatus: string(models.StatusCompleted),
	}))

	resp := app.do(t, http.MethodGet, "/api/v1/instructor/export.csv", instructorToken(t), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), "text/csv"))
	require.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), ".csv")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	require.True(t, strings.HasPrefix(lines[0], "Student,User ID,"))
	require.True(t, strings.HasPrefix(lines[1], "Points Possible,"))
	require.Contains(t, lines[2], "student-1")
}

func TestExportXLSXDownload(t *testing.T) {
	app := newCourseApp(t)

	resp := app.do(t, http.MethodGet, "/api/v1/instructor/export.xlsx", instructorToken(t), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get(fiber.HeaderContentType), "spreadsheetml")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// xlsx files are zip archives.
	require.True(t, bytes.HasPrefix(body, []byte("PK")))
}

func TestHealthReportsDependencies(t *testing.T) {
	app := newCourseApp(t)

	resp := app.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]interface{})
	require.Equal(t, "ok", data["status"])
	require.Equal(t, "ok", data["checks"].(map[string]interface{})["redis"])

	app.mini.SetError("LOADING dataset")
	degraded := app.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, fiber.StatusServiceUnavailable, degraded.StatusCode)
	require.Equal(t, "degraded", decode(t, degraded)["data"].(map[string]interface{})["status"])
}

func TestHealthCheckWithoutDependencies(t *testing.T) {
	app := fiber.New()
	app.Get("/health", handler.HealthCheck(config.Config{AppName: "course"}, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	failing := fiber.New()
	failing.Get("/health", handler.HealthCheck(config.Config{AppName: "course"}, map[string]handler.DependencyCheck{
		"archive": func(context.Context) error { return errors.New("down") },
	}))
	resp, err = failing.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
