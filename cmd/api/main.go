package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/config"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/database"
	"github.com/noah-isme/csharp-course-api/internal/events"
	"github.com/noah-isme/csharp-course-api/internal/grading"
	"github.com/noah-isme/csharp-course-api/internal/handler"
	"github.com/noah-isme/csharp-course-api/internal/middleware"
	"github.com/noah-isme/csharp-course-api/internal/observability"
	"github.com/noah-isme/csharp-course-api/internal/ratelimit"
	"github.com/noah-isme/csharp-course-api/internal/repository"
	"github.com/noah-isme/csharp-course-api/internal/router"
	"github.com/noah-isme/csharp-course-api/internal/service"
	"github.com/noah-isme/csharp-course-api/pkg/ai"
	"github.com/noah-isme/csharp-course-api/pkg/docker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	observability.RegisterMetrics()

	calendar := course.DefaultCalendar()
	if cfg.CalendarFile != "" {
		calendar, err = course.LoadCalendar(cfg.CalendarFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.CalendarFile).Msg("failed to load course calendar")
		}
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	archiveDB, err := database.ConnectArchive(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to submission archive")
	}
	var archive repository.SubmissionArchiveRepository
	if archiveDB != nil {
		archive = repository.NewSubmissionArchiveRepository(archiveDB)
	} else {
		logger.Warn().Msg("no database configured; submissions will not be archived")
	}

	var grader ai.Grader
	if cfg.OpenAIAPIKey != "" {
		openaiGrader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.AIGradingTimeout,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create ai grader")
		}
		grader = openaiGrader
	} else {
		logger.Warn().Msg("openai api key not set; content submissions will be recorded as ungraded")
	}

	var runner service.CodeRunner
	executor, err := docker.NewDockerExecutor(docker.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("docker unavailable; code runs will only be saved")
	} else {
		defer executor.Close()
		runner = docker.NewCSharpRunner(executor, docker.CSharpRunnerConfig{
			Image:         cfg.DotnetImage,
			Timeout:       cfg.ExecutionTimeout,
			MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
			CPUShares:     int64(cfg.CodeRunCPUShares),
		})
	}

	publisher, closePublisher, err := events.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable; grade events disabled")
		publisher, closePublisher = events.NopPublisher{}, func() {}
	}
	defer closePublisher()

	validate := validator.New(validator.WithRequiredStructEnabled())
	instructors := auth.NewInstructorAllowList(auth.StaticInstructors, cfg.Instructors)

	progressRepo := repository.NewProgressRepository(redisClient)
	historyRepo := repository.NewAttemptHistoryRepository(redisClient)
	participationRepo := repository.NewParticipationRepository(redisClient)
	auditRepo := repository.NewAuditRepository(redisClient)
	profileRepo := repository.NewProfileRepository(redisClient)

	profileService := service.NewProfileService(profileRepo, logger)
	gradeService := service.NewGradeService(calendar, progressRepo, participationRepo, profileService, logger)
	submissionService := service.NewSubmissionService(calendar, progressRepo, archive, grader, publisher, profileService, validate, logger)
	quizService := service.NewQuizService(calendar, grading.NewAttemptPolicy(cfg.MaxQuizAttempts), progressRepo, historyRepo, publisher, profileService, validate, logger)
	participationService := service.NewParticipationService(calendar, progressRepo, participationRepo, profileService, validate, logger)
	codeService := service.NewCodeService(progressRepo, runner, validate, logger)
	overrideService := service.NewOverrideService(instructors, progressRepo, historyRepo, auditRepo, publisher, validate, logger)
	exportService := service.NewExportService(calendar, gradeService, profileService, logger)

	runBuckets := ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitRefill, nil)
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(10).Minutes().Do(func() {
		if pruned := runBuckets.Prune(); pruned > 0 {
			logger.Debug().Int("pruned", pruned).Msg("pruned idle rate limit buckets")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule rate limit pruning")
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	studentHandler := handler.NewStudentHandler(handler.StudentServices{
		Submissions:   submissionService,
		Quizzes:       quizService,
		Participation: participationService,
		Code:          codeService,
		Grades:        gradeService,
	}, middleware.RateLimit("code_run", runBuckets), logger)
	instructorHandler := handler.NewInstructorHandler(gradeService, overrideService, exportService, logger)

	healthChecks := map[string]handler.DependencyCheck{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if archiveDB != nil {
		healthChecks["archive"] = archivePing(archiveDB)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		StudentHandler:    studentHandler,
		InstructorHandler: instructorHandler,
		HealthChecks:      healthChecks,
		JWTMiddleware:     middleware.Authenticate(auth.NewJWTVerifier(cfg.JWTSecret)),
		InstructorGate:    middleware.RequireInstructor(instructors, logger),
	})

	logger.Info().
		Str("addr", cfg.HTTPAddress()).
		Int("instructors", instructors.Size()).
		Int("weeks", len(calendar.Weeks())).
		Msg("starting course api")

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, cfg.ShutdownGracePeriod, logger)
}

func archivePing(db *gorm.DB) handler.DependencyCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func waitForShutdown(app *fiber.App, grace time.Duration, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	if grace <= 0 {
		grace = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
