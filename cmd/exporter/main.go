package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/config"
	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/database"
	"github.com/noah-isme/csharp-course-api/internal/repository"
	"github.com/noah-isme/csharp-course-api/internal/service"
)

type jobOptions struct {
	format string
	dir    string
	every  time.Duration
}

func main() {
	cfg, err := config.LoadJob()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	opts := jobOptions{}
	flag.StringVar(&opts.format, "format", "csv", "export format: csv, xlsx or both")
	flag.StringVar(&opts.dir, "dir", cfg.ExportDirectory, "directory the export files are written to")
	flag.DurationVar(&opts.every, "every", cfg.ExportEvery, "repeat the export on this interval; 0 exports once")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "course-exporter").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, opts, logger)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("exporter failed")
		os.Exit(1)
	}
}

// run exports once, or on every tick until ctx is cancelled. Connections it
// opens are closed before it returns.
func run(ctx context.Context, cfg config.Config, opts jobOptions, logger zerolog.Logger) error {
	formats, err := parseFormats(opts.format)
	if err != nil {
		return err
	}

	calendar := course.DefaultCalendar()
	if cfg.CalendarFile != "" {
		calendar, err = course.LoadCalendar(cfg.CalendarFile)
		if err != nil {
			return fmt.Errorf("load course calendar %s: %w", cfg.CalendarFile, err)
		}
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	profiles := service.NewProfileService(repository.NewProfileRepository(redisClient), logger)
	grades := service.NewGradeService(calendar, repository.NewProgressRepository(redisClient), repository.NewParticipationRepository(redisClient), profiles, logger)
	exporter := newFileExporter(service.NewExportService(calendar, grades, profiles, logger), opts.dir, formats, logger)

	if opts.every <= 0 {
		if _, err := exporter.Export(ctx, time.Now()); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return nil
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(opts.every).Do(func() {
		if _, err := exporter.Export(ctx, time.Now()); err != nil {
			logger.Error().Err(err).Msg("scheduled export failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule export: %w", err)
	}

	logger.Info().Dur("every", opts.every).Str("dir", opts.dir).Msg("scheduled grade export started")
	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	logger.Info().Msg("exporter stopped")
	return nil
}
