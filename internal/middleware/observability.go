package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/observability"
)

const (
	apiPrefix        = "/api/v1"
	instructorPrefix = apiPrefix + "/instructor"
)

// slowRequest is the point past which a successful request is logged at warn.
const slowRequest = 2 * time.Second

// Observability records request metrics for the student and instructor
// surfaces and writes one structured log line per request. Health and
// metrics scrapes are not measured.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		surface := surfaceOf(c.Path())
		if surface == "" {
			return err
		}

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()

		observability.HTTPRequests().WithLabelValues(surface, method, route, strconv.Itoa(status)).Inc()
		observability.HTTPLatency().WithLabelValues(surface, method, route).Observe(elapsed.Seconds())

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest || elapsed > slowRequest:
			event = logger.Warn()
		}

		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("surface", surface).
			Str("subject", subjectOf(c)).
			Str("method", method).
			Str("route", route).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("request completed")

		return err
	}
}

func surfaceOf(path string) string {
	switch {
	case !strings.HasPrefix(path, apiPrefix):
		return ""
	case path == apiPrefix+"/health" || path == apiPrefix+"/metrics":
		return ""
	case strings.HasPrefix(path, instructorPrefix):
		return "instructor"
	default:
		return "student"
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

func subjectOf(c *fiber.Ctx) string {
	if identity, ok := IdentityFromContext(c); ok {
		return identity.SubjectID
	}
	return ""
}
