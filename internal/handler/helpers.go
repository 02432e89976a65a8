package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/middleware"
	"github.com/noah-isme/csharp-course-api/internal/service"
	"github.com/noah-isme/csharp-course-api/internal/utils"
)

// courseErrorStatus maps service sentinels to HTTP statuses.
var courseErrorStatus = []struct {
	err    error
	status int
}{
	{service.ErrUnknownAssignment, fiber.StatusNotFound},
	{service.ErrUnknownSection, fiber.StatusNotFound},
	{service.ErrUnknownStudent, fiber.StatusNotFound},
	{service.ErrNotGradedWork, fiber.StatusBadRequest},
	{service.ErrNotQuiz, fiber.StatusBadRequest},
	{service.ErrSubmissionContentRequired, fiber.StatusBadRequest},
	{service.ErrCodeNotText, fiber.StatusUnsupportedMediaType},
	{service.ErrNoOriginalScore, fiber.StatusConflict},
	{service.ErrNoAttempts, fiber.StatusConflict},
	{service.ErrNotInstructor, fiber.StatusForbidden},
}

func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	for _, mapping := range courseErrorStatus {
		if errors.Is(err, mapping.err) {
			return utils.SendError(c, mapping.status, mapping.err.Error())
		}
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	}

	log := middleware.LoggerFor(logger, c)
	log.Error().Err(err).Str("route", c.Path()).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

func currentIdentity(c *fiber.Ctx) (auth.Identity, bool) {
	return middleware.IdentityFromContext(c)
}

func unauthorized(c *fiber.Ctx) error {
	return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
