package handler

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/service"
	"github.com/noah-isme/csharp-course-api/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// InstructorHandler serves the gradebook, override and export routes. Callers are expected
// to be gated by the instructor allow-list; override services check it again.
type InstructorHandler struct {
	grades    service.GradeService
	overrides service.OverrideService
	exports   service.ExportService
	logger    zerolog.Logger
}

// NewInstructorHandler builds an instructor handler instance.
func NewInstructorHandler(grades service.GradeService, overrides service.OverrideService, exports service.ExportService, logger zerolog.Logger) *InstructorHandler {
	return &InstructorHandler{
		grades:    grades,
		overrides: overrides,
		exports:   exports,
		logger:    logger.With().Str("component", "instructor_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *InstructorHandler) Register(router fiber.Router) {
	router.Get("/gradebook", h.gradebook)
	router.Get("/students/:userId/grades", h.studentGrades)

	overrides := router.Group("/overrides")
	overrides.Post("/score", h.overrideScore)
	overrides.Post("/unlock", h.targetAction("quiz unlocked", h.overrides.UnlockQuiz))
	overrides.Post("/waive-penalty", h.targetAction("late penalty waived", h.overrides.WaivePenalty))
	overrides.Post("/reset-attempt", h.targetAction("attempt reset", h.overrides.ResetAttempt))
	overrides.Post("/drop-lowest", h.targetAction("lowest attempt dropped", h.overrides.DropLowestAttempt))

	router.Get("/audit", h.audit)
	router.Get("/export.csv", h.exportCSV)
	router.Get("/export.xlsx", h.exportXLSX)
}

func (h *InstructorHandler) gradebook(c *fiber.Ctx) error {
	book, err := h.grades.Gradebook(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "gradebook retrieved", book)
}

func (h *InstructorHandler) studentGrades(c *fiber.Ctx) error {
	summary, err := h.grades.StudentSummary(c.UserContext(), c.Params("userId"))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "student grades retrieved", summary)
}

func (h *InstructorHandler) overrideScore(c *fiber.Ctx) error {
	identity, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	var payload dto.OverrideScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.overrides.OverrideScore(c.UserContext(), identity, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "score overridden", result)
}

type targetOverride func(ctx context.Context, instructor auth.Identity, payload dto.OverrideTargetRequest) (dto.OverrideResponse, error)

func (h *InstructorHandler) targetAction(message string, action targetOverride) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := currentIdentity(c)
		if !ok {
			return unauthorized(c)
		}

		var payload dto.OverrideTargetRequest
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}

		result, err := action(c.UserContext(), identity, payload)
		if err != nil {
			return h.handleError(c, err)
		}
		return utils.SendSuccess(c, message, result)
	}
}

func (h *InstructorHandler) audit(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	entries, err := h.overrides.AuditLog(c.UserContext(), dto.AuditQuery{Limit: limit})
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "audit log retrieved", entries)
}

func (h *InstructorHandler) exportCSV(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.exports.WriteCSV(c.UserContext(), &buf); err != nil {
		return h.handleError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, exportDisposition("csv"))
	return c.Send(buf.Bytes())
}

func (h *InstructorHandler) exportXLSX(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.exports.WriteXLSX(c.UserContext(), &buf); err != nil {
		return h.handleError(c, err)
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, exportDisposition("xlsx"))
	return c.Send(buf.Bytes())
}

func exportDisposition(ext string) string {
	return fmt.Sprintf("attachment; filename=\"grades-%s.%s\"", time.Now().UTC().Format("20060102"), ext)
}

func (h *InstructorHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err)
}
