package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/service"
	"github.com/noah-isme/csharp-course-api/internal/utils"
)

// StudentServices groups the services behind the student routes.
type StudentServices struct {
	Submissions   service.SubmissionService
	Quizzes       service.QuizService
	Participation service.ParticipationService
	Code          service.CodeService
	Grades        service.GradeService
}

// StudentHandler serves the authenticated student routes.
type StudentHandler struct {
	services   StudentServices
	runLimiter fiber.Handler
	logger     zerolog.Logger
}

// NewStudentHandler builds a student handler instance. runLimiter guards the sandbox route
// and may be nil.
func NewStudentHandler(services StudentServices, runLimiter fiber.Handler, logger zerolog.Logger) *StudentHandler {
	if runLimiter == nil {
		runLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &StudentHandler{
		services:   services,
		runLimiter: runLimiter,
		logger:     logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *StudentHandler) Register(router fiber.Router) {
	router.Post("/submissions", h.submit)
	router.Post("/quizzes/:quizId/attempts", h.attempt)
	router.Get("/quizzes/:quizId/attempts", h.history)
	router.Post("/participation", h.participate)
	router.Post("/code/save", h.saveCode)
	router.Post("/code/run", h.runLimiter, h.runCode)
	router.Get("/grades/me", h.grades)
}

func (h *StudentHandler) submit(c *fiber.Ctx) error {
	identity, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	var payload dto.GradedWorkRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.services.Submissions.SubmitGradedWork(c.UserContext(), identity, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	message := "submission graded"
	if result.GradingStatus == "ungraded" {
		message = "submission saved; grading pending"
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, message, result)
}

func (h *StudentHandler) attempt(c *fiber.Ctx) error {
	identity, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	var payload dto.QuizAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.services.Quizzes.SubmitAttempt(c.UserContext(), identity, c.Params("quizId"), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	if !result.Accepted {
		return utils.SendErrorWithData(c, fiber.StatusConflict, "quiz attempt rejected: "+result.Reason, result)
	}

	return utils.SendSuccess(c, "quiz attempt recorded", result)
}

func (h *StudentHandler) history(c *fiber.Ctx) error {
	identity, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := h.services.Quizzes.History(c.UserContext(), identity.SubjectID, c.Params("quizId"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt history retrieved", result)
}

func (h *StudentHandler) participate(c *fiber.Ctx) error {
	identity, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	var payload dto.ParticipationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.services.Participation.Record(c.UserContext(), identity, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "participation recorded", result)
}

func (h *StudentHandler) saveCode(c *fiber.Ctx) error {
	identity, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	var payload dto.CodeSaveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.services.Code.Save(c.UserContext(), identity, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "code saved", result)
}

func (h *StudentHandler) runCode(c *fiber.Ctx) error {
	identity, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	var payload dto.CodeRunRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.services.Code.Run(c.UserContext(), identity, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	message := "code executed"
	if !result.Ran {
		message = "code saved; run unavailable"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *StudentHandler) grades(c *fiber.Ctx) error {
	identity, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := h.services.Grades.StudentSummary(c.UserContext(), identity.SubjectID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grades retrieved", result)
}

func (h *StudentHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err)
}
