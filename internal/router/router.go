package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/csharp-course-api/internal/config"
	"github.com/noah-isme/csharp-course-api/internal/handler"
	"github.com/noah-isme/csharp-course-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StudentHandler    *handler.StudentHandler
	InstructorHandler *handler.InstructorHandler
	HealthChecks      map[string]handler.DependencyCheck
	JWTMiddleware     fiber.Handler
	InstructorGate    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))
	api.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Instructor routes are registered first so the student group's middleware does not
	// run twice for them.
	if deps.InstructorHandler != nil {
		gate := deps.InstructorGate
		if gate == nil {
			gate = func(c *fiber.Ctx) error { return fiber.ErrForbidden }
		}
		instructor := api.Group("/instructor", jwtMiddleware, gate)
		deps.InstructorHandler.Register(instructor)
	}

	if deps.StudentHandler != nil {
		student := api.Group("", jwtMiddleware)
		deps.StudentHandler.Register(student)
	}
}
