package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/ratelimit"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newProtectedApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(Authenticate(auth.NewJWTVerifier(testSecret)))
	for _, handler := range handlers {
		app.Use(handler)
	}
	app.Get("/whoami", func(c *fiber.Ctx) error {
		identity, _ := IdentityFromContext(c)
		return c.SendString(identity.SubjectID)
	})
	return app
}

func get(t *testing.T, app *fiber.App, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuthenticateBindsIdentity(t *testing.T) {
	app := newProtectedApp()
	token := signToken(t, jwt.MapClaims{"sub": "student-1", "email": "s@x.edu"})

	resp := get(t, app, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(CorrelationHeader))
}

func TestAuthenticateRejectsMissingOrForgedTokens(t *testing.T) {
	app := newProtectedApp()

	require.Equal(t, fiber.StatusUnauthorized, get(t, app, "").StatusCode)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "student-1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, get(t, app, forged).StatusCode)
}

func TestRequireInstructorChecksAllowList(t *testing.T) {
	instructors := auth.NewInstructorAllowList([]string{"prof@x.edu"}, nil)
	app := newProtectedApp(RequireInstructor(instructors, zerolog.Nop()))

	allowed := signToken(t, jwt.MapClaims{"sub": "prof-1", "email": "Prof@X.edu"})
	require.Equal(t, fiber.StatusOK, get(t, app, allowed).StatusCode)

	sameDomain := signToken(t, jwt.MapClaims{"sub": "ta-1", "email": "ta@x.edu"})
	require.Equal(t, fiber.StatusForbidden, get(t, app, sameDomain).StatusCode)
}

func TestRateLimitRejectsWhenBucketEmpty(t *testing.T) {
	now := time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(2, 1, func() time.Time { return now })
	app := newProtectedApp(RateLimit("code_run", limiter))

	alice := signToken(t, jwt.MapClaims{"sub": "alice"})
	bob := signToken(t, jwt.MapClaims{"sub": "bob"})

	require.Equal(t, fiber.StatusOK, get(t, app, alice).StatusCode)
	require.Equal(t, fiber.StatusOK, get(t, app, alice).StatusCode)
	require.Equal(t, fiber.StatusTooManyRequests, get(t, app, alice).StatusCode)
	require.Equal(t, fiber.StatusOK, get(t, app, bob).StatusCode)

	now = now.Add(time.Second)
	require.Equal(t, fiber.StatusOK, get(t, app, alice).StatusCode)
}

func TestSurfaceOfClassifiesPaths(t *testing.T) {
	require.Equal(t, "instructor", surfaceOf("/api/v1/instructor/gradebook"))
	require.Equal(t, "student", surfaceOf("/api/v1/grades/me"))
	require.Empty(t, surfaceOf("/api/v1/health"))
	require.Empty(t, surfaceOf("/api/v1/metrics"))
	require.Empty(t, surfaceOf("/favicon.ico"))
}

func TestCorrelationIDEchoesOrGenerates(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetCorrelationID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "corr-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "corr-1", resp.Header.Get(CorrelationHeader))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get(CorrelationHeader))
}
