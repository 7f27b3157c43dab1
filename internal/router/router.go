package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/perception-api/internal/config"
	"github.com/noah-isme/perception-api/internal/handler"
	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	IdentityHandler   *handler.IdentityHandler
	RosterHandler     *handler.RosterHandler
	PaperHandler      *handler.PaperHandler
	SubmissionHandler *handler.SubmissionHandler
	EvaluationHandler *handler.EvaluationHandler
	ActivityHandler   *handler.ActivityHandler
	ExportHandler     *handler.ExportHandler
	EventHandler      *handler.EventHandler
	HealthProbes      map[string]handler.HealthProbe
	// JWTMiddleware verifies the bearer token and binds the caller's email.
	JWTMiddleware fiber.Handler
	// IdentityMiddleware resolves the caller's role; unknown callers are rejected.
	IdentityMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := orNext(deps.JWTMiddleware)
	identityMiddleware := orNext(deps.IdentityMiddleware)

	// Sign-up only needs a verified token; the role does not exist yet.
	if deps.IdentityHandler != nil {
		deps.IdentityHandler.RegisterSignup(api, jwtMiddleware)
	}

	authed := api.Group("", jwtMiddleware, identityMiddleware)

	if deps.IdentityHandler != nil {
		deps.IdentityHandler.Register(authed.Group("/users"))
	}

	if deps.RosterHandler != nil {
		deps.RosterHandler.Register(authed.Group("/roster"))
	}

	papers := authed.Group("/papers")
	if deps.PaperHandler != nil {
		deps.PaperHandler.Register(papers)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(papers)
	}
	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(papers)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(papers)
	}
	if deps.ExportHandler != nil {
		deps.ExportHandler.Register(papers)
	}

	if deps.EventHandler != nil {
		deps.EventHandler.Register(authed.Group("/events", middleware.RequireRole(models.RoleTeacher, models.RoleStudent)))
	}
}

func orNext(h fiber.Handler) fiber.Handler {
	if h == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return h
}
