package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/internal/utils"
)

// EvaluationHandler triggers and resets the scoring of a paper.
type EvaluationHandler struct {
	service service.EvaluationService
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewEvaluationHandler builds an evaluation handler. limiter guards the evaluate route and may be nil.
func NewEvaluationHandler(service service.EvaluationService, limiter fiber.Handler, logger zerolog.Logger) *EvaluationHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &EvaluationHandler{
		service: service,
		limiter: limiter,
		logger:  logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches the routes to the papers router group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	teacherOnly := middleware.AuthOptions{Role: middleware.AuthRoleTeacher}

	router.Post("/:id/evaluate", h.limiter, middleware.WithAuth(h.evaluate, teacherOnly))
	router.Post("/:id/reset", middleware.WithAuth(h.reset, teacherOnly))
}

func (h *EvaluationHandler) evaluate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.service.Evaluate(middleware.RequestContext(c), middleware.PrincipalFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "paper evaluated", summary)
}

func (h *EvaluationHandler) reset(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.service.Reset(middleware.RequestContext(c), middleware.PrincipalFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "evaluation reset", summary)
}
