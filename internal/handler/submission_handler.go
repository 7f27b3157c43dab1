package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/internal/utils"
)

// SubmissionHandler manages a student's own submission for a paper.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the papers router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	studentOnly := middleware.AuthOptions{Role: middleware.AuthRoleStudent}

	router.Put("/:id/submission", middleware.WithAuth(h.upsert, studentOnly))
	router.Get("/:id/submission", middleware.WithAuth(h.result, studentOnly))
}

func (h *SubmissionHandler) upsert(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmissionUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	saved, err := h.service.Upsert(middleware.RequestContext(c), middleware.PrincipalFromContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	message := "answers saved"
	if saved.Finalized {
		message = "submission finalized"
	}
	return utils.SendSuccess(c, message, saved)
}

func (h *SubmissionHandler) result(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	view, err := h.service.ResultView(middleware.RequestContext(c), middleware.PrincipalFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission retrieved", view)
}
