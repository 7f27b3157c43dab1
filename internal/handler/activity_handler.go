package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/internal/utils"
)

// ActivityHandler exposes the audit trail of a paper to its owner.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches the routes to the papers router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/:id/activity", middleware.WithAuth(h.list, middleware.AuthOptions{Role: middleware.AuthRoleTeacher}))
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	entries, err := h.service.ListForPaper(middleware.RequestContext(c), middleware.PrincipalFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, entries, "activity retrieved", fiber.Map{"count": len(entries)})
}
