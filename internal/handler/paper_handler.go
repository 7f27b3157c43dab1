package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/internal/utils"
)

// PaperHandler exposes paper authoring, listing, expiry and the read views.
type PaperHandler struct {
	service service.PaperService
	logger  zerolog.Logger
}

// NewPaperHandler builds a paper handler instance.
func NewPaperHandler(service service.PaperService, logger zerolog.Logger) *PaperHandler {
	return &PaperHandler{
		service: service,
		logger:  logger.With().Str("component", "paper_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *PaperHandler) Register(router fiber.Router) {
	teacherOnly := middleware.AuthOptions{Role: middleware.AuthRoleTeacher}

	router.Get("", middleware.WithAuth(h.list, middleware.AuthOptions{RequireUser: true}))
	router.Post("", middleware.WithAuth(h.create, teacherOnly))
	router.Get("/:id", middleware.WithAuth(h.teacherView, teacherOnly))
	router.Delete("/:id", middleware.WithAuth(h.delete, teacherOnly))
	router.Patch("/:id/expire", middleware.WithAuth(h.expire, teacherOnly))
	router.Patch("/:id/unexpire", middleware.WithAuth(h.unexpire, teacherOnly))
	router.Get("/:id/attempt", middleware.WithAuth(h.attempt, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
}

func (h *PaperHandler) list(c *fiber.Ctx) error {
	papers, err := h.service.List(middleware.RequestContext(c), middleware.PrincipalFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, papers, "papers retrieved", fiber.Map{"count": len(papers)})
}

func (h *PaperHandler) create(c *fiber.Ctx) error {
	var payload dto.PaperCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	paper, err := h.service.Create(middleware.RequestContext(c), middleware.PrincipalFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "paper created", paper)
}

func (h *PaperHandler) teacherView(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	paper, err := h.service.TeacherView(middleware.RequestContext(c), middleware.PrincipalFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "paper retrieved", paper)
}

func (h *PaperHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(middleware.RequestContext(c), middleware.PrincipalFromContext(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "paper deleted", nil)
}

func (h *PaperHandler) expire(c *fiber.Ctx) error {
	return h.toggleExpiry(c, true)
}

func (h *PaperHandler) unexpire(c *fiber.Ctx) error {
	return h.toggleExpiry(c, false)
}

func (h *PaperHandler) toggleExpiry(c *fiber.Ctx, expired bool) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := middleware.RequestContext(c)
	principal := middleware.PrincipalFromContext(c)

	var summary dto.PaperSummary
	message := "paper expired"
	if expired {
		summary, err = h.service.Expire(ctx, principal, id)
	} else {
		summary, err = h.service.Unexpire(ctx, principal, id)
		message = "paper reopened"
	}
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, message, summary)
}

func (h *PaperHandler) attempt(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	view, err := h.service.AttemptView(middleware.RequestContext(c), middleware.PrincipalFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "paper ready to attempt", view)
}
