package handler

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/internal/utils"
)

// RosterHandler manages teacher and student associations.
type RosterHandler struct {
	service service.RosterService
	logger  zerolog.Logger
}

// NewRosterHandler builds a roster handler instance.
func NewRosterHandler(service service.RosterService, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		service: service,
		logger:  logger.With().Str("component", "roster_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *RosterHandler) Register(router fiber.Router) {
	teacherOnly := middleware.AuthOptions{Role: middleware.AuthRoleTeacher}

	router.Get("/students", middleware.WithAuth(h.listStudents, teacherOnly))
	router.Post("/students", middleware.WithAuth(h.addStudent, teacherOnly))
	router.Delete("/students/:email", middleware.WithAuth(h.removeStudent, teacherOnly))
	router.Get("/teachers", middleware.WithAuth(h.listTeachers, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
}

func (h *RosterHandler) listStudents(c *fiber.Ctx) error {
	roster, err := h.service.ListStudents(middleware.RequestContext(c), middleware.PrincipalFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, roster, "students retrieved", fiber.Map{"count": len(roster.Emails)})
}

func (h *RosterHandler) addStudent(c *fiber.Ctx) error {
	var payload dto.RosterAddRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	roster, err := h.service.AddStudent(middleware.RequestContext(c), middleware.PrincipalFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student added", roster)
}

func (h *RosterHandler) removeStudent(c *fiber.Ctx) error {
	email, err := url.PathUnescape(c.Params("email"))
	if err != nil || email == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student email")
	}

	if err := h.service.RemoveStudent(middleware.RequestContext(c), middleware.PrincipalFromContext(c), email); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "student removed", nil)
}

func (h *RosterHandler) listTeachers(c *fiber.Ctx) error {
	roster, err := h.service.ListTeachers(middleware.RequestContext(c), middleware.PrincipalFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, roster, "teachers retrieved", fiber.Map{"count": len(roster.Emails)})
}
