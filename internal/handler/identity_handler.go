package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/middleware"
	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/internal/utils"
)

// IdentityHandler exposes sign-up role registration and the caller's identity.
type IdentityHandler struct {
	service service.IdentityService
	logger  zerolog.Logger
}

// NewIdentityHandler builds an identity handler instance.
func NewIdentityHandler(service service.IdentityService, logger zerolog.Logger) *IdentityHandler {
	return &IdentityHandler{
		service: service,
		logger:  logger.With().Str("component", "identity_handler").Logger(),
	}
}

// RegisterSignup attaches the sign-up route, which only needs a verified token.
func (h *IdentityHandler) RegisterSignup(router fiber.Router, auth fiber.Handler) {
	router.Post("/users", auth, h.register)
}

// Register attaches the routes that need a resolved identity.
func (h *IdentityHandler) Register(router fiber.Router) {
	router.Get("/me", h.me)
}

func (h *IdentityHandler) register(c *fiber.Ctx) error {
	var payload dto.RegisterUserRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.Email = middleware.LocalString(c, middleware.LocalUserEmail)

	user, err := h.service.Register(middleware.RequestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "identity registered", user)
}

func (h *IdentityHandler) me(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromContext(c)

	user, err := h.service.Me(middleware.RequestContext(c), principal.Email)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "identity resolved", user)
}
