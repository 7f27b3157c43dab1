package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/service"
	"github.com/noah-isme/perception-api/internal/utils"
)

// RoleResolver maps an authenticated email to its principal.
type RoleResolver interface {
	Resolve(ctx context.Context, email string) (service.Principal, error)
}

// ResolveIdentity attaches the caller's role to the request. Emails without a
// registered role are rejected; no role is ever assumed.
func ResolveIdentity(resolver RoleResolver, logger zerolog.Logger) fiber.Handler {
	log := logger.With().Str("component", "identity_middleware").Logger()

	return func(c *fiber.Ctx) error {
		email := LocalString(c, LocalUserEmail)
		if email == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		principal, err := resolver.Resolve(RequestContext(c), email)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				return utils.Fail(c, fiber.StatusUnauthorized, "identity not registered", fiber.Map{"email": email})
			}
			log.Error().Err(err).Str("correlation_id", GetCorrelationID(c)).Msg("failed to resolve identity")
			return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
		}

		c.Locals(LocalUserEmail, principal.Email)
		c.Locals(LocalUserRole, principal.Role)
		return c.Next()
	}
}

// PrincipalFromContext returns the principal bound by JWTProtected and ResolveIdentity.
func PrincipalFromContext(c *fiber.Ctx) service.Principal {
	return service.Principal{
		Email: LocalString(c, LocalUserEmail),
		Role:  LocalString(c, LocalUserRole),
	}
}

// LocalString reads a string local, returning "" when it is absent.
func LocalString(c *fiber.Ctx, key string) string {
	if value, ok := c.Locals(key).(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
