package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/repository"
	apperrors "github.com/spec-kit/qr-credential-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	ActorType domain.ActorType
	ActorID   string
	Device    *domain.ScannerDevice
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens  *TokenManager
	devices repository.DeviceRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, devices repository.DeviceRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, devices: devices}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{ActorType: claims.Actor, ActorID: claims.ActorID}

	switch claims.Actor {
	case domain.ActorTypeAdmin:
		// Admin identity is carried entirely by the signed claims.
	case domain.ActorTypeScanner:
		device, err := m.devices.GetByID(c.Context(), claims.ActorID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewUnauthorized("device not registered")
			}
			return apperrors.MapError(err)
		}
		if !device.IsActive {
			return apperrors.NewForbidden("device deactivated")
		}
		_ = m.devices.TouchLastSeen(c.Context(), device.ID, time.Now())
		principal.Device = device
	default:
		return apperrors.NewUnauthorized("unknown actor")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
