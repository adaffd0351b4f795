package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-credential-service/internal/api/dto"
	"github.com/spec-kit/qr-credential-service/internal/auth"
	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/repository"
	apperrors "github.com/spec-kit/qr-credential-service/pkg/util"
)

// DevicesHandler manages scanner terminal enrollment and token issuance.
type DevicesHandler struct {
	devices    repository.DeviceRepository
	tokens     *auth.TokenManager
	bcryptCost int
}

// NewDevicesHandler constructs handler.
func NewDevicesHandler(devices repository.DeviceRepository, tokens *auth.TokenManager, bcryptCost int) *DevicesHandler {
	return &DevicesHandler{devices: devices, tokens: tokens, bcryptCost: bcryptCost}
}

// Register POST /admin/devices enrolls a new scanner terminal.
func (h *DevicesHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Label) == "" || len(req.Key) < 12 {
		return apperrors.NewValidationError("label and key (min 12 chars) required", nil)
	}

	hash, err := auth.HashDeviceKey(req.Key, h.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	device := &domain.ScannerDevice{Label: req.Label, KeyHash: hash, IsActive: true}
	if err := h.devices.Create(c.UserContext(), device); err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromDevice(device)})
}

// IssueToken POST /devices/:id/token exchanges an enrollment key for a JWT.
func (h *DevicesHandler) IssueToken(c *fiber.Ctx) error {
	var req struct {
		Key string `json:"key"`
	}
	if err := c.BodyParser(&req); err != nil || req.Key == "" {
		return apperrors.NewValidationError("key required", nil)
	}

	device, err := h.devices.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized("unknown device")
		}
		return apperrors.MapError(err)
	}
	if !device.IsActive {
		return apperrors.NewForbidden("device deactivated")
	}
	if err := auth.CompareDeviceKey(device.KeyHash, req.Key); err != nil {
		return apperrors.NewUnauthorized("invalid key")
	}

	token, expiresAt, err := h.tokens.GenerateToken(device.ID, domain.ActorTypeScanner, &device.ID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{Token: token, ExpiresAt: expiresAt}})
}
