package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-credential-service/internal/api/dto"
	"github.com/spec-kit/qr-credential-service/internal/auth"
	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/observability"
	"github.com/spec-kit/qr-credential-service/internal/service"
	apperrors "github.com/spec-kit/qr-credential-service/pkg/util"
)

// msgUnparseable covers decode text no heuristic could extract a token from.
// Distinct from the store's "not found": the payload never became a lookup.
const msgUnparseable = "Invalid QR code"

// ScanHandler serves the scanner-facing validation endpoints.
type ScanHandler struct {
	validation *service.ValidationService
	metrics    *observability.Metrics
}

// NewScanHandler constructs handler.
func NewScanHandler(validation *service.ValidationService, metrics *observability.Metrics) *ScanHandler {
	return &ScanHandler{validation: validation, metrics: metrics}
}

// Parse POST /scan/parse extracts a token from raw scanned text without
// touching the store.
func (h *ScanHandler) Parse(c *fiber.Ctx) error {
	raw, err := scanBody(c)
	if err != nil {
		return err
	}
	result := h.validation.ParsePayload(raw)
	return c.JSON(fiber.Map{"data": dto.FromParseResult(&result)})
}

// Check POST /scan/check reports validity without consuming a use.
func (h *ScanHandler) Check(c *fiber.Ctx) error {
	raw, err := scanBody(c)
	if err != nil {
		return err
	}
	result := h.validation.ParsePayload(raw)
	if !result.Valid {
		outcome := domain.InvalidOutcome(msgUnparseable)
		return c.JSON(fiber.Map{"data": dto.FromScanOutcome(outcome)})
	}
	outcome := h.validation.CheckValidity(c.UserContext(), result.Token)
	h.metrics.RecordScan(string(outcome.Classification))
	return c.JSON(fiber.Map{"data": dto.FromScanOutcome(outcome)})
}

// Validate POST /scan/validate atomically claims a use when the credential
// is valid.
func (h *ScanHandler) Validate(c *fiber.Ctx) error {
	raw, err := scanBody(c)
	if err != nil {
		return err
	}
	result := h.validation.ParsePayload(raw)
	if !result.Valid {
		outcome := domain.InvalidOutcome(msgUnparseable)
		return c.JSON(fiber.Map{"data": dto.FromScanOutcome(outcome)})
	}

	scannerID, deviceID := callerIdentity(c)
	outcome := h.validation.ValidateAndUse(c.UserContext(), result.Token, scannerID, deviceID)
	h.metrics.RecordScan(string(outcome.Classification))
	return c.JSON(fiber.Map{"data": dto.FromScanOutcome(outcome)})
}

func scanBody(c *fiber.Ctx) (string, error) {
	var req dto.ParseScanRequest
	if err := c.BodyParser(&req); err != nil {
		return "", apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Data) == "" {
		return "", apperrors.NewValidationError("data required", nil)
	}
	return req.Data, nil
}

func callerIdentity(c *fiber.Ctx) (scannerID, deviceID *string) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, nil
	}
	if principal.ActorID != "" {
		id := principal.ActorID
		scannerID = &id
	}
	if principal.Device != nil {
		id := principal.Device.ID
		deviceID = &id
	}
	return scannerID, deviceID
}
