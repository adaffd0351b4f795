package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-credential-service/internal/api/dto"
	"github.com/spec-kit/qr-credential-service/internal/auth"
	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/observability"
	"github.com/spec-kit/qr-credential-service/internal/repository"
	"github.com/spec-kit/qr-credential-service/internal/service"
	apperrors "github.com/spec-kit/qr-credential-service/pkg/util"
)

// AdminHandler manages credential lifecycle endpoints.
type AdminHandler struct {
	admin   *service.AdminService
	metrics *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(admin *service.AdminService, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{admin: admin, metrics: metrics}
}

// List GET /admin/qr.
func (h *AdminHandler) List(c *fiber.Ctx) error {
	filter := parseQRCodeQuery(c)
	codes, err := h.admin.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.QRCodeResponse, 0, len(codes))
	for i := range codes {
		items = append(items, dto.FromQRCode(&codes[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Revoke POST /admin/qr/:token/revoke.
func (h *AdminHandler) Revoke(c *fiber.Ctx) error {
	principal, err := adminPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RevokeRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.admin.Revoke(c.UserContext(), c.Params("token"), principal.ActorID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": adminActionResponse(result)})
}

// Suspend POST /admin/qr/:token/suspend.
func (h *AdminHandler) Suspend(c *fiber.Ctx) error {
	principal, err := adminPrincipal(c)
	if err != nil {
		return err
	}
	result, err := h.admin.Suspend(c.UserContext(), c.Params("token"), principal.ActorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": adminActionResponse(result)})
}

// Reactivate POST /admin/qr/:token/reactivate.
func (h *AdminHandler) Reactivate(c *fiber.Ctx) error {
	principal, err := adminPrincipal(c)
	if err != nil {
		return err
	}
	result, err := h.admin.Reactivate(c.UserContext(), c.Params("token"), principal.ActorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": adminActionResponse(result)})
}

// ScanHistory GET /admin/qr/:token/scans.
func (h *AdminHandler) ScanHistory(c *fiber.Ctx) error {
	page := parseIntQuery(c.Query("page"), 1)
	pageSize := parseIntQuery(c.Query("page_size"), 50)
	code, logs, err := h.admin.ScanHistory(c.UserContext(), c.Params("token"), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	resp := dto.ScanHistoryResponse{QRCode: dto.FromQRCode(code)}
	resp.Logs = make([]dto.ScanLogResponse, 0, len(logs))
	for i := range logs {
		resp.Logs = append(resp.Logs, dto.FromScanLog(&logs[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ScanStats GET /admin/stats/scans reports validation counts since start,
// keyed by classification.
func (h *AdminHandler) ScanStats(c *fiber.Ctx) error {
	snapshot := h.metrics.ScanSnapshot()
	if snapshot == nil {
		snapshot = map[string]int64{}
	}
	return c.JSON(fiber.Map{"data": snapshot})
}

func adminPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.ActorType != domain.ActorTypeAdmin {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	return principal, nil
}

func adminActionResponse(result *service.AdminActionResult) dto.AdminActionResponse {
	return dto.AdminActionResponse{
		QRCode:  dto.FromQRCode(result.QRCode),
		Outcome: dto.FromScanOutcome(result.Outcome),
	}
}

func parseQRCodeQuery(c *fiber.Ctx) repository.QRCodeFilter {
	filter := repository.QRCodeFilter{}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		s := domain.QRStatus(status)
		filter.Status = &s
	}
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		k := domain.QRKind(kind)
		filter.Kind = &k
	}
	if owner := strings.TrimSpace(c.Query("owner_id")); owner != "" {
		filter.OwnerID = &owner
	}
	if entity := strings.TrimSpace(c.Query("linked_entity_id")); entity != "" {
		filter.LinkedEntityID = &entity
	}
	page := parseIntQuery(c.Query("page"), 1)
	pageSize := parseIntQuery(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseIntQuery(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
