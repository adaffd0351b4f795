package dto

import (
	"time"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/qr"
)

// ParseScanRequest carries raw scanned text.
type ParseScanRequest struct {
	Data string `json:"data"`
}

// ParseScanResponse reports the extracted token.
type ParseScanResponse struct {
	Token string        `json:"token"`
	Kind  domain.QRKind `json:"kind,omitempty"`
	Valid bool          `json:"valid"`
}

// ScanOutcomeResponse is the validation verdict returned to scanners.
type ScanOutcomeResponse struct {
	Valid          bool           `json:"valid"`
	Classification string         `json:"classification"`
	Message        string         `json:"message"`
	Payload        map[string]any `json:"payload,omitempty"`
	DisplayPayload map[string]any `json:"display_payload,omitempty"`
	UsageCount     int            `json:"usage_count"`
	MaxUses        int            `json:"max_uses"`
	UsedAt         *time.Time     `json:"used_at,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	RevokedAt      *time.Time     `json:"revoked_at,omitempty"`
}

// RevokeRequest payload.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

// QRCodeListQuery captures admin listing filters.
type QRCodeListQuery struct {
	Status         *domain.QRStatus
	Kind           *domain.QRKind
	OwnerID        *string
	LinkedEntityID *string
	Page           int
	PageSize       int
}

// QRCodeResponse is the admin view of a credential.
type QRCodeResponse struct {
	ID             string          `json:"id"`
	Token          string          `json:"token"`
	Kind           domain.QRKind   `json:"kind"`
	OwnerID        string          `json:"owner_id"`
	LinkedEntityID *string         `json:"linked_entity_id"`
	Status         domain.QRStatus `json:"status"`
	UsageCount     int             `json:"usage_count"`
	MaxUses        int             `json:"max_uses"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	GeneratedAt    time.Time       `json:"generated_at"`
	LastCheckedAt  *time.Time      `json:"last_checked_at"`
	UsedAt         *time.Time      `json:"used_at"`
	RevokedBy      *string         `json:"revoked_by,omitempty"`
	RevokedAt      *time.Time      `json:"revoked_at,omitempty"`
	RevokedReason  *string         `json:"revoked_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AdminActionResponse combines the refreshed credential with its
// post-action verdict.
type AdminActionResponse struct {
	QRCode  QRCodeResponse      `json:"qr_code"`
	Outcome ScanOutcomeResponse `json:"outcome"`
}

// ScanLogResponse is one audit entry.
type ScanLogResponse struct {
	ID             string    `json:"id"`
	QRCodeID       string    `json:"qr_code_id"`
	Token          string    `json:"token"`
	ScannerID      *string   `json:"scanner_id"`
	DeviceID       *string   `json:"device_id"`
	Classification string    `json:"classification"`
	ScannedAt      time.Time `json:"scanned_at"`
}

// ScanHistoryResponse pairs a credential with its scan audit trail.
type ScanHistoryResponse struct {
	QRCode QRCodeResponse    `json:"qr_code"`
	Logs   []ScanLogResponse `json:"logs"`
}

// RegisterDeviceRequest enrolls a scanner terminal.
type RegisterDeviceRequest struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

// DeviceResponse describes a registered scanner.
type DeviceResponse struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	IsActive   bool       `json:"is_active"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TokenResponse carries an issued device token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FromParseResult maps a parser result.
func FromParseResult(result *qr.ParseResult) ParseScanResponse {
	return ParseScanResponse{Token: result.Token, Kind: result.Kind, Valid: result.Valid}
}

// FromScanOutcome maps a domain verdict.
func FromScanOutcome(outcome *domain.ScanOutcome) ScanOutcomeResponse {
	return ScanOutcomeResponse{
		Valid:          outcome.Valid,
		Classification: string(outcome.Classification),
		Message:        outcome.Message,
		Payload:        outcome.Payload,
		DisplayPayload: outcome.DisplayPayload,
		UsageCount:     outcome.UsageCount,
		MaxUses:        outcome.MaxUses,
		UsedAt:         outcome.UsedAt,
		ExpiresAt:      outcome.ExpiresAt,
		RevokedAt:      outcome.RevokedAt,
	}
}

// FromQRCode maps a domain credential.
func FromQRCode(code *domain.QRCode) QRCodeResponse {
	resp := QRCodeResponse{
		ID:             code.ID,
		Token:          code.Token,
		Kind:           code.Kind,
		OwnerID:        code.OwnerID,
		LinkedEntityID: code.LinkedEntityID,
		Status:         code.Status,
		UsageCount:     code.UsageCount,
		MaxUses:        code.MaxUses,
		ExpiresAt:      code.ExpiresAt,
		GeneratedAt:    code.GeneratedAt,
		LastCheckedAt:  code.LastCheckedAt,
		UsedAt:         code.UsedAt,
		CreatedAt:      code.CreatedAt,
		UpdatedAt:      code.UpdatedAt,
	}
	if rev := code.Revocation; rev != nil {
		resp.RevokedBy = &rev.By
		resp.RevokedAt = &rev.At
		if rev.Reason != "" {
			resp.RevokedReason = &rev.Reason
		}
	}
	return resp
}

// FromScanLog maps one audit entry.
func FromScanLog(log *domain.ScanLog) ScanLogResponse {
	return ScanLogResponse{
		ID:             log.ID,
		QRCodeID:       log.QRCodeID,
		Token:          log.Token,
		ScannerID:      log.ScannerID,
		DeviceID:       log.DeviceID,
		Classification: string(log.Classification),
		ScannedAt:      log.ScannedAt,
	}
}

// FromDevice maps a registered scanner.
func FromDevice(device *domain.ScannerDevice) DeviceResponse {
	return DeviceResponse{
		ID:         device.ID,
		Label:      device.Label,
		IsActive:   device.IsActive,
		LastSeenAt: device.LastSeenAt,
		CreatedAt:  device.CreatedAt,
	}
}
