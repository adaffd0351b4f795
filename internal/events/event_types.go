package events

import (
	"time"

	"github.com/spec-kit/qr-credential-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventScanValidated EventType = "scan_validated"
	EventQRRevoked     EventType = "qr_revoked"
	EventQRSuspended   EventType = "qr_suspended"
	EventQRReactivated EventType = "qr_reactivated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type     domain.ActorType `json:"type"`
	ActorID  *string          `json:"actor_id,omitempty"`
	DeviceID *string          `json:"device_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Token     string      `json:"token"`
	QRCodeID  string      `json:"qr_code_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ScanValidatedPayload payload.
type ScanValidatedPayload struct {
	Classification domain.Classification `json:"classification"`
	Valid          bool                  `json:"valid"`
	UsageCount     int                   `json:"usage_count"`
	MaxUses        int                   `json:"max_uses"`
}

// QRRevokedPayload payload.
type QRRevokedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// QRStatusChangedPayload payload for suspend/reactivate transitions.
type QRStatusChangedPayload struct {
	OldStatus domain.QRStatus `json:"old_status"`
	NewStatus domain.QRStatus `json:"new_status"`
}
