package domain

import "time"

// QRStatus enumerates lifecycle states for QR credentials.
type QRStatus string

const (
	QRStatusActive    QRStatus = "active"
	QRStatusUsed      QRStatus = "used"
	QRStatusExpired   QRStatus = "expired"
	QRStatusRevoked   QRStatus = "revoked"
	QRStatusSuspended QRStatus = "suspended"
)

// QRKind determines how the credential payload is interpreted.
type QRKind string

const (
	QRKindPass           QRKind = "pass"
	QRKindWalletTransfer QRKind = "wallet_transfer"
	QRKindAccessCode     QRKind = "access_code"
	QRKindTicket         QRKind = "ticket"
)

// Revocation records who revoked a credential and why.
type Revocation struct {
	By     string
	At     time.Time
	Reason string
}

// QRCode is the aggregate for a scannable credential. The token is the
// externally presented secret; Payload is never trusted without validation,
// DisplayPayload is the redacted subset safe to show to scanning staff.
type QRCode struct {
	ID             string
	Token          string
	Kind           QRKind
	OwnerID        string
	LinkedEntityID *string
	Payload        map[string]any
	DisplayPayload map[string]any
	Status         QRStatus
	ExpiresAt      *time.Time
	UsageCount     int
	MaxUses        int
	GeneratedAt    time.Time
	LastCheckedAt  *time.Time
	UsedAt         *time.Time
	Revocation     *Revocation
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Expired reports whether the credential is past its expiry at the given
// instant. Codes without ExpiresAt never expire by time.
func (q *QRCode) Expired(now time.Time) bool {
	if q.Status == QRStatusExpired {
		return true
	}
	return q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}
