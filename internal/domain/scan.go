package domain

import (
	"fmt"
	"time"
)

// Classification is the specific reason a credential is or is not valid.
type Classification string

const (
	ClassificationValid        Classification = "valid"
	ClassificationAlreadyUsed  Classification = "already_used"
	ClassificationExpired      Classification = "expired"
	ClassificationRevoked      Classification = "revoked"
	ClassificationSuspended    Classification = "suspended"
	ClassificationLimitReached Classification = "limit_reached"
	ClassificationInvalid      Classification = "invalid"
)

// ScanOutcome is the result of validating a token. Snapshot fields are
// populated from the credential at decision time when available.
type ScanOutcome struct {
	Valid          bool
	Classification Classification
	Message        string
	Payload        map[string]any
	DisplayPayload map[string]any
	UsageCount     int
	MaxUses        int
	UsedAt         *time.Time
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
}

// ScanEvent is a raw decode result flowing out of the acquisition pipeline.
// Ephemeral; the core never persists it.
type ScanEvent struct {
	Text      string
	Backend   string
	Timestamp time.Time
}

// ScanLog is the audit record written for every validation attempt.
type ScanLog struct {
	ID             string
	QRCodeID       string
	Token          string
	ScannerID      *string
	DeviceID       *string
	Classification Classification
	ScannedAt      time.Time
}

// InvalidOutcome builds the generic failure used for unknown tokens and for
// store errors. The message deliberately carries no internal detail.
func InvalidOutcome(message string) *ScanOutcome {
	return &ScanOutcome{
		Valid:          false,
		Classification: ClassificationInvalid,
		Message:        message,
	}
}

// Classify applies the status precedence rules to a credential snapshot.
// Precedence matters: an explicit administrative state (revoked, suspended)
// must not be masked by passive expiry, and expiry outranks the usage limit.
// Pure; callers on the claim path apply the mutation separately.
func Classify(qr *QRCode, now time.Time) *ScanOutcome {
	if qr == nil {
		return InvalidOutcome("QR code not found")
	}

	switch qr.Status {
	case QRStatusUsed:
		return &ScanOutcome{
			Valid:          false,
			Classification: ClassificationAlreadyUsed,
			Message:        "QR code has already been used",
			UsedAt:         qr.UsedAt,
		}
	case QRStatusRevoked:
		outcome := &ScanOutcome{
			Valid:          false,
			Classification: ClassificationRevoked,
			Message:        "QR code has been revoked",
		}
		if qr.Revocation != nil {
			if qr.Revocation.Reason != "" {
				outcome.Message = qr.Revocation.Reason
			}
			revokedAt := qr.Revocation.At
			outcome.RevokedAt = &revokedAt
		}
		return outcome
	case QRStatusSuspended:
		return &ScanOutcome{
			Valid:          false,
			Classification: ClassificationSuspended,
			Message:        "QR code is suspended",
		}
	}

	if qr.Expired(now) {
		return &ScanOutcome{
			Valid:          false,
			Classification: ClassificationExpired,
			Message:        "QR code has expired",
			ExpiresAt:      qr.ExpiresAt,
		}
	}

	if qr.UsageCount >= qr.MaxUses {
		return &ScanOutcome{
			Valid:          false,
			Classification: ClassificationLimitReached,
			Message:        fmt.Sprintf("QR code usage limit reached (%d of %d)", qr.UsageCount, qr.MaxUses),
			UsageCount:     qr.UsageCount,
			MaxUses:        qr.MaxUses,
		}
	}

	return &ScanOutcome{
		Valid:          true,
		Classification: ClassificationValid,
		Message:        "QR code is valid",
		Payload:        qr.Payload,
		DisplayPayload: qr.DisplayPayload,
		UsageCount:     qr.UsageCount,
		MaxUses:        qr.MaxUses,
	}
}
