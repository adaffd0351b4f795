package domain

import "time"

// ActorType identifies the kind of authenticated caller.
type ActorType string

const (
	ActorTypeAdmin   ActorType = "admin"
	ActorTypeScanner ActorType = "scanner"
)

// ScannerDevice is a registered scanning terminal. Devices authenticate with
// a device key; only the bcrypt hash is stored.
type ScannerDevice struct {
	ID         string
	Label      string
	KeyHash    string
	IsActive   bool
	LastSeenAt *time.Time
	CreatedAt  time.Time
}
