// Package scanner hides camera-runtime differences behind a fixed-priority
// list of interchangeable decoding backends and delivers de-duplicated scan
// events to a single caller-owned sink.
package scanner

import (
	"context"
	"errors"
	"time"
)

// Typed failures raised by backend adapters. The pipeline branches on these
// sentinels, never on error message text, because the caller's remediation
// differs for each: change settings, close the other app, or try the next
// backend.
var (
	ErrPermissionDenied   = errors.New("camera permission denied")
	ErrPermissionBlocked  = errors.New("camera permission blocked in settings")
	ErrDeviceBusy         = errors.New("camera is in use by another application")
	ErrNoCamera           = errors.New("no camera device found")
	ErrBackendUnavailable = errors.New("scanner backend unavailable")
	ErrSessionClosed      = errors.New("scan session closed")
)

// PermissionStatus mirrors the runtime permission model.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
	PermissionBlocked      PermissionStatus = "blocked"
)

// PermissionResult reports a permission probe.
type PermissionResult struct {
	Status      PermissionStatus
	CanAskAgain bool
}

// RawDecode is a single decode callback from a backend, before throttling
// and symbology filtering.
type RawDecode struct {
	Text      string
	Symbology string
	At        time.Time
}

// SymbologyQR is the only symbology forwarded when type filtering is on.
const SymbologyQR = "qr"

// Sink receives shaped decodes from an active backend.
type Sink func(RawDecode)

// ErrorSink receives non-fatal backend errors after a backend has started.
type ErrorSink func(error)

// Backend is one interchangeable camera decoding implementation. Stop must
// be idempotent and must release the underlying stream before returning;
// Start after Stop re-probes rather than reusing stale state.
type Backend interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	CheckPermission(ctx context.Context) (PermissionResult, error)
	RequestPermission(ctx context.Context) (PermissionResult, error)
	Start(ctx context.Context, sink Sink, onError ErrorSink) error
	Stop()
}

// MediaStream is an acquired camera stream. Close releases the device and
// tolerates being called more than once or when nothing is active.
type MediaStream interface {
	Decodes() <-chan RawDecode
	Close() error
}

// MediaProvider abstracts camera acquisition for the decoder-library
// backends. Acquire may block; callers bound it with a context deadline.
// Implementations surface the typed sentinel errors above.
type MediaProvider interface {
	Available(ctx context.Context) bool
	Permission(ctx context.Context) (PermissionResult, error)
	RequestPermission(ctx context.Context) (PermissionResult, error)
	Acquire(ctx context.Context) (MediaStream, error)
}
