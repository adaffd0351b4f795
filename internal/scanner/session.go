package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/retry"
)

// Options tunes a scan session.
type Options struct {
	// Throttle is the minimum interval between forwarded events.
	Throttle time.Duration
	// ProbeTimeout bounds each permission probe and acquisition attempt so a
	// hung camera subsystem cannot wedge the session.
	ProbeTimeout time.Duration
	// AllSymbologies forwards every decode; by default only QR payloads pass.
	AllSymbologies bool
}

const (
	defaultThrottle     = time.Second
	defaultProbeTimeout = 5 * time.Second
)

// Manager owns the backend priority list and runs the failover protocol.
// Session state lives on the returned handle, not on the manager, so
// independent sessions and tests do not interfere.
type Manager struct {
	backends []Backend
	probes   retry.Policy
	logger   *zap.Logger
}

// NewManager builds a manager over backends in fixed priority order.
func NewManager(backends []Backend, probes retry.Policy, logger *zap.Logger) *Manager {
	return &Manager{backends: backends, probes: probes, logger: logger}
}

// Session is a caller-owned handle for one active scanning stream. Exactly
// one backend feeds it; switching backends requires a full stop and a new
// StartScanning call.
type Session struct {
	ID      string
	backend Backend

	onEvent  func(domain.ScanEvent)
	onError  func(error)
	throttle time.Duration
	qrOnly   bool

	mu         sync.Mutex
	lastEvent  time.Time
	processing atomic.Bool
	stopped    atomic.Bool
	stopOnce   sync.Once
}

// StartScanning negotiates permissions and starts the first backend that
// mounts, in priority order. A busy camera aborts the whole protocol with
// ErrDeviceBusy: every backend shares the device, and the remediation (close
// the other application) differs from a permission problem.
func (m *Manager) StartScanning(ctx context.Context, opts Options, onEvent func(domain.ScanEvent), onError func(error)) (*Session, error) {
	if opts.Throttle <= 0 {
		opts.Throttle = defaultThrottle
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}

	session := &Session{
		ID:       uuid.NewString(),
		onEvent:  onEvent,
		onError:  onError,
		throttle: opts.Throttle,
		qrOnly:   !opts.AllSymbologies,
	}

	var sawDenied, sawNoCamera bool
	for _, backend := range m.backends {
		if !backend.IsAvailable(ctx) {
			m.logger.Info("scanner backend unavailable", zap.String("backend", backend.Name()))
			continue
		}

		if err := m.negotiatePermission(ctx, backend, opts.ProbeTimeout); err != nil {
			switch err {
			case ErrDeviceBusy:
				m.logger.Warn("camera busy during permission probe", zap.String("backend", backend.Name()))
				return nil, ErrDeviceBusy
			case ErrPermissionDenied, ErrPermissionBlocked:
				m.logger.Warn("camera permission refused", zap.String("backend", backend.Name()), zap.Error(err))
				sawDenied = true
			case ErrNoCamera:
				m.logger.Warn("no camera found", zap.String("backend", backend.Name()))
				sawNoCamera = true
			default:
				m.logger.Warn("permission probe failed", zap.String("backend", backend.Name()), zap.Error(err))
			}
			continue
		}

		// Assigned before Start so events pumped immediately after mount
		// carry the backend name.
		session.backend = backend
		startCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
		err := backend.Start(startCtx, session.handleDecode, session.handleBackendError)
		cancel()
		if err != nil {
			session.backend = nil
			switch err {
			case ErrDeviceBusy:
				m.logger.Warn("camera busy on start", zap.String("backend", backend.Name()))
				return nil, ErrDeviceBusy
			case ErrPermissionDenied, ErrPermissionBlocked:
				// The runtime reported a stale grant; the real acquisition is
				// the authority.
				m.logger.Warn("stale camera grant rejected on start", zap.String("backend", backend.Name()))
				sawDenied = true
			case ErrNoCamera:
				sawNoCamera = true
			default:
				m.logger.Warn("backend failed to start, falling back",
					zap.String("backend", backend.Name()), zap.Error(err))
			}
			continue
		}

		m.logger.Info("scanner backend started",
			zap.String("backend", backend.Name()), zap.String("session_id", session.ID))
		return session, nil
	}

	if sawDenied {
		return nil, ErrPermissionDenied
	}
	if sawNoCamera {
		return nil, ErrNoCamera
	}
	return nil, ErrBackendUnavailable
}

// StopScanning tears down a session. Safe to call multiple times and
// concurrently with an in-flight start; the last stop wins.
func (m *Manager) StopScanning(session *Session) {
	if session == nil {
		return
	}
	session.Stop()
}

// negotiatePermission checks the current status and requests the permission
// when it has not been decided yet. Probes are time-boxed and retried with
// the shared policy; a blocked permission is not retried since only the user
// can change it in settings.
func (m *Manager) negotiatePermission(ctx context.Context, backend Backend, timeout time.Duration) error {
	var result PermissionResult
	var definitive error
	err := m.probes.Do(ctx, func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var probeErr error
		result, probeErr = backend.CheckPermission(probeCtx)
		if probeErr == ErrDeviceBusy || probeErr == ErrNoCamera {
			// Definitive conditions; retrying churns the device. Stop the
			// probe loop but keep the sentinel for the caller.
			definitive = probeErr
			return nil
		}
		return probeErr
	})
	if err != nil {
		return err
	}
	if definitive != nil {
		return definitive
	}

	switch result.Status {
	case PermissionGranted:
		return nil
	case PermissionBlocked:
		return ErrPermissionBlocked
	case PermissionDenied:
		if !result.CanAskAgain {
			return ErrPermissionBlocked
		}
	}

	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err = backend.RequestPermission(requestCtx)
	if err != nil {
		return err
	}
	switch result.Status {
	case PermissionGranted:
		return nil
	case PermissionBlocked:
		return ErrPermissionBlocked
	default:
		return ErrPermissionDenied
	}
}

// handleDecode shapes raw backend callbacks: symbology filter, minimum
// inter-event interval, and a processing gate that drops (never queues)
// events arriving while the caller is still busy, so a code held steady in
// front of the camera cannot fire duplicate claims.
func (s *Session) handleDecode(decode RawDecode) {
	if s.stopped.Load() {
		return
	}
	if s.qrOnly && decode.Symbology != SymbologyQR {
		return
	}

	now := decode.At
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.Lock()
	if !s.lastEvent.IsZero() && now.Sub(s.lastEvent) < s.throttle {
		s.mu.Unlock()
		return
	}
	s.lastEvent = now
	s.mu.Unlock()

	if !s.processing.CompareAndSwap(false, true) {
		return
	}
	defer s.processing.Store(false)

	s.onEvent(domain.ScanEvent{
		Text:      decode.Text,
		Backend:   s.backendName(),
		Timestamp: now,
	})
}

func (s *Session) handleBackendError(err error) {
	if s.stopped.Load() || s.onError == nil {
		return
	}
	s.onError(err)
}

// Stop is idempotent. It releases the camera stream before returning so the
// caller may start a new session or unmount its surface immediately after.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.backend != nil {
			s.backend.Stop()
		}
	})
}

func (s *Session) backendName() string {
	if s.backend == nil {
		return ""
	}
	return s.backend.Name()
}
