package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/events"
	"github.com/spec-kit/qr-credential-service/internal/repository"
)

const auditQueueSize = 256

// AuditWorker subscribes to scan events and writes the audit trail off the
// request path. A full queue drops entries rather than slowing a scan down.
type AuditWorker struct {
	store  repository.QRCodeStore
	logs   repository.ScanLogRepository
	logger *zap.Logger
	queue  chan domain.ScanLog
	done   chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewAuditWorker constructs the worker.
func NewAuditWorker(store repository.QRCodeStore, logs repository.ScanLogRepository, logger *zap.Logger) *AuditWorker {
	return &AuditWorker{
		store:  store,
		logs:   logs,
		logger: logger,
		queue:  make(chan domain.ScanLog, auditQueueSize),
		done:   make(chan struct{}),
	}
}

// Start registers the event handler and launches the writer goroutine.
func (w *AuditWorker) Start(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventScanValidated, w.handleScanValidated)
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run()
}

// Stop drains remaining entries and waits for the writer to exit. Safe to
// call more than once and while handlers are still publishing; entries
// arriving after Stop are dropped.
func (w *AuditWorker) Stop() {
	w.mu.Lock()
	started := w.started
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

func (w *AuditWorker) handleScanValidated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ScanValidatedPayload)
	if !ok {
		return errors.New("unexpected scan event payload")
	}

	code, err := w.store.FetchByToken(ctx, event.Token)
	if errors.Is(err, repository.ErrNotFound) {
		// Unknown tokens have no credential row to attach the entry to.
		return nil
	}
	if err != nil {
		return err
	}

	entry := domain.ScanLog{
		QRCodeID:       code.ID,
		Token:          event.Token,
		ScannerID:      event.Actor.ActorID,
		DeviceID:       event.Actor.DeviceID,
		Classification: payload.Classification,
		ScannedAt:      event.Timestamp,
	}

	w.enqueue(entry)
	return nil
}

// enqueue never blocks the scan path: a full queue drops the entry, and a
// worker already shut down discards it instead of panicking on the closed
// channel.
func (w *AuditWorker) enqueue(entry domain.ScanLog) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("audit worker stopped, dropping entry",
			zap.String("qr_code_id", entry.QRCodeID))
		return
	}
	select {
	case w.queue <- entry:
	default:
		w.logger.Warn("audit queue full, dropping entry",
			zap.String("qr_code_id", entry.QRCodeID))
	}
}

func (w *AuditWorker) run() {
	defer close(w.done)
	for entry := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.logs.Create(ctx, &entry); err != nil {
			w.logger.Warn("audit write failed",
				zap.String("qr_code_id", entry.QRCodeID),
				zap.Error(err))
		}
		cancel()
	}
}
