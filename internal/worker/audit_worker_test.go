package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/events"
	"github.com/spec-kit/qr-credential-service/internal/repository"
)

type recordingLogRepo struct {
	mu      sync.Mutex
	entries []domain.ScanLog
}

func (r *recordingLogRepo) Create(_ context.Context, log *domain.ScanLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = fmt.Sprintf("log-%d", len(r.entries)+1)
	r.entries = append(r.entries, *log)
	return nil
}

func (r *recordingLogRepo) ListByQRCode(context.Context, string, int, int) ([]domain.ScanLog, error) {
	return nil, nil
}

func (r *recordingLogRepo) snapshot() []domain.ScanLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ScanLog{}, r.entries...)
}

func newAuditFixture() (*AuditWorker, *repository.MemoryQRCodeStore, *recordingLogRepo, events.Dispatcher) {
	store := repository.NewMemoryQRCodeStore()
	logs := &recordingLogRepo{}
	worker := NewAuditWorker(store, logs, zap.NewNop())
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	return worker, store, logs, dispatcher
}

func seedAudited(store *repository.MemoryQRCodeStore, token string) {
	store.Put(&domain.QRCode{
		ID:          "id-" + token,
		Token:       token,
		Kind:        domain.QRKindTicket,
		OwnerID:     "owner-1",
		Status:      domain.QRStatusActive,
		MaxUses:     1,
		GeneratedAt: time.Now(),
		CreatedAt:   time.Now(),
	})
}

func scanValidatedEvent(token string, classification domain.Classification) events.Event {
	scannerID := "scanner-1"
	return events.Event{
		ID:        "evt-" + token,
		Type:      events.EventScanValidated,
		Token:     token,
		Actor:     events.Actor{Type: domain.ActorTypeScanner, ActorID: &scannerID},
		Timestamp: time.Now(),
		Payload: events.ScanValidatedPayload{
			Classification: classification,
			Valid:          classification == domain.ClassificationValid,
		},
	}
}

func TestAuditWorker_WritesEntryForKnownToken(t *testing.T) {
	worker, store, logs, dispatcher := newAuditFixture()
	seedAudited(store, "QR-AUDIT001")
	worker.Start(dispatcher)

	err := dispatcher.Publish(context.Background(), scanValidatedEvent("QR-AUDIT001", domain.ClassificationValid))
	require.NoError(t, err)

	worker.Stop()

	entries := logs.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "id-QR-AUDIT001", entries[0].QRCodeID)
	assert.Equal(t, "QR-AUDIT001", entries[0].Token)
	assert.Equal(t, domain.ClassificationValid, entries[0].Classification)
	require.NotNil(t, entries[0].ScannerID)
	assert.Equal(t, "scanner-1", *entries[0].ScannerID)
}

func TestAuditWorker_SkipsUnknownToken(t *testing.T) {
	worker, _, logs, dispatcher := newAuditFixture()
	worker.Start(dispatcher)

	err := dispatcher.Publish(context.Background(), scanValidatedEvent("QR-MISSING0", domain.ClassificationInvalid))
	require.NoError(t, err)

	worker.Stop()
	assert.Empty(t, logs.snapshot())
}

func TestAuditWorker_PublishAfterStopIsDropped(t *testing.T) {
	worker, store, logs, dispatcher := newAuditFixture()
	seedAudited(store, "QR-LATE0001")
	worker.Start(dispatcher)
	worker.Stop()

	assert.NotPanics(t, func() {
		_ = dispatcher.Publish(context.Background(), scanValidatedEvent("QR-LATE0001", domain.ClassificationValid))
	})
	assert.Empty(t, logs.snapshot())
}

func TestAuditWorker_PublishRacingStop(t *testing.T) {
	worker, store, _, dispatcher := newAuditFixture()
	seedAudited(store, "QR-RACE0001")
	worker.Start(dispatcher)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = dispatcher.Publish(context.Background(), scanValidatedEvent("QR-RACE0001", domain.ClassificationValid))
			}
		}()
	}
	worker.Stop()
	wg.Wait()
}

func TestAuditWorker_StopIsIdempotent(t *testing.T) {
	worker, _, _, dispatcher := newAuditFixture()
	worker.Start(dispatcher)

	worker.Stop()
	assert.NotPanics(t, worker.Stop)
}

func TestAuditWorker_StopWithoutStartReturns(t *testing.T) {
	worker, _, _, _ := newAuditFixture()
	assert.NotPanics(t, worker.Stop)
}
