package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/events"
	"github.com/spec-kit/qr-credential-service/internal/repository"
)

func newValidationService(store repository.QRCodeStore, dispatcher events.Dispatcher) *ValidationService {
	return NewValidationService(ValidationDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
}

func seedActive(store *repository.MemoryQRCodeStore, token string, mutate func(*domain.QRCode)) {
	now := time.Now()
	code := &domain.QRCode{
		ID:          "id-" + token,
		Token:       token,
		Kind:        domain.QRKindTicket,
		OwnerID:     "owner-1",
		Status:      domain.QRStatusActive,
		MaxUses:     1,
		Payload:     map[string]any{"seat": "A1"},
		GeneratedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if mutate != nil {
		mutate(code)
	}
	store.Put(code)
}

func TestParsePayload_Delegates(t *testing.T) {
	svc := newValidationService(repository.NewMemoryQRCodeStore(), nil)

	result := svc.ParsePayload(`{"token":"QR-EVENT42","type":"access_code"}`)
	assert.True(t, result.Valid)
	assert.Equal(t, "QR-EVENT42", result.Token)
	assert.Equal(t, domain.QRKindAccessCode, result.Kind)
}

func TestCheckValidity_DoesNotConsumeUsage(t *testing.T) {
	store := repository.NewMemoryQRCodeStore()
	seedActive(store, "QR-CHECK001", nil)
	svc := newValidationService(store, nil)

	for i := 0; i < 3; i++ {
		outcome := svc.CheckValidity(context.Background(), "QR-CHECK001")
		require.True(t, outcome.Valid)
		assert.Equal(t, domain.ClassificationValid, outcome.Classification)
		assert.Equal(t, "QR code is valid", outcome.Message)
	}

	code, err := store.FetchByToken(context.Background(), "QR-CHECK001")
	require.NoError(t, err)
	assert.Zero(t, code.UsageCount)
	assert.Equal(t, domain.QRStatusActive, code.Status)
}

func TestCheckValidity_UnknownToken(t *testing.T) {
	svc := newValidationService(repository.NewMemoryQRCodeStore(), nil)

	outcome := svc.CheckValidity(context.Background(), "QR-MISSING1")
	assert.False(t, outcome.Valid)
	assert.Equal(t, domain.ClassificationInvalid, outcome.Classification)
	assert.Equal(t, "QR code not found", outcome.Message)
}

func TestCheckValidity_ClassificationPrecedence(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(*domain.QRCode)
		want   domain.Classification
	}{
		{
			name:   "used wins",
			mutate: func(q *domain.QRCode) { q.Status = domain.QRStatusUsed },
			want:   domain.ClassificationAlreadyUsed,
		},
		{
			name: "revoked masks expiry",
			mutate: func(q *domain.QRCode) {
				q.Status = domain.QRStatusRevoked
				q.ExpiresAt = &past
				q.Revocation = &domain.Revocation{By: "admin-1", At: past}
			},
			want: domain.ClassificationRevoked,
		},
		{
			name: "suspended masks expiry",
			mutate: func(q *domain.QRCode) {
				q.Status = domain.QRStatusSuspended
				q.ExpiresAt = &past
			},
			want: domain.ClassificationSuspended,
		},
		{
			name:   "time expiry on active code",
			mutate: func(q *domain.QRCode) { q.ExpiresAt = &past },
			want:   domain.ClassificationExpired,
		},
		{
			name: "limit reached before status flip",
			mutate: func(q *domain.QRCode) {
				q.MaxUses = 3
				q.UsageCount = 3
			},
			want: domain.ClassificationLimitReached,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemoryQRCodeStore()
			seedActive(store, "QR-PREC0001", tc.mutate)
			svc := newValidationService(store, nil)

			outcome := svc.CheckValidity(context.Background(), "QR-PREC0001")
			assert.False(t, outcome.Valid)
			assert.Equal(t, tc.want, outcome.Classification)
		})
	}
}

func TestCheckValidity_RevokedReasonAsMessage(t *testing.T) {
	store := repository.NewMemoryQRCodeStore()
	seedActive(store, "QR-REVOKED1", func(q *domain.QRCode) {
		q.Status = domain.QRStatusRevoked
		q.Revocation = &domain.Revocation{By: "admin-1", At: time.Now(), Reason: "reported stolen"}
	})
	svc := newValidationService(store, nil)

	outcome := svc.CheckValidity(context.Background(), "QR-REVOKED1")
	assert.Equal(t, "reported stolen", outcome.Message)
	assert.NotNil(t, outcome.RevokedAt)
}

type failingStore struct {
	repository.QRCodeStore
}

func (f *failingStore) FetchByToken(context.Context, string) (*domain.QRCode, error) {
	return nil, errors.New("connection refused")
}

func (f *failingStore) ClaimAndUse(context.Context, string, *string, *string) (*domain.ScanOutcome, error) {
	return nil, errors.New("connection refused")
}

func TestStoreErrorsCollapseToGenericMessages(t *testing.T) {
	svc := newValidationService(&failingStore{}, nil)

	check := svc.CheckValidity(context.Background(), "QR-ERRCASE1")
	assert.False(t, check.Valid)
	assert.Equal(t, "Error checking QR code", check.Message)

	claim := svc.ValidateAndUse(context.Background(), "QR-ERRCASE1", nil, nil)
	assert.False(t, claim.Valid)
	assert.Equal(t, domain.ClassificationInvalid, claim.Classification)
	assert.Equal(t, "Error validating QR code", claim.Message)
}

func TestValidateAndUse_ConsumesThenRejects(t *testing.T) {
	store := repository.NewMemoryQRCodeStore()
	seedActive(store, "QR-ENTRY001", nil)
	svc := newValidationService(store, nil)

	first := svc.ValidateAndUse(context.Background(), "QR-ENTRY001", nil, nil)
	require.True(t, first.Valid)
	assert.Equal(t, 1, first.UsageCount)
	assert.Equal(t, map[string]any{"seat": "A1"}, first.Payload)

	second := svc.ValidateAndUse(context.Background(), "QR-ENTRY001", nil, nil)
	assert.False(t, second.Valid)
	assert.Equal(t, domain.ClassificationAlreadyUsed, second.Classification)
	assert.Equal(t, "QR code has already been used", second.Message)
}

func TestValidateAndUse_PublishesScanEvent(t *testing.T) {
	store := repository.NewMemoryQRCodeStore()
	seedActive(store, "QR-EVENT001", nil)
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())

	var received []events.Event
	dispatcher.Subscribe(events.EventScanValidated, func(_ context.Context, event events.Event) error {
		received = append(received, event)
		return nil
	})

	svc := newValidationService(store, dispatcher)
	scannerID := "staff-9"
	outcome := svc.ValidateAndUse(context.Background(), "QR-EVENT001", &scannerID, nil)
	require.True(t, outcome.Valid)

	require.Len(t, received, 1)
	assert.Equal(t, "QR-EVENT001", received[0].Token)
	payload, ok := received[0].Payload.(events.ScanValidatedPayload)
	require.True(t, ok)
	assert.True(t, payload.Valid)
	assert.Equal(t, domain.ClassificationValid, payload.Classification)
	assert.Equal(t, 1, payload.UsageCount)
}

func TestValidateAndUse_UnknownTokenStillPublishes(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	var count int
	dispatcher.Subscribe(events.EventScanValidated, func(context.Context, events.Event) error {
		count++
		return nil
	})

	svc := newValidationService(repository.NewMemoryQRCodeStore(), dispatcher)
	outcome := svc.ValidateAndUse(context.Background(), "QR-GHOST001", nil, nil)
	assert.False(t, outcome.Valid)
	assert.Equal(t, "QR code not found", outcome.Message)
	assert.Equal(t, 1, count)
}

// Gate scenario: multi-use pass admitted up to its limit, then turned away.
func TestValidateAndUse_MultiUseScenario(t *testing.T) {
	store := repository.NewMemoryQRCodeStore()
	seedActive(store, "QR-GROUP001", func(q *domain.QRCode) { q.MaxUses = 2 })
	svc := newValidationService(store, nil)

	first := svc.ValidateAndUse(context.Background(), "QR-GROUP001", nil, nil)
	require.True(t, first.Valid)
	assert.Equal(t, 1, first.UsageCount)

	second := svc.ValidateAndUse(context.Background(), "QR-GROUP001", nil, nil)
	require.True(t, second.Valid)
	assert.Equal(t, 2, second.UsageCount)

	third := svc.ValidateAndUse(context.Background(), "QR-GROUP001", nil, nil)
	assert.False(t, third.Valid)
	assert.Equal(t, domain.ClassificationAlreadyUsed, third.Classification)
}

func TestTokenSuffix(t *testing.T) {
	assert.Equal(t, "...DEF456", tokenSuffix("QR-ABCDEF456"))
	assert.Equal(t, "short", tokenSuffix("short"))
}
