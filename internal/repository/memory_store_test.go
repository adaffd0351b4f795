package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/qr-credential-service/internal/domain"
)

func seedCode(store *MemoryQRCodeStore, token string, maxUses int) {
	store.Put(&domain.QRCode{
		ID:          "id-" + token,
		Token:       token,
		Kind:        domain.QRKindPass,
		OwnerID:     "owner-1",
		Status:      domain.QRStatusActive,
		MaxUses:     maxUses,
		GeneratedAt: time.Now(),
		CreatedAt:   time.Now(),
	})
}

func TestClaimAndUse_SingleUse(t *testing.T) {
	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-SINGLE", 1)
	ctx := context.Background()

	outcome, err := store.ClaimAndUse(ctx, "QR-SINGLE", nil, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Valid)
	assert.Equal(t, domain.ClassificationValid, outcome.Classification)
	assert.Equal(t, 1, outcome.UsageCount)

	second, err := store.ClaimAndUse(ctx, "QR-SINGLE", nil, nil)
	require.NoError(t, err)
	assert.False(t, second.Valid)
	assert.Equal(t, domain.ClassificationAlreadyUsed, second.Classification)
	assert.NotNil(t, second.UsedAt)
}

func TestClaimAndUse_IdempotentRejection(t *testing.T) {
	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-ONCE", 1)
	ctx := context.Background()

	_, err := store.ClaimAndUse(ctx, "QR-ONCE", nil, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		outcome, err := store.ClaimAndUse(ctx, "QR-ONCE", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ClassificationAlreadyUsed, outcome.Classification)
	}

	qr, err := store.FetchByToken(ctx, "QR-ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, qr.UsageCount)
}

func TestClaimAndUse_AtMostNConcurrentClaims(t *testing.T) {
	const maxUses = 3
	const attempts = 20

	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-MULTI", maxUses)
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make([]*domain.ScanOutcome, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			outcomes[slot], errs[slot] = store.ClaimAndUse(ctx, "QR-MULTI", nil, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	valid := 0
	for _, outcome := range outcomes {
		switch outcome.Classification {
		case domain.ClassificationValid:
			valid++
		case domain.ClassificationAlreadyUsed, domain.ClassificationLimitReached:
		default:
			t.Fatalf("unexpected classification %s", outcome.Classification)
		}
	}
	assert.Equal(t, maxUses, valid)

	qr, err := store.FetchByToken(ctx, "QR-MULTI")
	require.NoError(t, err)
	assert.Equal(t, maxUses, qr.UsageCount)
	assert.Equal(t, domain.QRStatusUsed, qr.Status)
}

func TestClaimAndUse_MultiUseStaysActiveBelowLimit(t *testing.T) {
	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-MULTI2", 2)
	ctx := context.Background()

	outcome, err := store.ClaimAndUse(ctx, "QR-MULTI2", nil, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Valid)

	qr, err := store.FetchByToken(ctx, "QR-MULTI2")
	require.NoError(t, err)
	assert.Equal(t, domain.QRStatusActive, qr.Status)
	assert.Equal(t, 1, qr.UsageCount)
}

func TestClaimAndUse_UnknownToken(t *testing.T) {
	store := NewMemoryQRCodeStore()

	_, err := store.ClaimAndUse(context.Background(), "QR-MISSING", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevoke_Guards(t *testing.T) {
	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-REVOKE", 1)
	ctx := context.Background()

	ok, err := store.Revoke(ctx, "QR-REVOKE", "admin-1", "fraud report")
	require.NoError(t, err)
	assert.True(t, ok)

	qr, err := store.FetchByToken(ctx, "QR-REVOKE")
	require.NoError(t, err)
	assert.Equal(t, domain.QRStatusRevoked, qr.Status)
	require.NotNil(t, qr.Revocation)
	assert.Equal(t, "admin-1", qr.Revocation.By)
	assert.Equal(t, "fraud report", qr.Revocation.Reason)

	// Revocation is one-way.
	ok, err = store.Revoke(ctx, "QR-REVOKE", "admin-2", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuspendReactivate_Cycle(t *testing.T) {
	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-SUSPEND", 1)
	ctx := context.Background()

	ok, err := store.Suspend(ctx, "QR-SUSPEND", "admin-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Suspending twice fails.
	ok, err = store.Suspend(ctx, "QR-SUSPEND", "admin-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Reactivate(ctx, "QR-SUSPEND", "admin-1")
	require.NoError(t, err)
	assert.True(t, ok)

	qr, err := store.FetchByToken(ctx, "QR-SUSPEND")
	require.NoError(t, err)
	assert.Equal(t, domain.QRStatusActive, qr.Status)
}

func TestReactivate_OnActiveCodeFails(t *testing.T) {
	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-ACTIVE", 1)
	ctx := context.Background()

	ok, err := store.Reactivate(ctx, "QR-ACTIVE", "admin-1")
	require.NoError(t, err)
	assert.False(t, ok)

	qr, err := store.FetchByToken(ctx, "QR-ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, domain.QRStatusActive, qr.Status)
}

func TestSuspendedRevokedCodeCanBeRevoked(t *testing.T) {
	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-SR", 1)
	ctx := context.Background()

	_, err := store.Suspend(ctx, "QR-SR", "admin-1")
	require.NoError(t, err)

	ok, err := store.Revoke(ctx, "QR-SR", "admin-1", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListWithFilter(t *testing.T) {
	store := NewMemoryQRCodeStore()
	seedCode(store, "QR-A", 1)
	seedCode(store, "QR-B", 1)
	seedCode(store, "QR-C", 1)
	ctx := context.Background()

	_, err := store.Revoke(ctx, "QR-B", "admin-1", "")
	require.NoError(t, err)

	active := domain.QRStatusActive
	result, err := store.ListWithFilter(ctx, QRCodeFilter{Status: &active})
	require.NoError(t, err)
	assert.Len(t, result, 2)

	revoked := domain.QRStatusRevoked
	result, err = store.ListWithFilter(ctx, QRCodeFilter{Status: &revoked})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "QR-B", result[0].Token)
}
