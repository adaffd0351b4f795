package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/qr-credential-service/internal/domain"
)

// MemoryQRCodeStore is a mutex-serialized in-memory QRCodeStore. It backs
// unit tests and running the service without Postgres; the mutex plays the
// role the row lock plays in the Postgres implementation.
type MemoryQRCodeStore struct {
	mu    sync.Mutex
	codes map[string]*domain.QRCode
}

// NewMemoryQRCodeStore constructs an empty store.
func NewMemoryQRCodeStore() *MemoryQRCodeStore {
	return &MemoryQRCodeStore{codes: make(map[string]*domain.QRCode)}
}

// Put seeds or replaces a credential. Generation is external to the core, so
// this exists for tests and bootstrapping only.
func (s *MemoryQRCodeStore) Put(qr *domain.QRCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *qr
	s.codes[qr.Token] = &clone
}

func (s *MemoryQRCodeStore) FetchByToken(_ context.Context, token string) (*domain.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qr, ok := s.codes[token]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *qr
	return &clone, nil
}

func (s *MemoryQRCodeStore) ClaimAndUse(_ context.Context, token string, scannerID, deviceID *string) (*domain.ScanOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.codes[token]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	outcome := domain.Classify(qr, now)
	checked := now
	qr.LastCheckedAt = &checked
	if !outcome.Valid {
		return outcome, nil
	}

	qr.UsageCount++
	usedAt := now
	qr.UsedAt = &usedAt
	if qr.UsageCount >= qr.MaxUses {
		qr.Status = domain.QRStatusUsed
	}
	qr.UpdatedAt = now

	outcome.UsageCount = qr.UsageCount
	return outcome, nil
}

func (s *MemoryQRCodeStore) Revoke(_ context.Context, token, actorID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.codes[token]
	if !ok {
		return false, nil
	}
	if qr.Status != domain.QRStatusActive && qr.Status != domain.QRStatusSuspended {
		return false, nil
	}
	qr.Status = domain.QRStatusRevoked
	qr.Revocation = &domain.Revocation{By: actorID, At: time.Now(), Reason: reason}
	qr.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryQRCodeStore) Suspend(_ context.Context, token, actorID string) (bool, error) {
	return s.transition(token, domain.QRStatusActive, domain.QRStatusSuspended)
}

func (s *MemoryQRCodeStore) Reactivate(_ context.Context, token, actorID string) (bool, error) {
	return s.transition(token, domain.QRStatusSuspended, domain.QRStatusActive)
}

func (s *MemoryQRCodeStore) transition(token string, from, to domain.QRStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.codes[token]
	if !ok || qr.Status != from {
		return false, nil
	}
	qr.Status = to
	qr.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryQRCodeStore) ListWithFilter(_ context.Context, filter QRCodeFilter) ([]domain.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.QRCode
	for _, qr := range s.codes {
		if filter.Status != nil && qr.Status != *filter.Status {
			continue
		}
		if filter.Kind != nil && qr.Kind != *filter.Kind {
			continue
		}
		if filter.OwnerID != nil && qr.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.LinkedEntityID != nil {
			if qr.LinkedEntityID == nil || *qr.LinkedEntityID != *filter.LinkedEntityID {
				continue
			}
		}
		result = append(result, *qr)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
