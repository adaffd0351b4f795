package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/events"
	"github.com/spec-kit/qr-credential-service/internal/repository"
	apperrors "github.com/spec-kit/qr-credential-service/pkg/util"
)

// AdminService layers guarded lifecycle transitions on the store. Every
// mutation re-fetches the credential and recomputes its outcome so callers
// can refresh displayed state without re-deriving classification rules.
type AdminService struct {
	store      repository.QRCodeStore
	logs       repository.ScanLogRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// AdminDependencies bundles collaborators for the admin service.
type AdminDependencies struct {
	Store      repository.QRCodeStore
	ScanLogs   repository.ScanLogRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// AdminActionResult pairs the updated credential with its recomputed outcome.
type AdminActionResult struct {
	QRCode  *domain.QRCode
	Outcome *domain.ScanOutcome
}

// NewAdminService constructs the service.
func NewAdminService(deps AdminDependencies) *AdminService {
	return &AdminService{
		store:      deps.Store,
		logs:       deps.ScanLogs,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Revoke permanently invalidates a credential. Allowed from active and
// suspended; revocation is one-way.
func (s *AdminService) Revoke(ctx context.Context, token, actorID, reason string) (*AdminActionResult, error) {
	ok, err := s.store.Revoke(ctx, token, actorID, reason)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("QR code cannot be revoked in its current status", nil)
	}
	s.publishAdmin(ctx, events.EventQRRevoked, token, actorID, events.QRRevokedPayload{Reason: reason})
	return s.refreshed(ctx, token)
}

// Suspend temporarily disables an active credential.
func (s *AdminService) Suspend(ctx context.Context, token, actorID string) (*AdminActionResult, error) {
	ok, err := s.store.Suspend(ctx, token, actorID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("only active QR codes can be suspended", nil)
	}
	s.publishAdmin(ctx, events.EventQRSuspended, token, actorID, events.QRStatusChangedPayload{
		OldStatus: domain.QRStatusActive,
		NewStatus: domain.QRStatusSuspended,
	})
	return s.refreshed(ctx, token)
}

// Reactivate returns a suspended credential to active. Calling it on any
// other status is a reported failure, not a silent no-op.
func (s *AdminService) Reactivate(ctx context.Context, token, actorID string) (*AdminActionResult, error) {
	ok, err := s.store.Reactivate(ctx, token, actorID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("only suspended QR codes can be reactivated", nil)
	}
	s.publishAdmin(ctx, events.EventQRReactivated, token, actorID, events.QRStatusChangedPayload{
		OldStatus: domain.QRStatusSuspended,
		NewStatus: domain.QRStatusActive,
	})
	return s.refreshed(ctx, token)
}

// List returns credentials matching the filter for admin tooling.
func (s *AdminService) List(ctx context.Context, filter repository.QRCodeFilter) ([]domain.QRCode, error) {
	codes, err := s.store.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return codes, nil
}

// ScanHistory returns the audit trail for a credential.
func (s *AdminService) ScanHistory(ctx context.Context, token string, limit, offset int) (*domain.QRCode, []domain.ScanLog, error) {
	code, err := s.store.FetchByToken(ctx, token)
	if err == repository.ErrNotFound {
		return nil, nil, apperrors.NewNotFound("QR code", nil)
	}
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	if s.logs == nil {
		return code, []domain.ScanLog{}, nil
	}
	logs, err := s.logs.ListByQRCode(ctx, code.ID, limit, offset)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	return code, logs, nil
}

func (s *AdminService) refreshed(ctx context.Context, token string) (*AdminActionResult, error) {
	code, err := s.store.FetchByToken(ctx, token)
	if err == repository.ErrNotFound {
		return nil, apperrors.NewNotFound("QR code", nil)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AdminActionResult{
		QRCode:  code,
		Outcome: domain.Classify(code, s.now()),
	}, nil
}

func (s *AdminService) publishAdmin(ctx context.Context, eventType events.EventType, token, actorID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Token:     token,
		Actor:     events.Actor{Type: domain.ActorTypeAdmin, ActorID: &actorID},
		Timestamp: s.now(),
		Payload:   payload,
	})
}
