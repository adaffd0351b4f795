package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/events"
	"github.com/spec-kit/qr-credential-service/internal/qr"
	"github.com/spec-kit/qr-credential-service/internal/repository"
)

// Deterministic caller-facing messages for store failures. Internal error
// text is never surfaced to the scanning UI.
const (
	msgValidateError = "Error validating QR code"
	msgCheckError    = "Error checking QR code"
)

// ValidationService is the authority for "is this credential good right now".
// Classification is pure; atomicity of the claim path is delegated entirely
// to the store, never re-implemented as read-then-write here.
type ValidationService struct {
	store      repository.QRCodeStore
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// ValidationDependencies bundles collaborators for the validation service.
type ValidationDependencies struct {
	Store      repository.QRCodeStore
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewValidationService constructs the service.
func NewValidationService(deps ValidationDependencies) *ValidationService {
	return &ValidationService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// ParsePayload canonicalizes a raw camera decode into a token.
func (s *ValidationService) ParsePayload(raw string) qr.ParseResult {
	return qr.Parse(raw)
}

// CheckValidity classifies a token without consuming usage. Used for preview
// and admin inspection; never mutates the credential.
func (s *ValidationService) CheckValidity(ctx context.Context, token string) *domain.ScanOutcome {
	code, err := s.store.FetchByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Classify(nil, s.now())
	}
	if err != nil {
		s.logger.Error("check validity failed", zap.Error(err))
		return domain.InvalidOutcome(msgCheckError)
	}
	return domain.Classify(code, s.now())
}

// ValidateAndUse atomically checks and claims one usage unit. All errors from
// the store collapse to the invalid classification with a generic message;
// a claim is never reported valid on an error path.
func (s *ValidationService) ValidateAndUse(ctx context.Context, token string, scannerID, deviceID *string) *domain.ScanOutcome {
	outcome, err := s.store.ClaimAndUse(ctx, token, scannerID, deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		outcome = domain.Classify(nil, s.now())
	} else if err != nil {
		s.logger.Error("claim failed", zap.String("token_suffix", tokenSuffix(token)), zap.Error(err))
		return domain.InvalidOutcome(msgValidateError)
	}

	s.publishScan(ctx, token, scannerID, deviceID, outcome)
	return outcome
}

func (s *ValidationService) publishScan(ctx context.Context, token string, scannerID, deviceID *string, outcome *domain.ScanOutcome) {
	if s.dispatcher == nil {
		return
	}
	actor := events.Actor{Type: domain.ActorTypeScanner, ActorID: scannerID, DeviceID: deviceID}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventScanValidated,
		Token:     token,
		Actor:     actor,
		Timestamp: s.now(),
		Payload: events.ScanValidatedPayload{
			Classification: outcome.Classification,
			Valid:          outcome.Valid,
			UsageCount:     outcome.UsageCount,
			MaxUses:        outcome.MaxUses,
		},
	})
}

// tokenSuffix keeps log lines correlatable without writing whole secrets to
// the log stream.
func tokenSuffix(token string) string {
	const keep = 6
	if len(token) <= keep {
		return token
	}
	return "..." + token[len(token)-keep:]
}
