package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/qr-credential-service/internal/domain"
	"github.com/spec-kit/qr-credential-service/internal/retry"
)

// QRCodeFilter captures admin listing parameters.
type QRCodeFilter struct {
	Status         *domain.QRStatus
	Kind           *domain.QRKind
	OwnerID        *string
	LinkedEntityID *string
	Limit          int
	Offset         int
}

// QRCodeStore is the client contract to the credential lifecycle store.
// ClaimAndUse is the single operation requiring a true atomic
// read-modify-write: concurrent claims for one token must serialize so the
// usage count never passes the limit.
type QRCodeStore interface {
	FetchByToken(ctx context.Context, token string) (*domain.QRCode, error)
	ClaimAndUse(ctx context.Context, token string, scannerID, deviceID *string) (*domain.ScanOutcome, error)
	Revoke(ctx context.Context, token, actorID, reason string) (bool, error)
	Suspend(ctx context.Context, token, actorID string) (bool, error)
	Reactivate(ctx context.Context, token, actorID string) (bool, error)
	ListWithFilter(ctx context.Context, filter QRCodeFilter) ([]domain.QRCode, error)
}

type qrCodeStore struct {
	pool       *pgxpool.Pool
	readPolicy retry.Policy
}

// NewQRCodeStore instantiates the Postgres-backed store client. Read-only
// fetches retry with the given policy; the claim path never retries, since a
// replayed claim without an idempotency key could double-spend.
func NewQRCodeStore(pool *pgxpool.Pool, readPolicy retry.Policy) QRCodeStore {
	return &qrCodeStore{pool: pool, readPolicy: readPolicy}
}

const qrCodeColumns = `id, token, kind, owner_id, linked_entity_id, payload, display_payload,
               status, expires_at, usage_count, max_uses, generated_at, last_checked_at,
               used_at, revoked_by, revoked_at, revoked_reason, created_at, updated_at`

func (s *qrCodeStore) FetchByToken(ctx context.Context, token string) (*domain.QRCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM qr_codes WHERE token=$1`, qrCodeColumns)

	var qr *domain.QRCode
	var miss bool
	err := s.readPolicy.Do(ctx, func(ctx context.Context) error {
		scanned, err := scanQRCode(s.pool.QueryRow(ctx, query, token))
		if errors.Is(err, pgx.ErrNoRows) {
			// A miss is a definitive answer, not a transient fault.
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		qr = scanned
		return nil
	})
	if err != nil {
		return nil, err
	}
	if miss {
		return nil, ErrNotFound
	}
	return qr, nil
}

// ClaimAndUse serializes on a row lock: the SELECT ... FOR UPDATE holds the
// credential row for the duration of the transaction, so at most one of any
// number of concurrent claims observes usage_count below the limit and
// transitions it upward.
func (s *qrCodeStore) ClaimAndUse(ctx context.Context, token string, scannerID, deviceID *string) (*domain.ScanOutcome, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM qr_codes WHERE token=$1 FOR UPDATE`, qrCodeColumns)
	qr, err := scanQRCode(tx.QueryRow(ctx, query, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	outcome := domain.Classify(qr, now)
	if !outcome.Valid {
		// Still stamp the check so operators can see recent activity.
		if _, err := tx.Exec(ctx, `UPDATE qr_codes SET last_checked_at=$1, updated_at=NOW() WHERE id=$2`, now, qr.ID); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	newCount := qr.UsageCount + 1
	newStatus := qr.Status
	if newCount >= qr.MaxUses {
		newStatus = domain.QRStatusUsed
	}
	const update = `
        UPDATE qr_codes
        SET usage_count=$1, status=$2, used_at=$3, last_checked_at=$3, updated_at=NOW()
        WHERE id=$4`
	if _, err := tx.Exec(ctx, update, newCount, newStatus, now, qr.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	outcome.UsageCount = newCount
	return outcome, nil
}

func (s *qrCodeStore) Revoke(ctx context.Context, token, actorID, reason string) (bool, error) {
	const query = `
        UPDATE qr_codes
        SET status=$1, revoked_by=$2, revoked_at=NOW(), revoked_reason=NULLIF($3,''), updated_at=NOW()
        WHERE token=$4 AND status IN ($5,$6)`
	cmd, err := s.pool.Exec(ctx, query,
		domain.QRStatusRevoked, actorID, reason, token,
		domain.QRStatusActive, domain.QRStatusSuspended)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *qrCodeStore) Suspend(ctx context.Context, token, actorID string) (bool, error) {
	const query = `
        UPDATE qr_codes SET status=$1, updated_at=NOW()
        WHERE token=$2 AND status=$3`
	cmd, err := s.pool.Exec(ctx, query, domain.QRStatusSuspended, token, domain.QRStatusActive)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *qrCodeStore) Reactivate(ctx context.Context, token, actorID string) (bool, error) {
	const query = `
        UPDATE qr_codes SET status=$1, updated_at=NOW()
        WHERE token=$2 AND status=$3`
	cmd, err := s.pool.Exec(ctx, query, domain.QRStatusActive, token, domain.QRStatusSuspended)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *qrCodeStore) ListWithFilter(ctx context.Context, filter QRCodeFilter) ([]domain.QRCode, error) {
	base := fmt.Sprintf(`SELECT %s FROM qr_codes`, qrCodeColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.LinkedEntityID != nil {
		args = append(args, *filter.LinkedEntityID)
		clauses = append(clauses, fmt.Sprintf("linked_entity_id=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QRCode
	for rows.Next() {
		qr, err := scanQRCode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *qr)
	}
	return result, rows.Err()
}

func scanQRCode(row pgx.Row) (*domain.QRCode, error) {
	var qr domain.QRCode
	var revokedBy, revokedReason *string
	var revokedAt *time.Time
	if err := row.Scan(
		&qr.ID,
		&qr.Token,
		&qr.Kind,
		&qr.OwnerID,
		&qr.LinkedEntityID,
		&qr.Payload,
		&qr.DisplayPayload,
		&qr.Status,
		&qr.ExpiresAt,
		&qr.UsageCount,
		&qr.MaxUses,
		&qr.GeneratedAt,
		&qr.LastCheckedAt,
		&qr.UsedAt,
		&revokedBy,
		&revokedAt,
		&revokedReason,
		&qr.CreatedAt,
		&qr.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if revokedBy != nil && revokedAt != nil {
		qr.Revocation = &domain.Revocation{By: *revokedBy, At: *revokedAt}
		if revokedReason != nil {
			qr.Revocation.Reason = *revokedReason
		}
	}
	return &qr, nil
}
