package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/qr-credential-service/internal/domain"
)

// ScanLogRepository persists the audit trail of validation attempts.
type ScanLogRepository interface {
	Create(ctx context.Context, log *domain.ScanLog) error
	ListByQRCode(ctx context.Context, qrCodeID string, limit, offset int) ([]domain.ScanLog, error)
}

type scanLogRepository struct {
	pool *pgxpool.Pool
}

// NewScanLogRepository instantiates repository.
func NewScanLogRepository(pool *pgxpool.Pool) ScanLogRepository {
	return &scanLogRepository{pool: pool}
}

func (r *scanLogRepository) Create(ctx context.Context, log *domain.ScanLog) error {
	const query = `
        INSERT INTO qr_scan_logs (qr_code_id, token, scanner_id, device_id, classification, scanned_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		log.QRCodeID,
		log.Token,
		log.ScannerID,
		log.DeviceID,
		log.Classification,
		log.ScannedAt,
	).Scan(&log.ID)
}

func (r *scanLogRepository) ListByQRCode(ctx context.Context, qrCodeID string, limit, offset int) ([]domain.ScanLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, qr_code_id, token, scanner_id, device_id, classification, scanned_at
        FROM qr_scan_logs WHERE qr_code_id=$1
        ORDER BY scanned_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, qrCodeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScanLogs(rows)
}

func scanScanLogs(rows pgx.Rows) ([]domain.ScanLog, error) {
	var result []domain.ScanLog
	for rows.Next() {
		var log domain.ScanLog
		if err := rows.Scan(
			&log.ID,
			&log.QRCodeID,
			&log.Token,
			&log.ScannerID,
			&log.DeviceID,
			&log.Classification,
			&log.ScannedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, log)
	}
	return result, rows.Err()
}
