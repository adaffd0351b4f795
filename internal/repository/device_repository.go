package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/qr-credential-service/internal/domain"
)

// DeviceRepository manages registered scanner terminals.
type DeviceRepository interface {
	Create(ctx context.Context, device *domain.ScannerDevice) error
	GetByID(ctx context.Context, id string) (*domain.ScannerDevice, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

type deviceRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository instantiates repository.
func NewDeviceRepository(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepository{pool: pool}
}

func (r *deviceRepository) Create(ctx context.Context, device *domain.ScannerDevice) error {
	const query = `
        INSERT INTO scanner_devices (label, key_hash, is_active)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		device.Label,
		device.KeyHash,
		device.IsActive,
	).Scan(&device.ID, &device.CreatedAt)
}

func (r *deviceRepository) GetByID(ctx context.Context, id string) (*domain.ScannerDevice, error) {
	const query = `
        SELECT id, label, key_hash, is_active, last_seen_at, created_at
        FROM scanner_devices WHERE id=$1`
	var device domain.ScannerDevice
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&device.ID,
		&device.Label,
		&device.KeyHash,
		&device.IsActive,
		&device.LastSeenAt,
		&device.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE scanner_devices SET last_seen_at=$1 WHERE id=$2`
	_, err := r.pool.Exec(ctx, query, at, id)
	return err
}
