package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryReceiptRepository is the Postgres-backed store for one receipt
// per (artifact, recipient).
type DeliveryReceiptRepository struct {
	pool *pgxpool.Pool
}

func NewDeliveryReceiptRepository(pool *pgxpool.Pool) *DeliveryReceiptRepository {
	return &DeliveryReceiptRepository{pool: pool}
}

func (r *DeliveryReceiptRepository) Create(ctx context.Context, d *domain.DeliveryReceipt) (*domain.DeliveryReceipt, error) {
	query := `
		INSERT INTO delivery_receipts (
			tenant_id, artifact_id, channel, recipient, status, sent_at, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, tenant_id, artifact_id, channel, recipient, status, sent_at, error_message`

	row := r.pool.QueryRow(ctx, query,
		d.TenantID, d.ArtifactID, d.Channel, d.Recipient, d.Status, d.SentAt, d.ErrorMessage,
	)
	return scanDeliveryReceipt(row)
}

func (r *DeliveryReceiptRepository) ListByArtifact(ctx context.Context, artifactID string) ([]*domain.DeliveryReceipt, error) {
	query := `
		SELECT id, tenant_id, artifact_id, channel, recipient, status, sent_at, error_message
		FROM delivery_receipts
		WHERE artifact_id = $1
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, artifactID)
	if err != nil {
		return nil, fmt.Errorf("list delivery receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*domain.DeliveryReceipt
	for rows.Next() {
		d, err := scanDeliveryReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, d)
	}
	return receipts, rows.Err()
}

func scanDeliveryReceipt(row rowScanner) (*domain.DeliveryReceipt, error) {
	var d domain.DeliveryReceipt
	err := row.Scan(
		&d.ID, &d.TenantID, &d.ArtifactID, &d.Channel, &d.Recipient,
		&d.Status, &d.SentAt, &d.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan delivery receipt: %w", err)
	}
	return &d, nil
}
