package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository is the append-only Postgres-backed store behind C9.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Insert(ctx context.Context, e *domain.AuditEvent) (*domain.AuditEvent, error) {
	eventData, err := json.Marshal(e.EventData)
	if err != nil {
		return nil, fmt.Errorf("marshal audit event data: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			tenant_id, event_type, resource_type, resource_id, user_id, event_data
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, event_type, resource_type, resource_id, user_id, event_data, created_at`

	row := r.pool.QueryRow(ctx, query,
		e.TenantID, e.EventType, e.ResourceType, e.ResourceID, e.UserID, eventData,
	)
	return scanAuditEvent(row)
}

func (r *AuditRepository) ListByArtifact(ctx context.Context, tenantID, artifactID string) ([]*domain.AuditEvent, error) {
	query := `
		SELECT id, tenant_id, event_type, resource_type, resource_id, user_id, event_data, created_at
		FROM audit_events
		WHERE tenant_id = $1 AND resource_type = 'artifact' AND resource_id = $2
		ORDER BY created_at DESC
		LIMIT 100`

	return r.queryEvents(ctx, query, tenantID, artifactID)
}

func (r *AuditRepository) ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]*domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, tenant_id, event_type, resource_type, resource_id, user_id, event_data, created_at
		FROM audit_events
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3`

	return r.queryEvents(ctx, query, tenantID, userID, limit)
}

func (r *AuditRepository) ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.AuditEvent, error) {
	query := `
		SELECT id, tenant_id, event_type, resource_type, resource_id, user_id, event_data, created_at
		FROM audit_events
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC`

	return r.queryEvents(ctx, query, tenantID, from, to)
}

func (r *AuditRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanAuditEvent(row rowScanner) (*domain.AuditEvent, error) {
	var e domain.AuditEvent
	var eventData []byte
	err := row.Scan(
		&e.ID, &e.TenantID, &e.EventType, &e.ResourceType, &e.ResourceID,
		&e.UserID, &eventData, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan audit event: %w", err)
	}
	if len(eventData) > 0 {
		if err := json.Unmarshal(eventData, &e.EventData); err != nil {
			return nil, fmt.Errorf("unmarshal audit event data: %w", err)
		}
	}
	return &e, nil
}
