package repository

import (
	"context"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
)

// AuditRepository is the append-only store behind C9.
type AuditRepository interface {
	Insert(ctx context.Context, e *domain.AuditEvent) (*domain.AuditEvent, error)

	// ListByArtifact returns the latest 100 events for an artifact (§4.9).
	ListByArtifact(ctx context.Context, tenantID, artifactID string) ([]*domain.AuditEvent, error)

	// ListByUser returns a user's activity within a tenant.
	ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]*domain.AuditEvent, error)

	// ListByDateRange feeds the compliance aggregation; the caller computes
	// totals/uniques over the returned events.
	ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.AuditEvent, error)
}
