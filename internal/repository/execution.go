package repository

import (
	"context"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
)

// ExecutionRepository persists ExecutionRun state transitions (§4.7).
type ExecutionRepository interface {
	Create(ctx context.Context, r *domain.ExecutionRun) (*domain.ExecutionRun, error)
	Find(ctx context.Context, id, tenantID string) (*domain.ExecutionRun, error)
	MarkCompleted(ctx context.Context, id string, completedAt time.Time, duration time.Duration, metadata map[string]any) error
	MarkFailed(ctx context.Context, id string, completedAt time.Time, duration time.Duration, errMsg string) error

	// RunningCountsByTenant feeds C5's sync reconciliation (§4.5):
	// SELECT tenant_id, COUNT(*) FROM execution_run WHERE status IN
	// (pending, running) GROUP BY tenant_id.
	RunningCountsByTenant(ctx context.Context) (map[string]int, error)

	// LastCompletedByReportDefinition anchors the incremental-report
	// overlap window (§4.7); nil means the definition has never completed.
	LastCompletedByReportDefinition(ctx context.Context, reportDefinitionID, tenantID string) (*time.Time, error)
}

// ArtifactRepository persists Artifact rows (1:0..1 with ExecutionRun,
// unique on ExecutionRunID — P3).
type ArtifactRepository interface {
	Create(ctx context.Context, a *domain.Artifact) (*domain.Artifact, error)
	Find(ctx context.Context, id, tenantID string) (*domain.Artifact, error)
	FindByExecutionRun(ctx context.Context, executionRunID, tenantID string) (*domain.Artifact, error)
	UpdateSignedURL(ctx context.Context, id string, url string, expiresAt time.Time) error

	// OlderThan returns artifacts created before cutoff, for the retention
	// sweeper (§4.8).
	OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Artifact, error)
	Delete(ctx context.Context, id string) error
}

// DeliveryReceiptRepository persists one receipt per (artifact, recipient).
type DeliveryReceiptRepository interface {
	Create(ctx context.Context, d *domain.DeliveryReceipt) (*domain.DeliveryReceipt, error)
	ListByArtifact(ctx context.Context, artifactID string) ([]*domain.DeliveryReceipt, error)
}
