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

// ExecutionRepository is the Postgres-backed store behind C7's state DAG.
type ExecutionRepository struct {
	pool *pgxpool.Pool
}

func NewExecutionRepository(pool *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{pool: pool}
}

func (r *ExecutionRepository) Create(ctx context.Context, run *domain.ExecutionRun) (*domain.ExecutionRun, error) {
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal execution metadata: %w", err)
	}

	query := `
		INSERT INTO execution_runs (
			tenant_id, schedule_id, report_definition_id, status, started_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, schedule_id, report_definition_id, status,
		          started_at, completed_at, duration_seconds, error_message, metadata`

	row := r.pool.QueryRow(ctx, query,
		run.TenantID, run.ScheduleID, run.ReportDefinitionID, run.Status, run.StartedAt, metadata,
	)
	return scanExecutionRun(row)
}

func (r *ExecutionRepository) Find(ctx context.Context, id, tenantID string) (*domain.ExecutionRun, error) {
	query := `
		SELECT id, tenant_id, schedule_id, report_definition_id, status,
		       started_at, completed_at, duration_seconds, error_message, metadata
		FROM execution_runs
		WHERE id = $1 AND tenant_id = $2`

	row := r.pool.QueryRow(ctx, query, id, tenantID)
	return scanExecutionRun(row)
}

func (r *ExecutionRepository) MarkCompleted(ctx context.Context, id string, completedAt time.Time, duration time.Duration, metadata map[string]any) error {
	merged, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal execution metadata: %w", err)
	}

	seconds := duration.Seconds()
	tag, err := r.pool.Exec(ctx, `
		UPDATE execution_runs
		SET    status = $2, completed_at = $3, duration_seconds = $4,
		       metadata = metadata || $5::jsonb
		WHERE id = $1`,
		id, domain.RunCompleted, completedAt, seconds, merged,
	)
	if err != nil {
		return fmt.Errorf("mark execution completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ExecutionRepository) MarkFailed(ctx context.Context, id string, completedAt time.Time, duration time.Duration, errMsg string) error {
	run := &domain.ExecutionRun{}
	run.TruncateError(errMsg)

	seconds := duration.Seconds()
	tag, err := r.pool.Exec(ctx, `
		UPDATE execution_runs
		SET    status = $2, completed_at = $3, duration_seconds = $4, error_message = $5
		WHERE id = $1`,
		id, domain.RunFailed, completedAt, seconds, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("mark execution failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LastCompletedByReportDefinition returns the completion time of the most
// recent successful run for a report definition, or nil if it has never
// completed — the seam the incremental-report overlap window (§4.7)
// anchors to.
func (r *ExecutionRepository) LastCompletedByReportDefinition(ctx context.Context, reportDefinitionID, tenantID string) (*time.Time, error) {
	var completedAt time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT completed_at
		FROM execution_runs
		WHERE report_definition_id = $1 AND tenant_id = $2 AND status = $3
		ORDER BY completed_at DESC
		LIMIT 1`,
		reportDefinitionID, tenantID, domain.RunCompleted,
	).Scan(&completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last completed by report definition: %w", err)
	}
	return &completedAt, nil
}

// RunningCountsByTenant backs C5's periodic reconciliation (§4.5).
func (r *ExecutionRepository) RunningCountsByTenant(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, COUNT(*)
		FROM execution_runs
		WHERE status IN ($1, $2)
		GROUP BY tenant_id`,
		domain.RunPending, domain.RunRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("running counts by tenant: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tenantID string
		var count int
		if err := rows.Scan(&tenantID, &count); err != nil {
			return nil, fmt.Errorf("scan running count: %w", err)
		}
		counts[tenantID] = count
	}
	return counts, rows.Err()
}

func scanExecutionRun(row rowScanner) (*domain.ExecutionRun, error) {
	var run domain.ExecutionRun
	var metadata []byte
	err := row.Scan(
		&run.ID, &run.TenantID, &run.ScheduleID, &run.ReportDefinitionID, &run.Status,
		&run.StartedAt, &run.CompletedAt, &run.DurationSeconds, &run.ErrorMessage, &metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan execution run: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &run.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal execution metadata: %w", err)
		}
	}
	return &run, nil
}
