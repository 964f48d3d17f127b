package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReportDefinitionRepository is a read-only view; definitions are
// immutable from the scheduler's perspective (§3).
type ReportDefinitionRepository struct {
	pool *pgxpool.Pool
}

func NewReportDefinitionRepository(pool *pgxpool.Pool) *ReportDefinitionRepository {
	return &ReportDefinitionRepository{pool: pool}
}

func (r *ReportDefinitionRepository) Find(ctx context.Context, id, tenantID string) (*domain.ReportDefinition, error) {
	query := `
		SELECT id, tenant_id, name, query_spec, template_ref, output_format, cache_ttl_seconds
		FROM report_definitions
		WHERE id = $1 AND tenant_id = $2`

	var d domain.ReportDefinition
	var querySpec []byte
	err := r.pool.QueryRow(ctx, query, id, tenantID).Scan(
		&d.ID, &d.TenantID, &d.Name, &querySpec, &d.TemplateRef, &d.OutputFormat, &d.CacheTTLSeconds,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDefinitionMissing
		}
		return nil, fmt.Errorf("find report definition: %w", err)
	}
	if len(querySpec) > 0 {
		if err := json.Unmarshal(querySpec, &d.QuerySpec); err != nil {
			return nil, fmt.Errorf("unmarshal query spec: %w", err)
		}
	}
	return &d, nil
}
