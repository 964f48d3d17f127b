package repository

import (
	"context"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
)

// TenantRepository reads tenant records; lifecycle is managed externally
// (§3), so there is no Create/Update here — only the lookups the schedule
// service needs for quota enforcement.
type TenantRepository interface {
	Find(ctx context.Context, id string) (*domain.Tenant, error)
}

// ReportDefinitionRepository reads report definitions; they are immutable
// from the scheduler's perspective (§3).
type ReportDefinitionRepository interface {
	Find(ctx context.Context, id, tenantID string) (*domain.ReportDefinition, error)
}
