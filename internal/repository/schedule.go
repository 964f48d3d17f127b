package repository

import (
	"context"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
)

// ListSchedulesInput carries cursor-pagination state for ScheduleRepository.List.
// The cursor is on (created_at DESC, id DESC), per spec §4.2.
type ListSchedulesInput struct {
	TenantID   string
	CursorTime *time.Time
	CursorID   string
	Limit      int
	Active     *bool
}

// ScheduleRepository is C2. Every operation is parameterized by tenant for
// isolation (§4.2); tenant filters must never be built by string
// concatenation.
type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	Find(ctx context.Context, id, tenantID string) (*domain.Schedule, error)
	List(ctx context.Context, input ListSchedulesInput) ([]*domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	Delete(ctx context.Context, id, tenantID string) (bool, error)
	Count(ctx context.Context, tenantID string, active *bool) (int, error)

	// FindDue returns active schedules whose NextRunAt is <= now, ordered by
	// NextRunAt ASC, across all tenants (the scan itself is not tenant
	// scoped — it is the scheduler loop's global discovery query).
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error)

	// AdvanceBatch persists the given schedules' LastRunAt/NextRunAt/Active
	// fields in a single transaction, per §4.6 step 4.
	AdvanceBatch(ctx context.Context, schedules []*domain.Schedule) error
}
