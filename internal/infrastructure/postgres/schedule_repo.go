package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ScheduleRepository is the Postgres-backed C2. Every query filters by
// tenant_id except FindDue, which is the scheduler loop's cross-tenant
// discovery query.
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	emailCfg, err := marshalEmailConfig(s.EmailDelivery)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO schedules (
			tenant_id, report_definition_id, name, cron_expression, timezone,
			active, next_run_at, last_run_at, email_delivery_config
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, tenant_id, report_definition_id, name, cron_expression,
		          timezone, active, next_run_at, last_run_at,
		          email_delivery_config, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query,
		s.TenantID, s.ReportDefinitionID, s.Name, s.CronExpr, s.Timezone,
		s.Active, s.NextRunAt, s.LastRunAt, emailCfg,
	)

	created, err := scanSchedule(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrNameConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *ScheduleRepository) Find(ctx context.Context, id, tenantID string) (*domain.Schedule, error) {
	query := `
		SELECT id, tenant_id, report_definition_id, name, cron_expression,
		       timezone, active, next_run_at, last_run_at,
		       email_delivery_config, created_at, updated_at
		FROM schedules
		WHERE id = $1 AND tenant_id = $2`

	row := r.pool.QueryRow(ctx, query, id, tenantID)
	return scanSchedule(row)
}

func (r *ScheduleRepository) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	args := []any{input.TenantID}
	where := []string{"tenant_id = $1"}

	if input.Active != nil {
		args = append(args, *input.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT id, tenant_id, report_definition_id, name, cron_expression,
		       timezone, active, next_run_at, last_run_at,
		       email_delivery_config, created_at, updated_at
		FROM schedules
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`,
		strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *ScheduleRepository) Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	emailCfg, err := marshalEmailConfig(s.EmailDelivery)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE schedules
		SET    name = $3, cron_expression = $4, timezone = $5, active = $6,
		       next_run_at = $7, email_delivery_config = $8, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING id, tenant_id, report_definition_id, name, cron_expression,
		          timezone, active, next_run_at, last_run_at,
		          email_delivery_config, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query,
		s.ID, s.TenantID, s.Name, s.CronExpr, s.Timezone, s.Active,
		s.NextRunAt, emailCfg,
	)
	return scanSchedule(row)
}

func (r *ScheduleRepository) Delete(ctx context.Context, id, tenantID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM schedules WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return false, fmt.Errorf("delete schedule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ScheduleRepository) Count(ctx context.Context, tenantID string, active *bool) (int, error) {
	args := []any{tenantID}
	where := "tenant_id = $1"
	if active != nil {
		args = append(args, *active)
		where += fmt.Sprintf(" AND active = $%d", len(args))
	}

	var count int
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM schedules WHERE %s`, where), args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count schedules: %w", err)
	}
	return count, nil
}

// FindDue implements §4.2: active AND next_run_at <= now AND next_run_at IS
// NOT NULL, ordered by next_run_at ASC.
func (r *ScheduleRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, tenant_id, report_definition_id, name, cron_expression,
		       timezone, active, next_run_at, last_run_at,
		       email_delivery_config, created_at, updated_at
		FROM schedules
		WHERE active AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// AdvanceBatch persists LastRunAt/NextRunAt/Active for every schedule in a
// single transaction, per §4.6 step 4.
func (r *ScheduleRepository) AdvanceBatch(ctx context.Context, schedules []*domain.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, s := range schedules {
		if _, err := tx.Exec(ctx, `
			UPDATE schedules
			SET    last_run_at = $2, next_run_at = $3, active = $4, updated_at = NOW()
			WHERE id = $1 AND tenant_id = $5`,
			s.ID, s.LastRunAt, s.NextRunAt, s.Active, s.TenantID,
		); err != nil {
			return fmt.Errorf("advance schedule %s: %w", s.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	var emailCfg []byte
	err := row.Scan(
		&s.ID, &s.TenantID, &s.ReportDefinitionID, &s.Name, &s.CronExpr,
		&s.Timezone, &s.Active, &s.NextRunAt, &s.LastRunAt,
		&emailCfg, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	cfg, err := unmarshalEmailConfig(emailCfg)
	if err != nil {
		return nil, err
	}
	s.EmailDelivery = cfg
	return &s, nil
}

func marshalEmailConfig(cfg *domain.EmailDeliveryConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal email delivery config: %w", err)
	}
	return b, nil
}

func unmarshalEmailConfig(b []byte) (*domain.EmailDeliveryConfig, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var cfg domain.EmailDeliveryConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal email delivery config: %w", err)
	}
	return &cfg, nil
}
