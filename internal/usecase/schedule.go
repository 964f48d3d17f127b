package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/cron"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
)

// ScheduleUsecase is C3: every write-side business rule for schedules
// (quota enforcement, cron/timezone validation, next_run_at recomputation)
// lives here, so C2 stays a thin persistence layer.
type ScheduleUsecase struct {
	schedules   repository.ScheduleRepository
	definitions repository.ReportDefinitionRepository
	tenants     repository.TenantRepository
	evaluator   *cron.Evaluator
}

func NewScheduleUsecase(schedules repository.ScheduleRepository, definitions repository.ReportDefinitionRepository, tenants repository.TenantRepository, evaluator *cron.Evaluator) *ScheduleUsecase {
	return &ScheduleUsecase{schedules: schedules, definitions: definitions, tenants: tenants, evaluator: evaluator}
}

type CreateScheduleInput struct {
	TenantID           string
	ReportDefinitionID string
	Name               string
	CronExpr           string
	Timezone           string
	EmailDelivery      *domain.EmailDeliveryConfig
}

// CreateSchedule implements §4.3 create: quota check, cron/tz validation,
// report definition existence, then persist with active=true and a
// computed next_run_at.
func (u *ScheduleUsecase) CreateSchedule(ctx context.Context, input CreateScheduleInput) (*domain.Schedule, error) {
	tenant, err := u.tenants.Find(ctx, input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	if !tenant.Active {
		return nil, domain.ErrTenantInactive
	}

	active := true
	activeCount, err := u.schedules.Count(ctx, input.TenantID, &active)
	if err != nil {
		return nil, fmt.Errorf("count active schedules: %w", err)
	}
	if activeCount >= tenant.Tier.ScheduleQuota() {
		return nil, domain.ErrQuotaExceeded
	}

	if _, err := u.definitions.Find(ctx, input.ReportDefinitionID, input.TenantID); err != nil {
		return nil, fmt.Errorf("find report definition: %w", err)
	}

	if err := u.evaluator.Validate(input.CronExpr); err != nil {
		return nil, domain.ErrInvalidCron
	}

	now := time.Now().UTC()
	next, err := u.evaluator.Next(input.CronExpr, input.Timezone, now)
	if err != nil {
		return nil, domain.ErrInvalidTimezone
	}

	s := &domain.Schedule{
		TenantID:           input.TenantID,
		ReportDefinitionID: input.ReportDefinitionID,
		Name:               input.Name,
		CronExpr:           input.CronExpr,
		Timezone:           input.Timezone,
		Active:             true,
		NextRunAt:          &next,
		EmailDelivery:      input.EmailDelivery,
	}

	created, err := u.schedules.Create(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return created, nil
}

func (u *ScheduleUsecase) GetSchedule(ctx context.Context, id, tenantID string) (*domain.Schedule, error) {
	s, err := u.schedules.Find(ctx, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	return s, nil
}

type ListSchedulesInput struct {
	TenantID string
	Cursor   string
	Limit    int
	Active   *bool
}

type ListSchedulesResult struct {
	Schedules  []*domain.Schedule
	NextCursor *string
}

type scheduleCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func decodeScheduleCursor(s string) (*time.Time, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	var c scheduleCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, "", fmt.Errorf("unmarshal cursor: %w", err)
	}
	return &c.CreatedAt, c.ID, nil
}

func encodeScheduleCursor(createdAt time.Time, id string) string {
	b, _ := json.Marshal(scheduleCursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func (u *ScheduleUsecase) ListSchedules(ctx context.Context, input ListSchedulesInput) (ListSchedulesResult, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	repoInput := repository.ListSchedulesInput{
		TenantID: input.TenantID,
		Limit:    limit + 1,
		Active:   input.Active,
	}

	if input.Cursor != "" {
		cursorTime, cursorID, err := decodeScheduleCursor(input.Cursor)
		if err != nil {
			return ListSchedulesResult{}, fmt.Errorf("invalid cursor: %w", err)
		}
		repoInput.CursorTime = cursorTime
		repoInput.CursorID = cursorID
	}

	schedules, err := u.schedules.List(ctx, repoInput)
	if err != nil {
		return ListSchedulesResult{}, fmt.Errorf("list schedules: %w", err)
	}

	var nextCursor *string
	if len(schedules) == limit+1 {
		last := schedules[limit]
		s := encodeScheduleCursor(last.CreatedAt, last.ID)
		nextCursor = &s
		schedules = schedules[:limit]
	}

	return ListSchedulesResult{Schedules: schedules, NextCursor: nextCursor}, nil
}

type UpdateScheduleInput struct {
	ID            string
	TenantID      string
	Name          *string
	CronExpr      *string
	Timezone      *string
	EmailDelivery *domain.EmailDeliveryConfig
	ClearEmail    bool
}

// UpdateSchedule implements §4.3 update: fetch-or-404, apply provided
// fields, and recompute next_run_at only when cron or timezone changed.
func (u *ScheduleUsecase) UpdateSchedule(ctx context.Context, input UpdateScheduleInput) (*domain.Schedule, error) {
	s, err := u.schedules.Find(ctx, input.ID, input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("find schedule: %w", err)
	}

	cronOrTzChanged := false
	if input.Name != nil {
		s.Name = *input.Name
	}
	if input.CronExpr != nil && *input.CronExpr != s.CronExpr {
		if err := u.evaluator.Validate(*input.CronExpr); err != nil {
			return nil, domain.ErrInvalidCron
		}
		s.CronExpr = *input.CronExpr
		cronOrTzChanged = true
	}
	if input.Timezone != nil && *input.Timezone != s.Timezone {
		s.Timezone = *input.Timezone
		cronOrTzChanged = true
	}
	if input.ClearEmail {
		s.EmailDelivery = nil
	} else if input.EmailDelivery != nil {
		s.EmailDelivery = input.EmailDelivery
	}

	if cronOrTzChanged {
		next, err := u.evaluator.Next(s.CronExpr, s.Timezone, time.Now().UTC())
		if err != nil {
			return nil, domain.ErrInvalidTimezone
		}
		s.NextRunAt = &next
	}

	updated, err := u.schedules.Update(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return updated, nil
}

// PauseSchedule implements §4.3 pause: active=false, next_run_at left
// as-is (I1's antecedent no longer holds, so it is simply ignored).
func (u *ScheduleUsecase) PauseSchedule(ctx context.Context, id, tenantID string) (*domain.Schedule, error) {
	s, err := u.schedules.Find(ctx, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	s.Active = false
	updated, err := u.schedules.Update(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("pause schedule: %w", err)
	}
	return updated, nil
}

// ResumeSchedule implements §4.3 resume: active=true AND next_run_at is
// recomputed from now, restoring I1.
func (u *ScheduleUsecase) ResumeSchedule(ctx context.Context, id, tenantID string) (*domain.Schedule, error) {
	s, err := u.schedules.Find(ctx, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("find schedule: %w", err)
	}

	next, err := u.evaluator.Next(s.CronExpr, s.Timezone, time.Now().UTC())
	if err != nil {
		return nil, domain.ErrInvalidTimezone
	}
	s.Active = true
	s.NextRunAt = &next

	updated, err := u.schedules.Update(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("resume schedule: %w", err)
	}
	return updated, nil
}

func (u *ScheduleUsecase) DeleteSchedule(ctx context.Context, id, tenantID string) error {
	ok, err := u.schedules.Delete(ctx, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}
