package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ganeshmittapally/ReportScheduler/internal/burst"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/queue"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
	"github.com/redis/go-redis/v9"
)

type fakeScheduleRepo struct {
	due           []*domain.Schedule
	advancedCalls [][]*domain.Schedule
}

func (f *fakeScheduleRepo) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	return s, nil
}
func (f *fakeScheduleRepo) Find(ctx context.Context, id, tenantID string) (*domain.Schedule, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeScheduleRepo) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	return nil, nil
}
func (f *fakeScheduleRepo) Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	return s, nil
}
func (f *fakeScheduleRepo) Delete(ctx context.Context, id, tenantID string) (bool, error) {
	return true, nil
}
func (f *fakeScheduleRepo) Count(ctx context.Context, tenantID string, active *bool) (int, error) {
	return 0, nil
}
func (f *fakeScheduleRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Schedule, error) {
	return f.due, nil
}
func (f *fakeScheduleRepo) AdvanceBatch(ctx context.Context, schedules []*domain.Schedule) error {
	f.advancedCalls = append(f.advancedCalls, schedules)
	return nil
}

type fakeExecutionRepo struct{ counts map[string]int }

func (f *fakeExecutionRepo) Create(ctx context.Context, r *domain.ExecutionRun) (*domain.ExecutionRun, error) {
	return r, nil
}
func (f *fakeExecutionRepo) Find(ctx context.Context, id, tenantID string) (*domain.ExecutionRun, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeExecutionRepo) MarkCompleted(ctx context.Context, id string, completedAt time.Time, duration time.Duration, metadata map[string]any) error {
	return nil
}
func (f *fakeExecutionRepo) MarkFailed(ctx context.Context, id string, completedAt time.Time, duration time.Duration, errMsg string) error {
	return nil
}
func (f *fakeExecutionRepo) RunningCountsByTenant(ctx context.Context) (map[string]int, error) {
	return f.counts, nil
}
func (f *fakeExecutionRepo) LastCompletedByReportDefinition(ctx context.Context, reportDefinitionID, tenantID string) (*time.Time, error) {
	return nil, nil
}

func newTestScanner(t *testing.T, due []*domain.Schedule) (*Scanner, *fakeScheduleRepo) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &fakeScheduleRepo{due: due}
	limiter := burst.NewLimiter(client, &fakeExecutionRepo{counts: map[string]int{}}, logger)

	// No real broker in unit tests: publisher calls fail, which scan()
	// treats as "not enqueued" and logs — acceptable for exercising the
	// admission + advance-batch control flow in isolation.
	conn := &queue.Connection{}
	publisher := queue.NewPublisher(conn)

	return NewScanner(repo, limiter, publisher, client, logger, time.Second), repo
}

func TestScanner_NoDueSchedulesSkipsAdvance(t *testing.T) {
	scanner, repo := newTestScanner(t, nil)
	scanner.scan(context.Background())

	if len(repo.advancedCalls) != 0 {
		t.Fatalf("expected no AdvanceBatch call, got %d", len(repo.advancedCalls))
	}
}

func TestScanner_DueSchedulesAdvanceNextRun(t *testing.T) {
	sched := &domain.Schedule{
		ID:                 "sched-1",
		TenantID:           "tenant-1",
		ReportDefinitionID: "rd-1",
		CronExpr:           "0 9 * * *",
		Timezone:           "UTC",
		Active:             true,
	}
	scanner, repo := newTestScanner(t, []*domain.Schedule{sched})
	scanner.scan(context.Background())

	if len(repo.advancedCalls) != 1 {
		t.Fatalf("expected one AdvanceBatch call, got %d", len(repo.advancedCalls))
	}
	advanced := repo.advancedCalls[0][0]
	if advanced.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be recomputed")
	}
	if advanced.LastRunAt == nil {
		t.Fatal("expected LastRunAt to be set")
	}
}

func TestScanner_InvalidCronDisablesSchedule(t *testing.T) {
	sched := &domain.Schedule{
		ID:                 "sched-1",
		TenantID:           "tenant-1",
		ReportDefinitionID: "rd-1",
		CronExpr:           "not-a-cron",
		Timezone:           "UTC",
		Active:             true,
	}
	scanner, repo := newTestScanner(t, []*domain.Schedule{sched})
	scanner.scan(context.Background())

	advanced := repo.advancedCalls[0][0]
	if advanced.Active {
		t.Fatal("expected schedule to be disabled after invalid cron")
	}
	if advanced.NextRunAt != nil {
		t.Fatal("expected NextRunAt to be cleared")
	}
}

func TestScanner_RefusedAdmissionLeavesScheduleDue(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	origNext := time.Now().Add(time.Hour)
	origLast := time.Now().Add(-time.Hour)
	sched := &domain.Schedule{
		ID:                 "sched-1",
		TenantID:           "tenant-1",
		ReportDefinitionID: "rd-1",
		CronExpr:           "0 9 * * *",
		Timezone:           "UTC",
		Active:             true,
		LastRunAt:          &origLast,
		NextRunAt:          &origNext,
	}
	repo := &fakeScheduleRepo{due: []*domain.Schedule{sched}}
	limiter := burst.NewLimiter(client, &fakeExecutionRepo{counts: map[string]int{}}, logger).WithLimits(0, 50)
	conn := &queue.Connection{}
	publisher := queue.NewPublisher(conn)
	scanner := NewScanner(repo, limiter, publisher, client, logger, time.Second)

	scanner.scan(context.Background())

	if len(repo.advancedCalls) != 1 {
		t.Fatalf("expected one AdvanceBatch call, got %d", len(repo.advancedCalls))
	}
	advanced := repo.advancedCalls[0][0]
	if advanced.NextRunAt == nil || !advanced.NextRunAt.Equal(origNext) {
		t.Fatal("expected NextRunAt to be left untouched after admission refusal")
	}
	if advanced.LastRunAt == nil || !advanced.LastRunAt.Equal(origLast) {
		t.Fatal("expected LastRunAt to be left untouched after admission refusal")
	}
}

func TestScanner_ScanLockPreventsConcurrentScan(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := client.Set(context.Background(), scanLockKey, "someone-else", time.Minute).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	repo := &fakeScheduleRepo{due: []*domain.Schedule{{ID: "sched-1"}}}
	limiter := burst.NewLimiter(client, &fakeExecutionRepo{counts: map[string]int{}}, logger)
	conn := &queue.Connection{}
	publisher := queue.NewPublisher(conn)
	scanner := NewScanner(repo, limiter, publisher, client, logger, time.Second)

	scanner.scan(context.Background())

	if len(repo.advancedCalls) != 0 {
		t.Fatal("expected scan to be skipped while another replica holds the lock")
	}
}
