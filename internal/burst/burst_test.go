package burst

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/redis/go-redis/v9"
)

type fakeExecutionRepo struct {
	counts map[string]int
}

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

func newTestLimiter(t *testing.T, repo *fakeExecutionRepo) (*Limiter, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if repo == nil {
		repo = &fakeExecutionRepo{counts: map[string]int{}}
	}
	return NewLimiter(client, repo, logger), client
}

func TestLimiter_AdmitsUnderLimit(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	ok, reason := l.Admit(context.Background(), "tenant-1")
	if !ok || reason != "" {
		t.Fatalf("expected admit, got ok=%v reason=%q", ok, reason)
	}
}

func TestLimiter_RefusesAtTenantLimit(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	l.WithLimits(1, 50)
	ctx := context.Background()

	l.Enter(ctx, "tenant-1")

	ok, reason := l.Admit(ctx, "tenant-1")
	if ok {
		t.Fatal("expected admission refused at tenant limit")
	}
	if reason == "" {
		t.Fatal("expected a reason string")
	}
}

func TestLimiter_RefusesAtGlobalLimit(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	l.WithLimits(50, 1)
	ctx := context.Background()

	l.Enter(ctx, "tenant-1")

	ok, _ := l.Admit(ctx, "tenant-2")
	if ok {
		t.Fatal("expected admission refused at global limit")
	}
}

func TestLimiter_ExitDoesNotGoNegative(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	ctx := context.Background()

	l.Exit(ctx, "tenant-1")
	l.Exit(ctx, "tenant-1")

	counts := l.CurrentCounts(ctx, "tenant-1")
	if counts.TenantRunning < 0 {
		t.Fatalf("counter went negative: %d", counts.TenantRunning)
	}
}

func TestLimiter_EnterThenExitReturnsToZero(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	ctx := context.Background()

	l.Enter(ctx, "tenant-1")
	l.Enter(ctx, "tenant-1")
	l.Exit(ctx, "tenant-1")
	l.Exit(ctx, "tenant-1")

	counts := l.CurrentCounts(ctx, "tenant-1")
	if counts.TenantRunning != 0 {
		t.Fatalf("tenant running = %d, want 0", counts.TenantRunning)
	}
}

func TestLimiter_SyncReconcilesFromDB(t *testing.T) {
	repo := &fakeExecutionRepo{counts: map[string]int{"tenant-1": 3, "tenant-2": 2}}
	l, _ := newTestLimiter(t, repo)
	ctx := context.Background()

	if err := l.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	counts := l.CurrentCounts(ctx, "tenant-1")
	if counts.TenantRunning != 3 {
		t.Fatalf("tenant-1 running = %d, want 3", counts.TenantRunning)
	}
	if counts.GlobalRunning != 5 {
		t.Fatalf("global running = %d, want 5", counts.GlobalRunning)
	}
}

// TestLimiter_FailsOpenWhenRedisUnavailable exercises §4.5's fail-open
// guarantee: a closed connection must still report admit=true.
func TestLimiter_FailsOpenWhenRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewLimiter(client, &fakeExecutionRepo{counts: map[string]int{}}, logger)

	mr.Close()

	ok, reason := l.Admit(context.Background(), "tenant-1")
	if !ok {
		t.Fatalf("expected fail-open admit, got ok=%v reason=%q", ok, reason)
	}
}
