// Package burst implements C5, the burst-protection admission check that
// guards the scheduler loop against launching more concurrent executions
// than a tenant's (or the fleet's) capacity allows.
package burst

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/metrics"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
	"github.com/redis/go-redis/v9"
)

const (
	counterPrefix       = "concurrent_executions:"
	counterTTL          = time.Hour
	DefaultMaxPerTenant = 5
	DefaultMaxGlobal    = 50
)

// Limiter enforces per-tenant and global concurrency caps using Redis
// INCR/DECR counters. On Redis failure every method fails open: admission
// checks return allow=true, and increment/decrement become no-ops. A
// burst-protection outage must never block report delivery.
type Limiter struct {
	redis          *redis.Client
	logger         *slog.Logger
	executions     repository.ExecutionRepository
	maxPerTenant   int
	maxGlobal      int
}

func NewLimiter(client *redis.Client, executions repository.ExecutionRepository, logger *slog.Logger) *Limiter {
	return &Limiter{
		redis:        client,
		logger:       logger,
		executions:   executions,
		maxPerTenant: DefaultMaxPerTenant,
		maxGlobal:    DefaultMaxGlobal,
	}
}

// WithLimits overrides the default per-tenant/global caps.
func (l *Limiter) WithLimits(maxPerTenant, maxGlobal int) *Limiter {
	l.maxPerTenant = maxPerTenant
	l.maxGlobal = maxGlobal
	return l
}

func tenantKey(tenantID string) string { return counterPrefix + "tenant:" + tenantID }

const globalKey = counterPrefix + "global"

// Admit reports whether a new execution may start for tenantID. A false
// return's reason string is safe to log or surface in an admission-refused
// error.
func (l *Limiter) Admit(ctx context.Context, tenantID string) (bool, string) {
	tenantCount, err := l.redis.Get(ctx, tenantKey(tenantID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.WarnContext(ctx, "burst protection check failed, failing open", "error", err)
		return true, ""
	}
	if tenantCount >= l.maxPerTenant {
		metrics.BurstAdmissionsTotal.WithLabelValues("refused").Inc()
		return false, "tenant concurrency limit reached"
	}

	globalCount, err := l.redis.Get(ctx, globalKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.WarnContext(ctx, "burst protection check failed, failing open", "error", err)
		return true, ""
	}
	if globalCount >= l.maxGlobal {
		metrics.BurstAdmissionsTotal.WithLabelValues("refused").Inc()
		return false, "global concurrency limit reached"
	}

	metrics.BurstAdmissionsTotal.WithLabelValues("admitted").Inc()
	return true, ""
}

// Enter increments both counters when an execution starts.
func (l *Limiter) Enter(ctx context.Context, tenantID string) {
	pipe := l.redis.TxPipeline()
	pipe.Incr(ctx, tenantKey(tenantID))
	pipe.Expire(ctx, tenantKey(tenantID), counterTTL)
	pipe.Incr(ctx, globalKey)
	pipe.Expire(ctx, globalKey, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.WarnContext(ctx, "burst protection increment failed", "error", err, "tenant_id", tenantID)
	}
}

// Exit decrements both counters when an execution completes, clamped at
// zero so a double-decrement (e.g. a racing reconciliation) never goes
// negative.
func (l *Limiter) Exit(ctx context.Context, tenantID string) {
	l.decrIfPositive(ctx, tenantKey(tenantID))
	l.decrIfPositive(ctx, globalKey)
}

func (l *Limiter) decrIfPositive(ctx context.Context, key string) {
	count, err := l.redis.Get(ctx, key).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.WarnContext(ctx, "burst protection decrement read failed", "error", err, "key", key)
		}
		return
	}
	if count > 0 {
		if err := l.redis.Decr(ctx, key).Err(); err != nil {
			l.logger.WarnContext(ctx, "burst protection decrement failed", "error", err, "key", key)
		}
	}
}

// Counts is a snapshot of current concurrency for observability/tests.
type Counts struct {
	GlobalRunning int
	TenantRunning int
}

func (l *Limiter) CurrentCounts(ctx context.Context, tenantID string) Counts {
	var counts Counts
	if v, err := l.redis.Get(ctx, globalKey).Int(); err == nil {
		counts.GlobalRunning = v
	}
	if tenantID != "" {
		if v, err := l.redis.Get(ctx, tenantKey(tenantID)).Int(); err == nil {
			counts.TenantRunning = v
		}
	}
	return counts
}

// Sync reconciles the Redis counters against the authoritative Postgres
// state (pending|running ExecutionRuns grouped by tenant), correcting any
// drift from missed Exit calls (process crash mid-run, etc). Intended to
// run on a periodic timer from cmd/scheduler.
func (l *Limiter) Sync(ctx context.Context) error {
	counts, err := l.executions.RunningCountsByTenant(ctx)
	if err != nil {
		return err
	}

	// Tenants with no pending/running runs are absent from counts; their
	// counters are deleted first so no stale value survives the sync.
	pipe := l.redis.TxPipeline()
	iter := l.redis.Scan(ctx, 0, tenantKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	total := 0
	for tenantID, count := range counts {
		pipe.Set(ctx, tenantKey(tenantID), count, counterTTL)
		total += count
	}
	pipe.Set(ctx, globalKey, total, counterTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "synced burst protection counters",
		"tenants_synced", len(counts), "total_running", total)
	return nil
}
