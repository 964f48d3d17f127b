// Package scheduler implements C6: the leader-gated periodic scan that
// discovers due schedules and enqueues their executions.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/burst"
	"github.com/ganeshmittapally/ReportScheduler/internal/cron"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/metrics"
	"github.com/ganeshmittapally/ReportScheduler/internal/queue"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	scanLockKey  = "scheduler:scan_lock"
	scanLockTTL  = 60 * time.Second
	defaultBatch = 100
)

// Scanner is C6. Exactly one replica's scan runs at a time across the
// fleet, enforced by a Redis SET NX EX lock so horizontally-scaled
// replicas never double-fire a schedule (§4.2).
type Scanner struct {
	schedules repository.ScheduleRepository
	limiter   *burst.Limiter
	publisher *queue.Publisher
	evaluator *cron.Evaluator
	redis     *redis.Client
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewScanner(
	schedules repository.ScheduleRepository,
	limiter *burst.Limiter,
	publisher *queue.Publisher,
	redisClient *redis.Client,
	logger *slog.Logger,
	interval time.Duration,
) *Scanner {
	return &Scanner{
		schedules: schedules,
		limiter:   limiter,
		publisher: publisher,
		evaluator: cron.NewEvaluator(),
		redis:     redisClient,
		logger:    logger.With("component", "scheduler_scan"),
		interval:  interval,
		batchSize: defaultBatch,
	}
}

func (s *Scanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler scan loop started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler scan loop shut down")
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan acquires the distributed lock, processes one batch of due
// schedules, and always releases the lock on exit.
func (s *Scanner) scan(ctx context.Context) {
	lockValue := uuid.NewString()
	acquired, err := s.redis.SetNX(ctx, scanLockKey, lockValue, scanLockTTL).Result()
	if err != nil {
		s.logger.Error("scan lock acquisition failed", "error", err)
		return
	}
	if !acquired {
		s.logger.Debug("another replica holds the scan lock, skipping")
		return
	}
	defer s.releaseLock(ctx, lockValue)

	start := time.Now()
	due, err := s.schedules.FindDue(ctx, start, s.batchSize)
	if err != nil {
		s.logger.Error("find due schedules failed", "error", err)
		return
	}
	if len(due) == 0 {
		metrics.ScanCycleDuration.Observe(time.Since(start).Seconds())
		return
	}
	metrics.ScanDueSchedulesTotal.Add(float64(len(due)))

	enqueued := 0
	for _, sched := range due {
		if s.fire(ctx, sched, start) {
			enqueued++
		}
	}

	if err := s.schedules.AdvanceBatch(ctx, due); err != nil {
		s.logger.Error("advance batch failed", "error", err)
		return
	}

	metrics.ScanCycleDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("schedule scan completed",
		"duration", time.Since(start),
		"due_count", len(due),
		"enqueued_count", enqueued,
	)
}

// fire runs the admission check and enqueues on success. If admission is
// refused, last_run_at/next_run_at are left untouched so the schedule stays
// due and is retried on the very next tick (§4.6 step 3a) — it only returns
// false without touching sched. On enqueue attempt (success or publish
// failure), the schedule always advances so a broker outage doesn't spin
// the loop re-publishing the same schedule forever.
// It returns whether an enqueue actually happened.
func (s *Scanner) fire(ctx context.Context, sched *domain.Schedule, now time.Time) bool {
	logger := s.logger.With("schedule_id", sched.ID, "tenant_id", sched.TenantID)

	ok, reason := s.limiter.Admit(ctx, sched.TenantID)
	if !ok {
		metrics.ScanEnqueuedTotal.WithLabelValues("admission_refused").Inc()
		logger.Info("skipping schedule due to burst protection", "reason", reason)
		return false
	}

	descriptor := queue.Descriptor{
		TaskID:             uuid.NewString(),
		TenantID:           sched.TenantID,
		ScheduleID:         &sched.ID,
		ReportDefinitionID: sched.ReportDefinitionID,
		EnqueuedAt:         now,
		Priority:           5,
	}
	if sched.EmailDelivery != nil {
		descriptor.EmailDeliveryConfig = map[string]any{
			"recipients": sched.EmailDelivery.Recipients,
			"cc":         sched.EmailDelivery.CC,
			"bcc":        sched.EmailDelivery.BCC,
			"subject":    sched.EmailDelivery.Subject,
		}
	}

	enqueued := false
	if err := s.publisher.Publish(ctx, queue.QueueReports, descriptor); err != nil {
		metrics.ScanEnqueuedTotal.WithLabelValues("publish_failed").Inc()
		logger.Error("enqueue failed", "error", err)
	} else {
		enqueued = true
		metrics.ScanEnqueuedTotal.WithLabelValues("enqueued").Inc()
		logger.Info("enqueued execution", "task_id", descriptor.TaskID)
	}

	sched.LastRunAt = &now
	next, err := s.evaluator.Next(sched.CronExpr, sched.Timezone, now)
	if err != nil {
		logger.Error("failed to compute next run, disabling schedule", "error", err)
		sched.Active = false
		sched.NextRunAt = nil
	} else {
		sched.NextRunAt = &next
	}

	return enqueued
}

func (s *Scanner) releaseLock(ctx context.Context, lockValue string) {
	// Only delete the lock if it's still ours — a value mismatch means our
	// TTL expired and another replica already acquired a fresh lock.
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	if err := script.Run(ctx, s.redis, []string{scanLockKey}, lockValue).Err(); err != nil {
		s.logger.Warn("scan lock release failed", "error", err)
	}
}
