package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/burst"
	"github.com/ganeshmittapally/ReportScheduler/internal/cache"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/metrics"
	"github.com/ganeshmittapally/ReportScheduler/internal/queue"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
	"github.com/google/uuid"
)

const (
	// softTimeout only triggers a warning log; no step checks it, so an
	// attempt that passes it keeps running until it finishes or hits
	// hardTimeout.
	softTimeout = 5 * time.Minute
	// hardTimeout kills the attempt outright via context cancellation.
	hardTimeout = 10 * time.Minute

	maxRetries         = 3
	retryBackoffUnit   = 60 * time.Second
	defaultSignedURLTTL = 24 * time.Hour
)

// Pipeline is C7: the worker-side state machine that turns one queued
// Descriptor into a finished, delivered report artifact.
type Pipeline struct {
	executions  repository.ExecutionRepository
	definitions repository.ReportDefinitionRepository
	artifacts   repository.ArtifactRepository
	deliveries  repository.DeliveryReceiptRepository
	cache       *cache.Cache
	limiter     *burst.Limiter
	dataSource  DataSource
	templates   TemplateRenderer
	pdf         PdfRenderer
	blobs       BlobStore
	senders     map[domain.Channel]Sender
	logger      *slog.Logger
}

func New(
	executions repository.ExecutionRepository,
	definitions repository.ReportDefinitionRepository,
	artifacts repository.ArtifactRepository,
	deliveries repository.DeliveryReceiptRepository,
	reportCache *cache.Cache,
	limiter *burst.Limiter,
	dataSource DataSource,
	templates TemplateRenderer,
	pdf PdfRenderer,
	blobs BlobStore,
	senders map[domain.Channel]Sender,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		executions:  executions,
		definitions: definitions,
		artifacts:   artifacts,
		deliveries:  deliveries,
		cache:       reportCache,
		limiter:     limiter,
		dataSource:  dataSource,
		templates:   templates,
		pdf:         pdf,
		blobs:       blobs,
		senders:     senders,
		logger:      logger.With("component", "pipeline"),
	}
}

// Run implements queue.Handler: it drives one descriptor through the
// pipeline, retrying up to maxRetries times with linear backoff on
// failure (§4.7's failure path). Each attempt is its own ExecutionRun —
// this is deliberate: a retry after a compute success but a later failure
// (upload, artifact persist) re-reads the cache and, for a cacheable
// report, skips the expensive compute. Delivery failures never fail an
// attempt, so they are not retried here.
func (p *Pipeline) Run(ctx context.Context, d queue.Descriptor) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBackoffUnit * time.Duration(attempt)
			p.logger.Info("retrying execution", "task_id", d.TaskID, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := p.attempt(ctx, d, attempt); err != nil {
			if errors.Is(err, domain.ErrDefinitionMissing) {
				// §7/§4.7 step 3: a missing report definition is a
				// terminal failure of this run, never retried.
				p.logger.Error("execution failed, definition missing, not retrying", "task_id", d.TaskID, "error", err)
				return nil
			}
			lastErr = err
			p.logger.Warn("execution attempt failed", "task_id", d.TaskID, "attempt", attempt, "error", err)
			continue
		}
		return nil
	}

	// After the final retry the run stays failed and the task is still
	// acknowledged — return nil so the broker does not redeliver forever.
	p.logger.Error("execution exhausted retries, leaving failed", "task_id", d.TaskID, "attempts", maxRetries+1, "error", lastErr)
	return nil
}

// attempt executes one full pass of the state machine for a brand new
// ExecutionRun, honoring the hard timeout and logging a soft-timeout
// warning without aborting: the soft timeout does not stop the attempt at a
// step boundary or anywhere else (the warning timer mirrors the teacher's
// heartbeat pattern).
func (p *Pipeline) attempt(ctx context.Context, d queue.Descriptor, attemptNum int) error {
	hardCtx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	softTimer := time.AfterFunc(softTimeout, func() {
		p.logger.Warn("execution exceeded soft time limit", "task_id", d.TaskID, "attempt", attemptNum)
	})
	defer softTimer.Stop()

	// Step 1: admission bookkeeping.
	p.limiter.Enter(hardCtx, d.TenantID)
	defer p.limiter.Exit(context.WithoutCancel(hardCtx), d.TenantID)

	metrics.PipelineRunsInFlight.Inc()
	defer metrics.PipelineRunsInFlight.Dec()

	// Step 2: create run.
	run := &domain.ExecutionRun{
		ID:                 uuid.NewString(),
		TenantID:           d.TenantID,
		ScheduleID:         d.ScheduleID,
		ReportDefinitionID: d.ReportDefinitionID,
		Status:             domain.RunRunning,
		StartedAt:          time.Now().UTC(),
		Metadata:           map[string]any{"task_id": d.TaskID},
	}
	run, err := p.executions.Create(hardCtx, run)
	if err != nil {
		return fmt.Errorf("create execution run: %w", err)
	}
	started := time.Now()

	artifact, cacheHit, err := p.produce(hardCtx, run, d)
	if err != nil {
		p.failRun(hardCtx, run, started, err)
		return err
	}

	p.deliver(hardCtx, d, artifact)

	return p.completeRun(hardCtx, run, started, cacheHit)
}

// produce is steps 3-6: resolve the definition, consult the cache, compute
// on miss, and persist the artifact.
func (p *Pipeline) produce(ctx context.Context, run *domain.ExecutionRun, d queue.Descriptor) (*domain.Artifact, bool, error) {
	def, err := p.definitions.Find(ctx, d.ReportDefinitionID, d.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("%w", domain.ErrDefinitionMissing)
		}
		return nil, false, fmt.Errorf("resolve report definition: %w", err)
	}

	window, err := p.resolveWindow(ctx, def, d)
	if err != nil {
		return nil, false, fmt.Errorf("resolve date range: %w", err)
	}
	// The fingerprint carries only the stable range_type label, never the
	// resolved Start/End instants — those move on every scan tick, and
	// keying on them would mean two executions of the same report minutes
	// apart never fingerprint-match. Freshness within a window is the
	// cache TTL's job, not the key's (mirrors the original's date_range=None).
	dateRange := map[string]any{"range_type": window.RangeType}

	var pdfBytes []byte
	cacheHit := false
	if def.Cacheable() {
		entry, err := p.cache.Get(ctx, def.ID, def.QuerySpec, dateRange)
		if err != nil {
			p.logger.Warn("cache lookup errored, falling back to compute", "error", err)
		}
		if entry != nil {
			pdfBytes = entry.Bytes
			cacheHit = true
		}
	}

	if pdfBytes == nil {
		data, err := p.dataSource.Fetch(ctx, def.QuerySpec, window)
		if err != nil {
			return nil, false, fmt.Errorf("fetch data: %w", err)
		}
		html, err := p.templates.Render(ctx, def.TemplateRef, def.Name, data)
		if err != nil {
			return nil, false, fmt.Errorf("render template: %w", err)
		}
		pdfBytes, err = p.pdf.RenderPDF(ctx, html)
		if err != nil {
			return nil, false, fmt.Errorf("render pdf: %w", err)
		}
		if def.Cacheable() {
			ttl := time.Duration(def.CacheTTLSeconds) * time.Second
			extra := map[string]any{"execution_id": run.ID, "report_name": def.Name}
			if err := p.cache.Put(ctx, def.ID, def.QuerySpec, dateRange, pdfBytes, ttl, extra); err != nil {
				p.logger.Warn("cache put failed", "error", err)
			}
		}
	}
	run.Metadata["cache_hit"] = cacheHit

	path, err := p.blobs.Upload(ctx, d.TenantID, run.ID, pdfBytes, def.OutputFormat)
	if err != nil {
		return nil, cacheHit, fmt.Errorf("upload artifact: %w", err)
	}
	signedURL, expiresAt, err := p.blobs.SignedURL(ctx, path, defaultSignedURLTTL)
	if err != nil {
		return nil, cacheHit, fmt.Errorf("sign artifact url: %w", err)
	}

	artifact, err := p.artifacts.Create(ctx, &domain.Artifact{
		ID:               uuid.NewString(),
		TenantID:         d.TenantID,
		ExecutionRunID:   run.ID,
		BlobPath:         path,
		FileSizeBytes:    int64(len(pdfBytes)),
		FileFormat:       def.OutputFormat,
		SignedURL:        signedURL,
		SignedURLExpires: expiresAt,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return nil, cacheHit, fmt.Errorf("persist artifact: %w", err)
	}

	return artifact, cacheHit, nil
}

// resolveWindow derives the date range a DataSource query runs over,
// honoring the incremental-report overlap rule when the definition's
// query spec asks for it.
func (p *Pipeline) resolveWindow(ctx context.Context, def *domain.ReportDefinition, d queue.Descriptor) (Range, error) {
	reference := d.EnqueuedAt
	if reference.IsZero() {
		reference = time.Now().UTC()
	}

	if incremental, _ := def.QuerySpec["incremental"].(bool); incremental {
		lastCompleted, err := p.executions.LastCompletedByReportDefinition(ctx, def.ID, def.TenantID)
		if err != nil {
			p.logger.Warn("incremental lookback lookup failed, treating as first run", "error", err)
			lastCompleted = nil
		}
		r, _ := IncrementalRange(lastCompleted, reference)
		return r, nil
	}

	rangeType, _ := def.QuerySpec["range_type"].(string)
	if rangeType == "" {
		rangeType = defaultRangeType
	}
	tz, _ := def.QuerySpec["timezone"].(string)
	if tz == "" {
		tz = "UTC"
	}
	return CalculateRange(rangeType, reference, tz, p.logger)
}

// deliver is step 7. Each recipient is independent: a failure there never
// fails the run, it only marks that recipient's receipt failed.
func (p *Pipeline) deliver(ctx context.Context, d queue.Descriptor, artifact *domain.Artifact) {
	if d.EmailDeliveryConfig == nil {
		return
	}
	subject, _ := d.EmailDeliveryConfig["subject"].(string)
	recipients := stringSlice(d.EmailDeliveryConfig["recipients"])

	sender, ok := p.senders[domain.ChannelEmail]
	if !ok {
		p.logger.Warn("no sender registered for channel", "channel", domain.ChannelEmail)
		return
	}

	for _, addr := range recipients {
		receipt := &domain.DeliveryReceipt{
			ID:         uuid.NewString(),
			TenantID:   d.TenantID,
			ArtifactID: artifact.ID,
			Channel:    domain.ChannelEmail,
			Recipient:  addr,
			Status:     domain.DeliverySent,
		}

		err := sender.Send(ctx, Recipient{Channel: domain.ChannelEmail, Address: addr}, subject, "", "", artifact.SignedURL)
		if err != nil {
			receipt.Status = domain.DeliveryFailed
			msg := err.Error()
			receipt.ErrorMessage = &msg
			p.logger.Warn("delivery failed", "recipient", addr, "artifact_id", artifact.ID, "error", err)
		} else {
			now := time.Now().UTC()
			receipt.SentAt = &now
		}

		if _, err := p.deliveries.Create(ctx, receipt); err != nil {
			p.logger.Error("persist delivery receipt failed", "recipient", addr, "error", err)
		}
	}
}

func stringSlice(v any) []string {
	raw, ok := v.([]string)
	if ok {
		return raw
	}
	anySlice, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(anySlice))
	for _, item := range anySlice {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pipeline) completeRun(ctx context.Context, run *domain.ExecutionRun, started time.Time, cacheHit bool) error {
	completedAt := time.Now().UTC()
	duration := completedAt.Sub(started)
	run.Metadata["cache_hit"] = cacheHit
	if err := p.executions.MarkCompleted(ctx, run.ID, completedAt, duration, run.Metadata); err != nil {
		return fmt.Errorf("mark execution completed: %w", err)
	}
	metrics.PipelineRunsTotal.WithLabelValues("completed").Inc()
	metrics.PipelineRunDuration.WithLabelValues("completed").Observe(duration.Seconds())
	p.logger.Info("execution completed", "execution_run_id", run.ID, "duration", duration, "cache_hit", cacheHit)
	return nil
}

func (p *Pipeline) failRun(ctx context.Context, run *domain.ExecutionRun, started time.Time, cause error) {
	completedAt := time.Now().UTC()
	duration := completedAt.Sub(started)
	run.TruncateError(cause.Error())
	if err := p.executions.MarkFailed(ctx, run.ID, completedAt, duration, *run.ErrorMessage); err != nil {
		p.logger.Error("mark execution failed errored", "execution_run_id", run.ID, "error", err)
	}
	metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
	metrics.PipelineRunDuration.WithLabelValues("failed").Observe(duration.Seconds())
	p.logger.Error("execution failed", "execution_run_id", run.ID, "duration", duration, "error", cause)
}
