// Package retention implements C8: the daily sweep that deletes artifacts
// older than a tenant-agnostic retention horizon, blob first then row, so a
// crash between the two steps leaves a retryable dangling DB row rather
// than a dangling blob.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/metrics"
	"github.com/ganeshmittapally/ReportScheduler/internal/pipeline"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
)

const sweepBatchSize = 100

// Sweeper runs the C8 retention sweep on a daily ticker, grounded on the
// scheduler loop's own ticker-driven Start(ctx) shape.
type Sweeper struct {
	artifacts     repository.ArtifactRepository
	blobs         pipeline.BlobStore
	logger        *slog.Logger
	interval      time.Duration
	retentionDays int
	dryRun        bool
}

func NewSweeper(artifacts repository.ArtifactRepository, blobs pipeline.BlobStore, logger *slog.Logger, interval time.Duration, retentionDays int, dryRun bool) *Sweeper {
	return &Sweeper{
		artifacts:     artifacts,
		blobs:         blobs,
		logger:        logger.With("component", "retention_sweeper"),
		interval:      interval,
		retentionDays: retentionDays,
		dryRun:        dryRun,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention sweeper started", "interval", s.interval, "retention_days", s.retentionDays, "dry_run", s.dryRun)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper shut down")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Result summarizes one sweep pass.
type Result struct {
	TotalExpired   int
	DeletedCount   int
	FailedCount    int
	TotalSizeBytes int64
	DryRun         bool
}

// Sweep runs one pass: find artifacts past the retention horizon, delete
// blob then row for each, skipping the row deletion on blob failure so a
// later pass can retry both.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	start := time.Now()
	cutoff := start.UTC().AddDate(0, 0, -s.retentionDays)

	result := Result{DryRun: s.dryRun}
	defer func() { metrics.RetentionSweepDuration.Observe(time.Since(start).Seconds()) }()

	for {
		batch, err := s.artifacts.OlderThan(ctx, cutoff, sweepBatchSize)
		if err != nil {
			s.logger.Error("list expired artifacts", "error", err)
			return result
		}
		if len(batch) == 0 {
			break
		}

		for _, a := range batch {
			result.TotalExpired++
			result.TotalSizeBytes += a.FileSizeBytes

			if s.dryRun {
				s.logger.Info("dry run: would delete artifact", "artifact_id", a.ID, "blob_path", a.BlobPath)
				result.DeletedCount++
				continue
			}

			if err := s.blobs.Delete(ctx, a.BlobPath); err != nil {
				s.logger.Error("delete blob failed, skipping row deletion", "artifact_id", a.ID, "blob_path", a.BlobPath, "error", err)
				metrics.RetentionDeletedTotal.WithLabelValues("failed").Inc()
				result.FailedCount++
				continue
			}

			if err := s.artifacts.Delete(ctx, a.ID); err != nil {
				s.logger.Error("delete artifact row failed after blob deletion", "artifact_id", a.ID, "error", err)
				metrics.RetentionDeletedTotal.WithLabelValues("failed").Inc()
				result.FailedCount++
				continue
			}

			metrics.RetentionDeletedTotal.WithLabelValues("deleted").Inc()
			result.DeletedCount++
		}

		if len(batch) < sweepBatchSize {
			break
		}
		if s.dryRun {
			// OlderThan has no offset, only a cutoff+limit; without deleting
			// rows a dry run would re-fetch the same oldest batch forever,
			// so it reports on the single oldest batch rather than looping.
			s.logger.Warn("dry run counted only the oldest batch; more may be expired", "batch_size", sweepBatchSize)
			break
		}
	}

	s.logger.Info("retention sweep complete",
		"total_expired", result.TotalExpired,
		"deleted", result.DeletedCount,
		"failed", result.FailedCount,
		"total_bytes", result.TotalSizeBytes,
		"dry_run", result.DryRun,
	)
	return result
}
