// Package cache implements C4, the content-addressed result cache that
// lets the execution pipeline (C7) skip recomputing a report whose
// fingerprint it has already rendered.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when a caller does not supply one explicitly.
const DefaultTTL = time.Hour

// Metadata is stored alongside the cached bytes; CachedAt/SizeBytes/TTL
// are filled in by Put, the remaining fields are caller-supplied context.
type Metadata struct {
	ReportDefinitionID string         `json:"report_definition_id"`
	CachedAt           time.Time      `json:"cached_at"`
	SizeBytes          int            `json:"size_bytes"`
	TTLSeconds         int            `json:"ttl_seconds"`
	Extra              map[string]any `json:"extra,omitempty"`
}

// Entry is what Get returns on a hit.
type Entry struct {
	Bytes    []byte
	Metadata Metadata
}

// Stats summarizes the cache namespace, per §4.4's get_cache_stats.
type Stats struct {
	TotalCachedReports int
	TotalSizeBytes     int64
}

// Cache is the Redis-backed implementation of C4. The zero value is not
// usable; construct with New.
type Cache struct {
	redis  *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{redis: client, logger: logger}
}

// Get returns the cached entry for the given fingerprint inputs, or
// (nil, nil) on a miss. Redis errors are swallowed and logged — the cache
// is best-effort (§4.4's guarantee); a cache outage must never fail a
// report run.
func (c *Cache) Get(ctx context.Context, reportDefinitionID string, queryParameters, dateRange map[string]any) (*Entry, error) {
	fp, err := fingerprint(reportDefinitionID, queryParameters, dateRange)
	if err != nil {
		return nil, err
	}

	bytes, err := c.redis.Get(ctx, valueKey(fp)).Bytes()
	if err == redis.Nil {
		metrics.CacheMissesTotal.Inc()
		return nil, nil
	}
	if err != nil {
		c.logger.WarnContext(ctx, "cache get failed, treating as miss", "error", err, "fingerprint", fp)
		metrics.CacheMissesTotal.Inc()
		return nil, nil
	}
	metrics.CacheHitsTotal.Inc()

	metaRaw, err := c.redis.Get(ctx, metaKey(fp)).Bytes()
	var meta Metadata
	if err == nil {
		if jsonErr := json.Unmarshal(metaRaw, &meta); jsonErr != nil {
			c.logger.WarnContext(ctx, "cache metadata corrupt", "error", jsonErr, "fingerprint", fp)
		}
	}

	c.logger.InfoContext(ctx, "cache hit",
		"report_definition_id", reportDefinitionID,
		"fingerprint", fp,
		"size_bytes", len(bytes),
	)
	return &Entry{Bytes: bytes, Metadata: meta}, nil
}

// Put stores bytes plus metadata, both sharing ttl. A zero ttl uses
// DefaultTTL. Duplicate puts for the same fingerprint are idempotent:
// last writer wins (§4.4's no-locking guarantee).
func (c *Cache) Put(ctx context.Context, reportDefinitionID string, queryParameters, dateRange map[string]any, data []byte, ttl time.Duration, extra map[string]any) error {
	fp, err := fingerprint(reportDefinitionID, queryParameters, dateRange)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	meta := Metadata{
		ReportDefinitionID: reportDefinitionID,
		CachedAt:           time.Now().UTC(),
		SizeBytes:          len(data),
		TTLSeconds:         int(ttl.Seconds()),
		Extra:              extra,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal cache metadata: %w", err)
	}

	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, valueKey(fp), data, ttl)
	pipe.Set(ctx, metaKey(fp), metaBytes, ttl)
	pipe.SAdd(ctx, indexKey(reportDefinitionID), fp)
	pipe.Expire(ctx, indexKey(reportDefinitionID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "cache put failed", "error", err, "fingerprint", fp)
		return nil
	}

	c.logger.InfoContext(ctx, "cached report",
		"report_definition_id", reportDefinitionID,
		"fingerprint", fp,
		"size_bytes", len(data),
		"ttl_seconds", int(ttl.Seconds()),
	)
	return nil
}

// Invalidate removes a single fingerprint's value+metadata pair.
func (c *Cache) Invalidate(ctx context.Context, reportDefinitionID string, queryParameters, dateRange map[string]any) (bool, error) {
	fp, err := fingerprint(reportDefinitionID, queryParameters, dateRange)
	if err != nil {
		return false, err
	}

	deleted, err := c.redis.Del(ctx, valueKey(fp), metaKey(fp)).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "cache invalidate failed", "error", err, "fingerprint", fp)
		return false, nil
	}
	c.redis.SRem(ctx, indexKey(reportDefinitionID), fp)
	return deleted > 0, nil
}

// InvalidateAll removes every cached variant of a report definition using
// the secondary index maintained by Put, avoiding the O(N) SCAN the
// original implementation fell back to (§9 Open Question).
func (c *Cache) InvalidateAll(ctx context.Context, reportDefinitionID string) (int, error) {
	fps, err := c.redis.SMembers(ctx, indexKey(reportDefinitionID)).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "cache invalidate_all index read failed", "error", err)
		return 0, nil
	}
	if len(fps) == 0 {
		return 0, nil
	}

	pipe := c.redis.Pipeline()
	for _, fp := range fps {
		pipe.Del(ctx, valueKey(fp), metaKey(fp))
	}
	results, err := pipe.Exec(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "cache invalidate_all delete failed", "error", err)
	}

	c.redis.Del(ctx, indexKey(reportDefinitionID))

	deleted := 0
	for _, r := range results {
		if cmd, ok := r.(*redis.IntCmd); ok && cmd.Val() > 0 {
			deleted++
		}
	}
	c.logger.InfoContext(ctx, "invalidated all cache entries for report",
		"report_definition_id", reportDefinitionID, "deleted_count", deleted)
	return deleted, nil
}

// GetStats reports aggregate cache occupancy by SCANning the keyspace for
// the per-report secondary index keys and summing the sizes of the values
// each index lists.
func (c *Cache) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	iter := c.redis.Scan(ctx, 0, idxPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fps, err := c.redis.SMembers(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		for _, fp := range fps {
			size, err := c.redis.StrLen(ctx, valueKey(fp)).Result()
			if err != nil {
				continue
			}
			if size == 0 {
				continue
			}
			stats.TotalCachedReports++
			stats.TotalSizeBytes += size
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WarnContext(ctx, "cache stats scan failed", "error", err)
	}
	return stats, nil
}
