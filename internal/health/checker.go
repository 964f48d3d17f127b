package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool and by RedisPinger below.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger adapts *redis.Client to Pinger (go-redis's Ping returns a
// *StatusCmd, not a bare error).
type RedisPinger struct {
	Client *redis.Client
}

func (r RedisPinger) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies that all dependencies are reachable.
type Checker struct {
	db     Pinger
	redis  Pinger
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

// NewChecker creates a health checker and registers its Prometheus gauge.
// redis may be nil for processes that don't depend on the KV store.
func NewChecker(db Pinger, redis Pinger, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		db:     db,
		redis:  redis,
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every dependency and reports per-check status.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult),
	}

	c.check(checkCtx, &result, "postgres", c.db)
	if c.redis != nil {
		c.check(checkCtx, &result, "redis", c.redis)
	}

	return result
}

func (c *Checker) check(ctx context.Context, result *HealthResult, dependency string, p Pinger) {
	if err := p.Ping(ctx); err != nil {
		c.logger.Warn("dependency health check failed", "dependency", dependency, "error", err)
		result.Status = "down"
		result.Checks[dependency] = CheckResult{Status: "down", Error: err.Error()}
		c.gauge.WithLabelValues(dependency).Set(0)
		return
	}
	result.Checks[dependency] = CheckResult{Status: "up"}
	c.gauge.WithLabelValues(dependency).Set(1)
}
