package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/config"
	"github.com/ganeshmittapally/ReportScheduler/internal/blob"
	"github.com/ganeshmittapally/ReportScheduler/internal/burst"
	"github.com/ganeshmittapally/ReportScheduler/internal/health"
	"github.com/ganeshmittapally/ReportScheduler/internal/infrastructure/postgres"
	ctxlog "github.com/ganeshmittapally/ReportScheduler/internal/log"
	"github.com/ganeshmittapally/ReportScheduler/internal/metrics"
	"github.com/ganeshmittapally/ReportScheduler/internal/queue"
	"github.com/ganeshmittapally/ReportScheduler/internal/retention"
	"github.com/ganeshmittapally/ReportScheduler/internal/scheduler"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if !cfg.EnableScheduler {
		logger.Info("scheduler disabled, exiting")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	brokerConn, err := queue.Dial(cfg.QueueBrokerURL, logger)
	if err != nil {
		stop()
		log.Fatalf("broker: %v", err)
	}
	defer brokerConn.Close()
	publisher := queue.NewPublisher(brokerConn)

	metrics.Register()
	checker := health.NewChecker(pool, health.RedisPinger{Client: redisClient}, logger, prometheus.DefaultRegisterer)

	scheduleRepo := postgres.NewScheduleRepository(pool)
	executionRepo := postgres.NewExecutionRepository(pool)
	artifactRepo := postgres.NewArtifactRepository(pool)

	limiter := burst.NewLimiter(redisClient, executionRepo, logger)

	blobStore, err := blob.NewStore(ctx, blob.Config{
		Bucket:       cfg.ObjectStoreBucket,
		Region:       cfg.ObjectStoreRegion,
		Endpoint:     cfg.ObjectStoreURL,
		AccessKey:    cfg.ObjectStoreAccessKey,
		SecretKey:    cfg.ObjectStoreSecretKey,
		UsePathStyle: cfg.ObjectStorePathStyle,
	})
	if err != nil {
		stop()
		log.Fatalf("blob store: %v", err)
	}

	scanner := scheduler.NewScanner(
		scheduleRepo,
		limiter,
		publisher,
		redisClient,
		logger,
		time.Duration(cfg.ScanIntervalSec)*time.Second,
	)
	go scanner.Start(ctx)

	sweeper := retention.NewSweeper(
		artifactRepo,
		blobStore,
		logger,
		time.Duration(cfg.RetentionSweepHours)*time.Hour,
		cfg.RetentionDays,
		cfg.RetentionDryRun,
	)
	go sweeper.Start(ctx)

	go runBurstSync(ctx, limiter, logger, time.Duration(cfg.BurstSyncIntervalSec)*time.Second)

	metricsSrv := newMetricsAndHealthServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

// runBurstSync reconciles C5's Redis concurrency counters against Postgres
// on a fixed interval, correcting drift from crashed workers that never
// called Limiter.Exit.
func runBurstSync(ctx context.Context, limiter *burst.Limiter, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := limiter.Sync(ctx); err != nil {
				logger.Error("burst sync failed", "error", err)
			}
		}
	}
}

// newMetricsAndHealthServer mounts /metrics alongside /health and
// /health/ready so a process with no HTTP API of its own still exposes a
// liveness/readiness surface for orchestration.
func newMetricsAndHealthServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeHealthJSON(w, http.StatusOK, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		writeHealthJSON(w, status, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealthJSON(w http.ResponseWriter, status int, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
