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
	"github.com/ganeshmittapally/ReportScheduler/internal/cache"
	"github.com/ganeshmittapally/ReportScheduler/internal/datasource"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/email"
	"github.com/ganeshmittapally/ReportScheduler/internal/health"
	"github.com/ganeshmittapally/ReportScheduler/internal/infrastructure/postgres"
	ctxlog "github.com/ganeshmittapally/ReportScheduler/internal/log"
	"github.com/ganeshmittapally/ReportScheduler/internal/metrics"
	"github.com/ganeshmittapally/ReportScheduler/internal/pipeline"
	"github.com/ganeshmittapally/ReportScheduler/internal/queue"
	"github.com/ganeshmittapally/ReportScheduler/internal/render"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

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

	chrome := render.NewChrome(render.ChromeConfig{Logger: logger})
	defer chrome.Close()

	executionRepo := postgres.NewExecutionRepository(pool)
	definitionRepo := postgres.NewReportDefinitionRepository(pool)
	artifactRepo := postgres.NewArtifactRepository(pool)
	deliveryRepo := postgres.NewDeliveryReceiptRepository(pool)

	reportCache := cache.New(redisClient, logger)
	limiter := burst.NewLimiter(redisClient, executionRepo, logger)

	senders := map[domain.Channel]pipeline.Sender{
		domain.ChannelEmail:   email.NewReportSender(cfg.Env, cfg.EmailConnectionString, cfg.EmailFromAddress, logger),
		domain.ChannelSlack:   email.NewSlackSender(cfg.SlackBotToken),
		domain.ChannelWebhook: email.NewWebhookSender(logger),
	}

	p := pipeline.New(
		executionRepo,
		definitionRepo,
		artifactRepo,
		deliveryRepo,
		reportCache,
		limiter,
		datasource.New(),
		render.New(),
		chrome,
		blobStore,
		senders,
		logger,
	)

	consumer := queue.NewConsumer(brokerConn, logger, queue.QueueReports, cfg.QueuePrefetch, p.Run)

	metrics.Register()
	checker := health.NewChecker(pool, health.RedisPinger{Client: redisClient}, logger, prometheus.DefaultRegisterer)

	metricsSrv := newMetricsAndHealthServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	go func() {
		logger.Info("report consumer started", "queue", queue.QueueReports, "prefetch", cfg.QueuePrefetch)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer stopped", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

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
