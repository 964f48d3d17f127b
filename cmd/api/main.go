package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/config"
	"github.com/ganeshmittapally/ReportScheduler/internal/cron"
	"github.com/ganeshmittapally/ReportScheduler/internal/health"
	"github.com/ganeshmittapally/ReportScheduler/internal/infrastructure/postgres"
	ctxlog "github.com/ganeshmittapally/ReportScheduler/internal/log"
	"github.com/ganeshmittapally/ReportScheduler/internal/metrics"
	httptransport "github.com/ganeshmittapally/ReportScheduler/internal/transport/http"
	"github.com/ganeshmittapally/ReportScheduler/internal/transport/http/handler"
	"github.com/ganeshmittapally/ReportScheduler/internal/transport/http/middleware"
	"github.com/ganeshmittapally/ReportScheduler/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
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

	scheduleRepo := postgres.NewScheduleRepository(pool)
	definitionRepo := postgres.NewReportDefinitionRepository(pool)
	tenantRepo := postgres.NewTenantRepository(pool)

	scheduleUsecase := usecase.NewScheduleUsecase(scheduleRepo, definitionRepo, tenantRepo, cron.NewEvaluator())
	scheduleHandler := handler.NewScheduleHandler(scheduleUsecase, cron.NewEvaluator(), logger)

	metrics.Register()
	checker := health.NewChecker(pool, health.RedisPinger{Client: redisClient}, logger, prometheus.DefaultRegisterer)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:          logger,
		ScheduleHandler: scheduleHandler,
		Checker:         checker,
		Auth: middleware.AuthConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		CORSOrigins: cfg.CORSOriginList(),
	})

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("api server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
