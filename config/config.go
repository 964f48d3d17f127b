// Package config loads process configuration from the environment, per
// spec §6's recognized option list.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENVIRONMENT" envDefault:"local" validate:"required,oneof=dev local production"`
	Port string `env:"PORT"        envDefault:"8080"  validate:"required"`

	// Database: pool sizing per §6 (20 pooled, 10 overflow).
	DatabaseURL    string `env:"DATABASE_URL,required" validate:"required"`
	DBPoolSize     int    `env:"DB_POOL_SIZE"          envDefault:"20" validate:"min=1,max=200"`
	DBPoolOverflow int    `env:"DB_POOL_OVERFLOW"      envDefault:"10" validate:"min=0,max=200"`

	// KV store (Redis) backs C4's cache, C5's burst counters, and C6's scan lock.
	RedisURL string `env:"REDIS_URL,required" validate:"required"`

	// Object store (S3-compatible) backs C7's artifact uploads.
	ObjectStoreURL       string `env:"OBJECT_STORE_URL"`
	ObjectStoreBucket    string `env:"OBJECT_STORE_BUCKET,required" validate:"required"`
	ObjectStoreRegion    string `env:"OBJECT_STORE_REGION"       envDefault:"us-east-1"`
	ObjectStoreAccessKey string `env:"OBJECT_STORE_ACCESS_KEY"`
	ObjectStoreSecretKey string `env:"OBJECT_STORE_SECRET_KEY"`
	ObjectStorePathStyle bool   `env:"OBJECT_STORE_PATH_STYLE"   envDefault:"true"`

	// Queue broker (RabbitMQ) backs C6's enqueue and C7's consume.
	QueueBrokerURL string `env:"QUEUE_BROKER_URL,required" validate:"required"`
	QueueResultURL string `env:"QUEUE_RESULT_BACKEND_URL"`
	QueuePrefetch  int    `env:"QUEUE_PREFETCH" envDefault:"10" validate:"min=1,max=1000"`

	// Email provider backs C7's email delivery channel.
	EmailConnectionString string `env:"EMAIL_CONNECTION_STRING" validate:"required_if=Env production,required_if=Env dev"`
	EmailFromAddress      string `env:"EMAIL_FROM_ADDRESS"      validate:"required_if=Env production,required_if=Env dev"`

	// Slack delivery channel.
	SlackBotToken string `env:"SLACK_BOT_TOKEN"`

	// JWT verification (§6): the core only verifies externally issued
	// tokens, it never issues them.
	JWTSecret   string `env:"JWT_SECRET,required" validate:"required"`
	JWTAlgo     string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	LogLevel    string `env:"LOG_LEVEL"     envDefault:"info" validate:"required,oneof=debug info warn error"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:""`

	// EnableScheduler lets a replica opt out of running the C6 scan loop
	// (e.g. a worker-only process), per §6.
	EnableScheduler bool `env:"ENABLE_SCHEDULER" envDefault:"false"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	ScanIntervalSec      int `env:"SCAN_INTERVAL_SEC"              envDefault:"30"  validate:"min=1,max=3600"`
	BurstSyncIntervalSec int `env:"BURST_SYNC_INTERVAL_SEC"        envDefault:"300" validate:"min=1,max=3600"`

	RetentionDays       int  `env:"RETENTION_DAYS"                 envDefault:"90" validate:"min=1"`
	RetentionSweepHours int  `env:"RETENTION_SWEEP_INTERVAL_HOURS" envDefault:"24" validate:"min=1,max=168"`
	RetentionDryRun     bool `env:"RETENTION_DRY_RUN" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// CORSOriginList parses CORSOrigins as either a JSON array or a comma list.
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	trimmed := strings.TrimSpace(c.CORSOrigins)
	if strings.HasPrefix(trimmed, "[") {
		trimmed = strings.Trim(trimmed, "[]")
		trimmed = strings.ReplaceAll(trimmed, `"`, "")
	}
	return splitAndTrim(trimmed)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
