package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/ganeshmittapally/ReportScheduler/internal/health"
	"github.com/ganeshmittapally/ReportScheduler/internal/transport/http/handler"
	"github.com/ganeshmittapally/ReportScheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// RouterConfig collects everything NewRouter needs to wire the v1 API
// surface plus the liveness/readiness probes, per §6's route table.
type RouterConfig struct {
	Logger          *slog.Logger
	ScheduleHandler *handler.ScheduleHandler
	Checker         *health.Checker
	Auth            middleware.AuthConfig
	CORSOrigins     []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(sloggin.New(cfg.Logger))
	r.Use(middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Checker.Liveness(c.Request.Context()))
	})
	r.GET("/health/ready", func(c *gin.Context) {
		result := cfg.Checker.Readiness(c.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	})

	v1 := r.Group("/v1", middleware.Auth(cfg.Auth))

	schedules := v1.Group("/schedules")
	schedules.POST("", cfg.ScheduleHandler.Create)
	schedules.GET("", cfg.ScheduleHandler.List)
	schedules.POST("/cron/preview", cfg.ScheduleHandler.PreviewCron)
	schedules.GET("/:id", cfg.ScheduleHandler.GetByID)
	schedules.PUT("/:id", cfg.ScheduleHandler.Update)
	schedules.DELETE("/:id", cfg.ScheduleHandler.Delete)
	schedules.PATCH("/:id/pause", cfg.ScheduleHandler.Pause)
	schedules.PATCH("/:id/resume", cfg.ScheduleHandler.Resume)

	return r
}
