package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/cron"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/transport/http/middleware"
	"github.com/ganeshmittapally/ReportScheduler/internal/usecase"
	"github.com/gin-gonic/gin"
)

// ScheduleHandler is the HTTP surface over C3, §6's /v1/schedules table.
type ScheduleHandler struct {
	uc        *usecase.ScheduleUsecase
	evaluator *cron.Evaluator
	logger    *slog.Logger
}

func NewScheduleHandler(uc *usecase.ScheduleUsecase, evaluator *cron.Evaluator, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{uc: uc, evaluator: evaluator, logger: logger.With("component", "schedule_handler")}
}

type emailDeliveryConfigDTO struct {
	Recipients []string `json:"recipients" binding:"required,min=1,dive,email"`
	CC         []string `json:"cc"         binding:"omitempty,dive,email"`
	BCC        []string `json:"bcc"        binding:"omitempty,dive,email"`
	Subject    string   `json:"subject"`
}

func (d *emailDeliveryConfigDTO) toDomain() *domain.EmailDeliveryConfig {
	if d == nil {
		return nil
	}
	return &domain.EmailDeliveryConfig{
		Recipients: d.Recipients,
		CC:         d.CC,
		BCC:        d.BCC,
		Subject:    d.Subject,
	}
}

func fromDomainEmailDelivery(e *domain.EmailDeliveryConfig) *emailDeliveryConfigDTO {
	if e == nil {
		return nil
	}
	return &emailDeliveryConfigDTO{Recipients: e.Recipients, CC: e.CC, BCC: e.BCC, Subject: e.Subject}
}

type createScheduleRequest struct {
	ReportDefinitionID  string                  `json:"report_definition_id" binding:"required"`
	Name                string                  `json:"name"                 binding:"required,max=256"`
	CronExpression      string                  `json:"cron_expression"      binding:"required"`
	Timezone            string                  `json:"timezone"             binding:"required"`
	EmailDeliveryConfig *emailDeliveryConfigDTO `json:"email_delivery_config"`
}

type updateScheduleRequest struct {
	Name                *string                 `json:"name"`
	CronExpression      *string                 `json:"cron_expression"`
	Timezone            *string                 `json:"timezone"`
	EmailDeliveryConfig *emailDeliveryConfigDTO `json:"email_delivery_config"`
	ClearEmailDelivery  bool                    `json:"clear_email_delivery_config"`
}

type scheduleResponse struct {
	ID                  string                  `json:"id"`
	TenantID            string                  `json:"tenant_id"`
	ReportDefinitionID  string                  `json:"report_definition_id"`
	Name                string                  `json:"name"`
	CronExpression      string                  `json:"cron_expression"`
	Timezone            string                  `json:"timezone"`
	Active              bool                    `json:"is_active"`
	NextRunAt           *string                 `json:"next_run_at,omitempty"`
	LastRunAt           *string                 `json:"last_run_at,omitempty"`
	EmailDeliveryConfig *emailDeliveryConfigDTO `json:"email_delivery_config,omitempty"`
	CreatedAt           string                  `json:"created_at"`
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"

func toScheduleResponse(s *domain.Schedule) scheduleResponse {
	resp := scheduleResponse{
		ID:                  s.ID,
		TenantID:            s.TenantID,
		ReportDefinitionID:  s.ReportDefinitionID,
		Name:                s.Name,
		CronExpression:      s.CronExpr,
		Timezone:            s.Timezone,
		Active:              s.Active,
		EmailDeliveryConfig: fromDomainEmailDelivery(s.EmailDelivery),
		CreatedAt:           s.CreatedAt.Format(rfc3339),
	}
	if s.NextRunAt != nil {
		v := s.NextRunAt.Format(rfc3339)
		resp.NextRunAt = &v
	}
	if s.LastRunAt != nil {
		v := s.LastRunAt.Format(rfc3339)
		resp.LastRunAt = &v
	}
	return resp
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorEnvelope(c, http.StatusBadRequest, "INVALID_CRON", err.Error())
		return
	}

	s, err := h.uc.CreateSchedule(c.Request.Context(), usecase.CreateScheduleInput{
		TenantID:           middleware.TenantID(c),
		ReportDefinitionID: req.ReportDefinitionID,
		Name:               req.Name,
		CronExpr:           req.CronExpression,
		Timezone:           req.Timezone,
		EmailDelivery:      req.EmailDeliveryConfig.toDomain(),
	})
	if err != nil {
		writeDomainError(c, h.logger, "create schedule", err)
		return
	}
	c.JSON(http.StatusCreated, toScheduleResponse(s))
}

func (h *ScheduleHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	var active *bool
	if v := c.Query("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errorEnvelope(c, http.StatusBadRequest, "INVALID_CRON", "is_active must be a boolean")
			return
		}
		active = &b
	}

	result, err := h.uc.ListSchedules(c.Request.Context(), usecase.ListSchedulesInput{
		TenantID: middleware.TenantID(c),
		Cursor:   c.Query("cursor"),
		Limit:    limit,
		Active:   active,
	})
	if err != nil {
		writeDomainError(c, h.logger, "list schedules", err)
		return
	}

	items := make([]scheduleResponse, len(result.Schedules))
	for i, s := range result.Schedules {
		items[i] = toScheduleResponse(s)
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "next_cursor": result.NextCursor})
}

func (h *ScheduleHandler) GetByID(c *gin.Context) {
	s, err := h.uc.GetSchedule(c.Request.Context(), c.Param("id"), middleware.TenantID(c))
	if err != nil {
		writeDomainError(c, h.logger, "get schedule", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Update(c *gin.Context) {
	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorEnvelope(c, http.StatusBadRequest, "INVALID_CRON", err.Error())
		return
	}

	s, err := h.uc.UpdateSchedule(c.Request.Context(), usecase.UpdateScheduleInput{
		ID:            c.Param("id"),
		TenantID:      middleware.TenantID(c),
		Name:          req.Name,
		CronExpr:      req.CronExpression,
		Timezone:      req.Timezone,
		EmailDelivery: req.EmailDeliveryConfig.toDomain(),
		ClearEmail:    req.ClearEmailDelivery,
	})
	if err != nil {
		writeDomainError(c, h.logger, "update schedule", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Delete(c *gin.Context) {
	err := h.uc.DeleteSchedule(c.Request.Context(), c.Param("id"), middleware.TenantID(c))
	if err != nil {
		writeDomainError(c, h.logger, "delete schedule", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Pause(c *gin.Context) {
	s, err := h.uc.PauseSchedule(c.Request.Context(), c.Param("id"), middleware.TenantID(c))
	if err != nil {
		writeDomainError(c, h.logger, "pause schedule", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Resume(c *gin.Context) {
	s, err := h.uc.ResumeSchedule(c.Request.Context(), c.Param("id"), middleware.TenantID(c))
	if err != nil {
		writeDomainError(c, h.logger, "resume schedule", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(s))
}

type cronPreviewRequest struct {
	CronExpression string `json:"cron_expression" binding:"required"`
	Timezone       string `json:"timezone"        binding:"required"`
	Count          int    `json:"count"`
}

// PreviewCron implements POST /v1/schedules/cron/preview without touching
// persistence — pure validation + evaluation, per §4.1.
func (h *ScheduleHandler) PreviewCron(c *gin.Context) {
	var req cronPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorEnvelope(c, http.StatusBadRequest, "INVALID_CRON", err.Error())
		return
	}

	if err := h.evaluator.Validate(req.CronExpression); err != nil {
		errorEnvelope(c, http.StatusBadRequest, "INVALID_CRON", err.Error())
		return
	}

	runs, err := h.evaluator.NextN(req.CronExpression, req.Timezone, time.Now().UTC(), req.Count)
	if err != nil {
		if errors.Is(err, cron.ErrInvalidTimezone) {
			errorEnvelope(c, http.StatusBadRequest, "INVALID_TIMEZONE", err.Error())
			return
		}
		errorEnvelope(c, http.StatusBadRequest, "INVALID_CRON", err.Error())
		return
	}

	description, err := h.evaluator.Describe(req.CronExpression)
	if err != nil {
		errorEnvelope(c, http.StatusBadRequest, "INVALID_CRON", err.Error())
		return
	}

	nextRuns := make([]string, len(runs))
	for i, r := range runs {
		nextRuns[i] = r.Format(rfc3339)
	}

	c.JSON(http.StatusOK, gin.H{
		"description": description,
		"next_runs":   nextRuns,
	})
}
