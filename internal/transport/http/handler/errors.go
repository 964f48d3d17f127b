package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/gin-gonic/gin"
)

// errorEnvelope is §6's {error: {code, message}} response shape.
func errorEnvelope(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// writeDomainError maps a service-layer error to the §6/§7 envelope. Errors
// it doesn't recognize become 500 INTERNAL_SERVER_ERROR, logged with cause.
func writeDomainError(c *gin.Context, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCron):
		errorEnvelope(c, http.StatusBadRequest, "INVALID_CRON", err.Error())
	case errors.Is(err, domain.ErrInvalidTimezone):
		errorEnvelope(c, http.StatusBadRequest, "INVALID_TIMEZONE", err.Error())
	case errors.Is(err, domain.ErrQuotaExceeded):
		errorEnvelope(c, http.StatusBadRequest, "QUOTA_EXCEEDED", err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrDefinitionMissing):
		errorEnvelope(c, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, domain.ErrTenantInactive):
		errorEnvelope(c, http.StatusBadRequest, "TENANT_INACTIVE", err.Error())
	default:
		logger.Error(op, "error", err)
		errorEnvelope(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
	}
}
