package domain

import "errors"

// Sentinel errors returned by the service and repository layers. Handlers
// map these to the error envelope in §7 via errors.Is.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidCron        = errors.New("invalid cron expression")
	ErrInvalidTimezone    = errors.New("invalid timezone")
	ErrQuotaExceeded      = errors.New("tenant schedule quota exceeded")
	ErrAdmissionRefused   = errors.New("admission refused by burst protection")
	ErrDefinitionMissing  = errors.New("report definition missing")
	ErrTransientUpstream  = errors.New("transient upstream failure")
	ErrNameConflict       = errors.New("name already in use for this tenant")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrTenantInactive     = errors.New("tenant is not active")
)
