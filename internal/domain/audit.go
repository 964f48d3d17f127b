package domain

import "time"

// AuditEventType enumerates the user-visible actions C9 records.
type AuditEventType string

const (
	EventReportViewed     AuditEventType = "report_viewed"
	EventReportDownloaded AuditEventType = "report_downloaded"
	EventReportShared     AuditEventType = "report_shared"
)

// AuditEvent is an append-only record of an action taken on a resource.
type AuditEvent struct {
	ID           string
	TenantID     string
	EventType    AuditEventType
	ResourceType string
	ResourceID   string
	UserID       *string
	EventData    map[string]any
	CreatedAt    time.Time
}
