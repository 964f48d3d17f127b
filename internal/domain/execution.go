package domain

import "time"

// RunStatus is a node in the ExecutionRun state DAG:
// pending -> running -> {completed | failed}. Terminal states never change.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// maxErrorMessageLen bounds ExecutionRun.ErrorMessage (§3).
const maxErrorMessageLen = 1000

// ExecutionRun is one attempt at producing a report artifact. ScheduleID is
// nil for manual runs.
type ExecutionRun struct {
	ID                 string
	TenantID           string
	ScheduleID         *string
	ReportDefinitionID string
	Status             RunStatus
	StartedAt          time.Time
	CompletedAt        *time.Time
	DurationSeconds    *float64
	ErrorMessage       *string
	Metadata           map[string]any
}

// TruncateError clamps msg to the §3 bound and sets it as ErrorMessage.
func (r *ExecutionRun) TruncateError(msg string) {
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	r.ErrorMessage = &msg
}

// CacheHit reports whether this run's metadata flags a cache hit.
func (r *ExecutionRun) CacheHit() bool {
	hit, _ := r.Metadata["cache_hit"].(bool)
	return hit
}
