package cron

import "errors"

// ErrInvalidCron and ErrInvalidTimezone are wrapped by the returned errors
// so callers can still errors.Is against them (e.g. the usecase layer maps
// these to domain.ErrInvalidCron / domain.ErrInvalidTimezone).
var (
	ErrInvalidCron     = errors.New("invalid cron expression")
	ErrInvalidTimezone = errors.New("invalid timezone")
)
