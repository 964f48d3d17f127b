// Package cron validates 5-field POSIX cron expressions against an IANA
// timezone and computes fire times, honoring DST transitions the way the
// underlying robfig/cron/v3 Schedule does: all arithmetic happens on a
// time.Time carrying the declared *time.Location, so a skipped hour on
// spring-forward or a repeated hour on fall-back resolve the same way the
// time package itself resolves them.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// MaxPreviewRuns bounds the "next N fires" preview (§4.1: N <= 20).
const MaxPreviewRuns = 20

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Evaluator parses and evaluates 5-field cron expressions against IANA
// timezones.
type Evaluator struct{}

// NewEvaluator returns a stateless cron Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Validate parses cronExpr, returning an error that wraps this package's
// ErrInvalidCron; callers map it to their own error kinds (this package has
// no dependency on internal/domain to avoid an import cycle with
// repositories that import both).
func (e *Evaluator) Validate(cronExpr string) error {
	_, err := parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCron, err)
	}
	return nil
}

// Next computes the next fire instant strictly after baseTime, returned as
// a UTC instant. tz must be a valid IANA timezone name.
func (e *Evaluator) Next(cronExpr, tz string, baseTime time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidTimezone, err)
	}

	sched, err := parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidCron, err)
	}

	next := sched.Next(baseTime.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: expression never fires", ErrInvalidCron)
	}
	return next.UTC(), nil
}

// NextN returns the next n fires strictly after baseTime, UTC, capped at
// MaxPreviewRuns.
func (e *Evaluator) NextN(cronExpr, tz string, baseTime time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		n = 1
	}
	if n > MaxPreviewRuns {
		n = MaxPreviewRuns
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTimezone, err)
	}
	sched, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCron, err)
	}

	runs := make([]time.Time, 0, n)
	cursor := baseTime.In(loc)
	for i := 0; i < n; i++ {
		cursor = sched.Next(cursor)
		if cursor.IsZero() {
			break
		}
		runs = append(runs, cursor.UTC())
	}
	return runs, nil
}

// Describe returns a short human-readable description of cronExpr. No
// cron-description library appears anywhere in the retrieval pack, so this
// is a small hand-rolled formatter rather than an import (see DESIGN.md).
func (e *Evaluator) Describe(cronExpr string) (string, error) {
	if _, err := parser.Parse(cronExpr); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCron, err)
	}
	return describe(cronExpr), nil
}
