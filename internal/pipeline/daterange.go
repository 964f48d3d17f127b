// Package pipeline implements C7: the execution pipeline that turns a
// queued descriptor into a finished report artifact.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
)

// Range is a resolved [Start, End] window, always returned in UTC regardless
// of which timezone it was evaluated in.
type Range struct {
	Start     time.Time
	End       time.Time
	RangeType string
}

// defaultRangeType is substituted, with a warning, for an unrecognized
// range_type — matching the original implementation's fallback behavior
// rather than rejecting the schedule outright.
const defaultRangeType = "last_7_days"

// CalculateRange resolves a named relative or calendar-snapped date range
// against reference, evaluated in tz so "yesterday"/"month_to_date"/
// "quarter_to_date"/etc. snap to the tenant's local calendar boundaries
// rather than UTC's. Rolling-window types end at reference: last_hour and
// last_24_hours are fixed durations, and last_N_days steps back N calendar
// days in tz (so a window spanning a DST change is an hour longer or
// shorter). The others snap to local day/week/month/quarter/year edges.
func CalculateRange(rangeType string, reference time.Time, tz string, logger *slog.Logger) (Range, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %w", domain.ErrInvalidTimezone, err)
	}
	ref := reference.In(loc)

	var start, end time.Time
	switch rangeType {
	case "last_7_days":
		start, end = ref.AddDate(0, 0, -7), ref
	case "last_30_days":
		start, end = ref.AddDate(0, 0, -30), ref
	case "last_90_days":
		start, end = ref.AddDate(0, 0, -90), ref
	case "yesterday":
		day := startOfDay(ref.AddDate(0, 0, -1))
		start = day
		end = time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, loc)
	case "last_week":
		// Previous Monday through Sunday.
		daysSinceMonday := int(ref.Weekday()+6) % 7 // Monday=0 ... Sunday=6
		lastMonday := startOfDay(ref.AddDate(0, 0, -(daysSinceMonday + 7)))
		start = lastMonday
		end = time.Date(lastMonday.Year(), lastMonday.Month(), lastMonday.Day()+6, 23, 59, 59, 0, loc)
	case "last_month":
		firstOfThisMonth := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
		end = firstOfThisMonth.Add(-time.Second)
		start = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, loc)
	case "month_to_date":
		start = time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
		end = ref
	case "quarter_to_date":
		firstMonthOfQuarter := time.Month(((int(ref.Month())-1)/3)*3 + 1)
		start = time.Date(ref.Year(), firstMonthOfQuarter, 1, 0, 0, 0, 0, loc)
		end = ref
	case "year_to_date":
		start = time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, loc)
		end = ref
	case "last_year":
		start = time.Date(ref.Year()-1, time.January, 1, 0, 0, 0, 0, loc)
		end = time.Date(ref.Year()-1, time.December, 31, 23, 59, 59, 0, loc)
	case "last_hour":
		start, end = ref.Add(-time.Hour), ref
	case "last_24_hours":
		start, end = ref.Add(-24*time.Hour), ref
	default:
		if logger != nil {
			logger.Warn("unknown range_type, defaulting", "range_type", rangeType, "default", defaultRangeType)
		}
		rangeType = defaultRangeType
		start, end = ref.AddDate(0, 0, -7), ref
	}

	return Range{Start: start.UTC(), End: end.UTC(), RangeType: rangeType}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// defaultIncrementalWindow is the lookback used on a report's first
// incremental run, when there is no prior completed execution to overlap
// from.
const defaultIncrementalWindow = 7 * 24 * time.Hour

// defaultOverlap re-queries the trailing window of the previous run to
// avoid missing rows written right at the boundary (clock skew, late
// commits, replication lag on the upstream data source).
const defaultOverlap = 60 * time.Second

// IncrementalRange resolves the [Start, End] window for an incremental
// report's next run. lastCompletedAt is nil on a report's first-ever run.
func IncrementalRange(lastCompletedAt *time.Time, currentTime time.Time) (r Range, isFirstRun bool) {
	if lastCompletedAt == nil {
		return Range{
			Start:     currentTime.Add(-defaultIncrementalWindow),
			End:       currentTime,
			RangeType: "incremental",
		}, true
	}
	return Range{
		Start:     lastCompletedAt.Add(-defaultOverlap),
		End:       currentTime,
		RangeType: "incremental",
	}, false
}
