package cron

import (
	"fmt"
	"strings"
)

// describe produces a short best-effort English description of a 5-field
// cron expression. It covers the common shapes (every N, fixed time,
// weekday lists) and falls back to echoing the raw fields for anything more
// exotic — this is a preview convenience for the HTTP surface, not a
// scheduling primitive, so an imperfect description is an acceptable
// trade-off against pulling in a dedicated library (see DESIGN.md).
func describe(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	if minute == "*" && hour == "*" && dom == "*" && month == "*" && dow == "*" {
		return "Every minute"
	}
	if strings.HasPrefix(minute, "*/") && hour == "*" && dom == "*" && month == "*" && dow == "*" {
		return fmt.Sprintf("Every %s minutes", strings.TrimPrefix(minute, "*/"))
	}
	if isNumeric(minute) && isNumeric(hour) && dom == "*" && month == "*" {
		timeStr := fmt.Sprintf("%02s:%02s", hour, minute)
		if dow == "*" {
			return fmt.Sprintf("Every day at %s", timeStr)
		}
		return fmt.Sprintf("At %s on %s", timeStr, dow)
	}
	if isNumeric(minute) && isNumeric(hour) && isNumeric(dom) && month == "*" && dow == "*" {
		return fmt.Sprintf("On day %s of the month at %s:%s", dom, hour, minute)
	}
	return fmt.Sprintf("At minute %s, hour %s, day-of-month %s, month %s, day-of-week %s",
		minute, hour, dom, month, dow)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
