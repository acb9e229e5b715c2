// Package schedule wraps cron expression parsing behind pure functions.
// All computation happens in UTC so occurrences are unambiguous across
// DST transitions.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Standard five-field cron: minute hour day-of-month month day-of-week
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Validate reports whether expr is a parseable cron expression
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextAfter returns the first occurrence of expr strictly after the given
// time. It is side-effect-free: repeated calls with the same inputs return
// the same instant.
func NextAfter(expr string, after time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(after.UTC()), nil
}
