// Package parser computes cron occurrences for recurring jobs.
//
// Accepted forms: standard five fields ("*/5 0 1-10 * 1,3"), six fields with
// a leading seconds field ("0 30 2 * * *"), and descriptors such as "@daily"
// or "@every 90s".
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zed-io/fineract-sub004/custom_errors"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses expr into a schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", custom_errors.ErrInvalidCronExpression)
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", custom_errors.ErrInvalidCronExpression, expr, err)
	}
	return schedule, nil
}

// Validate reports whether expr is a usable cron expression.
func Validate(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// NextOccurrence returns the first activation of expr strictly after after.
func NextOccurrence(expr string, after time.Time) (time.Time, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := schedule.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires", custom_errors.ErrInvalidCronExpression, expr)
	}
	return next, nil
}
