package orchestrator

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions (minute granularity).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextDue computes the first fire time of a cron expression strictly after
// the reference time.
func NextDue(expr string, after time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(after), nil
}

// Due reports whether a workflow with the given schedule and watermark should
// fire. The expression must parse even when the watermark is nil: a workflow
// with a broken schedule is never due. A nil watermark means the workflow has
// never been scheduled and is due immediately. Otherwise the next fire time
// after the watermark must have elapsed.
func Due(expr string, lastScheduledAt *time.Time, now time.Time) (bool, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return false, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	if lastScheduledAt == nil {
		return true, nil
	}
	return !schedule.Next(*lastScheduledAt).After(now), nil
}
