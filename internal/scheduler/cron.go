// internal/scheduler/cron.go
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

const (
	defaultMinute     = 0
	defaultHour       = 9
	defaultDayOfWeek  = 1
	defaultDayOfMonth = 1

	// FallbackSpec is used for an unrecognised frequency.
	FallbackSpec = "0 9 * * *"
)

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// CronExpression turns schedule options into a five-field cron spec.
// A raw CronExpression wins over the frequency fields. "once" fires at the
// options' start date, or start when none is set, in loc.
func CronExpression(opts *model.ScheduleOptions, start time.Time, loc *time.Location) (string, error) {
	if opts == nil {
		return "", appErrors.NewInvalidSchedule("schedule options are required")
	}

	var spec string
	switch {
	case opts.CronExpression != "":
		spec = opts.CronExpression
	case opts.Frequency == model.FrequencyOnce:
		at := start
		if opts.StartDate != nil {
			at = *opts.StartDate
		}
		if at.IsZero() {
			return "", appErrors.NewInvalidSchedule("once requires a start date")
		}
		if loc != nil {
			at = at.In(loc)
		}
		spec = fmt.Sprintf("%d %d %d %d *", at.Minute(), at.Hour(), at.Day(), int(at.Month()))
	case opts.Frequency == model.FrequencyHourly:
		spec = fmt.Sprintf("%d * * * *", orDefault(opts.Minute, defaultMinute))
	case opts.Frequency == model.FrequencyDaily:
		spec = fmt.Sprintf("%d %d * * *", orDefault(opts.Minute, defaultMinute), orDefault(opts.Hour, defaultHour))
	case opts.Frequency == model.FrequencyWeekly:
		spec = fmt.Sprintf("%d %d * * %d", orDefault(opts.Minute, defaultMinute), orDefault(opts.Hour, defaultHour),
			orDefault(opts.DayOfWeek, defaultDayOfWeek))
	case opts.Frequency == model.FrequencyMonthly:
		spec = fmt.Sprintf("%d %d %d * *", orDefault(opts.Minute, defaultMinute), orDefault(opts.Hour, defaultHour),
			orDefault(opts.DayOfMonth, defaultDayOfMonth))
	default:
		spec = FallbackSpec
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return "", appErrors.NewInvalidSchedule(fmt.Sprintf("%q: %v", spec, err))
	}
	return spec, nil
}
