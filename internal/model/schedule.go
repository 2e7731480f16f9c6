// internal/model/schedule.go
package model

import "time"

type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

const DefaultBatchSize = 50

// ScheduleOptions describes when and how much of a campaign runs per tick.
// Pointer fields distinguish "unset" from an explicit zero.
type ScheduleOptions struct {
	Frequency      Frequency  `json:"frequency"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Minute         *int       `json:"minute,omitempty"`
	Hour           *int       `json:"hour,omitempty"`
	DayOfWeek      *int       `json:"day_of_week,omitempty"`
	DayOfMonth     *int       `json:"day_of_month,omitempty"`
	CronExpression string     `json:"cron_expression,omitempty"`
	BatchSize      int        `json:"batch_size,omitempty"`
}

// EffectiveBatchSize returns BatchSize or the default when unset.
func (o *ScheduleOptions) EffectiveBatchSize() int {
	if o == nil || o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}
