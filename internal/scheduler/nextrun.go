package scheduler

import (
	"fmt"
	"time"
)

// NextRun computes the next delivery time for a schedule, evaluated at
// now. Wall-clock fields are interpreted in the report's timezone and
// the result is returned in UTC. Day 0 of the week is Sunday.
func NextRun(r *ScheduledReport, now time.Time) (time.Time, error) {
	loc := time.UTC
	if r.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(r.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", r.Timezone, err)
		}
	}
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), r.Hour, r.Minute, 0, 0, loc)

	switch r.Frequency {
	case FreqDaily:
		if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 1)
		}

	case FreqWeekly:
		if r.DayOfWeek == nil {
			return time.Time{}, fmt.Errorf("weekly schedule missing day_of_week")
		}
		shift := (*r.DayOfWeek - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, shift)
		if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 7)
		}

	case FreqMonthly:
		if r.DayOfMonth == nil {
			return time.Time{}, fmt.Errorf("monthly schedule missing day_of_month")
		}
		candidate = monthlyAt(local.Year(), local.Month(), *r.DayOfMonth, r.Hour, r.Minute, loc)
		if !candidate.After(local) {
			year, month := local.Year(), local.Month()+1
			if month > time.December {
				year, month = year+1, time.January
			}
			candidate = monthlyAt(year, month, *r.DayOfMonth, r.Hour, r.Minute, loc)
		}

	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", r.Frequency)
	}
	return candidate.UTC(), nil
}

// monthlyAt builds the delivery time in a given month, clamping the
// requested day to the month's last day (31st in February runs on the
// 28th or 29th).
func monthlyAt(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}
