package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func utc(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func TestNextRunDaily(t *testing.T) {
	r := &ScheduledReport{Frequency: FreqDaily, Hour: 9, Minute: 0}

	// 2026-08-24 is a Monday.
	next, err := NextRun(r, utc(2026, 8, 24, 8, 59, 30))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 8, 24, 9, 0, 0), next, "before the slot, runs today")

	next, err = NextRun(r, utc(2026, 8, 24, 9, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 8, 25, 9, 0, 0), next, "just past the slot, runs tomorrow")

	next, err = NextRun(r, utc(2026, 8, 24, 9, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 8, 25, 9, 0, 0), next, "exactly at the slot, runs tomorrow")
}

func TestNextRunWeekly(t *testing.T) {
	r := &ScheduledReport{Frequency: FreqWeekly, DayOfWeek: intp(3), Hour: 9}

	next, err := NextRun(r, utc(2026, 8, 24, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 8, 26, 9, 0, 0), next, "Monday to Wednesday")

	r.DayOfWeek = intp(1)
	next, err = NextRun(r, utc(2026, 8, 24, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 8, 31, 9, 0, 0), next, "Monday slot already passed, next Monday")

	r.Hour = 23
	next, err = NextRun(r, utc(2026, 8, 24, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 8, 24, 23, 0, 0), next, "same day, later slot")
}

func TestNextRunMonthly(t *testing.T) {
	r := &ScheduledReport{Frequency: FreqMonthly, DayOfMonth: intp(5), Hour: 9}

	next, err := NextRun(r, utc(2026, 8, 24, 12, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 9, 5, 9, 0, 0), next, "this month's day passed, next month")

	r.DayOfMonth = intp(31)
	next, err = NextRun(r, utc(2026, 2, 10, 12, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 2, 28, 9, 0, 0), next, "31st clamps to end of February")

	next, err = NextRun(r, utc(2026, 4, 30, 23, 59, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 5, 31, 9, 0, 0), next, "clamped slot passed, next month unclamped")

	next, err = NextRun(r, utc(2026, 12, 20, 12, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 12, 31, 9, 0, 0), next)

	next, err = NextRun(r, utc(2026, 12, 31, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2027, 1, 31, 9, 0, 0), next, "year rollover")
}

func TestNextRunTimezone(t *testing.T) {
	r := &ScheduledReport{Frequency: FreqDaily, Hour: 9, Timezone: "America/New_York"}

	// 12:00 UTC is 08:00 in New York during August, so today's 09:00
	// local slot is still ahead and lands at 13:00 UTC.
	next, err := NextRun(r, utc(2026, 8, 24, 12, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2026, 8, 24, 13, 0, 0), next)
}

func TestNextRunErrors(t *testing.T) {
	_, err := NextRun(&ScheduledReport{Frequency: FreqDaily, Timezone: "Mars/Olympus"}, time.Now())
	assert.ErrorContains(t, err, "invalid timezone")

	_, err = NextRun(&ScheduledReport{Frequency: FreqWeekly}, time.Now())
	assert.ErrorContains(t, err, "day_of_week")

	_, err = NextRun(&ScheduledReport{Frequency: FreqMonthly}, time.Now())
	assert.ErrorContains(t, err, "day_of_month")

	_, err = NextRun(&ScheduledReport{Frequency: "hourly"}, time.Now())
	assert.ErrorContains(t, err, "unknown frequency")
}
