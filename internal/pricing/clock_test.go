package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryClock_YearFraction(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC)
	clock, err := NewExpiryClock(now.Add(36*time.Hour), DefaultMinT)
	require.NoError(t, err)

	assert.InDelta(t, 1.5/365, clock.YearFraction(now), 1e-12)
	// expired contracts clamp to the floor instead of going to zero
	assert.Equal(t, DefaultMinT, clock.YearFraction(now.Add(48*time.Hour)))
	assert.Equal(t, DefaultMinT, clock.YearFraction(now.Add(36*time.Hour)))
}

func TestNewExpiryClock_Invalid(t *testing.T) {
	_, err := NewExpiryClock(time.Time{}, DefaultMinT)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewExpiryClock(time.Now(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExpiryCalendar_Next(t *testing.T) {
	cal, err := NewExpiryCalendar(time.Thursday, 15, 30, "America/New_York", "none")
	require.NoError(t, err)
	loc := cal.Location()

	// Monday -> same-week Thursday
	from := time.Date(2025, 6, 2, 10, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 5, 15, 30, 0, 0, loc), cal.Next(from))

	// Thursday after cutoff -> next week
	from = time.Date(2025, 6, 5, 16, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 12, 15, 30, 0, 0, loc), cal.Next(from))
}

func TestExpiryCalendar_HolidayRollBack(t *testing.T) {
	cal, err := NewExpiryCalendar(time.Thursday, 15, 30, "America/New_York", "XNYS")
	require.NoError(t, err)
	loc := cal.Location()

	// Christmas 2025 is a Thursday; expiry moves to Wednesday the 24th.
	from := time.Date(2025, 12, 22, 9, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 12, 24, 15, 30, 0, 0, loc), cal.Next(from))
	assert.False(t, cal.IsBusinessDay(time.Date(2025, 12, 25, 12, 0, 0, 0, loc)))
}

func TestExpiryCalendar_IndianHolidays(t *testing.T) {
	cal, err := NewExpiryCalendar(time.Thursday, 15, 30, "Asia/Kolkata", "XBOM")
	require.NoError(t, err)
	loc := cal.Location()

	// Gandhi Jayanti 2025 is a Thursday
	from := time.Date(2025, 9, 29, 9, 15, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 10, 1, 15, 30, 0, 0, loc), cal.Next(from))

	for _, day := range []time.Time{
		time.Date(2027, 1, 26, 0, 0, 0, 0, loc),
		time.Date(2025, 5, 1, 0, 0, 0, 0, loc),
		time.Date(2025, 8, 15, 0, 0, 0, 0, loc),
		time.Date(2025, 12, 25, 0, 0, 0, 0, loc),
	} {
		assert.False(t, cal.IsBusinessDay(day), day.Format(time.DateOnly))
	}
	assert.True(t, cal.IsBusinessDay(time.Date(2025, 10, 3, 0, 0, 0, 0, loc)))
}

func TestExpiryCalendar_OutsideCalendarYears(t *testing.T) {
	cal, err := NewExpiryCalendar(time.Thursday, 15, 30, "Asia/Kolkata", "XBOM")
	require.NoError(t, err)
	loc := cal.Location()

	// 25 Dec 2150 is a Friday; only weekends count outside the calendar range
	assert.NotPanics(t, func() {
		assert.True(t, cal.IsBusinessDay(time.Date(2150, 12, 25, 0, 0, 0, 0, loc)))
	})
}

func TestExpiryCalendar_ExchangeDateInOtherZone(t *testing.T) {
	cal, err := NewExpiryCalendar(time.Thursday, 15, 30, "UTC", "XBOM")
	require.NoError(t, err)

	assert.False(t, cal.IsBusinessDay(time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)))
}

func TestNewExpiryCalendar_Invalid(t *testing.T) {
	_, err := NewExpiryCalendar(time.Thursday, 25, 0, "UTC", "none")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewExpiryCalendar(time.Thursday, 15, 30, "UTC", "XXXX")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewExpiryCalendar(time.Thursday, 15, 30, "Not/AZone", "none")
	assert.Error(t, err)
}
