package pricing

import (
	"fmt"
	"time"

	"github.com/scmhub/calendar"
)

// SecondsPerYear is the calendar-year basis for time to expiry.
const SecondsPerYear = 365 * 24 * 60 * 60

// DefaultMinT is roughly five minutes expressed in years.
const DefaultMinT = 1e-5

// ExpiryClock converts wall-clock time into a year fraction to expiry.
type ExpiryClock struct {
	Expiry time.Time
	MinT   float64
}

func NewExpiryClock(expiry time.Time, minT float64) (ExpiryClock, error) {
	if expiry.IsZero() {
		return ExpiryClock{}, fmt.Errorf("%w: expiry is not set", ErrInvalidInput)
	}
	if !(minT > 0) {
		return ExpiryClock{}, fmt.Errorf("%w: minimum time to expiry must be positive, got %v", ErrInvalidInput, minT)
	}
	return ExpiryClock{Expiry: expiry, MinT: minT}, nil
}

// YearFraction is the exact remaining duration in years, never below MinT.
func (c ExpiryClock) YearFraction(now time.Time) float64 {
	minT := c.MinT
	if !(minT > 0) {
		minT = DefaultMinT
	}
	t := c.Expiry.Sub(now).Seconds() / SecondsPerYear
	if t < minT {
		return minT
	}
	return t
}

// Years covered by exchange calendars. Dates outside fall back to a
// weekends-only check.
const (
	calendarFirstYear = 2000
	calendarLastYear  = 2100
)

// calendars known to the expiry resolver.
var calendars = map[string]func(years ...int) *calendar.Calendar{
	"XNYS": calendar.XNYS,
	"XBOM": xbom,
}

// xbom is the Bombay calendar with the fixed-date NSE/BSE trading holidays.
// Lunar holidays (Holi, Diwali, Eid) are announced yearly and are not covered.
func xbom(years ...int) *calendar.Calendar {
	c := calendar.XBOM(years...)
	c.AddHolidays(
		fixedHoliday("Republic Day", time.January, 26),
		fixedHoliday("Maharashtra Day", time.May, 1),
		fixedHoliday("Independence Day", time.August, 15),
		fixedHoliday("Gandhi Jayanti", time.October, 2),
		calendar.ChristmasDay,
	)
	return c
}

func fixedHoliday(name string, month time.Month, day int) *calendar.Holiday {
	h := calendar.ChristmasDay.Copy(name)
	h.Month = month
	h.Day = day
	return h
}

// ExpiryCalendar resolves weekly expiries, rolling a holiday expiry back to
// the previous business day.
type ExpiryCalendar struct {
	weekday  time.Weekday
	hour     int
	minute   int
	location *time.Location
	exchange *calendar.Calendar // nil: weekends only
}

// NewExpiryCalendar builds a resolver. exchange is a MIC such as "XNYS" or "XBOM";
// "" or "none" skips holiday handling.
func NewExpiryCalendar(weekday time.Weekday, hour, minute int, timezone, exchange string) (*ExpiryCalendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("%w: expiry cutoff %02d:%02d", ErrInvalidInput, hour, minute)
	}

	ec := &ExpiryCalendar{weekday: weekday, hour: hour, minute: minute, location: loc}
	if exchange != "" && exchange != "none" {
		build, ok := calendars[exchange]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported exchange calendar %q", ErrInvalidInput, exchange)
		}
		ec.exchange = build(calendarFirstYear, calendarLastYear)
	}
	return ec, nil
}

// Next returns the first expiry cutoff strictly after from.
func (e *ExpiryCalendar) Next(from time.Time) time.Time {
	local := from.In(e.location)
	days := (int(e.weekday) - int(local.Weekday()) + 7) % 7
	day := time.Date(local.Year(), local.Month(), local.Day()+days, e.hour, e.minute, 0, 0, e.location)

	for {
		expiry := e.rollBack(day)
		if expiry.After(from) {
			return expiry
		}
		day = day.AddDate(0, 0, 7)
	}
}

func (e *ExpiryCalendar) rollBack(day time.Time) time.Time {
	for i := 0; i < 7 && !e.isBusinessDay(day); i++ {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

func (e *ExpiryCalendar) isBusinessDay(t time.Time) bool {
	if e.exchange != nil && t.Year() >= calendarFirstYear && t.Year() <= calendarLastYear {
		// holidays are keyed by the exchange's local date
		y, m, d := t.Date()
		return e.exchange.IsBusinessDay(time.Date(y, m, d, 12, 0, 0, 0, e.exchange.Loc))
	}
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}

// IsBusinessDay reports whether the date is a trading day.
func (e *ExpiryCalendar) IsBusinessDay(t time.Time) bool {
	return e.isBusinessDay(t.In(e.location))
}

func (e *ExpiryCalendar) Location() *time.Location {
	return e.location
}
