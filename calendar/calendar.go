/*
Package calendar provides civil dates and business-day arithmetic.

PURPOSE:
  Vacation requests deal in calendar dates, never time-of-day. This package
  provides the Date type used throughout the engine, a pluggable holiday
  source, and the business-day counter that turns a date range into the
  number of allowance days it consumes.

KEY CONCEPTS:
  - Date: a civil date at day granularity (always UTC internally)
  - HolidaySource: pluggable "is this date a holiday?" predicate
  - CountBusinessDays: weekdays minus holidays over a closed interval

DETERMINISM:
  CountBusinessDays is a pure function of its inputs. It holds no state and
  is safe to call concurrently without synchronization.

SEE ALSO:
  - vacation/ledger.go: consumes day counts produced here
  - vacation/lifecycle.go: validates request endpoints against IsBusinessDay
*/
package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil date, day granularity
// =============================================================================

// Date is a calendar date with no time-of-day component.
// The zero value is the zero date and reports IsZero() == true.
type Date struct {
	t time.Time
}

// NewDate constructs a Date from year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar date (in UTC).
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar date.
func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses a date in ISO form (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// MarshalJSON renders the date in ISO form.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses the ISO form.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// HOLIDAY SOURCE - Organization holidays
// =============================================================================

// Holiday is a designated non-working day.
type Holiday struct {
	Date Date
	Name string
}

// HolidaySource answers whether a date is a designated holiday.
// Implementations must be safe for concurrent use.
type HolidaySource interface {
	IsHoliday(date Date) bool
}

// HolidaySet is a fixed in-memory HolidaySource.
type HolidaySet struct {
	days map[Date]string
}

// NewHolidaySet builds a HolidaySet from a list of holidays.
func NewHolidaySet(holidays ...Holiday) *HolidaySet {
	days := make(map[Date]string, len(holidays))
	for _, h := range holidays {
		days[h.Date] = h.Name
	}
	return &HolidaySet{days: days}
}

func (s *HolidaySet) IsHoliday(date Date) bool {
	_, ok := s.days[date]
	return ok
}

// NoHolidays is a HolidaySource with no holidays at all.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(Date) bool { return false }

// =============================================================================
// BUSINESS DAY COUNTING
// =============================================================================

// IsBusinessDay reports whether a date is a weekday and not a holiday.
func IsBusinessDay(date Date, holidays HolidaySource) bool {
	if date.IsWeekend() {
		return false
	}
	if holidays != nil && holidays.IsHoliday(date) {
		return false
	}
	return true
}

// CountBusinessDays counts business days in the closed interval [start, end].
// Returns 0 when end is before start; the caller is responsible for
// rejecting inverted ranges as invalid input.
func CountBusinessDays(start, end Date, holidays HolidaySource) int {
	if end.Before(start) {
		return 0
	}
	count := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if IsBusinessDay(d, holidays) {
			count++
		}
	}
	return count
}

// BusinessDaysIn lists the business days in [start, end] in ascending order.
func BusinessDaysIn(start, end Date, holidays HolidaySource) []Date {
	if end.Before(start) {
		return nil
	}
	var days []Date
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if IsBusinessDay(d, holidays) {
			days = append(days, d)
		}
	}
	return days
}
