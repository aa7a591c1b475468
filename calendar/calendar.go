/*
Package calendar provides pure civil-date arithmetic for the contract engine.

PURPOSE:
  Every scheduling and billing computation in this system reduces to a
  handful of date operations: clamping a day-of-month into a shorter
  month, finding the nth weekday of a month, and stepping forward by
  day/week/month periods. This package owns those operations so the
  engine above it never touches time.Time arithmetic directly.

KEY CONCEPTS IN THIS FILE:
  - Date: A civil date (no time-of-day, always UTC) used everywhere
  - Unit: Step unit for recurring schedules (day, week, month)
  - BillingPeriod: Billing cadence (weekly, monthly, quarterly, yearly)
  - WeekIndex: Whole-week numbering with a configurable week start

DESIGN PRINCIPLES:
  1. Purity: Every function is deterministic and side-effect-free
  2. Single calendar: UTC civil dates only; timezone localization is
     the caller's problem
  3. Clamping month math: stepping months preserves the day-of-month,
     clamped to the last valid day (Jan 31 + 1 month = Feb 28/29).
     This differs from time.Time.AddDate, which overflows instead.

USAGE:
  due := calendar.ClampDayOfMonth(2024, time.February, 31) // Feb 29
  next := calendar.StepPeriod(start, calendar.UnitMonth, 1)
*/
package calendar

import (
	"time"
)

// =============================================================================
// DATE - Civil date, UTC, day granularity
// =============================================================================

// Date is a civil date with no time-of-day component. The zero value is
// the zero date and reports IsZero.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates a timestamp to its UTC civil date.
func FromTime(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date {
	return FromTime(time.Now())
}

// ParseDate parses an ISO-8601 calendar date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return FromTime(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }

func (d Date) String() string { return d.normalize().Format(dateLayout) }

// Arithmetic
func (d Date) AddDays(n int) Date {
	return Date{Time: d.normalize().AddDate(0, 0, n)}
}

func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// MONTH UTILITIES
// =============================================================================

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDayOfMonth returns the date for day-of-month within the given
// month, clamped to the last valid day when the month is shorter.
func ClampDayOfMonth(year int, month time.Month, day int) Date {
	if max := DaysInMonth(year, month); day > max {
		day = max
	}
	return NewDate(year, month, day)
}

// NthWeekdayOfMonth returns the nth (1-indexed) occurrence of weekday in
// the given month. ok is false when the month has fewer than nth
// occurrences; the caller treats that as "no date", not an error.
func NthWeekdayOfMonth(year int, month time.Month, nth int, weekday time.Weekday) (Date, bool) {
	if nth < 1 {
		return Date{}, false
	}
	first := NewDate(year, month, 1)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	day := 1 + offset + (nth-1)*7
	if day > DaysInMonth(year, month) {
		return Date{}, false
	}
	return NewDate(year, month, day), true
}

// =============================================================================
// PERIOD STEPPING
// =============================================================================

// Unit is the step unit of a recurring schedule.
type Unit string

const (
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
)

// BillingPeriod is the cadence of a billing cycle.
type BillingPeriod string

const (
	PeriodWeekly    BillingPeriod = "weekly"
	PeriodMonthly   BillingPeriod = "monthly"
	PeriodQuarterly BillingPeriod = "quarterly"
	PeriodYearly    BillingPeriod = "yearly"
)

// StepPeriod adds count units to the date. Month steps preserve the
// source day-of-month with end-of-month clamping. Callers generating a
// series must step from a fixed anchor (count = i*n) rather than
// re-stepping the previous result, or the anchor day drifts after a
// short month.
func StepPeriod(d Date, unit Unit, count int) Date {
	switch unit {
	case UnitDay:
		return d.AddDays(count)
	case UnitWeek:
		return d.AddDays(count * 7)
	case UnitMonth:
		return stepMonths(d, count)
	default:
		return d
	}
}

func stepMonths(d Date, count int) Date {
	// Land on the 1st first to avoid AddDate overflow, then clamp.
	anchor := time.Date(d.Year(), d.Month()+time.Month(count), 1, 0, 0, 0, 0, time.UTC)
	return ClampDayOfMonth(anchor.Year(), anchor.Month(), d.Day())
}

// AddBillingPeriod advances the date by n billing periods via StepPeriod.
func AddBillingPeriod(d Date, period BillingPeriod, n int) Date {
	switch period {
	case PeriodWeekly:
		return StepPeriod(d, UnitWeek, n)
	case PeriodMonthly:
		return StepPeriod(d, UnitMonth, n)
	case PeriodQuarterly:
		return StepPeriod(d, UnitMonth, 3*n)
	case PeriodYearly:
		return StepPeriod(d, UnitMonth, 12*n)
	default:
		return d
	}
}

// =============================================================================
// WEEK ARITHMETIC
// =============================================================================

// weekEpoch is a known Monday used as the origin for week numbering.
var weekEpoch = time.Date(2000, time.January, 3, 0, 0, 0, 0, time.UTC)

// WeekIndex returns the whole-week number of the date relative to a
// fixed epoch, with weeks beginning on weekStart. Two dates share an
// index exactly when they fall in the same week.
func WeekIndex(d Date, weekStart time.Weekday) int {
	days := DaysBetween(Date{Time: weekEpoch}, d)
	shift := (int(weekStart) - int(time.Monday) + 7) % 7
	return floorDiv(days-shift, 7)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
