/*
duerule.go - Due date policy as a sealed tagged union

PURPOSE:
  A DueRule decides which calendar date within a billing period a
  payment falls due. Two variants exist:

  DayOfMonthRule{Day}:
    Due on that day of the target month, clamped to the last valid day
    when the month is shorter (day 31 in February -> Feb 28/29).
    Always resolves.

  NthWeekdayRule{Nth, Weekday}:
    Due on the nth occurrence of the weekday in the target month.
    A 5th occurrence that doesn't exist resolves to NO due date for
    that period - the period is skipped, which is a valid business
    outcome, never an error.

SEALED UNION:
  The unexported dueRule() method keeps the set of variants closed;
  wire serialization with a "type" discriminator lives in factory/.
*/
package contract

import (
	"time"

	"github.com/warp/contract-engine/calendar"
)

// DueRule is the policy for computing the concrete due date of a
// billing period. Implemented only by DayOfMonthRule and
// NthWeekdayRule.
type DueRule interface {
	// Evaluate resolves the due date within the given month. ok is
	// false when the rule yields no date that month; the caller skips
	// the period entirely.
	Evaluate(year int, month time.Month) (calendar.Date, bool)

	dueRule()
}

// EvaluateDueDate resolves a rule for a period anchored to the given
// month. It never panics for inputs that passed Validate; out-of-range
// fields are a caller validation error reported before this point.
func EvaluateDueDate(rule DueRule, year int, month time.Month) (calendar.Date, bool) {
	return rule.Evaluate(year, month)
}

// =============================================================================
// DAY OF MONTH
// =============================================================================

// DayOfMonthRule is due on a fixed day-of-month (1..31), clamped into
// shorter months.
type DayOfMonthRule struct {
	Day int
}

func (r DayOfMonthRule) Evaluate(year int, month time.Month) (calendar.Date, bool) {
	return calendar.ClampDayOfMonth(year, month, r.Day), true
}

func (DayOfMonthRule) dueRule() {}

// =============================================================================
// NTH WEEKDAY
// =============================================================================

// NthWeekdayRule is due on the nth (1..5) occurrence of Weekday in the
// target month; a missing occurrence skips the period.
type NthWeekdayRule struct {
	Nth     int
	Weekday time.Weekday
}

func (r NthWeekdayRule) Evaluate(year int, month time.Month) (calendar.Date, bool) {
	return calendar.NthWeekdayOfMonth(year, month, r.Nth, r.Weekday)
}

func (NthWeekdayRule) dueRule() {}
