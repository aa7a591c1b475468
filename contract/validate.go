package contract

import (
	"fmt"
	"time"

	"github.com/warp/contract-engine/calendar"
)

// Validate checks the contract's structural invariants and returns the
// first violation as a *ValidationError naming the field. It never
// mutates the receiver. Out-of-range due-rule fields are caught here so
// EvaluateDueDate never sees them.
func (c Contract) Validate() error {
	if err := c.Billing.validate(); err != nil {
		return err
	}
	for i, line := range c.Lines {
		if err := line.validate(fmt.Sprintf("lines[%d]", i), c.Billing); err != nil {
			return err
		}
	}
	return nil
}

func (b Billing) validate() error {
	switch b.Mode {
	case ModeFixed:
		if b.Amount == nil {
			return validationErr("billing.amount", "required when mode is fixed")
		}
		if b.Amount.IsNegative() {
			return validationErr("billing.amount", "must be >= 0, got %s", b.Amount)
		}
	case ModePerLine:
		// Amount is unused; line prices carry the value.
	default:
		return validationErr("billing.mode", "unknown mode %q", b.Mode)
	}

	if b.Currency == "" {
		return validationErr("billing.currency", "required")
	}
	if !validCurrencyCode(b.Currency) {
		return validationErr("billing.currency", "must be a 3-letter ISO 4217 code, got %q", b.Currency)
	}

	switch b.Period {
	case calendar.PeriodWeekly, calendar.PeriodMonthly, calendar.PeriodQuarterly, calendar.PeriodYearly:
	default:
		return validationErr("billing.period", "unknown period %q", b.Period)
	}

	if err := validateDueRule(b.Due); err != nil {
		return err
	}

	if b.StartDate.IsZero() {
		return validationErr("billing.startDate", "required")
	}
	if b.EndDate != nil && b.EndDate.Before(b.StartDate) {
		return validationErr("billing.endDate", "must be on or after startDate (%s < %s)", b.EndDate, b.StartDate)
	}
	if b.GraceDays < 0 {
		return validationErr("billing.graceDays", "must be >= 0, got %d", b.GraceDays)
	}

	var prev *calendar.Date
	for i, rev := range b.Revisions {
		field := fmt.Sprintf("billing.revisions[%d]", i)
		if rev.ValidFrom.IsZero() {
			return validationErr(field+".validFrom", "required")
		}
		if prev != nil {
			if rev.ValidFrom.Equal(*prev) {
				return validationErr(field+".validFrom", "duplicate validFrom %s", rev.ValidFrom)
			}
			if rev.ValidFrom.Before(*prev) {
				return validationErr(field+".validFrom", "revisions must be ordered by validFrom ascending")
			}
		}
		if rev.Amount != nil && rev.Amount.IsNegative() {
			return validationErr(field+".amount", "must be >= 0, got %s", rev.Amount)
		}
		if rev.Currency != "" && !validCurrencyCode(rev.Currency) {
			return validationErr(field+".currency", "must be a 3-letter ISO 4217 code, got %q", rev.Currency)
		}
		vf := rev.ValidFrom
		prev = &vf
	}
	return nil
}

// validCurrencyCode checks the ISO 4217 shape: exactly three uppercase
// ASCII letters. It does not keep a code registry.
func validCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func validateDueRule(rule DueRule) error {
	switch r := rule.(type) {
	case DayOfMonthRule:
		if r.Day < 1 || r.Day > 31 {
			return validationErr("billing.dueRule.day", "must be in 1..31, got %d", r.Day)
		}
	case NthWeekdayRule:
		if r.Nth < 1 || r.Nth > 5 {
			return validationErr("billing.dueRule.nth", "must be in 1..5, got %d", r.Nth)
		}
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return validationErr("billing.dueRule.weekday", "must be in 0..6, got %d", int(r.Weekday))
		}
	case nil:
		return validationErr("billing.dueRule", "required")
	default:
		return validationErr("billing.dueRule", "unknown rule type %T", rule)
	}
	return nil
}

func (l ContractLine) validate(field string, billing Billing) error {
	if l.Schedule.Every < 1 {
		return validationErr(field+".schedule.every", "must be >= 1, got %d", l.Schedule.Every)
	}
	switch l.Schedule.Unit {
	case calendar.UnitDay, calendar.UnitWeek, calendar.UnitMonth:
	default:
		return validationErr(field+".schedule.unit", "unknown unit %q", l.Schedule.Unit)
	}
	for _, wd := range l.Schedule.DaysOfWeek {
		if wd < time.Sunday || wd > time.Saturday {
			return validationErr(field+".schedule.daysOfWeek", "weekday must be in 0..6, got %d", int(wd))
		}
	}
	for _, wd := range l.Schedule.Exceptions {
		if wd < time.Sunday || wd > time.Saturday {
			return validationErr(field+".schedule.exceptions", "weekday must be in 0..6, got %d", int(wd))
		}
	}

	if l.Manpower.Headcount < 1 {
		return validationErr(field+".manpower.headcount", "must be >= 1, got %d", l.Manpower.Headcount)
	}
	if l.Manpower.DurationMinutes < 1 {
		return validationErr(field+".manpower.durationMinutes", "must be >= 1, got %d", l.Manpower.DurationMinutes)
	}

	if l.UnitPrice != nil && l.UnitPrice.IsNegative() {
		return validationErr(field+".unitPrice", "must be >= 0, got %s", l.UnitPrice)
	}
	if l.Currency != "" && !validCurrencyCode(l.Currency) {
		return validationErr(field+".currency", "must be a 3-letter ISO 4217 code, got %q", l.Currency)
	}
	if billing.Mode == ModePerLine && !l.IsIncludedInContractPrice {
		if l.UnitPrice == nil {
			return validationErr(field+".unitPrice", "required for non-included lines in perLine mode")
		}
		if l.Currency == "" {
			return validationErr(field+".currency", "required for non-included lines in perLine mode")
		}
	}
	return nil
}
