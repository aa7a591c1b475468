/*
spec_test.go - Executable specification of the billing engine

PURPOSE:
  These tests document the engine's observable behavior end to end:
  due-date clamping, skipped periods, cycle anchoring, revision
  boundaries, and activation guards. Each test states the scenario in
  GIVEN/WHEN/THEN form.

These tests are intentionally verbose for documentation purposes.
*/
package contract_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/contract-engine/calendar"
	"github.com/warp/contract-engine/contract"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) calendar.Date {
	return calendar.NewDate(y, m, d)
}

func money(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func fixedBilling(amount string, period calendar.BillingPeriod, due contract.DueRule, start calendar.Date, end *calendar.Date) contract.Billing {
	return contract.Billing{
		Mode:      contract.ModeFixed,
		Amount:    money(amount),
		Currency:  "EUR",
		Period:    period,
		Due:       due,
		StartDate: start,
		EndDate:   end,
	}
}

func dueDates(cycles []contract.Cycle) []string {
	var out []string
	for _, c := range cycles {
		out = append(out, c.DueDate.String())
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// DUE RULE EVALUATION
// =============================================================================

func TestDueRule_DayOfMonth_ClampsIntoFebruary(t *testing.T) {
	// GIVEN: dueRule = dayOfMonth(31)
	// WHEN: evaluated for February of a non-leap year (28 days)
	// THEN: the due date is Feb 28, not an error

	due, ok := contract.EvaluateDueDate(contract.DayOfMonthRule{Day: 31}, 2023, time.February)
	if !ok {
		t.Fatal("dayOfMonth must always resolve")
	}
	if due.String() != "2023-02-28" {
		t.Errorf("due = %s, want 2023-02-28", due)
	}
}

func TestDueRule_DayOfMonth_NeverSkips(t *testing.T) {
	// Clamping property: every day 1..31, every month, resolves inside
	// the target month.
	for day := 1; day <= 31; day++ {
		for month := time.January; month <= time.December; month++ {
			due, ok := contract.EvaluateDueDate(contract.DayOfMonthRule{Day: day}, 2024, month)
			if !ok {
				t.Fatalf("dayOfMonth(%d) skipped %v", day, month)
			}
			if due.Month() != month {
				t.Fatalf("dayOfMonth(%d) left %v: %s", day, month, due)
			}
		}
	}
}

func TestDueRule_FifthMonday_SkipsShortMonths(t *testing.T) {
	// GIVEN: dueRule = nthWeekday(5th Monday)
	// WHEN: evaluated for February 2024 (four Mondays)
	// THEN: no due date - a valid outcome, not an error

	_, ok := contract.EvaluateDueDate(contract.NthWeekdayRule{Nth: 5, Weekday: time.Monday}, 2024, time.February)
	if ok {
		t.Error("February 2024 has four Mondays; the 5th must not resolve")
	}

	// AND: January 2024 has five Mondays, so it resolves to the 29th.
	due, ok := contract.EvaluateDueDate(contract.NthWeekdayRule{Nth: 5, Weekday: time.Monday}, 2024, time.January)
	if !ok || due.String() != "2024-01-29" {
		t.Errorf("January 2024 5th Monday = %s (ok=%v), want 2024-01-29", due, ok)
	}
}

// =============================================================================
// CYCLE GENERATION
// =============================================================================

func TestCycles_MonthlyAnchoredRange(t *testing.T) {
	// GIVEN: monthly billing, startDate 2024-01-15, endDate 2024-04-15,
	//        dueRule dayOfMonth(1)
	// WHEN: generating cycles over the whole contract
	// THEN: exactly 4 cycles, due on the 1st of Jan through Apr

	end := date(2024, time.April, 15)
	b := fixedBilling("100", calendar.PeriodMonthly, contract.DayOfMonthRule{Day: 1}, date(2024, time.January, 15), &end)

	cycles := contract.Cycles(b, b.StartDate, nil).All()
	want := []string{"2024-01-01", "2024-02-01", "2024-03-01", "2024-04-01"}
	if !equalStrings(dueDates(cycles), want) {
		t.Errorf("due dates = %v, want %v", dueDates(cycles), want)
	}

	// Period windows tile the contract without gaps.
	for i, c := range cycles {
		if c.PeriodStart.String() != []string{"2024-01-15", "2024-02-15", "2024-03-15", "2024-04-15"}[i] {
			t.Errorf("cycle %d periodStart = %s", i, c.PeriodStart)
		}
		if i > 0 && !cycles[i-1].PeriodEnd.AddDays(1).Equal(c.PeriodStart) {
			t.Errorf("gap between cycle %d and %d", i-1, i)
		}
	}
}

func TestCycles_FifthMondayPeriodsAbsent(t *testing.T) {
	// GIVEN: monthly billing over Jan-Mar 2024 with dueRule 5th Monday
	// WHEN: generating cycles
	// THEN: only January (five Mondays) emits; Feb and Mar are absent

	end := date(2024, time.March, 31)
	b := fixedBilling("100", calendar.PeriodMonthly, contract.NthWeekdayRule{Nth: 5, Weekday: time.Monday}, date(2024, time.January, 1), &end)

	cycles := contract.Cycles(b, b.StartDate, nil).All()
	if !equalStrings(dueDates(cycles), []string{"2024-01-29"}) {
		t.Errorf("due dates = %v, want [2024-01-29]", dueDates(cycles))
	}
}

func TestCycles_RevisionBoundary(t *testing.T) {
	// GIVEN: base amount 100 and a revision {validFrom 2024-03-01, 150}
	// WHEN: generating monthly cycles due on the 1st
	// THEN: cycles due strictly before March use 100; the cycle due
	//       exactly on validFrom, and all later ones, use 150

	end := date(2024, time.April, 30)
	b := fixedBilling("100", calendar.PeriodMonthly, contract.DayOfMonthRule{Day: 1}, date(2024, time.January, 1), &end)
	b.Revisions = []contract.Revision{
		{ValidFrom: date(2024, time.March, 1), Amount: money("150"), Reason: "annual indexation"},
	}

	cycles := contract.Cycles(b, b.StartDate, nil).All()
	if len(cycles) != 4 {
		t.Fatalf("expected 4 cycles, got %d", len(cycles))
	}
	wantAmounts := []string{"100", "100", "150", "150"}
	for i, c := range cycles {
		if c.Amount.String() != wantAmounts[i] {
			t.Errorf("cycle due %s amount = %s, want %s", c.DueDate, c.Amount, wantAmounts[i])
		}
	}
	if cycles[2].RevisionReason != "annual indexation" {
		t.Errorf("revision reason not carried: %q", cycles[2].RevisionReason)
	}
	if cycles[1].RevisionReason != "" {
		t.Errorf("pre-revision cycle carries reason %q", cycles[1].RevisionReason)
	}
}

func TestCycles_Idempotent(t *testing.T) {
	// Purity: two generations from identical inputs are identical.
	end := date(2025, time.December, 31)
	b := fixedBilling("42.50", calendar.PeriodQuarterly, contract.DayOfMonthRule{Day: 15}, date(2024, time.January, 31), &end)

	first := contract.Cycles(b, b.StartDate, nil).All()
	second := contract.Cycles(b, b.StartDate, nil).All()
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("cycle %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCycles_GraceDaysShiftPayableByOnly(t *testing.T) {
	// GIVEN: graceDays = 10
	// THEN: payableBy = dueDate + 10 while due-date generation is unmoved

	end := date(2024, time.February, 29)
	b := fixedBilling("100", calendar.PeriodMonthly, contract.DayOfMonthRule{Day: 1}, date(2024, time.January, 1), &end)
	b.GraceDays = 10

	cycles := contract.Cycles(b, b.StartDate, nil).All()
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(cycles))
	}
	if cycles[0].DueDate.String() != "2024-01-01" || cycles[0].PayableBy.String() != "2024-01-11" {
		t.Errorf("cycle 0: due %s payableBy %s", cycles[0].DueDate, cycles[0].PayableBy)
	}
}

func TestCycles_LazyPullBoundsOpenEndedBilling(t *testing.T) {
	// GIVEN: billing with no endDate (open-ended)
	// WHEN: pulling only three cycles
	// THEN: three cycles arrive without materializing anything further

	b := fixedBilling("100", calendar.PeriodWeekly, contract.DayOfMonthRule{Day: 1}, date(2024, time.January, 1), nil)

	seq := contract.Cycles(b, b.StartDate, nil)
	for i := 0; i < 3; i++ {
		if _, ok := seq.Next(); !ok {
			t.Fatalf("pull %d failed on open-ended sequence", i)
		}
	}
}

func TestCycles_LaterRangeStartKeepsAnchor(t *testing.T) {
	// GIVEN: monthly billing anchored on the 31st
	// WHEN: generating from a range start months after StartDate
	// THEN: emitted periods stay on the original anchor day (clamped),
	//       not re-anchored to the range start

	end := date(2024, time.June, 30)
	b := fixedBilling("100", calendar.PeriodMonthly, contract.DayOfMonthRule{Day: 1}, date(2024, time.January, 31), &end)

	cycles := contract.Cycles(b, date(2024, time.March, 1), nil).All()
	if len(cycles) == 0 {
		t.Fatal("no cycles")
	}
	if cycles[0].PeriodStart.String() != "2024-03-31" {
		t.Errorf("first period start = %s, want the anchored 2024-03-31", cycles[0].PeriodStart)
	}
}

// =============================================================================
// LIFECYCLE GUARDS
// =============================================================================

func TestLifecycle_ActivationRequiresFixedAmount(t *testing.T) {
	// GIVEN: a draft fixed-mode contract with no amount
	// WHEN: activating
	// THEN: ValidationError naming billing.amount; succeeds once set

	c := draftContract(t)
	c.Billing.Amount = nil

	_, err := contract.Activate(c, time.Now())
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *contract.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "billing.amount" {
		t.Errorf("field = %q, want billing.amount", verr.Field)
	}
	if !errors.Is(err, contract.ErrValidation) {
		t.Error("validation errors must match ErrValidation")
	}

	// Input contract unchanged.
	if c.Status != contract.StatusDraft {
		t.Error("failed activation mutated the input")
	}

	c.Billing.Amount = money("100")
	activated, err := contract.Activate(c, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activated.Status != contract.StatusActive || activated.ActivatedAt == nil {
		t.Error("activation did not record status and timestamp")
	}
}
