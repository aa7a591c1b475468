/*
cycle.go - Billing cycle generation

PURPOSE:
  Produces the dated sequence of billing obligations derived from a
  Billing configuration. Periods step forward from StartDate by the
  billing period; each period's due date is resolved by the DueRule in
  the month the period starts. Amount revisions are resolved per cycle
  against the due date.

ANCHORING:
  Period starts are always computed as StepPeriod(StartDate, n) from the
  original anchor, never by re-stepping the previous period. This keeps
  a Jan 31 anchor producing Feb 29, Mar 31, Apr 30 instead of drifting
  to the 28th forever after February.

LAZINESS:
  CycleSeq is a pull iterator. A nightly run over thousands of
  contracts pulls only the window it needs; nothing is materialized up
  front. The sequence is finite whenever EndDate or a range end is set
  and open-ended otherwise, so callers without an EndDate must bound
  their pulls.

SEE ALSO:
  - duerule.go: Due date resolution (periods may be skipped)
  - amount.go: Per-line aggregation on top of emitted cycles
*/
package contract

import (
	"github.com/shopspring/decimal"

	"github.com/warp/contract-engine/calendar"
)

// Cycle is one concrete, dated instance of the recurring billing
// obligation.
type Cycle struct {
	PeriodStart calendar.Date
	PeriodEnd   calendar.Date
	DueDate     calendar.Date

	// PayableBy is DueDate + GraceDays; the obligation is overdue past it.
	PayableBy calendar.Date

	// Amount is the resolved fixed amount for fixed-mode billing and
	// zero for perLine mode, where ComputeCycleAmount owns the total.
	Amount   decimal.Decimal
	Currency string

	// RevisionReason is set when a revision supplied the amount.
	RevisionReason string
}

// CycleSeq lazily generates billing cycles. It is a pure function of
// its construction inputs: reconstructing it restarts the sequence.
type CycleSeq struct {
	billing    Billing
	rangeStart calendar.Date
	rangeEnd   *calendar.Date
	step       int
	done       bool
}

// Cycles generates the billing cycles of b whose period starts fall in
// [rangeStart, rangeEnd]. A nil rangeEnd leaves the sequence bounded
// only by b.EndDate; when both are absent the sequence is open-ended
// and the caller must bound its pulls.
func Cycles(b Billing, rangeStart calendar.Date, rangeEnd *calendar.Date) *CycleSeq {
	seq := &CycleSeq{billing: b.clone(), rangeStart: rangeStart}
	if rangeEnd != nil {
		d := *rangeEnd
		seq.rangeEnd = &d
	}
	return seq
}

// Next returns the next cycle, or ok=false when the sequence is
// exhausted. Periods whose due rule yields no date are skipped, not
// emitted.
func (s *CycleSeq) Next() (Cycle, bool) {
	if s.done {
		return Cycle{}, false
	}
	for {
		periodStart := calendar.AddBillingPeriod(s.billing.StartDate, s.billing.Period, s.step)
		if s.billing.EndDate != nil && periodStart.After(*s.billing.EndDate) {
			s.done = true
			return Cycle{}, false
		}
		if s.rangeEnd != nil && periodStart.After(*s.rangeEnd) {
			s.done = true
			return Cycle{}, false
		}
		s.step++

		if periodStart.Before(s.rangeStart) {
			continue
		}
		due, ok := EvaluateDueDate(s.billing.Due, periodStart.Year(), periodStart.Month())
		if !ok {
			continue
		}

		periodEnd := calendar.AddBillingPeriod(s.billing.StartDate, s.billing.Period, s.step).AddDays(-1)
		amount, currency, reason := resolveAmount(s.billing, due)

		return Cycle{
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
			DueDate:        due,
			PayableBy:      due.AddDays(s.billing.GraceDays),
			Amount:         amount,
			Currency:       currency,
			RevisionReason: reason,
		}, true
	}
}

// All drains the sequence into a slice. Only valid for bounded
// sequences (EndDate or rangeEnd set); an open-ended sequence would
// never return.
func (s *CycleSeq) All() []Cycle {
	var cycles []Cycle
	for {
		c, ok := s.Next()
		if !ok {
			return cycles
		}
		cycles = append(cycles, c)
	}
}

// resolveAmount picks the amount applicable at the due date: the latest
// revision with ValidFrom <= due, falling back to the base amount and
// currency where the revision leaves a field unset.
func resolveAmount(b Billing, due calendar.Date) (decimal.Decimal, string, string) {
	amount := decimal.Zero
	if b.Mode == ModeFixed && b.Amount != nil {
		amount = *b.Amount
	}
	currency := b.Currency
	reason := ""

	// Revisions are ordered ascending, so the last applicable one wins.
	for _, rev := range b.Revisions {
		if rev.ValidFrom.After(due) {
			break
		}
		if rev.Amount != nil && b.Mode == ModeFixed {
			amount = *rev.Amount
		}
		if rev.Currency != "" {
			currency = rev.Currency
		}
		reason = rev.Reason
	}
	return amount, currency, reason
}
