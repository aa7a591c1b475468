/*
amount.go - Per-cycle amount aggregation

PURPOSE:
  Computes what one billing cycle is worth. Fixed mode passes through
  the cycle's resolved (possibly revised) amount. Per-line mode counts
  each active line's occurrences within the cycle's period window and
  multiplies by the unit price. Occurrence streams are anchored at the
  billing start date, so consecutive cycles partition one visit stream
  instead of each window re-deriving its own. Included lines contribute nothing to the
  net total but are still reported per line at their nominal price for
  transparency.

  Totals are net: VAT is computed by an external tax component from the
  per-line breakdown exposed here.
*/
package contract

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CycleAmount is the payable breakdown of one billing cycle.
type CycleAmount struct {
	// Net is the payable total, excluding included-line nominal values.
	Net      decimal.Decimal
	Currency string

	// ByLine reports each active line's nominal value for the cycle,
	// included lines too. Empty in fixed mode.
	ByLine map[uuid.UUID]decimal.Decimal
}

// ComputeCycleAmount resolves the payable amount of a cycle. A line
// whose currency differs from the contract currency is a validation
// error, never a silent coercion.
func ComputeCycleAmount(c Contract, cycle Cycle, weekStart time.Weekday) (CycleAmount, error) {
	if c.Billing.Mode == ModeFixed {
		return CycleAmount{
			Net:      cycle.Amount,
			Currency: cycle.Currency,
			ByLine:   map[uuid.UUID]decimal.Decimal{},
		}, nil
	}

	currency := c.Billing.Currency
	if cycle.Currency != "" {
		currency = cycle.Currency
	}

	out := CycleAmount{
		Net:      decimal.Zero,
		Currency: currency,
		ByLine:   make(map[uuid.UUID]decimal.Decimal, len(c.Lines)),
	}
	for i, line := range c.Lines {
		if !line.IsActive {
			continue
		}
		if line.Currency != "" && line.Currency != currency {
			return CycleAmount{}, validationErr(
				fmt.Sprintf("lines[%d].currency", i),
				"line currency %s does not match contract currency %s",
				line.Currency, currency)
		}

		count := Occurrences(line, c.Billing.StartDate, cycle.PeriodStart, cycle.PeriodEnd, weekStart).Count()
		price := decimal.Zero
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		total := price.Mul(decimal.NewFromInt(int64(count)))

		out.ByLine[line.ID] = total
		if !line.IsIncludedInContractPrice {
			out.Net = out.Net.Add(total)
		}
	}
	return out, nil
}
