/*
lifecycle.go - Contract status state machine

PURPOSE:
  Enforces legal status transitions and their guards:

    draft ──▶ active ◀──▶ suspended
      │          │            │
      └──────────┴────────────┴──▶ terminated (terminal)

  `expired` is a derived read-time state: any non-terminal contract
  whose billing EndDate has passed reads as expired, but nothing is
  stored. Transitions construct and return a new Contract; the caller's
  value is unchanged on error.

GUARDS:
  draft -> active requires a billing StartDate and a billable
  configuration: fixed mode with an amount, or perLine mode with at
  least one included line or one priced non-included line. Violations
  surface as *ValidationError naming the missing field; illegal moves
  surface as *StateTransitionError.
*/
package contract

import (
	"time"

	"github.com/warp/contract-engine/calendar"
)

// Activate moves a draft contract to active. The full Validate pass
// runs first so a contract can never activate in a malformed state.
// Future StartDates are accepted; flagging them as pending is the
// caller's policy.
func Activate(c Contract, now time.Time) (Contract, error) {
	if c.Status != StatusDraft {
		return Contract{}, &StateTransitionError{From: c.Status, Attempted: StatusActive}
	}
	if err := c.Validate(); err != nil {
		return Contract{}, err
	}
	if err := activationGuard(c); err != nil {
		return Contract{}, err
	}

	out := c.Clone()
	out.Status = StatusActive
	at := now.UTC()
	out.ActivatedAt = &at
	out.UpdatedAt = at
	return out, nil
}

func activationGuard(c Contract) error {
	if c.Billing.StartDate.IsZero() {
		return validationErr("billing.startDate", "required for activation")
	}
	switch c.Billing.Mode {
	case ModeFixed:
		if c.Billing.Amount == nil {
			return validationErr("billing.amount", "required to activate a fixed-mode contract")
		}
	case ModePerLine:
		for _, line := range c.Lines {
			if line.IsIncludedInContractPrice {
				return nil
			}
			if line.UnitPrice != nil {
				return nil
			}
		}
		return validationErr("lines", "perLine contract needs at least one included or priced line")
	}
	return nil
}

// Suspend pauses an active contract. No guard beyond the state check;
// timestamps stay untouched.
func Suspend(c Contract, now time.Time) (Contract, error) {
	if c.Status != StatusActive {
		return Contract{}, &StateTransitionError{From: c.Status, Attempted: StatusSuspended}
	}
	out := c.Clone()
	out.Status = StatusSuspended
	out.UpdatedAt = now.UTC()
	return out, nil
}

// Resume returns a suspended contract to active.
func Resume(c Contract, now time.Time) (Contract, error) {
	if c.Status != StatusSuspended {
		return Contract{}, &StateTransitionError{From: c.Status, Attempted: StatusActive}
	}
	out := c.Clone()
	out.Status = StatusActive
	out.UpdatedAt = now.UTC()
	return out, nil
}

// Terminate ends a contract from any non-terminal state. at defaults to
// now when nil. A reason note is recommended but not required here;
// mandating one is the caller's policy.
func Terminate(c Contract, at *time.Time, reason string, now time.Time) (Contract, error) {
	if c.Status == StatusTerminated {
		return Contract{}, &StateTransitionError{From: c.Status, Attempted: StatusTerminated}
	}
	when := now.UTC()
	if at != nil {
		when = at.UTC()
	}
	out := c.Clone()
	out.Status = StatusTerminated
	out.TerminatedAt = &when
	if reason != "" {
		out.ReasonNote = reason
	}
	out.UpdatedAt = now.UTC()
	return out, nil
}

// EffectiveStatus returns the status as of a date, deriving expired for
// non-terminal contracts whose billing EndDate has passed. The stored
// status is never rewritten.
func EffectiveStatus(c Contract, asOf calendar.Date) Status {
	if c.Status == StatusTerminated {
		return StatusTerminated
	}
	if c.Billing.EndDate != nil && asOf.After(*c.Billing.EndDate) {
		return StatusExpired
	}
	return c.Status
}
