/*
Package contract is the core recurring service-contract engine.

PURPOSE:
  Given a contract's billing configuration and service lines, this
  package computes due dates, generates recurring billing cycles and
  service-visit occurrences, enforces lifecycle transitions, and
  aggregates billable amounts. It performs no I/O: persistence and
  transport live in store/ and api/ and only ever hand fully-formed
  values in and take fresh values out.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: Aggregate root owning lines and billing configuration
  - ContractLine: One recurring service commitment with a Schedule
  - Billing: Mode, period, due rule, grace days and amount revisions
  - Revision: A dated override of the billing amount
  - TranslatedLabel: Locale-keyed display strings

DESIGN PRINCIPLES:
  1. Purity: engine functions read inputs and allocate fresh outputs;
     a caller's Contract is never mutated, even on error
  2. Precision: decimal.Decimal for all money, never float64
  3. Laziness: cycle and occurrence generation are pull iterators so
     callers bound memory by pulling only the window they need

SEE ALSO:
  - duerule.go: Due date resolution (day-of-month / nth-weekday)
  - cycle.go: Billing cycle generation with revision resolution
  - occurrence.go: Service-visit occurrence generation
  - lifecycle.go: Status state machine
  - amount.go: Per-cycle amount aggregation
*/
package contract

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/contract-engine/calendar"
)

// =============================================================================
// ENUMS
// =============================================================================

// Status is the lifecycle state of a contract. StatusExpired is derived
// at read time (see EffectiveStatus) and never stored.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
	StatusExpired    Status = "expired"
)

// BillingMode selects how a cycle's amount is determined.
type BillingMode string

const (
	// ModeFixed bills the (possibly revised) fixed contract amount.
	ModeFixed BillingMode = "fixed"
	// ModePerLine sums the priced, non-included line occurrences.
	ModePerLine BillingMode = "perLine"
)

// TranslatedLabel maps locale codes to display strings. The locale set
// is closed; ordering is irrelevant.
type TranslatedLabel map[string]string

func (l TranslatedLabel) clone() TranslatedLabel {
	if l == nil {
		return nil
	}
	out := make(TranslatedLabel, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// =============================================================================
// CONTRACT - Aggregate root
// =============================================================================

type Contract struct {
	ID          uuid.UUID
	TenantID    string
	Code        string
	Title       TranslatedLabel
	Description TranslatedLabel
	Parties     Parties
	Lines       []ContractLine
	Billing     Billing

	Status       Status
	ActivatedAt  *time.Time
	TerminatedAt *time.Time
	ReasonNote   string

	// IsActive is the soft-delete flag; contracts referenced by
	// historical billing cycles are never hard-deleted.
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Parties links the contract to the serviced apartment, an optional
// customer, and a contact snapshot taken at signing time.
type Parties struct {
	ApartmentID string
	CustomerID  *uuid.UUID
	Contact     ContactSnapshot
}

type ContactSnapshot struct {
	Name  string
	Phone string
	Email string
}

// Clone returns a deep copy. Lifecycle transitions operate on clones so
// the caller's value stays untouched on error.
func (c Contract) Clone() Contract {
	out := c
	out.Title = c.Title.clone()
	out.Description = c.Description.clone()
	if c.Parties.CustomerID != nil {
		id := *c.Parties.CustomerID
		out.Parties.CustomerID = &id
	}
	if c.ActivatedAt != nil {
		t := *c.ActivatedAt
		out.ActivatedAt = &t
	}
	if c.TerminatedAt != nil {
		t := *c.TerminatedAt
		out.TerminatedAt = &t
	}
	out.Lines = make([]ContractLine, len(c.Lines))
	for i, line := range c.Lines {
		out.Lines[i] = line.clone()
	}
	out.Billing = c.Billing.clone()
	return out
}

// =============================================================================
// CONTRACT LINE - One recurring service commitment
// =============================================================================

type ContractLine struct {
	ID          uuid.UUID
	ServiceID   uuid.UUID
	Name        TranslatedLabel
	Description TranslatedLabel

	// IsIncludedInContractPrice means the line is covered by the fixed
	// contract amount and contributes nothing to a per-line total.
	IsIncludedInContractPrice bool

	// UnitPrice is required only when the line is not included and the
	// billing mode is perLine.
	UnitPrice *decimal.Decimal
	Currency  string

	Schedule Schedule
	Manpower Manpower
	IsActive bool
}

func (l ContractLine) clone() ContractLine {
	out := l
	out.Name = l.Name.clone()
	out.Description = l.Description.clone()
	if l.UnitPrice != nil {
		p := *l.UnitPrice
		out.UnitPrice = &p
	}
	out.Schedule = l.Schedule.clone()
	return out
}

// Schedule describes the recurrence of a service visit: every N units,
// optionally restricted to explicit weekdays (week unit only), with
// weekdays that are always skipped.
type Schedule struct {
	Every int
	Unit  calendar.Unit

	// DaysOfWeek restricts weekly schedules to explicit weekdays.
	// Ignored for day and month units.
	DaysOfWeek []time.Weekday

	// Exceptions are weekdays that are always skipped, regardless of
	// how the occurrence was computed.
	Exceptions []time.Weekday
}

func (s Schedule) clone() Schedule {
	out := s
	out.DaysOfWeek = append([]time.Weekday(nil), s.DaysOfWeek...)
	out.Exceptions = append([]time.Weekday(nil), s.Exceptions...)
	return out
}

// Manpower records the crew required for one visit.
type Manpower struct {
	Headcount       int
	DurationMinutes int
}

// =============================================================================
// BILLING - Value object owned by the contract
// =============================================================================

type Billing struct {
	Mode BillingMode

	// Amount is required iff Mode is fixed; must be >= 0.
	Amount   *decimal.Decimal
	Currency string

	Period calendar.BillingPeriod
	Due    DueRule

	StartDate calendar.Date
	EndDate   *calendar.Date

	// GraceDays extends the due date to a payableBy deadline; it never
	// moves due-date generation.
	GraceDays int

	// Revisions is an append-only log ordered by ValidFrom ascending;
	// no two revisions share a ValidFrom.
	Revisions []Revision
}

func (b Billing) clone() Billing {
	out := b
	if b.Amount != nil {
		a := *b.Amount
		out.Amount = &a
	}
	if b.EndDate != nil {
		d := *b.EndDate
		out.EndDate = &d
	}
	out.Revisions = make([]Revision, len(b.Revisions))
	for i, r := range b.Revisions {
		out.Revisions[i] = r.clone()
	}
	return out
}

// Revision overrides the billing amount (and optionally currency) from
// ValidFrom onward.
type Revision struct {
	ValidFrom calendar.Date
	Amount    *decimal.Decimal
	Currency  string
	Reason    string
}

func (r Revision) clone() Revision {
	out := r
	if r.Amount != nil {
		a := *r.Amount
		out.Amount = &a
	}
	return out
}
