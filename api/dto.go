/*
dto.go - Request/response data structures

PURPOSE:
  Response shapes for the contract API. Contract bodies reuse the
  factory wire types (factory.ContractJSON) so the create/update path
  and the read path share one schema; this file adds the shapes that
  have no domain counterpart: cycle previews, amount breakdowns,
  occurrence lists, audit entries and the upcoming-due dashboard.

CONVENTIONS:
  - camelCase field names (admin-UI payload shape)
  - Dates as "YYYY-MM-DD", timestamps as RFC3339
  - Money as decimal strings via shopspring/decimal

SEE ALSO:
  - factory/contract.go: ContractJSON and friends
  - handlers.go: Population of these DTOs
*/
package api

import (
	"github.com/shopspring/decimal"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// CycleDTO is one generated billing cycle.
type CycleDTO struct {
	PeriodStart    string          `json:"periodStart"`
	PeriodEnd      string          `json:"periodEnd"`
	DueDate        string          `json:"dueDate"`
	PayableBy      string          `json:"payableBy"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RevisionReason string          `json:"revisionReason,omitempty"`
}

// CycleAmountDTO is a cycle with its aggregated per-line amounts.
type CycleAmountDTO struct {
	Cycle    CycleDTO                   `json:"cycle"`
	Net      decimal.Decimal            `json:"net"`
	Currency string                     `json:"currency"`
	ByLine   map[string]decimal.Decimal `json:"byLine,omitempty"`
}

// OccurrenceListDTO is the planned visit dates of one contract line.
type OccurrenceListDTO struct {
	LineID string   `json:"lineId"`
	Dates  []string `json:"dates"`
	Count  int      `json:"count"`
}

// StatusChangeDTO is one audit-trail entry.
type StatusChangeDTO struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason,omitempty"`
	ChangedAt string `json:"changedAt"`
}

// UpcomingDueDTO is one dashboard row: a contract's next due cycle.
type UpcomingDueDTO struct {
	ContractID string          `json:"contractId"`
	Code       string          `json:"code"`
	Title      string          `json:"title,omitempty"`
	DueDate    string          `json:"dueDate"`
	PayableBy  string          `json:"payableBy"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// TerminateRequest is the body of POST /contracts/{id}/terminate.
type TerminateRequest struct {
	TerminatedAt *string `json:"terminatedAt,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// TransitionRequest carries the optional note of suspend/resume.
type TransitionRequest struct {
	Reason string `json:"reason,omitempty"`
}
