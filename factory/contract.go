/*
Package factory converts admin-UI JSON payloads to and from the domain
contract model.

PURPOSE:
  The admin UI submits contracts as JSON: translated-label maps keyed by
  locale, ISO-8601 calendar dates, enumerated strings for mode/period/
  status, and the due rule as a discriminated union with a "type" field.
  This package owns that wire shape so the engine never sees JSON and
  the API layer never builds domain values by hand. The store reuses the
  same encoding for its payload column.

DUE RULE WIRE FORMAT:
  {"type": "dayOfMonth", "day": 31}
  {"type": "nthWeekday", "nth": 5, "weekday": 1}

DEFAULTS:
  A missing billing currency falls back to the tenant default the
  factory was constructed with.

SEE ALSO:
  - contract/types.go: Domain model
  - api/dto.go: HTTP layer reusing these wire types
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/contract-engine/calendar"
	"github.com/warp/contract-engine/contract"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ContractJSON is the wire representation of a contract.
type ContractJSON struct {
	ID           string            `json:"id,omitempty"`
	TenantID     string            `json:"tenantId,omitempty"`
	Code         string            `json:"code"`
	Title        map[string]string `json:"title,omitempty"`
	Description  map[string]string `json:"description,omitempty"`
	Parties      PartiesJSON       `json:"parties"`
	Lines        []LineJSON        `json:"lines"`
	Billing      BillingJSON       `json:"billing"`
	Status       string            `json:"status,omitempty"`
	ActivatedAt  *time.Time        `json:"activatedAt,omitempty"`
	TerminatedAt *time.Time        `json:"terminatedAt,omitempty"`
	ReasonNote   string            `json:"reasonNote,omitempty"`
	IsActive     *bool             `json:"isActive,omitempty"`
	CreatedAt    *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time        `json:"updatedAt,omitempty"`
}

type PartiesJSON struct {
	ApartmentID string      `json:"apartmentId"`
	CustomerID  string      `json:"customerId,omitempty"`
	Contact     ContactJSON `json:"contact"`
}

type ContactJSON struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type LineJSON struct {
	ID                        string            `json:"id,omitempty"`
	ServiceID                 string            `json:"serviceId"`
	Name                      map[string]string `json:"name,omitempty"`
	Description               map[string]string `json:"description,omitempty"`
	IsIncludedInContractPrice bool              `json:"isIncludedInContractPrice"`
	UnitPrice                 *decimal.Decimal  `json:"unitPrice,omitempty"`
	Currency                  string            `json:"currency,omitempty"`
	Schedule                  ScheduleJSON      `json:"schedule"`
	Manpower                  ManpowerJSON      `json:"manpower"`
	IsActive                  *bool             `json:"isActive,omitempty"`
}

type ScheduleJSON struct {
	Every      int    `json:"every"`
	Unit       string `json:"unit"`
	DaysOfWeek []int  `json:"daysOfWeek,omitempty"`
	Exceptions []int  `json:"exceptions,omitempty"`
}

type ManpowerJSON struct {
	Headcount       int `json:"headcount"`
	DurationMinutes int `json:"durationMinutes"`
}

type BillingJSON struct {
	Mode      string           `json:"mode"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Currency  string           `json:"currency,omitempty"`
	Period    string           `json:"period"`
	DueRule   DueRuleJSON      `json:"dueRule"`
	StartDate string           `json:"startDate"`
	EndDate   *string          `json:"endDate,omitempty"`
	GraceDays int              `json:"graceDays,omitempty"`
	Revisions []RevisionJSON   `json:"revisions,omitempty"`
}

// DueRuleJSON is the tagged-union wire form of a due rule.
type DueRuleJSON struct {
	Type    string `json:"type"`
	Day     int    `json:"day,omitempty"`
	Nth     int    `json:"nth,omitempty"`
	Weekday int    `json:"weekday,omitempty"`
}

const (
	DueTypeDayOfMonth = "dayOfMonth"
	DueTypeNthWeekday = "nthWeekday"
)

type RevisionJSON struct {
	ValidFrom string           `json:"validFrom"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Currency  string           `json:"currency,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// =============================================================================
// CONTRACT FACTORY
// =============================================================================

// ContractFactory converts wire payloads to domain contracts.
type ContractFactory struct {
	// DefaultCurrency fills a missing billing currency (tenant config).
	DefaultCurrency string
}

func NewContractFactory(defaultCurrency string) *ContractFactory {
	return &ContractFactory{DefaultCurrency: defaultCurrency}
}

// ParseContract parses a JSON payload and validates the result. Wire
// errors surface as *contract.ValidationError so callers treat them
// like any other malformed input.
func (f *ContractFactory) ParseContract(data []byte) (*contract.Contract, error) {
	var cj ContractJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, &contract.ValidationError{Field: "body", Message: err.Error()}
	}
	return f.FromJSON(cj)
}

// FromJSON converts the wire shape to a domain contract and runs the
// engine's Validate pass.
func (f *ContractFactory) FromJSON(cj ContractJSON) (*contract.Contract, error) {
	c := &contract.Contract{
		TenantID:     cj.TenantID,
		Code:         cj.Code,
		Title:        contract.TranslatedLabel(cj.Title),
		Description:  contract.TranslatedLabel(cj.Description),
		ReasonNote:   cj.ReasonNote,
		ActivatedAt:  cj.ActivatedAt,
		TerminatedAt: cj.TerminatedAt,
		IsActive:     true,
		Status:       contract.StatusDraft,
	}
	if cj.IsActive != nil {
		c.IsActive = *cj.IsActive
	}
	if cj.Status != "" {
		status, err := parseStatus(cj.Status)
		if err != nil {
			return nil, err
		}
		c.Status = status
	}
	if cj.CreatedAt != nil {
		c.CreatedAt = *cj.CreatedAt
	}
	if cj.UpdatedAt != nil {
		c.UpdatedAt = *cj.UpdatedAt
	}

	var err error
	if c.ID, err = parseID("id", cj.ID); err != nil {
		return nil, err
	}

	c.Parties = contract.Parties{
		ApartmentID: cj.Parties.ApartmentID,
		Contact: contract.ContactSnapshot{
			Name:  cj.Parties.Contact.Name,
			Phone: cj.Parties.Contact.Phone,
			Email: cj.Parties.Contact.Email,
		},
	}
	if cj.Parties.CustomerID != "" {
		id, err := uuid.Parse(cj.Parties.CustomerID)
		if err != nil {
			return nil, &contract.ValidationError{Field: "parties.customerId", Message: "invalid uuid"}
		}
		c.Parties.CustomerID = &id
	}

	if c.Billing, err = f.billingFromJSON(cj.Billing); err != nil {
		return nil, err
	}

	c.Lines = make([]contract.ContractLine, 0, len(cj.Lines))
	for i, lj := range cj.Lines {
		line, err := lineFromJSON(lj, fmt.Sprintf("lines[%d]", i))
		if err != nil {
			return nil, err
		}
		c.Lines = append(c.Lines, line)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (f *ContractFactory) billingFromJSON(bj BillingJSON) (contract.Billing, error) {
	b := contract.Billing{
		Amount:    bj.Amount,
		Currency:  bj.Currency,
		GraceDays: bj.GraceDays,
	}
	if b.Currency == "" {
		b.Currency = f.DefaultCurrency
	}

	switch bj.Mode {
	case string(contract.ModeFixed):
		b.Mode = contract.ModeFixed
	case string(contract.ModePerLine):
		b.Mode = contract.ModePerLine
	default:
		return contract.Billing{}, &contract.ValidationError{
			Field: "billing.mode", Message: fmt.Sprintf("unknown mode %q", bj.Mode)}
	}

	b.Period = calendar.BillingPeriod(bj.Period)

	due, err := DueRuleFromJSON(bj.DueRule)
	if err != nil {
		return contract.Billing{}, err
	}
	b.Due = due

	if b.StartDate, err = parseDateField("billing.startDate", bj.StartDate); err != nil {
		return contract.Billing{}, err
	}
	if bj.EndDate != nil {
		end, err := parseDateField("billing.endDate", *bj.EndDate)
		if err != nil {
			return contract.Billing{}, err
		}
		b.EndDate = &end
	}

	b.Revisions = make([]contract.Revision, 0, len(bj.Revisions))
	for i, rj := range bj.Revisions {
		validFrom, err := parseDateField(fmt.Sprintf("billing.revisions[%d].validFrom", i), rj.ValidFrom)
		if err != nil {
			return contract.Billing{}, err
		}
		b.Revisions = append(b.Revisions, contract.Revision{
			ValidFrom: validFrom,
			Amount:    rj.Amount,
			Currency:  rj.Currency,
			Reason:    rj.Reason,
		})
	}
	return b, nil
}

// DueRuleFromJSON resolves the tagged union by its "type" discriminator.
func DueRuleFromJSON(dj DueRuleJSON) (contract.DueRule, error) {
	switch dj.Type {
	case DueTypeDayOfMonth:
		return contract.DayOfMonthRule{Day: dj.Day}, nil
	case DueTypeNthWeekday:
		return contract.NthWeekdayRule{Nth: dj.Nth, Weekday: time.Weekday(dj.Weekday)}, nil
	default:
		return nil, &contract.ValidationError{
			Field: "billing.dueRule.type", Message: fmt.Sprintf("unknown due rule type %q", dj.Type)}
	}
}

// DueRuleToJSON is the inverse of DueRuleFromJSON.
func DueRuleToJSON(rule contract.DueRule) DueRuleJSON {
	switch r := rule.(type) {
	case contract.DayOfMonthRule:
		return DueRuleJSON{Type: DueTypeDayOfMonth, Day: r.Day}
	case contract.NthWeekdayRule:
		return DueRuleJSON{Type: DueTypeNthWeekday, Nth: r.Nth, Weekday: int(r.Weekday)}
	default:
		return DueRuleJSON{}
	}
}

func lineFromJSON(lj LineJSON, field string) (contract.ContractLine, error) {
	line := contract.ContractLine{
		Name:                      contract.TranslatedLabel(lj.Name),
		Description:               contract.TranslatedLabel(lj.Description),
		IsIncludedInContractPrice: lj.IsIncludedInContractPrice,
		UnitPrice:                 lj.UnitPrice,
		Currency:                  lj.Currency,
		Manpower: contract.Manpower{
			Headcount:       lj.Manpower.Headcount,
			DurationMinutes: lj.Manpower.DurationMinutes,
		},
		IsActive: true,
	}
	if lj.IsActive != nil {
		line.IsActive = *lj.IsActive
	}

	var err error
	if line.ID, err = parseID(field+".id", lj.ID); err != nil {
		return contract.ContractLine{}, err
	}
	if line.ServiceID, err = parseID(field+".serviceId", lj.ServiceID); err != nil {
		return contract.ContractLine{}, err
	}

	line.Schedule = contract.Schedule{
		Every:      lj.Schedule.Every,
		Unit:       calendar.Unit(lj.Schedule.Unit),
		DaysOfWeek: weekdays(lj.Schedule.DaysOfWeek),
		Exceptions: weekdays(lj.Schedule.Exceptions),
	}
	return line, nil
}

// =============================================================================
// DOMAIN -> WIRE
// =============================================================================

// ToJSON converts a domain contract to its wire shape.
func ToJSON(c *contract.Contract) ContractJSON {
	cj := ContractJSON{
		ID:           idString(c.ID),
		TenantID:     c.TenantID,
		Code:         c.Code,
		Title:        c.Title,
		Description:  c.Description,
		Status:       string(c.Status),
		ActivatedAt:  c.ActivatedAt,
		TerminatedAt: c.TerminatedAt,
		ReasonNote:   c.ReasonNote,
		IsActive:     boolPtr(c.IsActive),
		Parties: PartiesJSON{
			ApartmentID: c.Parties.ApartmentID,
			Contact: ContactJSON{
				Name:  c.Parties.Contact.Name,
				Phone: c.Parties.Contact.Phone,
				Email: c.Parties.Contact.Email,
			},
		},
		Billing: billingToJSON(c.Billing),
	}
	if !c.CreatedAt.IsZero() {
		t := c.CreatedAt
		cj.CreatedAt = &t
	}
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		cj.UpdatedAt = &t
	}
	if c.Parties.CustomerID != nil {
		cj.Parties.CustomerID = c.Parties.CustomerID.String()
	}
	cj.Lines = make([]LineJSON, 0, len(c.Lines))
	for _, line := range c.Lines {
		cj.Lines = append(cj.Lines, lineToJSON(line))
	}
	return cj
}

func billingToJSON(b contract.Billing) BillingJSON {
	bj := BillingJSON{
		Mode:      string(b.Mode),
		Amount:    b.Amount,
		Currency:  b.Currency,
		Period:    string(b.Period),
		DueRule:   DueRuleToJSON(b.Due),
		StartDate: b.StartDate.String(),
		GraceDays: b.GraceDays,
	}
	if b.EndDate != nil {
		s := b.EndDate.String()
		bj.EndDate = &s
	}
	bj.Revisions = make([]RevisionJSON, 0, len(b.Revisions))
	for _, r := range b.Revisions {
		bj.Revisions = append(bj.Revisions, RevisionJSON{
			ValidFrom: r.ValidFrom.String(),
			Amount:    r.Amount,
			Currency:  r.Currency,
			Reason:    r.Reason,
		})
	}
	return bj
}

func lineToJSON(l contract.ContractLine) LineJSON {
	return LineJSON{
		ID:                        idString(l.ID),
		ServiceID:                 idString(l.ServiceID),
		Name:                      l.Name,
		Description:               l.Description,
		IsIncludedInContractPrice: l.IsIncludedInContractPrice,
		UnitPrice:                 l.UnitPrice,
		Currency:                  l.Currency,
		Schedule: ScheduleJSON{
			Every:      l.Schedule.Every,
			Unit:       string(l.Schedule.Unit),
			DaysOfWeek: weekdayInts(l.Schedule.DaysOfWeek),
			Exceptions: weekdayInts(l.Schedule.Exceptions),
		},
		Manpower: ManpowerJSON{
			Headcount:       l.Manpower.Headcount,
			DurationMinutes: l.Manpower.DurationMinutes,
		},
		IsActive: boolPtr(l.IsActive),
	}
}

// EncodeContract serializes a contract for storage or transport.
func EncodeContract(c *contract.Contract) ([]byte, error) {
	return json.Marshal(ToJSON(c))
}

// DecodeContract is the storage-side inverse of EncodeContract.
// Payloads were validated when written, so a failure here means a
// corrupt row, not bad user input.
func DecodeContract(data []byte) (*contract.Contract, error) {
	var cj ContractJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("decode contract payload: %w", err)
	}
	f := ContractFactory{}
	c, err := f.FromJSON(cj)
	if err != nil {
		return nil, fmt.Errorf("decode contract payload: %w", err)
	}
	return c, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseID(field, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &contract.ValidationError{Field: field, Message: "invalid uuid"}
	}
	return id, nil
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func parseDateField(field, raw string) (calendar.Date, error) {
	if raw == "" {
		return calendar.Date{}, &contract.ValidationError{Field: field, Message: "required"}
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return calendar.Date{}, &contract.ValidationError{
			Field: field, Message: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw)}
	}
	return d, nil
}

func parseStatus(raw string) (contract.Status, error) {
	switch s := contract.Status(raw); s {
	case contract.StatusDraft, contract.StatusActive, contract.StatusSuspended, contract.StatusTerminated:
		return s, nil
	default:
		return "", &contract.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", raw)}
	}
}

func weekdays(values []int) []time.Weekday {
	if len(values) == 0 {
		return nil
	}
	out := make([]time.Weekday, len(values))
	for i, v := range values {
		out[i] = time.Weekday(v)
	}
	return out
}

func weekdayInts(values []time.Weekday) []int {
	if len(values) == 0 {
		return nil
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
