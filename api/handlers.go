/*
handlers.go - HTTP handlers for the contract engine

PURPOSE:
  Exposes the contract engine via REST API. Handles HTTP request and
  response plumbing, JSON serialization, and delegates every decision
  to the contract package. No billing or scheduling rule lives here.

ENDPOINTS:
  Contracts:
    GET    /api/contracts                    List (tenant scoped)
    POST   /api/contracts                    Create draft
    GET    /api/contracts/{id}               Get one
    PUT    /api/contracts/{id}               Replace lines/billing
    DELETE /api/contracts/{id}               Soft delete

  Lifecycle:
    POST   /api/contracts/{id}/activate
    POST   /api/contracts/{id}/suspend
    POST   /api/contracts/{id}/resume
    POST   /api/contracts/{id}/terminate

  Previews (read-only, computed on demand):
    GET    /api/contracts/{id}/cycles
    GET    /api/contracts/{id}/cycles/amounts
    GET    /api/contracts/{id}/occurrences

  Audit and dashboard:
    GET    /api/contracts/{id}/history
    GET    /api/dashboard/upcoming

  Dev:
    POST   /api/seed

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Contract not found
  - 409: Illegal lifecycle transition
  - 500: Internal errors

TENANCY:
  The tenant is taken from the X-Tenant-ID header, falling back to the
  ?tenant query parameter, then to "default". Contracts are always
  listed and created within one tenant.

SEE ALSO:
  - dto.go: Response data structures
  - scheduler.go: Background upcoming-due refresh
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/contract-engine/calendar"
	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/factory"
	"github.com/warp/contract-engine/store/sqlite"
)

// defaultPreviewDays bounds cycle and occurrence previews when the
// contract has no end date and the caller supplies no range end.
const defaultPreviewDays = 365

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Factory *factory.ContractFactory
	Log     zerolog.Logger

	// WeekStart anchors every-N-weeks occurrence grouping.
	WeekStart time.Weekday

	// UpcomingWindowDays is the default dashboard window.
	UpcomingWindowDays int

	// Scheduler, when set, serves dashboard reads from its warm cache.
	Scheduler *BillingScheduler
}

// NewHandler creates a handler with the given collaborators.
func NewHandler(store *sqlite.Store, f *factory.ContractFactory, log zerolog.Logger, weekStart time.Weekday) *Handler {
	return &Handler{
		Store:              store,
		Factory:            f,
		Log:                log,
		WeekStart:          weekStart,
		UpcomingWindowDays: 90,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CONTRACT CRUD
// =============================================================================

// ListContracts returns the tenant's contracts.
// GET /api/contracts?status=&includeInactive=
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(r)

	var (
		contracts []*contract.Contract
		err       error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		contracts, err = h.Store.ListByStatus(ctx, tenant, contract.Status(status))
	} else {
		includeInactive := r.URL.Query().Get("includeInactive") == "true"
		contracts, err = h.Store.ListContracts(ctx, tenant, includeInactive)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}

	dtos := make([]factory.ContractJSON, 0, len(contracts))
	for _, c := range contracts {
		dtos = append(dtos, h.contractDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContract creates a new draft contract.
// POST /api/contracts
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cj factory.ContractJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cj.TenantID = tenantFrom(r)

	// New contracts always start as drafts, whatever the payload says.
	cj.Status = ""
	cj.ActivatedAt = nil
	cj.TerminatedAt = nil

	c, err := h.Factory.FromJSON(cj)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	for i := range c.Lines {
		if c.Lines[i].ID == uuid.Nil {
			c.Lines[i].ID = uuid.New()
		}
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := h.Store.SaveContract(ctx, c); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Log.Info().Str("contract", c.ID.String()).Str("code", c.Code).Msg("contract created")
	writeJSON(w, http.StatusCreated, h.contractDTO(c))
}

// GetContract returns a single contract.
// GET /api/contracts/{id}
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.contractDTO(c))
}

// UpdateContract replaces the mutable parts of a contract: title,
// description, parties, lines and billing. Identity, tenant, lifecycle
// state and timestamps are preserved. Terminated contracts are frozen.
// PUT /api/contracts/{id}
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	existing, ok := h.loadContract(w, r)
	if !ok {
		return
	}
	if existing.Status == contract.StatusTerminated {
		h.writeDomainError(w, &contract.StateTransitionError{
			From: existing.Status, Attempted: "update"})
		return
	}

	var cj factory.ContractJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Carry the stored identity and lifecycle over the incoming payload.
	cj.ID = existing.ID.String()
	cj.TenantID = existing.TenantID
	cj.Code = existing.Code
	cj.Status = string(existing.Status)
	cj.ActivatedAt = existing.ActivatedAt
	cj.TerminatedAt = existing.TerminatedAt

	updated, err := h.Factory.FromJSON(cj)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	for i := range updated.Lines {
		if updated.Lines[i].ID == uuid.Nil {
			updated.Lines[i].ID = uuid.New()
		}
	}
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	if err := h.Store.SaveContract(ctx, updated); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update contract", err)
		return
	}
	writeJSON(w, http.StatusOK, h.contractDTO(updated))
}

// DeleteContract soft-deletes a contract. Contracts still in force
// (active or suspended) must be terminated first.
// DELETE /api/contracts/{id}
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}
	if c.Status == contract.StatusActive || c.Status == contract.StatusSuspended {
		h.writeDomainError(w, &contract.StateTransitionError{
			From: c.Status, Attempted: "delete"})
		return
	}

	if err := h.Store.SoftDelete(ctx, c.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.Log.Info().Str("contract", c.ID.String()).Msg("contract soft-deleted")
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LIFECYCLE TRANSITIONS
// =============================================================================

// Activate moves a draft contract into force.
// POST /api/contracts/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "", func(c contract.Contract, now time.Time) (contract.Contract, error) {
		return contract.Activate(c, now)
	})
}

// Suspend pauses an active contract.
// POST /api/contracts/{id}/suspend
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.transition(w, r, req.Reason, func(c contract.Contract, now time.Time) (contract.Contract, error) {
		return contract.Suspend(c, now)
	})
}

// Resume reactivates a suspended contract.
// POST /api/contracts/{id}/resume
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.transition(w, r, req.Reason, func(c contract.Contract, now time.Time) (contract.Contract, error) {
		return contract.Resume(c, now)
	})
}

// Terminate ends a contract, optionally at a given date with a reason.
// POST /api/contracts/{id}/terminate
func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	var req TerminateRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var at *time.Time
	if req.TerminatedAt != nil {
		t, err := parseTimestamp(*req.TerminatedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid terminatedAt, want RFC3339 or YYYY-MM-DD", err)
			return
		}
		at = &t
	}

	h.transition(w, r, req.Reason, func(c contract.Contract, now time.Time) (contract.Contract, error) {
		return contract.Terminate(c, at, req.Reason, now)
	})
}

// transition runs one lifecycle step: load, apply, persist, audit.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, reason string, apply func(contract.Contract, time.Time) (contract.Contract, error)) {
	ctx := r.Context()
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	from := c.Status
	next, err := apply(*c, now)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	next.UpdatedAt = now

	if err := h.Store.SaveContract(ctx, &next); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save contract", err)
		return
	}
	if err := h.Store.RecordStatusChange(ctx, sqlite.StatusChange{
		ContractID: next.ID,
		From:       from,
		To:         next.Status,
		Reason:     reason,
		ChangedAt:  now,
	}); err != nil {
		h.Log.Error().Err(err).Str("contract", next.ID.String()).Msg("failed to record status change")
	}

	h.Log.Info().
		Str("contract", next.ID.String()).
		Str("from", string(from)).
		Str("to", string(next.Status)).
		Msg("contract transitioned")
	writeJSON(w, http.StatusOK, h.contractDTO(&next))
}

// =============================================================================
// CYCLE AND OCCURRENCE PREVIEWS
// =============================================================================

// Cycles returns the billing cycles whose periods start in the
// requested range. Open-ended contracts default to one year ahead.
// GET /api/contracts/{id}/cycles?from=&to=
func (h *Handler) Cycles(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}
	from, to, err := h.previewRange(r, c)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	cycles := contract.Cycles(c.Billing, from, to).All()
	dtos := make([]CycleDTO, 0, len(cycles))
	for _, cy := range cycles {
		dtos = append(dtos, cycleDTO(cy))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CycleAmounts returns cycles together with their aggregated amounts.
// GET /api/contracts/{id}/cycles/amounts?from=&to=
func (h *Handler) CycleAmounts(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}
	from, to, err := h.previewRange(r, c)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	cycles := contract.Cycles(c.Billing, from, to).All()
	dtos := make([]CycleAmountDTO, 0, len(cycles))
	for _, cy := range cycles {
		amount, err := contract.ComputeCycleAmount(*c, cy, h.WeekStart)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		dto := CycleAmountDTO{
			Cycle:    cycleDTO(cy),
			Net:      amount.Net,
			Currency: amount.Currency,
		}
		if len(amount.ByLine) > 0 {
			dto.ByLine = make(map[string]decimal.Decimal, len(amount.ByLine))
			for id, v := range amount.ByLine {
				dto.ByLine[id.String()] = v
			}
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Occurrences returns the planned visit dates per line.
// GET /api/contracts/{id}/occurrences?from=&to=&line=
func (h *Handler) Occurrences(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}

	from := c.Billing.StartDate
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		from = d
	}
	to := from.AddDays(defaultPreviewDays)
	if c.Billing.EndDate != nil && c.Billing.EndDate.Before(to) {
		to = *c.Billing.EndDate
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		to = d
	}

	lineFilter := r.URL.Query().Get("line")
	dtos := make([]OccurrenceListDTO, 0, len(c.Lines))
	for _, line := range c.Lines {
		if lineFilter != "" && line.ID.String() != lineFilter {
			continue
		}
		dates := contract.Occurrences(line, c.Billing.StartDate, from, to, h.WeekStart).All()
		dto := OccurrenceListDTO{
			LineID: line.ID.String(),
			Dates:  make([]string, 0, len(dates)),
			Count:  len(dates),
		}
		for _, d := range dates {
			dto.Dates = append(dto.Dates, d.String())
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// previewRange resolves the from/to query params against the contract's
// own billing window, keeping open-ended sequences bounded.
func (h *Handler) previewRange(r *http.Request, c *contract.Contract) (calendar.Date, *calendar.Date, error) {
	from := c.Billing.StartDate
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			return calendar.Date{}, nil, err
		}
		from = d
	}

	var to *calendar.Date
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			return calendar.Date{}, nil, err
		}
		to = &d
	} else if c.Billing.EndDate == nil {
		d := from.AddDays(defaultPreviewDays)
		to = &d
	}
	return from, to, nil
}

// =============================================================================
// AUDIT AND DASHBOARD
// =============================================================================

// History returns the contract's lifecycle audit trail.
// GET /api/contracts/{id}/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}

	changes, err := h.Store.ListStatusChanges(ctx, c.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history", err)
		return
	}

	dtos := make([]StatusChangeDTO, 0, len(changes))
	for _, ch := range changes {
		dtos = append(dtos, StatusChangeDTO{
			From:      string(ch.From),
			To:        string(ch.To),
			Reason:    ch.Reason,
			ChangedAt: ch.ChangedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Upcoming returns the due cycles of active contracts inside the
// dashboard window, sorted by due date. Served from the scheduler's
// cache when one is running.
// GET /api/dashboard/upcoming?days=&tenant=
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(r)

	days := h.UpcomingWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid days parameter", err)
			return
		}
		days = n
	}

	if h.Scheduler != nil {
		if rows, ok := h.Scheduler.Cached(tenant, days); ok {
			writeJSON(w, http.StatusOK, rows)
			return
		}
	}

	rows, err := h.ComputeUpcoming(ctx, tenant, days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute upcoming dues", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ComputeUpcoming scans the tenant's active contracts and collects every
// cycle due within the window, sorted by due date.
func (h *Handler) ComputeUpcoming(ctx context.Context, tenant string, days int) ([]UpcomingDueDTO, error) {
	contracts, err := h.Store.ListByStatus(ctx, tenant, contract.StatusActive)
	if err != nil {
		return nil, err
	}

	today := calendar.Today()
	horizon := today.AddDays(days)
	rows := make([]UpcomingDueDTO, 0)

	for _, c := range contracts {
		if contract.EffectiveStatus(*c, today) != contract.StatusActive {
			continue
		}
		// Look one period back so a cycle whose period started before
		// today but is due inside the window is not missed.
		scanFrom := calendar.AddBillingPeriod(today, c.Billing.Period, -1)
		if scanFrom.Before(c.Billing.StartDate) {
			scanFrom = c.Billing.StartDate
		}
		seq := contract.Cycles(c.Billing, scanFrom, &horizon)
		for {
			cy, ok := seq.Next()
			if !ok {
				break
			}
			if cy.DueDate.Before(today) || cy.DueDate.After(horizon) {
				continue
			}
			rows = append(rows, UpcomingDueDTO{
				ContractID: c.ID.String(),
				Code:       c.Code,
				Title:      c.Title["en"],
				DueDate:    cy.DueDate.String(),
				PayableBy:  cy.PayableBy.String(),
				Amount:     cy.Amount,
				Currency:   cy.Currency,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DueDate != rows[j].DueDate {
			return rows[i].DueDate < rows[j].DueDate
		}
		return rows[i].Code < rows[j].Code
	})
	return rows, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// loadContract resolves the {id} URL param and fetches the contract,
// writing the error response itself on failure.
func (h *Handler) loadContract(w http.ResponseWriter, r *http.Request) (*contract.Contract, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid contract id", err)
		return nil, false
	}
	c, err := h.Store.GetContract(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return nil, false
	}
	return c, true
}

// contractDTO converts a contract for responses, deriving the expired
// status as of today.
func (h *Handler) contractDTO(c *contract.Contract) factory.ContractJSON {
	cj := factory.ToJSON(c)
	cj.Status = string(contract.EffectiveStatus(*c, calendar.Today()))
	return cj
}

func cycleDTO(cy contract.Cycle) CycleDTO {
	return CycleDTO{
		PeriodStart:    cy.PeriodStart.String(),
		PeriodEnd:      cy.PeriodEnd.String(),
		DueDate:        cy.DueDate.String(),
		PayableBy:      cy.PayableBy.String(),
		Amount:         cy.Amount,
		Currency:       cy.Currency,
		RevisionReason: cy.RevisionReason,
	}
}

// writeDomainError maps engine and store errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var vErr *contract.ValidationError
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		writeError(w, http.StatusNotFound, "Contract not found", nil)
	case errors.Is(err, sqlite.ErrDuplicateCode):
		writeError(w, http.StatusConflict, "Contract code already exists", err)
	case errors.Is(err, contract.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "Illegal status transition", err)
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Field: vErr.Field, Details: vErr.Message})
	case errors.Is(err, contract.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		h.Log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// tenantFrom resolves the request's tenant scope.
func tenantFrom(r *http.Request) string {
	if t := r.Header.Get("X-Tenant-ID"); t != "" {
		return t
	}
	if t := r.URL.Query().Get("tenant"); t != "" {
		return t
	}
	return "default"
}

// decodeOptional decodes a JSON body when one is present. Transition
// bodies are optional, so an absent or empty body is fine; a body that
// is present but malformed is the caller's error.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// parseTimestamp accepts RFC3339 or a bare civil date.
func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time, nil
}
