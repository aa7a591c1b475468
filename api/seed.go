/*
seed.go - Demo data loader

PURPOSE:
  Populates the database with a small set of realistic contracts for
  demos and manual testing: a fixed-price monthly cleaning contract, a
  per-line maintenance contract billed quarterly, and a draft with an
  nth-weekday due rule.

HOW SEEDING WORKS:
 1. Reset database (clear all data)
 2. Build contracts through the factory (same path as the API)
 3. Activate the ones meant to be in force, recording audit entries

NOTE:
  Seeding resets the database. Only use in development/demo
  environments.

USAGE VIA API:
  POST /api/seed
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/factory"
	"github.com/warp/contract-engine/store/sqlite"
)

// Seed resets the database and loads the demo contracts.
// POST /api/seed
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	created, err := h.loadDemoContracts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed demo data", err)
		return
	}

	h.Log.Info().Int("contracts", created).Msg("demo data seeded")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "seeded",
		"contracts": created,
	})
}

func (h *Handler) loadDemoContracts(ctx context.Context) (int, error) {
	today := time.Now().UTC()
	startOfYear := fmt.Sprintf("%d-01-01", today.Year())

	payloads := []factory.ContractJSON{
		{
			TenantID: "default",
			Code:     "CT-1001",
			Title:    map[string]string{"en": "Weekly cleaning, Seefeld apartment"},
			Parties: factory.PartiesJSON{
				ApartmentID: "apt-seefeld-12",
				Contact:     factory.ContactJSON{Name: "Nora Keller", Email: "nora@example.com"},
			},
			Lines: []factory.LineJSON{
				{
					ServiceID:                 uuid.NewString(),
					Name:                      map[string]string{"en": "Standard cleaning"},
					IsIncludedInContractPrice: true,
					Schedule: factory.ScheduleJSON{
						Every: 1, Unit: "week",
						DaysOfWeek: []int{1, 4},
						Exceptions: []int{0},
					},
					Manpower: factory.ManpowerJSON{Headcount: 2, DurationMinutes: 120},
				},
			},
			Billing: factory.BillingJSON{
				Mode:      "fixed",
				Amount:    decimalPtr("480.00"),
				Currency:  "EUR",
				Period:    "monthly",
				DueRule:   factory.DueRuleJSON{Type: factory.DueTypeDayOfMonth, Day: 1},
				StartDate: startOfYear,
				GraceDays: 14,
			},
		},
		{
			TenantID: "default",
			Code:     "CT-1002",
			Title:    map[string]string{"en": "Garden and facade maintenance"},
			Parties: factory.PartiesJSON{
				ApartmentID: "apt-enge-3",
				Contact:     factory.ContactJSON{Name: "Beat Frei", Phone: "+41 44 000 00 00"},
			},
			Lines: []factory.LineJSON{
				{
					ServiceID: uuid.NewString(),
					Name:      map[string]string{"en": "Garden visit"},
					UnitPrice: decimalPtr("180.00"),
					Currency:  "EUR",
					Schedule:  factory.ScheduleJSON{Every: 2, Unit: "week", DaysOfWeek: []int{2}},
					Manpower:  factory.ManpowerJSON{Headcount: 1, DurationMinutes: 180},
				},
				{
					ServiceID: uuid.NewString(),
					Name:      map[string]string{"en": "Facade inspection"},
					UnitPrice: decimalPtr("350.00"),
					Currency:  "EUR",
					Schedule:  factory.ScheduleJSON{Every: 1, Unit: "month"},
					Manpower:  factory.ManpowerJSON{Headcount: 2, DurationMinutes: 240},
				},
			},
			Billing: factory.BillingJSON{
				Mode:      "perLine",
				Currency:  "EUR",
				Period:    "quarterly",
				DueRule:   factory.DueRuleJSON{Type: factory.DueTypeDayOfMonth, Day: 15},
				StartDate: startOfYear,
				GraceDays: 30,
			},
		},
		{
			TenantID: "default",
			Code:     "CT-1003",
			Title:    map[string]string{"en": "Pool service (draft)"},
			Parties: factory.PartiesJSON{
				ApartmentID: "apt-wollishofen-8",
				Contact:     factory.ContactJSON{Name: "Lia Brunner"},
			},
			Lines: []factory.LineJSON{
				{
					ServiceID:                 uuid.NewString(),
					Name:                      map[string]string{"en": "Pool check"},
					IsIncludedInContractPrice: true,
					Schedule:                  factory.ScheduleJSON{Every: 3, Unit: "day"},
					Manpower:                  factory.ManpowerJSON{Headcount: 1, DurationMinutes: 45},
				},
			},
			Billing: factory.BillingJSON{
				Mode:     "fixed",
				Amount:   decimalPtr("220.00"),
				Currency: "EUR",
				Period:   "monthly",
				// Last Friday-ish rule: 5th Friday, so short months skip.
				DueRule:   factory.DueRuleJSON{Type: factory.DueTypeNthWeekday, Nth: 5, Weekday: 5},
				StartDate: startOfYear,
			},
		},
	}

	// The first two contracts are activated; the third stays a draft.
	activateCodes := map[string]bool{"CT-1001": true, "CT-1002": true}

	created := 0
	for _, payload := range payloads {
		c, err := h.Factory.FromJSON(payload)
		if err != nil {
			return created, fmt.Errorf("seed contract %s: %w", payload.Code, err)
		}
		c.ID = uuid.New()
		for i := range c.Lines {
			c.Lines[i].ID = uuid.New()
		}
		c.CreatedAt = today
		c.UpdatedAt = today

		if activateCodes[c.Code] {
			next, err := contract.Activate(*c, today)
			if err != nil {
				return created, fmt.Errorf("seed contract %s: %w", payload.Code, err)
			}
			*c = next
		}

		if err := h.Store.SaveContract(ctx, c); err != nil {
			return created, fmt.Errorf("seed contract %s: %w", payload.Code, err)
		}
		if c.Status == contract.StatusActive {
			if err := h.Store.RecordStatusChange(ctx, sqlite.StatusChange{
				ContractID: c.ID,
				From:       contract.StatusDraft,
				To:         contract.StatusActive,
				Reason:     "seed",
				ChangedAt:  today,
			}); err != nil {
				return created, err
			}
		}
		created++
	}
	return created, nil
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
