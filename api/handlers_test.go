package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contract-engine/calendar"
	"github.com/warp/contract-engine/factory"
	"github.com/warp/contract-engine/store/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, factory.NewContractFactory("EUR"), zerolog.Nop(), time.Monday)
	srv := httptest.NewServer(NewRouter(h, RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv, h
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func fixedMonthlyPayload(code string) map[string]any {
	return map[string]any{
		"code":  code,
		"title": map[string]string{"en": "Weekly cleaning"},
		"parties": map[string]any{
			"apartmentId": "apt-102",
			"contact":     map[string]string{"name": "Nora Keller"},
		},
		"lines": []map[string]any{
			{
				"serviceId":                 "7b5c0b0a-4d0e-4d5f-9a36-0c2a8f53a111",
				"name":                      map[string]string{"en": "Cleaning"},
				"isIncludedInContractPrice": true,
				"schedule":                  map[string]any{"every": 1, "unit": "week", "daysOfWeek": []int{1}},
				"manpower":                  map[string]any{"headcount": 2, "durationMinutes": 90},
			},
		},
		"billing": map[string]any{
			"mode":      "fixed",
			"amount":    "250.00",
			"currency":  "EUR",
			"period":    "monthly",
			"dueRule":   map[string]any{"type": "dayOfMonth", "day": 1},
			"startDate": "2024-01-15",
			"graceDays": 10,
		},
	}
}

func createContract(t *testing.T, srv *httptest.Server, payload map[string]any) factory.ContractJSON {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[factory.ContractJSON](t, resp)
}

func TestCreateAndGetContract(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "draft", created.Status)
	assert.Equal(t, "CT-001", created.Code)
	require.Len(t, created.Lines, 1)
	assert.NotEmpty(t, created.Lines[0].ID)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/contracts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[factory.ContractJSON](t, resp)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "2024-01-15", got.Billing.StartDate)
}

func TestCreateContract_ValidationError(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := fixedMonthlyPayload("CT-001")
	payload["billing"].(map[string]any)["dueRule"] = map[string]any{"type": "dayOfMonth", "day": 32}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", payload)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "billing.dueRule.day", body.Field)
}

func TestCreateContract_DuplicateCodeConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	createContract(t, srv, fixedMonthlyPayload("CT-001"))

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts", fixedMonthlyPayload("CT-001"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Contains(t, body.Details, "CT-001")
}

func TestTerminate_MalformedBodyRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// A present but unparseable body must not fall through to a
	// default-valued termination.
	req, err := http.NewRequest(http.MethodPost,
		srv.URL+"/api/contracts/"+created.ID+"/terminate",
		strings.NewReader(`{"terminatedAt": `))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/contracts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", decodeBody[factory.ContractJSON](t, resp).Status)
}

func TestGetContract_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/contracts/4a3c0aa2-93a4-4bb5-a2bb-6a44f0b2da30", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLifecycleEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))
	base := srv.URL + "/api/contracts/" + created.ID

	resp := doJSON(t, http.MethodPost, base+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", decodeBody[factory.ContractJSON](t, resp).Status)

	resp = doJSON(t, http.MethodPost, base+"/suspend", TransitionRequest{Reason: "unpaid"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "suspended", decodeBody[factory.ContractJSON](t, resp).Status)

	resp = doJSON(t, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base+"/terminate", TerminateRequest{Reason: "sold"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	terminated := decodeBody[factory.ContractJSON](t, resp)
	assert.Equal(t, "terminated", terminated.Status)
	assert.NotNil(t, terminated.TerminatedAt)

	resp = doJSON(t, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decodeBody[[]StatusChangeDTO](t, resp)
	require.Len(t, history, 4)
	assert.Equal(t, "active", history[0].To)
	assert.Equal(t, "suspended", history[1].To)
	assert.Equal(t, "active", history[2].To)
	assert.Equal(t, "terminated", history[3].To)
	assert.Equal(t, "sold", history[3].Reason)
}

func TestActivate_ConflictWhenNotDraft(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))
	base := srv.URL + "/api/contracts/" + created.ID

	resp := doJSON(t, http.MethodPost, base+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/activate", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCyclesPreview(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/contracts/"+created.ID+"/cycles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cycles := decodeBody[[]CycleDTO](t, resp)

	// Open-ended contract: the preview defaults to one year from the
	// start date, so Jan 2024 through Dec 2024 period starts.
	require.Len(t, cycles, 12)
	assert.Equal(t, "2024-01-15", cycles[0].PeriodStart)
	assert.Equal(t, "2024-01-01", cycles[0].DueDate)
	assert.Equal(t, "2024-01-11", cycles[0].PayableBy)
	assert.Equal(t, "250", cycles[0].Amount.String())
}

func TestCyclesPreview_ExplicitRange(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))

	url := srv.URL + "/api/contracts/" + created.ID + "/cycles?from=2024-03-01&to=2024-04-30"
	resp := doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cycles := decodeBody[[]CycleDTO](t, resp)

	require.Len(t, cycles, 2)
	assert.Equal(t, "2024-03-15", cycles[0].PeriodStart)
	assert.Equal(t, "2024-04-15", cycles[1].PeriodStart)
}

func TestCycleAmounts_PerLine(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := fixedMonthlyPayload("CT-001")
	payload["billing"].(map[string]any)["mode"] = "perLine"
	delete(payload["billing"].(map[string]any), "amount")
	payload["lines"] = []map[string]any{
		{
			"serviceId": "7b5c0b0a-4d0e-4d5f-9a36-0c2a8f53a111",
			"name":      map[string]string{"en": "Cleaning"},
			"unitPrice": "100.00",
			"currency":  "EUR",
			"schedule":  map[string]any{"every": 1, "unit": "week", "daysOfWeek": []int{1}},
			"manpower":  map[string]any{"headcount": 1, "durationMinutes": 60},
		},
	}
	created := createContract(t, srv, payload)

	url := srv.URL + "/api/contracts/" + created.ID + "/cycles/amounts?from=2024-01-15&to=2024-02-14"
	resp := doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	amounts := decodeBody[[]CycleAmountDTO](t, resp)

	// One cycle: Jan 15 - Feb 14. Mondays in it: Jan 15, 22, 29, Feb 5, 12.
	require.Len(t, amounts, 1)
	assert.Equal(t, "500", amounts[0].Net.String())
	assert.Equal(t, "EUR", amounts[0].Currency)
	require.Len(t, amounts[0].ByLine, 1)
	assert.Equal(t, "500", amounts[0].ByLine[created.Lines[0].ID].String())
}

func TestOccurrencesPreview(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))

	url := srv.URL + "/api/contracts/" + created.ID + "/occurrences?from=2024-01-15&to=2024-01-31"
	resp := doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lists := decodeBody[[]OccurrenceListDTO](t, resp)

	require.Len(t, lists, 1)
	assert.Equal(t, created.Lines[0].ID, lists[0].LineID)
	assert.Equal(t, []string{"2024-01-15", "2024-01-22", "2024-01-29"}, lists[0].Dates)
	assert.Equal(t, 3, lists[0].Count)
}

func TestDeleteContract(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))
	base := srv.URL + "/api/contracts/" + created.ID

	resp := doJSON(t, http.MethodPost, base+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Contracts in force cannot be deleted.
	resp = doJSON(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base+"/terminate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateContract(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))

	payload := fixedMonthlyPayload("ignored-code")
	payload["billing"].(map[string]any)["amount"] = "300.00"

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/contracts/"+created.ID, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[factory.ContractJSON](t, resp)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "CT-001", updated.Code)
	require.NotNil(t, updated.Billing.Amount)
	assert.Equal(t, "300", updated.Billing.Amount.String())
}

func TestUpdateContract_TerminatedIsFrozen(t *testing.T) {
	srv, _ := newTestServer(t)
	created := createContract(t, srv, fixedMonthlyPayload("CT-001"))
	base := srv.URL + "/api/contracts/" + created.ID

	resp := doJSON(t, http.MethodPost, base+"/terminate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, base, fixedMonthlyPayload("CT-001"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpcomingDashboard(t *testing.T) {
	srv, _ := newTestServer(t)

	// A contract anchored on today's date, open-ended, due on the 1st.
	payload := fixedMonthlyPayload("CT-001")
	billing := payload["billing"].(map[string]any)
	billing["startDate"] = calendar.Today().AddDays(-10).String()
	delete(billing, "endDate")
	created := createContract(t, srv, payload)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/dashboard/upcoming?days=60", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := decodeBody[[]UpcomingDueDTO](t, resp)

	require.NotEmpty(t, rows)
	assert.Equal(t, created.ID, rows[0].ContractID)
	assert.Equal(t, "CT-001", rows[0].Code)
	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, rows[i-1].DueDate, rows[i].DueDate)
	}
}

func TestSchedulerSnapshotServesDashboard(t *testing.T) {
	srv, h := newTestServer(t)

	payload := fixedMonthlyPayload("CT-001")
	billing := payload["billing"].(map[string]any)
	billing["startDate"] = calendar.Today().AddDays(-10).String()
	delete(billing, "endDate")
	created := createContract(t, srv, payload)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contracts/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	scheduler := NewBillingScheduler(h.Store, h, zerolog.Nop())
	h.Scheduler = scheduler
	scheduler.RunNow()

	rows, ok := scheduler.Cached("default", h.UpcomingWindowDays)
	require.True(t, ok)
	require.NotEmpty(t, rows)

	url := fmt.Sprintf("%s/api/dashboard/upcoming?days=%d", srv.URL, h.UpcomingWindowDays)
	resp = doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, len(rows), len(decodeBody[[]UpcomingDueDTO](t, resp)))
}

func TestSeed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/seed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(3), body["contracts"])

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/contracts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	contracts := decodeBody[[]factory.ContractJSON](t, resp)
	assert.Len(t, contracts, 3)
}

func TestAuthGuard(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	const secret = "test-secret"
	h := NewHandler(store, factory.NewContractFactory("EUR"), zerolog.Nop(), time.Monday)
	srv := httptest.NewServer(NewRouter(h, RouterOptions{JWTSecret: secret}))
	t.Cleanup(srv.Close)

	// Reads stay open.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/contracts", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Writes without a token are rejected.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/contracts", fixedMonthlyPayload("CT-001"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A valid bearer token passes.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(fixedMonthlyPayload("CT-002")))
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/contracts", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
