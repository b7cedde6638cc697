package api_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/store/memory"
)

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func clientByName(t *testing.T, router http.Handler, name string) api.ClientDTO {
	t.Helper()
	rec := do(t, router, http.MethodGet, "/api/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range decode[[]api.ClientDTO](t, rec) {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("client %q not found", name)
	return api.ClientDTO{}
}

func TestScenarios_List(t *testing.T) {
	router := newTestRouter(t, memory.NewMemory())

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.ScenarioDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "consulting-quarter", list[0].ID)
	assert.Equal(t, "overpaid-client", list[1].ID)
}

func TestScenarios_UnknownIsBadRequest(t *testing.T) {
	router := newTestRouter(t, memory.NewMemory())

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown scenario", decode[api.ErrorResponse](t, rec).Error)
}

func TestScenarios_ConsultingQuarter(t *testing.T) {
	// GIVEN: The consulting quarter demo data
	// WHEN: Reading Acme's Q1 statement and March preview
	// THEN: Figures follow from the seeded entries, invoices and payments
	router := newTestRouter(t, memory.NewMemory())
	loadScenario(t, router, "consulting-quarter")
	acme := clientByName(t, router, "Acme Corp")

	rec := do(t, router, http.MethodGet,
		fmt.Sprintf("/api/clients/%d/statement?start_date=2025-01-01&end_date=2025-03-31", acme.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stmt := decode[api.StatementDTO](t, rec)

	assert.Zero(t, stmt.BeginningBalanceCents)
	assert.Equal(t, "Warp Consulting", stmt.Company.Name)
	running := make([]int64, len(stmt.Transactions))
	for i, tx := range stmt.Transactions {
		running[i] = tx.RunningBalanceCents
	}
	assert.Equal(t, []int64{81000, 0, 74250, 34250}, running)
	assert.Equal(t, int64(34250), stmt.EndingBalanceCents)
	assert.Equal(t, int64(155250), stmt.PeriodInvoicesTotalCents)
	assert.Equal(t, int64(121000), stmt.PeriodPaymentsTotalCents)

	rec = do(t, router, http.MethodGet,
		fmt.Sprintf("/api/clients/%d/invoice-preview?start_date=2025-03-01&end_date=2025-03-31", acme.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[api.PreviewDTO](t, rec)
	require.Len(t, preview.Lines, 2)
	assert.Equal(t, "DEV", preview.Lines[0].WorkTypeCode)
	assert.Equal(t, "Mobile", preview.Lines[0].ProjectName)
	assert.Equal(t, int64(37500), preview.Lines[0].AmountCents)
	assert.Equal(t, "MEET", preview.Lines[1].WorkTypeCode)
	assert.Equal(t, int64(11250), preview.Lines[1].AmountCents)
	assert.Equal(t, int64(48750), preview.SubtotalCents)
	assert.Equal(t, int64(4875), preview.DiscountCents)
	assert.Equal(t, int64(43875), preview.TotalCents)

	rec = do(t, router, http.MethodGet, "/api/invoices/next-number", nil)
	assert.Equal(t, int64(1004), decode[api.NextNumberResponse](t, rec).InvoiceNumber)
}

func TestScenarios_OverpaidClientEndsInCredit(t *testing.T) {
	router := newTestRouter(t, memory.NewMemory())
	loadScenario(t, router, "overpaid-client")
	initech := clientByName(t, router, "Initech")

	rec := do(t, router, http.MethodGet,
		fmt.Sprintf("/api/clients/%d/statement?start_date=2025-01-01&end_date=2025-03-31", initech.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(-5000), decode[api.StatementDTO](t, rec).EndingBalanceCents)
}

func TestScenarios_ReloadResetsStore(t *testing.T) {
	// GIVEN: A store already holding the quarter data
	// WHEN: Loading another scenario
	// THEN: Only the new scenario's clients remain
	store := memory.NewMemory()
	svc := billing.NewService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, api.LoadScenario(ctx, store, svc, "consulting-quarter"))
	require.NoError(t, api.LoadScenario(ctx, store, svc, "overpaid-client"))

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Initech", clients[0].Name)

	assert.Error(t, api.LoadScenario(ctx, store, svc, "missing"))
}
