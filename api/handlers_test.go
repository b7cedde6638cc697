/*
handlers_test.go - HTTP tests for the billing API

Tests for:
- Time logging, preview and invoice creation through the router
- Payment recording and statements
- Error kind to status mapping and validation responses
- Middleware: security headers, rate limiting and CORS
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T, store api.Store) *chi.Mux {
	h := api.NewHandler(store, zaptest.NewLogger(t))
	return api.NewRouter(h, api.RouterOptions{CORSOrigins: []string{"http://localhost:3000"}})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type apiFixture struct {
	router http.Handler
	client int64
	dev    int64
}

func newAPIFixture(t *testing.T) apiFixture {
	router := newTestRouter(t, memory.NewMemory())

	rec := do(t, router, http.MethodPost, "/api/clients", api.CreateClientRequest{
		Name: "Acme", Email: "ap@acme.example", HourlyRateCents: 15000, DiscountPercent: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	client := decode[api.ClientDTO](t, rec)

	rec = do(t, router, http.MethodPost, "/api/work-types", api.CreateWorkTypeRequest{Code: "dev", Description: "Development"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wt := decode[api.WorkTypeDTO](t, rec)
	assert.Equal(t, "DEV", wt.Code)

	return apiFixture{router: router, client: client.ID, dev: wt.ID}
}

func (f apiFixture) logTime(t *testing.T, project *string, date string, minutes int64) api.TimeEntryDTO {
	rec := do(t, f.router, http.MethodPost, fmt.Sprintf("/api/clients/%d/time-entries", f.client), api.TimeEntryRequest{
		WorkTypeID: f.dev, ProjectName: project, WorkDate: date, MinutesSpent: minutes,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.TimeEntryDTO](t, rec)
}

func (f apiFixture) invoiceRequest(number int64) api.CreateInvoiceRequest {
	return api.CreateInvoiceRequest{
		ClientID: f.client, StartDate: "2025-01-01", EndDate: "2025-01-31",
		InvoiceNumber: number, InvoiceDate: "2025-01-31", DueDate: "2025-02-28",
	}
}

func str(s string) *string { return &s }

// =============================================================================
// INVOICING FLOW
// =============================================================================

func TestAPI_PreviewThenCreateInvoice(t *testing.T) {
	// GIVEN: Two entries on the same project for January
	// WHEN: Previewing, then creating the invoice twice
	// THEN: Preview and invoice agree; the second run is a 404
	f := newAPIFixture(t)
	f.logTime(t, str("Portal"), "2025-01-06", 120)
	f.logTime(t, str("Portal"), "2025-01-08", 180)

	rec := do(t, f.router, http.MethodGet,
		fmt.Sprintf("/api/clients/%d/invoice-preview?start_date=2025-01-01&end_date=2025-01-31", f.client), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[api.PreviewDTO](t, rec)
	require.Len(t, preview.Lines, 1)
	assert.Equal(t, int64(300), preview.Lines[0].TotalMinutes)
	assert.Equal(t, "DEV", preview.Lines[0].WorkTypeCode)
	assert.Len(t, preview.Lines[0].EntryIDs, 2)
	assert.Equal(t, int64(75000), preview.SubtotalCents)
	assert.Equal(t, int64(7500), preview.DiscountCents)
	assert.Equal(t, int64(67500), preview.TotalCents)

	rec = do(t, f.router, http.MethodPost, "/api/invoices", f.invoiceRequest(1001))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[api.InvoiceDTO](t, rec)
	assert.Equal(t, "draft", inv.Status)
	assert.Equal(t, preview.TotalCents, inv.TotalCents)
	assert.Equal(t, "Acme", inv.ClientName)
	require.NotNil(t, inv.BalanceDue)
	assert.Equal(t, int64(67500), *inv.BalanceDue)

	rec = do(t, f.router, http.MethodPost, "/api/invoices", f.invoiceRequest(1002))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, f.router, http.MethodGet, "/api/invoices/next-number", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1002), decode[api.NextNumberResponse](t, rec).InvoiceNumber)

	rec = do(t, f.router, http.MethodGet, fmt.Sprintf("/api/invoices/%d", inv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.InvoiceDTO](t, rec)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "Portal", got.Lines[0].ProjectName)
	assert.Equal(t, int64(7500), got.Lines[0].DiscountCents)
}

func TestAPI_DuplicateInvoiceNumberIsConflict(t *testing.T) {
	f := newAPIFixture(t)
	f.logTime(t, nil, "2025-01-06", 60)
	require.Equal(t, http.StatusCreated, do(t, f.router, http.MethodPost, "/api/invoices", f.invoiceRequest(5)).Code)

	f.logTime(t, nil, "2025-01-07", 60)
	rec := do(t, f.router, http.MethodPost, "/api/invoices", f.invoiceRequest(5))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, decode[api.ErrorResponse](t, rec).Details)
}

func TestAPI_InvoicedEntryIsFrozen(t *testing.T) {
	f := newAPIFixture(t)
	entry := f.logTime(t, nil, "2025-01-06", 60)
	require.Equal(t, http.StatusCreated, do(t, f.router, http.MethodPost, "/api/invoices", f.invoiceRequest(1)).Code)

	rec := do(t, f.router, http.MethodPut, fmt.Sprintf("/api/time-entries/%d", entry.ID), api.TimeEntryRequest{
		ClientID: f.client, WorkTypeID: f.dev, WorkDate: "2025-01-06", MinutesSpent: 30,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, f.router, http.MethodDelete, fmt.Sprintf("/api/time-entries/%d", entry.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	open := f.logTime(t, nil, "2025-02-06", 60)
	rec = do(t, f.router, http.MethodDelete, fmt.Sprintf("/api/time-entries/%d", open.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPI_PaymentAndStatement(t *testing.T) {
	// GIVEN: A 675.00 invoice, sent, then partially paid
	// WHEN: Fetching the Q1 statement
	// THEN: Rows and balances reflect invoice then payment
	f := newAPIFixture(t)
	f.logTime(t, nil, "2025-01-06", 300)
	inv := decode[api.InvoiceDTO](t, do(t, f.router, http.MethodPost, "/api/invoices", f.invoiceRequest(1)))

	rec := do(t, f.router, http.MethodPost, fmt.Sprintf("/api/invoices/%d/send", inv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sent", decode[api.InvoiceDTO](t, rec).Status)
	assert.Equal(t, http.StatusConflict, do(t, f.router, http.MethodPost, fmt.Sprintf("/api/invoices/%d/send", inv.ID), nil).Code)

	rec = do(t, f.router, http.MethodPost, "/api/payments", api.RecordPaymentRequest{
		PaymentDate:  "2025-02-10",
		AmountCents:  50000,
		Note:         "Wire",
		Reference:    "WIRE-1",
		Applications: []api.ApplicationRequest{{InvoiceID: inv.ID, AmountCents: 50000}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decode[api.PaymentDTO](t, rec)
	require.Len(t, payment.Applications, 1)

	rec = do(t, f.router, http.MethodPost, "/api/payments", api.RecordPaymentRequest{
		PaymentDate: "2025-02-10", AmountCents: 50000, Reference: "WIRE-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, f.router, http.MethodGet, fmt.Sprintf("/api/invoices/%d", inv.ID), nil)
	detail := decode[api.InvoiceDTO](t, rec)
	assert.Equal(t, "partially_paid", detail.Status)
	assert.Equal(t, int64(17500), *detail.BalanceDue)

	rec = do(t, f.router, http.MethodGet,
		fmt.Sprintf("/api/clients/%d/statement?start_date=2025-01-01&end_date=2025-03-31", f.client), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stmt := decode[api.StatementDTO](t, rec)
	assert.Zero(t, stmt.BeginningBalanceCents)
	require.Len(t, stmt.Transactions, 2)
	assert.Equal(t, "invoice", stmt.Transactions[0].Type)
	assert.Equal(t, "INV-1", stmt.Transactions[0].DocumentID)
	assert.Equal(t, int64(67500), stmt.Transactions[0].RunningBalanceCents)
	assert.Equal(t, "payment", stmt.Transactions[1].Type)
	assert.Equal(t, fmt.Sprintf("PMT-%d", payment.ID), stmt.Transactions[1].DocumentID)
	assert.Equal(t, "Payment applied to invoice #1 (Wire)", stmt.Transactions[1].Description)
	assert.Equal(t, int64(-50000), stmt.Transactions[1].AmountCents)
	assert.Equal(t, int64(17500), stmt.EndingBalanceCents)

	rec = do(t, f.router, http.MethodPost, fmt.Sprintf("/api/invoices/%d/void", inv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, f.router, http.MethodGet,
		fmt.Sprintf("/api/clients/%d/statement?start_date=2025-01-01&end_date=2025-03-31", f.client), nil)
	assert.Empty(t, decode[api.StatementDTO](t, rec).Transactions)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ValidationErrors(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		field  string
	}{
		{"bad work date", http.MethodPost, fmt.Sprintf("/api/clients/%d/time-entries", f.client),
			api.TimeEntryRequest{WorkTypeID: f.dev, WorkDate: "06/01/2025", MinutesSpent: 60}, http.StatusBadRequest, "work_date"},
		{"zero minutes", http.MethodPost, fmt.Sprintf("/api/clients/%d/time-entries", f.client),
			api.TimeEntryRequest{WorkTypeID: f.dev, WorkDate: "2025-01-06"}, http.StatusBadRequest, "minutes_spent"},
		{"non-numeric id", http.MethodGet, "/api/clients/abc", nil, http.StatusBadRequest, "id"},
		{"inverted statement", http.MethodGet,
			fmt.Sprintf("/api/clients/%d/statement?start_date=2025-03-31&end_date=2025-01-01", f.client), nil, http.StatusBadRequest, "end_date"},
		{"missing statement start", http.MethodGet,
			fmt.Sprintf("/api/clients/%d/statement?end_date=2025-01-01", f.client), nil, http.StatusBadRequest, "start_date"},
		{"update without client", http.MethodPut, "/api/time-entries/1",
			api.TimeEntryRequest{WorkTypeID: f.dev, WorkDate: "2025-01-06", MinutesSpent: 60}, http.StatusBadRequest, "client_id"},
		{"discount over 100", http.MethodPost, "/api/clients",
			api.CreateClientRequest{Name: "Big", DiscountPercent: 150}, http.StatusBadRequest, "discount_percent"},
		{"bad company email", http.MethodPut, "/api/settings/company",
			api.CompanySettingsDTO{Name: "Warp", Email: "not-an-email"}, http.StatusBadRequest, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, f.router, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decode[api.ErrorResponse](t, rec).Field)
		})
	}
}

func TestAPI_NotFoundAndMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusNotFound, do(t, f.router, http.MethodGet, "/api/clients/999", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, f.router, http.MethodGet,
		"/api/clients/999/invoice-preview?start_date=2025-01-01&end_date=2025-01-31", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, f.router, http.MethodPost, "/api/invoices/999/void", nil).Code)

	rec := do(t, f.router, http.MethodPost, "/api/payments", `{"payment_date": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode[api.ErrorResponse](t, rec).Error)
}

// brokenStore fails every client listing with a storage error.
type brokenStore struct {
	*memory.Memory
}

func (brokenStore) ListClients(context.Context) ([]billing.Client, error) {
	return nil, errors.New("database is locked")
}

func TestAPI_StorageErrorsAreHidden(t *testing.T) {
	router := newTestRouter(t, brokenStore{memory.NewMemory()})

	rec := do(t, router, http.MethodGet, "/api/clients", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "Failed to list clients", resp.Error)
	assert.Empty(t, resp.Details)
}

// =============================================================================
// SETTINGS AND MIDDLEWARE
// =============================================================================

func TestAPI_CompanySettings(t *testing.T) {
	router := newTestRouter(t, memory.NewMemory())

	rec := do(t, router, http.MethodGet, "/api/settings/company", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.CompanySettingsDTO{}, decode[api.CompanySettingsDTO](t, rec))

	settings := api.CompanySettingsDTO{Name: "Warp Consulting", Address: "12 Harbour Street", Email: "billing@warp.example"}
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/api/settings/company", settings).Code)

	rec = do(t, router, http.MethodGet, "/api/settings/company", nil)
	assert.Equal(t, settings, decode[api.CompanySettingsDTO](t, rec))
}

func TestAPI_Health(t *testing.T) {
	router := newTestRouter(t, memory.NewMemory())
	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPI_RateLimitPerIP(t *testing.T) {
	h := api.NewHandler(memory.NewMemory(), zaptest.NewLogger(t))
	router := api.NewRouter(h, api.RouterOptions{RateLimit: 2})

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/clients", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/clients", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodGet, "/api/clients", nil).Code)

	// Health is outside the limited group
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", nil).Code)
}

func TestAPI_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, memory.NewMemory())

	req := httptest.NewRequest(http.MethodOptions, "/api/clients", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
