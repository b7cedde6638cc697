/*
handlers.go - HTTP API handlers for the billing service

PURPOSE:
  Exposes the aggregation and statement engines, plus the supporting
  time-entry, invoice and payment operations, via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to billing.Service.

ENDPOINTS:
  Clients:
    GET    /api/clients                          List clients
    POST   /api/clients                          Create client
    GET    /api/clients/{id}                     Get client
    GET    /api/clients/{id}/time-entries        Uninvoiced entries in range
    POST   /api/clients/{id}/time-entries        Log time
    GET    /api/clients/{id}/invoice-preview     Aggregate without persisting
    GET    /api/clients/{id}/statement           Account statement

  Time entries:
    PUT    /api/time-entries/{id}                Replace an uninvoiced entry
    DELETE /api/time-entries/{id}                Delete an uninvoiced entry

  Invoices:
    GET    /api/invoices/next-number             Suggested invoice number
    POST   /api/invoices                         Create from time entries
    GET    /api/invoices/{id}                    Invoice with lines
    POST   /api/invoices/{id}/send               draft -> sent
    POST   /api/invoices/{id}/void               any -> voided

  Payments:
    POST   /api/payments                         Record with applications

REQUEST FLOW:
  1. Parse path and query parameters
  2. Decode and validate the body (validator tags)
  3. Call billing.Service
  4. Serialize response
  5. Map errors by kind (errors.go)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error kind to HTTP status
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the HTTP layer needs: the billing repository
// plus master-data writes the engines never perform.
type Store interface {
	billing.Repository

	SaveClient(ctx context.Context, c billing.Client) (*billing.Client, error)
	ListClients(ctx context.Context) ([]billing.Client, error)
	SaveWorkType(ctx context.Context, wt billing.WorkType) (*billing.WorkType, error)
	SaveCompanySettings(ctx context.Context, cs billing.CompanySettings) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Store
	Service *billing.Service

	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new handler with the given store. A nil logger
// discards output.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		Store:    store,
		Service:  billing.NewService(store, logger),
		validate: validate,
		logger:   logger.Named("api"),
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient creates a new client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	client := billing.Client{
		Name:            strings.TrimSpace(req.Name),
		Email:           req.Email,
		Address:         req.Address,
		HourlyRateCents: generic.Cents(req.HourlyRateCents),
		DiscountPercent: req.DiscountPercent,
	}
	if err := client.Validate(); err != nil {
		h.writeDomainError(w, r, "Invalid client", err)
		return
	}

	saved, err := h.Store.SaveClient(r.Context(), client)
	if err != nil {
		h.writeDomainError(w, r, "Failed to create client", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(*saved))
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	client, err := h.Store.GetClient(r.Context(), billing.ClientID(id))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client))
}

// =============================================================================
// WORK TYPE HANDLERS
// =============================================================================

// ListWorkTypes returns all work types.
func (h *Handler) ListWorkTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListWorkTypes(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list work types", err)
		return
	}

	dtos := make([]WorkTypeDTO, len(types))
	for i, wt := range types {
		dtos[i] = WorkTypeDTO{ID: int64(wt.ID), Code: wt.Code, Description: wt.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWorkType creates a work type.
func (h *Handler) CreateWorkType(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkTypeRequest
	if !h.decode(w, r, &req) {
		return
	}

	saved, err := h.Store.SaveWorkType(r.Context(), billing.WorkType{
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to create work type", err)
		return
	}
	writeJSON(w, http.StatusCreated, WorkTypeDTO{ID: int64(saved.ID), Code: saved.Code, Description: saved.Description})
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

// ListTimeEntries returns the client's uninvoiced entries in a range.
func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	entries, err := h.Service.ListUninvoicedTimeEntries(r.Context(), billing.ClientID(id),
		q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list time entries", err)
		return
	}

	dtos := make([]TimeEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toTimeEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTimeEntry logs time for the client in the path.
func (h *Handler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TimeEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.Service.LogTime(r.Context(), req.toInput(billing.ClientID(id)))
	if err != nil {
		h.writeDomainError(w, r, "Failed to log time", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryDTO(*entry))
}

// UpdateTimeEntry replaces an uninvoiced entry.
func (h *Handler) UpdateTimeEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TimeEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ClientID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: "client_id is required",
			Field:   "client_id",
		})
		return
	}

	entry, err := h.Service.UpdateTimeEntry(r.Context(), billing.TimeEntryID(id),
		req.toInput(billing.ClientID(req.ClientID)))
	if err != nil {
		h.writeDomainError(w, r, "Failed to update time entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(*entry))
}

// DeleteTimeEntry removes an uninvoiced entry.
func (h *Handler) DeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteTimeEntry(r.Context(), billing.TimeEntryID(id)); err != nil {
		h.writeDomainError(w, r, "Failed to delete time entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// AGGREGATION AND STATEMENT HANDLERS
// =============================================================================

// PreviewInvoice aggregates uninvoiced entries without persisting anything.
func (h *Handler) PreviewInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	preview, err := h.Service.PreviewInvoice(r.Context(), billing.ClientID(id),
		q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to preview invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(*preview))
}

// GetStatement returns the client's account statement for a range.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	stmt, err := h.Service.CalculateStatement(r.Context(), billing.ClientID(id),
		q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to calculate statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(*stmt))
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// NextInvoiceNumber suggests the next free invoice number.
func (h *Handler) NextInvoiceNumber(w http.ResponseWriter, r *http.Request) {
	next, err := h.Service.GetNextInvoiceNumber(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to get next invoice number", err)
		return
	}
	writeJSON(w, http.StatusOK, NextNumberResponse{InvoiceNumber: next})
}

// CreateInvoice bills every uninvoiced entry in the requested range.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	detail, err := h.Service.CreateInvoiceFromTimeEntries(r.Context(), billing.CreateInvoiceInput{
		ClientID:      billing.ClientID(req.ClientID),
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		InvoiceNumber: req.InvoiceNumber,
		InvoiceDate:   req.InvoiceDate,
		DueDate:       req.DueDate,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to create invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDetailDTO(*detail))
}

// GetInvoice returns an invoice with lines and payment position.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	detail, err := h.Service.GetInvoice(r.Context(), billing.InvoiceID(id))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDetailDTO(*detail))
}

// SendInvoice moves a draft invoice to sent.
func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to send invoice", h.Service.MarkInvoiceSent)
}

// VoidInvoice voids an invoice.
func (h *Handler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to void invoice", h.Service.VoidInvoice)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, message string,
	fn func(context.Context, billing.InvoiceID) (*billing.Invoice, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	inv, err := fn(r.Context(), billing.InvoiceID(id))
	if err != nil {
		h.writeDomainError(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records a payment and its applications.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	apps := make([]billing.ApplicationInput, len(req.Applications))
	for i, a := range req.Applications {
		apps[i] = a.toInput()
	}

	recorded, err := h.Service.RecordPayment(r.Context(), billing.PaymentInput{
		PaymentDate:  req.PaymentDate,
		AmountCents:  generic.Cents(req.AmountCents),
		Note:         req.Note,
		Reference:    req.Reference,
		Applications: apps,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*recorded))
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetCompanySettings returns the issuer identity (empty when unset).
func (h *Handler) GetCompanySettings(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Store.GetCompanySettings(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to get company settings", err)
		return
	}
	var dto CompanySettingsDTO
	if cs != nil {
		dto = CompanySettingsDTO(*cs)
	}
	writeJSON(w, http.StatusOK, dto)
}

// SaveCompanySettings replaces the issuer identity.
func (h *Handler) SaveCompanySettings(w http.ResponseWriter, r *http.Request) {
	var req CompanySettingsDTO
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Store.SaveCompanySettings(r.Context(), billing.CompanySettings(req)); err != nil {
		h.writeDomainError(w, r, "Failed to save company settings", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// pathID parses the {id} URL parameter. On failure a 400 has been written.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid id",
			Details: "id must be a positive integer, got " + strconv.Quote(raw),
			Field:   "id",
		})
		return 0, false
	}
	return id, true
}
