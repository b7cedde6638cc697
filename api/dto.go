/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing model from the external API contract. Money is always an
  integer number of cents; dates are YYYY-MM-DD strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required, ranges, date layout). Domain rules (client exists, entry not
  invoiced, invoice number unused) stay in billing.Service.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: Validation error rendering
*/
package api

import (
	"time"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateClientRequest is the request to create a client.
type CreateClientRequest struct {
	Name            string  `json:"name" validate:"required"`
	Email           string  `json:"email" validate:"omitempty,email"`
	Address         string  `json:"address"`
	HourlyRateCents int64   `json:"hourly_rate_cents" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
}

// CreateWorkTypeRequest is the request to create a work type.
type CreateWorkTypeRequest struct {
	Code        string `json:"code" validate:"required,max=32"`
	Description string `json:"description"`
}

// TimeEntryRequest creates or replaces a time entry. ClientID is taken from
// the URL on create and from the body on update.
type TimeEntryRequest struct {
	ClientID     int64   `json:"client_id"`
	WorkTypeID   int64   `json:"work_type_id" validate:"required,gt=0"`
	ProjectName  *string `json:"project_name"`
	WorkDate     string  `json:"work_date" validate:"required,datetime=2006-01-02"`
	MinutesSpent int64   `json:"minutes_spent" validate:"gt=0"`
	Description  string  `json:"description"`
}

// CreateInvoiceRequest bills a client's uninvoiced entries in a date range.
type CreateInvoiceRequest struct {
	ClientID      int64  `json:"client_id" validate:"required,gt=0"`
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required,datetime=2006-01-02"`
	InvoiceNumber int64  `json:"invoice_number" validate:"required,gt=0"`
	InvoiceDate   string `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate       string `json:"due_date" validate:"required,datetime=2006-01-02"`
}

// ApplicationRequest allocates part of a payment to one invoice.
type ApplicationRequest struct {
	InvoiceID   int64 `json:"invoice_id" validate:"required,gt=0"`
	AmountCents int64 `json:"amount_cents" validate:"gt=0"`
}

// RecordPaymentRequest records a received payment.
type RecordPaymentRequest struct {
	PaymentDate  string               `json:"payment_date" validate:"required,datetime=2006-01-02"`
	AmountCents  int64                `json:"amount_cents" validate:"gt=0"`
	Note         string               `json:"note"`
	Reference    string               `json:"reference" validate:"max=128"`
	Applications []ApplicationRequest `json:"applications" validate:"omitempty,dive"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email,omitempty"`
	Address         string  `json:"address,omitempty"`
	HourlyRateCents int64   `json:"hourly_rate_cents"`
	DiscountPercent float64 `json:"discount_percent"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// WorkTypeDTO represents a work type.
type WorkTypeDTO struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// TimeEntryDTO represents a time entry.
type TimeEntryDTO struct {
	ID           int64  `json:"id"`
	ClientID     int64  `json:"client_id"`
	WorkTypeID   int64  `json:"work_type_id"`
	ProjectName  string `json:"project_name"`
	WorkDate     string `json:"work_date"`
	MinutesSpent int64  `json:"minutes_spent"`
	Description  string `json:"description,omitempty"`
	InvoiceID    *int64 `json:"invoice_id"`
}

// PreviewLineDTO is one aggregated line of an invoice preview.
type PreviewLineDTO struct {
	WorkTypeID          int64   `json:"work_type_id"`
	WorkTypeCode        string  `json:"work_type_code"`
	WorkTypeDescription string  `json:"work_type_description,omitempty"`
	ProjectName         string  `json:"project_name"`
	TotalMinutes        int64   `json:"total_minutes"`
	HourlyRateCents     int64   `json:"hourly_rate_cents"`
	AmountCents         int64   `json:"amount_cents"`
	DiscountCents       int64   `json:"discount_cents"`
	EntryCount          int     `json:"entry_count"`
	EntryIDs            []int64 `json:"entry_ids"`
}

// PreviewDTO is the would-be invoice for a client and range.
type PreviewDTO struct {
	Client        ClientDTO        `json:"client"`
	StartDate     string           `json:"start_date"`
	EndDate       string           `json:"end_date"`
	Lines         []PreviewLineDTO `json:"lines"`
	SubtotalCents int64            `json:"subtotal_cents"`
	DiscountCents int64            `json:"discount_cents"`
	TotalCents    int64            `json:"total_cents"`
	TotalEntries  int              `json:"total_entries"`
}

// InvoiceLineDTO is a persisted invoice line.
type InvoiceLineDTO struct {
	ID                  int64  `json:"id"`
	WorkTypeID          int64  `json:"work_type_id"`
	WorkTypeCode        string `json:"work_type_code"`
	WorkTypeDescription string `json:"work_type_description,omitempty"`
	ProjectName         string `json:"project_name"`
	TotalMinutes        int64  `json:"total_minutes"`
	HourlyRateCents     int64  `json:"hourly_rate_cents"`
	AmountCents         int64  `json:"amount_cents"`
	DiscountCents       int64  `json:"discount_cents"`
	EntryCount          int    `json:"entry_count"`
}

// InvoiceDTO represents an invoice, optionally with lines and payment position.
type InvoiceDTO struct {
	ID            int64            `json:"id"`
	InvoiceNumber int64            `json:"invoice_number"`
	ClientID      int64            `json:"client_id"`
	ClientName    string           `json:"client_name,omitempty"`
	InvoiceDate   string           `json:"invoice_date"`
	DueDate       string           `json:"due_date"`
	Status        string           `json:"status"`
	SubtotalCents int64            `json:"subtotal_cents"`
	DiscountCents int64            `json:"discount_cents"`
	TotalCents    int64            `json:"total_cents"`
	AppliedCents  *int64           `json:"applied_cents,omitempty"`
	BalanceDue    *int64           `json:"balance_due_cents,omitempty"`
	Lines         []InvoiceLineDTO `json:"lines,omitempty"`
}

// NextNumberResponse carries the suggested invoice number.
type NextNumberResponse struct {
	InvoiceNumber int64 `json:"invoice_number"`
}

// PaymentApplicationDTO is one allocation of a payment.
type PaymentApplicationDTO struct {
	ID          int64 `json:"id"`
	InvoiceID   int64 `json:"invoice_id"`
	AmountCents int64 `json:"amount_cents"`
}

// PaymentDTO represents a recorded payment.
type PaymentDTO struct {
	ID           int64                   `json:"id"`
	PaymentDate  string                  `json:"payment_date"`
	AmountCents  int64                   `json:"amount_cents"`
	Note         string                  `json:"note,omitempty"`
	Reference    string                  `json:"reference"`
	Applications []PaymentApplicationDTO `json:"applications"`
}

// CompanySettingsDTO is the issuer identity.
type CompanySettingsDTO struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// StatementTransactionDTO is one statement row.
type StatementTransactionDTO struct {
	Type                string `json:"type"`
	Date                string `json:"date"`
	DocumentID          string `json:"document_id"`
	Description         string `json:"description"`
	AmountCents         int64  `json:"amount_cents"`
	RunningBalanceCents int64  `json:"running_balance_cents"`
	InvoiceID           int64  `json:"invoice_id"`
	PaymentID           int64  `json:"payment_id,omitempty"`
}

// StatementDTO is a client account statement.
type StatementDTO struct {
	Client                   ClientDTO                 `json:"client"`
	Company                  CompanySettingsDTO        `json:"company"`
	StartDate                string                    `json:"start_date"`
	EndDate                  string                    `json:"end_date"`
	BeginningBalanceCents    int64                     `json:"beginning_balance_cents"`
	EndingBalanceCents       int64                     `json:"ending_balance_cents"`
	PeriodInvoicesTotalCents int64                     `json:"period_invoices_total_cents"`
	PeriodPaymentsTotalCents int64                     `json:"period_payments_total_cents"`
	Transactions             []StatementTransactionDTO `json:"transactions"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toClientDTO(c billing.Client) ClientDTO {
	dto := ClientDTO{
		ID:              int64(c.ID),
		Name:            c.Name,
		Email:           c.Email,
		Address:         c.Address,
		HourlyRateCents: int64(c.HourlyRateCents),
		DiscountPercent: c.DiscountPercent,
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toTimeEntryDTO(e billing.TimeEntry) TimeEntryDTO {
	dto := TimeEntryDTO{
		ID:           int64(e.ID),
		ClientID:     int64(e.ClientID),
		WorkTypeID:   int64(e.WorkTypeID),
		ProjectName:  e.ProjectName,
		WorkDate:     e.WorkDate.String(),
		MinutesSpent: e.MinutesSpent,
		Description:  e.Description,
	}
	if e.InvoiceID != nil {
		id := int64(*e.InvoiceID)
		dto.InvoiceID = &id
	}
	return dto
}

func toPreviewDTO(p billing.Preview) PreviewDTO {
	lines := make([]PreviewLineDTO, len(p.Lines))
	for i, l := range p.Lines {
		ids := make([]int64, len(l.EntryIDs))
		for j, id := range l.EntryIDs {
			ids[j] = int64(id)
		}
		lines[i] = PreviewLineDTO{
			WorkTypeID:          int64(l.WorkTypeID),
			WorkTypeCode:        l.WorkTypeCode,
			WorkTypeDescription: l.WorkTypeDescription,
			ProjectName:         l.ProjectName,
			TotalMinutes:        l.TotalMinutes,
			HourlyRateCents:     int64(l.HourlyRateCents),
			AmountCents:         int64(l.AmountCents),
			DiscountCents:       int64(l.DiscountCents),
			EntryCount:          l.EntryCount,
			EntryIDs:            ids,
		}
	}
	return PreviewDTO{
		Client:        toClientDTO(p.Client),
		StartDate:     p.StartDate.String(),
		EndDate:       p.EndDate.String(),
		Lines:         lines,
		SubtotalCents: int64(p.SubtotalCents),
		DiscountCents: int64(p.DiscountCents),
		TotalCents:    int64(p.TotalCents),
		TotalEntries:  p.TotalEntries,
	}
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:            int64(inv.ID),
		InvoiceNumber: inv.InvoiceNumber,
		ClientID:      int64(inv.ClientID),
		InvoiceDate:   inv.InvoiceDate.String(),
		DueDate:       inv.DueDate.String(),
		Status:        string(inv.Status),
		SubtotalCents: int64(inv.SubtotalCents),
		DiscountCents: int64(inv.DiscountCents),
		TotalCents:    int64(inv.TotalCents),
	}
}

func toInvoiceDetailDTO(d billing.InvoiceDetail) InvoiceDTO {
	dto := toInvoiceDTO(d.Invoice)
	dto.ClientName = d.Client.Name
	applied, due := int64(d.AppliedCents), int64(d.BalanceDue)
	dto.AppliedCents, dto.BalanceDue = &applied, &due
	dto.Lines = make([]InvoiceLineDTO, len(d.Lines))
	for i, l := range d.Lines {
		dto.Lines[i] = InvoiceLineDTO{
			ID:                  l.ID,
			WorkTypeID:          int64(l.WorkTypeID),
			WorkTypeCode:        l.WorkTypeCode,
			WorkTypeDescription: l.WorkTypeDescription,
			ProjectName:         l.ProjectName,
			TotalMinutes:        l.TotalMinutes,
			HourlyRateCents:     int64(l.HourlyRateCents),
			AmountCents:         int64(l.AmountCents),
			DiscountCents:       int64(l.DiscountCents),
			EntryCount:          l.EntryCount,
		}
	}
	return dto
}

func toPaymentDTO(p billing.RecordedPayment) PaymentDTO {
	apps := make([]PaymentApplicationDTO, len(p.Applications))
	for i, a := range p.Applications {
		apps[i] = PaymentApplicationDTO{
			ID:          int64(a.ID),
			InvoiceID:   int64(a.InvoiceID),
			AmountCents: int64(a.AmountCents),
		}
	}
	return PaymentDTO{
		ID:           int64(p.ID),
		PaymentDate:  p.PaymentDate.String(),
		AmountCents:  int64(p.AmountCents),
		Note:         p.Note,
		Reference:    p.Reference,
		Applications: apps,
	}
}

func toStatementDTO(s billing.Statement) StatementDTO {
	txs := make([]StatementTransactionDTO, len(s.Transactions))
	for i, t := range s.Transactions {
		txs[i] = StatementTransactionDTO{
			Type:                string(t.Type),
			Date:                t.Date.String(),
			DocumentID:          t.DocumentID,
			Description:         t.Description,
			AmountCents:         int64(t.AmountCents),
			RunningBalanceCents: int64(t.RunningBalanceCents),
			InvoiceID:           int64(t.InvoiceID),
			PaymentID:           int64(t.PaymentID),
		}
	}
	return StatementDTO{
		Client:                   toClientDTO(s.Client),
		Company:                  CompanySettingsDTO(s.Company),
		StartDate:                s.StartDate.String(),
		EndDate:                  s.EndDate.String(),
		BeginningBalanceCents:    int64(s.BeginningBalanceCents),
		EndingBalanceCents:       int64(s.EndingBalanceCents),
		PeriodInvoicesTotalCents: int64(s.PeriodInvoicesTotalCents),
		PeriodPaymentsTotalCents: int64(s.PeriodPaymentsTotalCents),
		Transactions:             txs,
	}
}

func (r ApplicationRequest) toInput() billing.ApplicationInput {
	return billing.ApplicationInput{
		InvoiceID:   billing.InvoiceID(r.InvoiceID),
		AmountCents: generic.Cents(r.AmountCents),
	}
}

func (r TimeEntryRequest) toInput(clientID billing.ClientID) billing.TimeEntryInput {
	return billing.TimeEntryInput{
		ClientID:     clientID,
		WorkTypeID:   billing.WorkTypeID(r.WorkTypeID),
		ProjectName:  r.ProjectName,
		WorkDate:     r.WorkDate,
		MinutesSpent: r.MinutesSpent,
		Description:  r.Description,
	}
}
