// Package billing turns tracked time into invoices and reconstructs client
// account statements from invoices and payment applications.
package billing

import (
	"strings"
	"time"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID int64
type WorkTypeID int64
type TimeEntryID int64
type InvoiceID int64
type PaymentID int64
type PaymentApplicationID int64

// =============================================================================
// MASTER DATA
// =============================================================================

// Client is a billable party.
type Client struct {
	ID              ClientID
	Name            string
	Email           string
	Address         string
	HourlyRateCents generic.Cents
	DiscountPercent float64
	CreatedAt       time.Time
}

// Validate checks rate and discount bounds.
func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &generic.InvalidInputError{Field: "name", Reason: "is required"}
	}
	if c.HourlyRateCents < 0 {
		return &generic.InvalidInputError{Field: "hourly_rate_cents", Reason: "must not be negative"}
	}
	if !generic.ValidPercent(c.DiscountPercent) {
		return &generic.InvalidInputError{Field: "discount_percent", Reason: "must be between 0 and 100"}
	}
	return nil
}

// WorkType is a category of billable work.
type WorkType struct {
	ID          WorkTypeID
	Code        string
	Description string
}

// CompanySettings is the issuer identity printed on statements.
type CompanySettings struct {
	Name    string
	Address string
	Email   string
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

// TimeEntry is a unit of billable work. Once InvoiceID is set the entry is
// settled and can no longer be edited or deleted.
type TimeEntry struct {
	ID           TimeEntryID
	ClientID     ClientID
	WorkTypeID   WorkTypeID
	ProjectName  string // "" means no project
	WorkDate     generic.Date
	MinutesSpent int64
	Description  string
	InvoiceID    *InvoiceID
	CreatedAt    time.Time
}

// IsInvoiced reports whether an invoice has claimed the entry.
func (e TimeEntry) IsInvoiced() bool {
	return e.InvoiceID != nil
}

// NormalizeProject maps absent and blank project names to "".
func NormalizeProject(name *string) string {
	if name == nil {
		return ""
	}
	return strings.TrimSpace(*name)
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "draft"
	StatusSent          InvoiceStatus = "sent"
	StatusPaid          InvoiceStatus = "paid"
	StatusPartiallyPaid InvoiceStatus = "partially_paid"
	StatusVoided        InvoiceStatus = "voided"
)

// Invoice is a billing document. TotalCents = SubtotalCents - DiscountCents.
type Invoice struct {
	ID            InvoiceID
	InvoiceNumber int64
	ClientID      ClientID
	InvoiceDate   generic.Date
	DueDate       generic.Date
	Status        InvoiceStatus
	SubtotalCents generic.Cents
	DiscountCents generic.Cents
	TotalCents    generic.Cents
	CreatedAt     time.Time
}

// IsVoided reports whether the invoice is excluded from balance math.
func (i Invoice) IsVoided() bool {
	return i.Status == StatusVoided
}

// InvoiceLine is one aggregated billing row.
type InvoiceLine struct {
	ID              int64
	InvoiceID       InvoiceID
	WorkTypeID      WorkTypeID
	ProjectName     string
	TotalMinutes    int64
	HourlyRateCents generic.Cents
	AmountCents     generic.Cents
	DiscountCents   generic.Cents
	EntryCount      int

	// Joined for display
	WorkTypeCode        string
	WorkTypeDescription string
}

// InvoiceDetail is an invoice with its lines and payment position.
type InvoiceDetail struct {
	Invoice
	Client       Client
	Lines        []InvoiceLine
	AppliedCents generic.Cents
	BalanceDue   generic.Cents
}

// InvoiceFilter selects invoices. Zero values leave a criterion open.
type InvoiceFilter struct {
	ClientID      ClientID
	Dates         generic.Period
	ExcludeVoided bool
}

// =============================================================================
// PAYMENTS
// =============================================================================

// Payment is money received.
type Payment struct {
	ID          PaymentID
	PaymentDate generic.Date
	AmountCents generic.Cents
	Note        string
	Reference   string
	CreatedAt   time.Time
}

// PaymentApplication allocates part of a payment to one invoice.
type PaymentApplication struct {
	ID          PaymentApplicationID
	PaymentID   PaymentID
	InvoiceID   InvoiceID
	AmountCents generic.Cents
}

// AppliedPayment is a payment application joined with its payment and invoice.
type AppliedPayment struct {
	PaymentApplication
	PaymentDate   generic.Date
	PaymentNote   string
	InvoiceNumber int64
	ClientID      ClientID
	InvoiceStatus InvoiceStatus
}

// ApplicationFilter selects payment applications by their payment's date.
type ApplicationFilter struct {
	ClientID      ClientID
	PaymentDates  generic.Period
	InvoiceID     InvoiceID
	ExcludeVoided bool
}
