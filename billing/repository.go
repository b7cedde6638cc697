/*
repository.go - Persistence collaborator for the billing engines

PURPOSE:
  The engines never touch a database directly. They read through
  Repository and write only through a Tx handed out by Repository.WithTx.

KEY INTERFACES:
  Reader:     Read paths shared by the engines and the transaction
  Repository: Reader + master-data lookups + the unit-of-work boundary
  Tx:         Every write the core performs, valid only inside WithTx

UNIT OF WORK:
  Creating an invoice inserts the invoice, inserts its lines and claims the
  time entries. All three happen inside one WithTx callback; a returned
  error rolls back every one of them.

CLAIMING:
  ClaimTimeEntries must only claim entries whose invoice_id is still null
  and must fail with a ConflictError if any requested entry was already
  claimed. This is what stops two overlapping invoice runs from billing the
  same minutes twice, given the store's own transaction isolation.

IMPLEMENTATIONS:
  - store/sqlite: database/sql + go-sqlite3
  - store/memory: In-memory, for tests

SEE ALSO:
  - aggregation.go: Uses Tx for invoice creation
  - statement.go: Read-only
*/
package billing

import (
	"context"

	"github.com/warp/billing-engine/generic"
)

// Reader holds the queries the engines run both inside and outside a
// transaction.
type Reader interface {
	// GetClient returns a *generic.NotFoundError when the client is absent.
	GetClient(ctx context.Context, id ClientID) (*Client, error)

	// GetInvoice returns a *generic.NotFoundError when the invoice is absent.
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)

	// GetTimeEntry returns a *generic.NotFoundError when the entry is absent.
	GetTimeEntry(ctx context.Context, id TimeEntryID) (*TimeEntry, error)

	// ListUninvoicedTimeEntries returns entries with no invoice whose work
	// date lies in the period, ordered by work date then id.
	ListUninvoicedTimeEntries(ctx context.Context, clientID ClientID, period generic.Period) ([]TimeEntry, error)

	// InvoiceNumberExists checks the unique invoice number.
	InvoiceNumberExists(ctx context.Context, number int64) (bool, error)

	// SumApplied returns the total applied to an invoice so far.
	SumApplied(ctx context.Context, invoiceID InvoiceID) (generic.Cents, error)
}

// Repository is the full collaborator consumed by Service.
type Repository interface {
	Reader

	ListWorkTypes(ctx context.Context) ([]WorkType, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	ListInvoiceLines(ctx context.Context, invoiceID InvoiceID) ([]InvoiceLine, error)
	ListPaymentApplications(ctx context.Context, filter ApplicationFilter) ([]AppliedPayment, error)

	// MaxInvoiceNumber returns 0 when no invoice exists.
	MaxInvoiceNumber(ctx context.Context) (int64, error)

	// GetCompanySettings returns nil, nil when nothing is configured.
	GetCompanySettings(ctx context.Context) (*CompanySettings, error)

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side, only valid for the duration of a WithTx callback.
type Tx interface {
	Reader

	InsertInvoice(ctx context.Context, inv Invoice) (*Invoice, error)
	InsertInvoiceLines(ctx context.Context, invoiceID InvoiceID, lines []InvoiceLine) ([]InvoiceLine, error)
	ClaimTimeEntries(ctx context.Context, ids []TimeEntryID, invoiceID InvoiceID) error
	UpdateInvoiceStatus(ctx context.Context, id InvoiceID, status InvoiceStatus) error

	InsertTimeEntry(ctx context.Context, entry TimeEntry) (*TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, entry TimeEntry) error
	DeleteTimeEntry(ctx context.Context, id TimeEntryID) error

	InsertPayment(ctx context.Context, p Payment) (*Payment, error)
	InsertPaymentApplication(ctx context.Context, app PaymentApplication) (*PaymentApplication, error)
}
