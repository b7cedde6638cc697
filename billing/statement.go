/*
statement.go - Client account statement

PURPOSE:
  Reconstructs what a client owed at the start of a date range, then lists
  every invoice and payment application in the range with the running
  balance after each one.

PIPELINE:
  1. Opening balance: non-voided invoices dated before the range, minus
     applications whose payment is dated before the range and whose
     invoice is non-voided and belongs to the client.
  2. Collection: non-voided invoices dated in the range (+total) and
     applications whose payment is dated in the range (-applied),
     whatever the invoice's own date.
  3. Merge: sort by date, invoices before payments on the same day, then
     invoice number for invoices and payment id for payments; replay.

CONSISTENCY:
  The statement is a prefix sum over the client's whole history, so for any
  split day d, closing(start, d) == opening(d+1, end). Both phases apply the
  same voided-invoice exclusion or that identity would break.

SEE ALSO:
  - generic/ledger.go: Timeline replay
*/
package billing

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// STATEMENT TYPES
// =============================================================================

type TransactionType string

const (
	TxInvoice TransactionType = "invoice"
	TxPayment TransactionType = "payment"
)

func (t TransactionType) rank() int {
	if t == TxInvoice {
		return 0
	}
	return 1
}

// StatementTransaction is one row of the statement.
type StatementTransaction struct {
	Type                TransactionType
	Date                generic.Date
	DocumentID          string
	Description         string
	AmountCents         generic.Cents
	RunningBalanceCents generic.Cents

	InvoiceID     InvoiceID
	InvoiceNumber int64
	PaymentID     PaymentID
	ApplicationID PaymentApplicationID
}

// Statement is the account of a client over [StartDate, EndDate].
type Statement struct {
	Client                   Client
	Company                  CompanySettings
	StartDate                generic.Date
	EndDate                  generic.Date
	BeginningBalanceCents    generic.Cents
	EndingBalanceCents       generic.Cents
	PeriodInvoicesTotalCents generic.Cents
	PeriodPaymentsTotalCents generic.Cents
	Transactions             []StatementTransaction
}

// =============================================================================
// OPERATIONS
// =============================================================================

// CalculateStatement validates the range, then builds the statement.
// Malformed or inverted dates fail before any data is read.
func (s *Service) CalculateStatement(ctx context.Context, clientID ClientID, startDate, endDate string) (*Statement, error) {
	period, err := parsePeriod(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	opening, err := s.beginningBalance(ctx, clientID, period.Start)
	if err != nil {
		return nil, err
	}

	txs, err := s.collectTransactions(ctx, clientID, period)
	if err != nil {
		return nil, err
	}
	SortTransactions(txs)

	var timeline generic.Timeline
	for _, t := range txs {
		timeline.Append(t.Date, t.AmountCents, t.DocumentID)
	}
	running := timeline.Running(opening)

	stmt := &Statement{
		Client:                *client,
		StartDate:             period.Start,
		EndDate:               period.End,
		BeginningBalanceCents: opening,
		EndingBalanceCents:    timeline.Closing(opening),
		Transactions:          txs,
	}
	for i := range stmt.Transactions {
		t := &stmt.Transactions[i]
		t.RunningBalanceCents = running[i]
		switch t.Type {
		case TxInvoice:
			stmt.PeriodInvoicesTotalCents += t.AmountCents
		case TxPayment:
			stmt.PeriodPaymentsTotalCents += t.AmountCents.Abs()
		}
	}

	company, err := s.repo.GetCompanySettings(ctx)
	if err != nil {
		return nil, err
	}
	if company != nil {
		stmt.Company = *company
	}

	s.logger.Debug("statement calculated",
		zap.Int64("client_id", int64(clientID)),
		zap.Stringer("period", period),
		zap.Int("transactions", len(txs)),
		zap.Int64("beginning_cents", int64(opening)),
		zap.Int64("ending_cents", int64(stmt.EndingBalanceCents)))
	return stmt, nil
}

// CalculateBeginningBalance returns what the client owed at the start of
// startDate. Negative means the client has overpaid.
func (s *Service) CalculateBeginningBalance(ctx context.Context, clientID ClientID, startDate string) (generic.Cents, error) {
	start, err := parseDateField("start_date", startDate)
	if err != nil {
		return 0, err
	}
	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return 0, err
	}
	return s.beginningBalance(ctx, clientID, start)
}

func (s *Service) beginningBalance(ctx context.Context, clientID ClientID, start generic.Date) (generic.Cents, error) {
	before := generic.Before(start)

	invoices, err := s.repo.ListInvoices(ctx, InvoiceFilter{
		ClientID:      clientID,
		Dates:         before,
		ExcludeVoided: true,
	})
	if err != nil {
		return 0, err
	}
	apps, err := s.repo.ListPaymentApplications(ctx, ApplicationFilter{
		ClientID:      clientID,
		PaymentDates:  before,
		ExcludeVoided: true,
	})
	if err != nil {
		return 0, err
	}

	var balance generic.Cents
	for _, inv := range invoices {
		balance += inv.TotalCents
	}
	for _, app := range apps {
		balance -= app.AmountCents
	}
	return balance, nil
}

func (s *Service) collectTransactions(ctx context.Context, clientID ClientID, period generic.Period) ([]StatementTransaction, error) {
	invoices, err := s.repo.ListInvoices(ctx, InvoiceFilter{
		ClientID:      clientID,
		Dates:         period,
		ExcludeVoided: true,
	})
	if err != nil {
		return nil, err
	}
	apps, err := s.repo.ListPaymentApplications(ctx, ApplicationFilter{
		ClientID:      clientID,
		PaymentDates:  period,
		ExcludeVoided: true,
	})
	if err != nil {
		return nil, err
	}

	txs := make([]StatementTransaction, 0, len(invoices)+len(apps))
	for _, inv := range invoices {
		txs = append(txs, StatementTransaction{
			Type:          TxInvoice,
			Date:          inv.InvoiceDate,
			DocumentID:    fmt.Sprintf("INV-%d", inv.InvoiceNumber),
			Description:   fmt.Sprintf("Invoice #%d", inv.InvoiceNumber),
			AmountCents:   inv.TotalCents,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
		})
	}
	for _, app := range apps {
		desc := fmt.Sprintf("Payment applied to invoice #%d", app.InvoiceNumber)
		if app.PaymentNote != "" {
			desc += " (" + app.PaymentNote + ")"
		}
		txs = append(txs, StatementTransaction{
			Type:          TxPayment,
			Date:          app.PaymentDate,
			DocumentID:    fmt.Sprintf("PMT-%d", app.PaymentID),
			Description:   desc,
			AmountCents:   app.AmountCents.Neg(),
			InvoiceID:     app.InvoiceID,
			InvoiceNumber: app.InvoiceNumber,
			PaymentID:     app.PaymentID,
			ApplicationID: app.ID,
		})
	}
	return txs, nil
}

// SortTransactions orders statement rows: date, then invoices before
// payments, then invoice number (invoices) or payment id (payments). Two
// applications of one payment fall back to application id.
func SortTransactions(txs []StatementTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.Type != b.Type {
			return a.Type.rank() < b.Type.rank()
		}
		if a.Type == TxInvoice {
			return a.InvoiceNumber < b.InvoiceNumber
		}
		if a.PaymentID != b.PaymentID {
			return a.PaymentID < b.PaymentID
		}
		return a.ApplicationID < b.ApplicationID
	})
}
