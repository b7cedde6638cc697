package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// PAYMENTS
// =============================================================================

// ApplicationInput allocates part of a payment to an invoice.
type ApplicationInput struct {
	InvoiceID   InvoiceID
	AmountCents generic.Cents
}

// PaymentInput describes a received payment and how it is allocated.
type PaymentInput struct {
	PaymentDate  string
	AmountCents  generic.Cents
	Note         string
	Reference    string // Retries with the same reference are rejected
	Applications []ApplicationInput
}

// RecordedPayment is a payment with its applications.
type RecordedPayment struct {
	Payment
	Applications []PaymentApplication
}

// RecordPayment stores the payment and its applications atomically and
// moves each touched invoice to paid or partially_paid. The sum of the
// applications is allowed to be below the payment amount.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (*RecordedPayment, error) {
	date, err := parseDateField("payment_date", in.PaymentDate)
	if err != nil {
		return nil, err
	}
	if !in.AmountCents.IsPositive() {
		return nil, invalid("amount_cents", "must be positive")
	}
	for _, a := range in.Applications {
		if !a.AmountCents.IsPositive() {
			return nil, invalid("applications.amount_cents", "must be positive")
		}
	}
	ref := strings.TrimSpace(in.Reference)
	if ref == "" {
		ref = uuid.NewString()
	}

	var recorded *RecordedPayment
	err = s.repo.WithTx(ctx, func(tx Tx) error {
		touched := make(map[InvoiceID]*Invoice)
		for _, a := range in.Applications {
			inv, err := tx.GetInvoice(ctx, a.InvoiceID)
			if err != nil {
				return err
			}
			if inv.IsVoided() {
				return &generic.ConflictError{Resource: "invoice", Reason: "cannot apply a payment to a voided invoice"}
			}
			touched[inv.ID] = inv
		}

		p, err := tx.InsertPayment(ctx, Payment{
			PaymentDate: date,
			AmountCents: in.AmountCents,
			Note:        in.Note,
			Reference:   ref,
			CreatedAt:   s.now().UTC(),
		})
		if err != nil {
			return err
		}

		recorded = &RecordedPayment{Payment: *p}
		for _, a := range in.Applications {
			app, err := tx.InsertPaymentApplication(ctx, PaymentApplication{
				PaymentID:   p.ID,
				InvoiceID:   a.InvoiceID,
				AmountCents: a.AmountCents,
			})
			if err != nil {
				return err
			}
			recorded.Applications = append(recorded.Applications, *app)
		}

		for _, inv := range touched {
			if err := s.settleStatus(ctx, tx, inv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment recorded",
		zap.Int64("payment_id", int64(recorded.ID)),
		zap.String("reference", recorded.Reference),
		zap.Int64("amount_cents", int64(recorded.AmountCents)),
		zap.Int("applications", len(recorded.Applications)))
	return recorded, nil
}

// settleStatus derives paid / partially_paid from what has been applied.
func (s *Service) settleStatus(ctx context.Context, tx Tx, inv *Invoice) error {
	applied, err := tx.SumApplied(ctx, inv.ID)
	if err != nil {
		return err
	}
	status := inv.Status
	switch {
	case applied >= inv.TotalCents && applied > 0:
		status = StatusPaid
	case applied > 0:
		status = StatusPartiallyPaid
	}
	if status == inv.Status {
		return nil
	}
	return tx.UpdateInvoiceStatus(ctx, inv.ID, status)
}

// =============================================================================
// INVOICE LIFECYCLE
// =============================================================================

// GetInvoice returns an invoice with lines, client and payment position.
func (s *Service) GetInvoice(ctx context.Context, id InvoiceID) (*InvoiceDetail, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := s.repo.GetClient(ctx, inv.ClientID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListInvoiceLines(ctx, id)
	if err != nil {
		return nil, err
	}
	applied, err := s.repo.SumApplied(ctx, id)
	if err != nil {
		return nil, err
	}
	return &InvoiceDetail{
		Invoice:      *inv,
		Client:       *client,
		Lines:        lines,
		AppliedCents: applied,
		BalanceDue:   inv.TotalCents - applied,
	}, nil
}

// ListInvoices returns a client's invoices, optionally within a date range.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, filter)
}

// MarkInvoiceSent moves a draft invoice to sent.
func (s *Service) MarkInvoiceSent(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return s.transition(ctx, id, StatusSent, func(inv *Invoice) error {
		if inv.Status != StatusDraft {
			return &generic.ConflictError{Resource: "invoice", Reason: "only draft invoices can be sent"}
		}
		return nil
	})
}

// VoidInvoice excludes an invoice from all balance math. Entries it claimed
// stay claimed.
func (s *Service) VoidInvoice(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return s.transition(ctx, id, StatusVoided, func(inv *Invoice) error {
		if inv.IsVoided() {
			return &generic.ConflictError{Resource: "invoice", Reason: "already voided"}
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id InvoiceID, to InvoiceStatus, check func(*Invoice) error) (*Invoice, error) {
	var updated Invoice
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		inv, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := check(inv); err != nil {
			return err
		}
		if err := tx.UpdateInvoiceStatus(ctx, id, to); err != nil {
			return err
		}
		updated = *inv
		updated.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice status changed",
		zap.Int64("invoice_id", int64(id)),
		zap.String("status", string(to)))
	return &updated, nil
}
