package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	ctx   context.Context
	store *memory.Memory
	svc   *billing.Service
	dev   billing.WorkTypeID
	meet  billing.WorkTypeID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewMemory()
	f := &fixture{
		ctx:   context.Background(),
		store: store,
		svc:   billing.NewService(store, zaptest.NewLogger(t)),
	}

	dev, err := store.SaveWorkType(f.ctx, billing.WorkType{Code: "DEV", Description: "Development"})
	require.NoError(t, err)
	meet, err := store.SaveWorkType(f.ctx, billing.WorkType{Code: "MEET", Description: "Meetings"})
	require.NoError(t, err)
	f.dev, f.meet = dev.ID, meet.ID
	return f
}

func (f *fixture) client(t *testing.T, name string, rate int64, discount float64) billing.ClientID {
	t.Helper()
	c, err := f.store.SaveClient(f.ctx, billing.Client{
		Name:            name,
		HourlyRateCents: centsOf(rate),
		DiscountPercent: discount,
	})
	require.NoError(t, err)
	return c.ID
}

func (f *fixture) log(t *testing.T, client billing.ClientID, wt billing.WorkTypeID, project *string, date string, minutes int64) billing.TimeEntryID {
	t.Helper()
	e, err := f.svc.LogTime(f.ctx, billing.TimeEntryInput{
		ClientID:     client,
		WorkTypeID:   wt,
		ProjectName:  project,
		WorkDate:     date,
		MinutesSpent: minutes,
	})
	require.NoError(t, err)
	return e.ID
}

func (f *fixture) invoice(t *testing.T, client billing.ClientID, from, to string, number int64, date string) *billing.InvoiceDetail {
	t.Helper()
	detail, err := f.svc.CreateInvoiceFromTimeEntries(f.ctx, billing.CreateInvoiceInput{
		ClientID:      client,
		StartDate:     from,
		EndDate:       to,
		InvoiceNumber: number,
		InvoiceDate:   date,
		DueDate:       date,
	})
	require.NoError(t, err)
	return detail
}

func (f *fixture) pay(t *testing.T, date string, amount int64, ref string, apps ...billing.ApplicationInput) *billing.RecordedPayment {
	t.Helper()
	p, err := f.svc.RecordPayment(f.ctx, billing.PaymentInput{
		PaymentDate:  date,
		AmountCents:  centsOf(amount),
		Reference:    ref,
		Applications: apps,
	})
	require.NoError(t, err)
	return p
}

func str(s string) *string { return &s }

func centsOf(v int64) generic.Cents { return generic.Cents(v) }
