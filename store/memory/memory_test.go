package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/store/memory"
)

func TestMemory_MasterData(t *testing.T) {
	store := memory.NewMemory()
	ctx := context.Background()

	zed, err := store.SaveClient(ctx, billing.Client{Name: "Zed"})
	require.NoError(t, err)
	_, err = store.SaveClient(ctx, billing.Client{Name: "Acme"})
	require.NoError(t, err)

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "Acme", clients[0].Name)

	zed.Email = "z@zed.example"
	_, err = store.SaveClient(ctx, *zed)
	require.NoError(t, err)
	got, err := store.GetClient(ctx, zed.ID)
	require.NoError(t, err)
	assert.Equal(t, "z@zed.example", got.Email)

	_, err = store.SaveClient(ctx, billing.Client{ID: 999, Name: "Ghost"})
	assert.Equal(t, generic.KindNotFound, generic.KindOf(err))

	_, err = store.SaveWorkType(ctx, billing.WorkType{Code: "DEV"})
	require.NoError(t, err)
	_, err = store.SaveWorkType(ctx, billing.WorkType{Code: "DEV"})
	assert.Equal(t, generic.KindConflict, generic.KindOf(err))

	require.NoError(t, store.Reset(ctx))
	clients, err = store.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestMemory_WithTxRestoresSnapshotOnError(t *testing.T) {
	store := memory.NewMemory()
	ctx := context.Background()
	c, err := store.SaveClient(ctx, billing.Client{Name: "Acme"})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx billing.Tx) error {
		if _, err := tx.InsertInvoice(ctx, billing.Invoice{InvoiceNumber: 1, ClientID: c.ID}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	exists, err := store.InvoiceNumberExists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_ClaimIsAllOrNothing(t *testing.T) {
	store := memory.NewMemory()
	ctx := context.Background()
	c, err := store.SaveClient(ctx, billing.Client{Name: "Acme"})
	require.NoError(t, err)

	var free, taken billing.TimeEntryID
	var first, second billing.InvoiceID
	require.NoError(t, store.WithTx(ctx, func(tx billing.Tx) error {
		a, _ := tx.InsertTimeEntry(ctx, billing.TimeEntry{ClientID: c.ID, MinutesSpent: 10, WorkDate: generic.MustParseDate("2025-01-01")})
		b, _ := tx.InsertTimeEntry(ctx, billing.TimeEntry{ClientID: c.ID, MinutesSpent: 10, WorkDate: generic.MustParseDate("2025-01-02")})
		i1, _ := tx.InsertInvoice(ctx, billing.Invoice{InvoiceNumber: 1, ClientID: c.ID})
		i2, _ := tx.InsertInvoice(ctx, billing.Invoice{InvoiceNumber: 2, ClientID: c.ID})
		free, taken, first, second = a.ID, b.ID, i1.ID, i2.ID
		return tx.ClaimTimeEntries(ctx, []billing.TimeEntryID{taken}, first)
	}))

	err = store.WithTx(ctx, func(tx billing.Tx) error {
		return tx.ClaimTimeEntries(ctx, []billing.TimeEntryID{free, taken}, second)
	})
	assert.Equal(t, generic.KindConflict, generic.KindOf(err))

	e, err := store.GetTimeEntry(ctx, free)
	require.NoError(t, err)
	assert.False(t, e.IsInvoiced())
}

func TestMemory_ConcurrentInvoiceRunsBillOnce(t *testing.T) {
	// GIVEN: Uninvoiced January entries
	// WHEN: Several invoice runs for January race
	// THEN: Exactly one wins; the rest find nothing to bill
	store := memory.NewMemory()
	ctx := context.Background()
	svc := billing.NewService(store, nil)

	c, err := store.SaveClient(ctx, billing.Client{Name: "Acme", HourlyRateCents: 6000})
	require.NoError(t, err)
	wt, err := store.SaveWorkType(ctx, billing.WorkType{Code: "DEV"})
	require.NoError(t, err)
	for _, day := range []string{"2025-01-02", "2025-01-03", "2025-01-04"} {
		_, err := svc.LogTime(ctx, billing.TimeEntryInput{ClientID: c.ID, WorkTypeID: wt.ID, WorkDate: day, MinutesSpent: 60})
		require.NoError(t, err)
	}

	const runs = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		empty  int
		others []error
	)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(number int64) {
			defer wg.Done()
			_, err := svc.CreateInvoiceFromTimeEntries(ctx, billing.CreateInvoiceInput{
				ClientID: c.ID, StartDate: "2025-01-01", EndDate: "2025-01-31",
				InvoiceNumber: number, InvoiceDate: "2025-01-31", DueDate: "2025-02-28",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, billing.ErrNoUninvoicedEntries):
				empty++
			default:
				others = append(others, err)
			}
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, runs-1, empty)
	assert.Empty(t, others)

	invoices, err := store.ListInvoices(ctx, billing.InvoiceFilter{ClientID: c.ID})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, generic.Cents(18000), invoices[0].TotalCents)
}
