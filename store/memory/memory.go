// Package memory provides an in-memory billing.Repository.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements billing.Repository. Reads take a shared lock; WithTx
// takes the exclusive lock for the whole callback and restores a snapshot
// when the callback fails.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	nextID    int64
	clients   map[billing.ClientID]billing.Client
	workTypes map[billing.WorkTypeID]billing.WorkType
	entries   map[billing.TimeEntryID]billing.TimeEntry
	invoices  map[billing.InvoiceID]billing.Invoice
	lines     map[billing.InvoiceID][]billing.InvoiceLine
	payments  map[billing.PaymentID]billing.Payment
	apps      []billing.PaymentApplication
	company   *billing.CompanySettings
}

var _ billing.Repository = (*Memory)(nil)
var _ billing.Tx = (*state)(nil)

func NewMemory() *Memory {
	return &Memory{st: &state{
		clients:   make(map[billing.ClientID]billing.Client),
		workTypes: make(map[billing.WorkTypeID]billing.WorkType),
		entries:   make(map[billing.TimeEntryID]billing.TimeEntry),
		invoices:  make(map[billing.InvoiceID]billing.Invoice),
		lines:     make(map[billing.InvoiceID][]billing.InvoiceLine),
		payments:  make(map[billing.PaymentID]billing.Payment),
	}}
}

// =============================================================================
// MASTER DATA
// =============================================================================

// SaveClient inserts a client (zero ID) or replaces an existing one.
func (m *Memory) SaveClient(_ context.Context, c billing.Client) (*billing.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = billing.ClientID(m.st.id())
	} else if _, ok := m.st.clients[c.ID]; !ok {
		return nil, &generic.NotFoundError{Resource: "client", ID: c.ID}
	}
	m.st.clients[c.ID] = c
	return &c, nil
}

// ListClients returns clients ordered by name.
func (m *Memory) ListClients(_ context.Context) ([]billing.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.Client, 0, len(m.st.clients))
	for _, c := range m.st.clients {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SaveWorkType inserts a work type; codes are unique.
func (m *Memory) SaveWorkType(_ context.Context, wt billing.WorkType) (*billing.WorkType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.st.workTypes {
		if existing.Code == wt.Code && existing.ID != wt.ID {
			return nil, &generic.ConflictError{Resource: "work type", Reason: "code already used"}
		}
	}
	if wt.ID == 0 {
		wt.ID = billing.WorkTypeID(m.st.id())
	}
	m.st.workTypes[wt.ID] = wt
	return &wt, nil
}

// SaveCompanySettings replaces the issuer identity.
func (m *Memory) SaveCompanySettings(_ context.Context, cs billing.CompanySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.company = &cs
	return nil
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = NewMemory().st
	return nil
}

// =============================================================================
// REPOSITORY (locked delegation to state)
// =============================================================================

func (m *Memory) GetClient(ctx context.Context, id billing.ClientID) (*billing.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetClient(ctx, id)
}

func (m *Memory) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetInvoice(ctx, id)
}

func (m *Memory) GetTimeEntry(ctx context.Context, id billing.TimeEntryID) (*billing.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetTimeEntry(ctx, id)
}

func (m *Memory) ListUninvoicedTimeEntries(ctx context.Context, clientID billing.ClientID, period generic.Period) ([]billing.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListUninvoicedTimeEntries(ctx, clientID, period)
}

func (m *Memory) InvoiceNumberExists(ctx context.Context, number int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.InvoiceNumberExists(ctx, number)
}

func (m *Memory) SumApplied(ctx context.Context, invoiceID billing.InvoiceID) (generic.Cents, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.SumApplied(ctx, invoiceID)
}

func (m *Memory) ListWorkTypes(_ context.Context) ([]billing.WorkType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.WorkType, 0, len(m.st.workTypes))
	for _, wt := range m.st.workTypes {
		result = append(result, wt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *Memory) ListInvoices(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.Invoice
	for _, inv := range m.st.invoices {
		if filter.ClientID != 0 && inv.ClientID != filter.ClientID {
			continue
		}
		if filter.ExcludeVoided && inv.IsVoided() {
			continue
		}
		if !filter.Dates.Contains(inv.InvoiceDate) {
			continue
		}
		result = append(result, inv)
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].InvoiceDate.Compare(result[j].InvoiceDate); c != 0 {
			return c < 0
		}
		return result[i].InvoiceNumber < result[j].InvoiceNumber
	})
	return result, nil
}

func (m *Memory) ListInvoiceLines(_ context.Context, invoiceID billing.InvoiceID) ([]billing.InvoiceLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lines := m.st.lines[invoiceID]
	result := make([]billing.InvoiceLine, len(lines))
	for i, l := range lines {
		wt := m.st.workTypes[l.WorkTypeID]
		l.WorkTypeCode, l.WorkTypeDescription = wt.Code, wt.Description
		result[i] = l
	}
	return result, nil
}

func (m *Memory) ListPaymentApplications(_ context.Context, filter billing.ApplicationFilter) ([]billing.AppliedPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.AppliedPayment
	for _, app := range m.st.apps {
		p := m.st.payments[app.PaymentID]
		inv := m.st.invoices[app.InvoiceID]
		if filter.ClientID != 0 && inv.ClientID != filter.ClientID {
			continue
		}
		if filter.InvoiceID != 0 && inv.ID != filter.InvoiceID {
			continue
		}
		if filter.ExcludeVoided && inv.IsVoided() {
			continue
		}
		if !filter.PaymentDates.Contains(p.PaymentDate) {
			continue
		}
		result = append(result, billing.AppliedPayment{
			PaymentApplication: app,
			PaymentDate:        p.PaymentDate,
			PaymentNote:        p.Note,
			InvoiceNumber:      inv.InvoiceNumber,
			ClientID:           inv.ClientID,
			InvoiceStatus:      inv.Status,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].PaymentDate.Compare(result[j].PaymentDate); c != 0 {
			return c < 0
		}
		if result[i].PaymentID != result[j].PaymentID {
			return result[i].PaymentID < result[j].PaymentID
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) MaxInvoiceNumber(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var highest int64
	for _, inv := range m.st.invoices {
		if inv.InvoiceNumber > highest {
			highest = inv.InvoiceNumber
		}
	}
	return highest, nil
}

func (m *Memory) GetCompanySettings(_ context.Context) (*billing.CompanySettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.st.company == nil {
		return nil, nil
	}
	cs := *m.st.company
	return &cs, nil
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(billing.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (st *state) clone() *state {
	c := &state{
		nextID:    st.nextID,
		clients:   make(map[billing.ClientID]billing.Client, len(st.clients)),
		workTypes: make(map[billing.WorkTypeID]billing.WorkType, len(st.workTypes)),
		entries:   make(map[billing.TimeEntryID]billing.TimeEntry, len(st.entries)),
		invoices:  make(map[billing.InvoiceID]billing.Invoice, len(st.invoices)),
		lines:     make(map[billing.InvoiceID][]billing.InvoiceLine, len(st.lines)),
		payments:  make(map[billing.PaymentID]billing.Payment, len(st.payments)),
		apps:      append([]billing.PaymentApplication{}, st.apps...),
		company:   st.company,
	}
	for k, v := range st.clients {
		c.clients[k] = v
	}
	for k, v := range st.workTypes {
		c.workTypes[k] = v
	}
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.invoices {
		c.invoices[k] = v
	}
	for k, v := range st.lines {
		c.lines[k] = append([]billing.InvoiceLine{}, v...)
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	return c
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *state) GetClient(_ context.Context, id billing.ClientID) (*billing.Client, error) {
	c, ok := st.clients[id]
	if !ok {
		return nil, &generic.NotFoundError{Resource: "client", ID: id}
	}
	return &c, nil
}

func (st *state) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	inv, ok := st.invoices[id]
	if !ok {
		return nil, &generic.NotFoundError{Resource: "invoice", ID: id}
	}
	return &inv, nil
}

func (st *state) GetTimeEntry(_ context.Context, id billing.TimeEntryID) (*billing.TimeEntry, error) {
	e, ok := st.entries[id]
	if !ok {
		return nil, &generic.NotFoundError{Resource: "time entry", ID: id}
	}
	return &e, nil
}

func (st *state) ListUninvoicedTimeEntries(_ context.Context, clientID billing.ClientID, period generic.Period) ([]billing.TimeEntry, error) {
	var result []billing.TimeEntry
	for _, e := range st.entries {
		if e.ClientID == clientID && !e.IsInvoiced() && period.Contains(e.WorkDate) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].WorkDate.Compare(result[j].WorkDate); c != 0 {
			return c < 0
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (st *state) InvoiceNumberExists(_ context.Context, number int64) (bool, error) {
	for _, inv := range st.invoices {
		if inv.InvoiceNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) SumApplied(_ context.Context, invoiceID billing.InvoiceID) (generic.Cents, error) {
	var total generic.Cents
	for _, app := range st.apps {
		if app.InvoiceID == invoiceID {
			total += app.AmountCents
		}
	}
	return total, nil
}

func (st *state) InsertInvoice(ctx context.Context, inv billing.Invoice) (*billing.Invoice, error) {
	if exists, _ := st.InvoiceNumberExists(ctx, inv.InvoiceNumber); exists {
		return nil, &generic.ConflictError{Resource: "invoice", Reason: "invoice number already used"}
	}
	if _, ok := st.clients[inv.ClientID]; !ok {
		return nil, &generic.NotFoundError{Resource: "client", ID: inv.ClientID}
	}
	inv.ID = billing.InvoiceID(st.id())
	st.invoices[inv.ID] = inv
	return &inv, nil
}

func (st *state) InsertInvoiceLines(_ context.Context, invoiceID billing.InvoiceID, lines []billing.InvoiceLine) ([]billing.InvoiceLine, error) {
	if _, ok := st.invoices[invoiceID]; !ok {
		return nil, &generic.NotFoundError{Resource: "invoice", ID: invoiceID}
	}
	saved := make([]billing.InvoiceLine, len(lines))
	for i, l := range lines {
		l.ID = st.id()
		l.InvoiceID = invoiceID
		saved[i] = l
	}
	st.lines[invoiceID] = append(st.lines[invoiceID], saved...)
	return saved, nil
}

func (st *state) ClaimTimeEntries(_ context.Context, ids []billing.TimeEntryID, invoiceID billing.InvoiceID) error {
	for _, id := range ids {
		e, ok := st.entries[id]
		if !ok {
			return &generic.NotFoundError{Resource: "time entry", ID: id}
		}
		if e.IsInvoiced() {
			return &generic.ConflictError{Resource: "time entry", Reason: "already claimed by another invoice"}
		}
	}
	for _, id := range ids {
		e := st.entries[id]
		claimed := invoiceID
		e.InvoiceID = &claimed
		st.entries[id] = e
	}
	return nil
}

func (st *state) UpdateInvoiceStatus(_ context.Context, id billing.InvoiceID, status billing.InvoiceStatus) error {
	inv, ok := st.invoices[id]
	if !ok {
		return &generic.NotFoundError{Resource: "invoice", ID: id}
	}
	inv.Status = status
	st.invoices[id] = inv
	return nil
}

func (st *state) InsertTimeEntry(_ context.Context, e billing.TimeEntry) (*billing.TimeEntry, error) {
	e.ID = billing.TimeEntryID(st.id())
	st.entries[e.ID] = e
	return &e, nil
}

func (st *state) UpdateTimeEntry(_ context.Context, e billing.TimeEntry) error {
	current, ok := st.entries[e.ID]
	if !ok {
		return &generic.NotFoundError{Resource: "time entry", ID: e.ID}
	}
	e.InvoiceID = current.InvoiceID
	st.entries[e.ID] = e
	return nil
}

func (st *state) DeleteTimeEntry(_ context.Context, id billing.TimeEntryID) error {
	if _, ok := st.entries[id]; !ok {
		return &generic.NotFoundError{Resource: "time entry", ID: id}
	}
	delete(st.entries, id)
	return nil
}

func (st *state) InsertPayment(_ context.Context, p billing.Payment) (*billing.Payment, error) {
	for _, existing := range st.payments {
		if p.Reference != "" && existing.Reference == p.Reference {
			return nil, &generic.ConflictError{Resource: "payment", Reason: "reference already recorded"}
		}
	}
	p.ID = billing.PaymentID(st.id())
	st.payments[p.ID] = p
	return &p, nil
}

func (st *state) InsertPaymentApplication(_ context.Context, app billing.PaymentApplication) (*billing.PaymentApplication, error) {
	if _, ok := st.payments[app.PaymentID]; !ok {
		return nil, &generic.NotFoundError{Resource: "payment", ID: app.PaymentID}
	}
	if _, ok := st.invoices[app.InvoiceID]; !ok {
		return nil, &generic.NotFoundError{Resource: "invoice", ID: app.InvoiceID}
	}
	app.ID = billing.PaymentApplicationID(st.id())
	st.apps = append(st.apps, app)
	return &app, nil
}
