/*
Package sqlite provides a SQLite-backed implementation of billing.Repository.

PURPOSE:
  Persists clients, work types, time entries, invoices with their lines,
  payments with their applications, and the company settings. The same
  schema ports to PostgreSQL with minor dialect changes.

KEY TABLES:
  clients:              Billable parties with rate and discount
  work_types:           Categories of work (unique code)
  time_entries:         Tracked minutes; invoice_id NULL until claimed
  invoices:             Billing documents (unique invoice_number)
  invoice_lines:        Aggregated rows per (work type, project)
  payments:             Money received (unique reference)
  payment_applications: Allocation of a payment to an invoice
  company_settings:     Single row, issuer identity

CLAIMING:
  ClaimTimeEntries runs
    UPDATE time_entries SET invoice_id = ? WHERE id IN (...) AND invoice_id IS NULL
  and compares the affected row count with the number of ids requested. A
  shortfall means another run got there first; the caller's transaction is
  rolled back.

DATES:
  Calendar dates are stored as TEXT YYYY-MM-DD. Comparisons use
  substr(col, 1, 10) so rows written with a time suffix still compare by
  day, and reads go through generic.NormalizeDate.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, plus a single pooled connection so
  ":memory:" databases are shared by every query. Inside WithTx every read
  goes through the *sql.Tx.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := billing.NewService(store, logger)

SEE ALSO:
  - billing/repository.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
)

// Store implements billing.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ billing.Repository = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT,
		address TEXT,
		hourly_rate_cents INTEGER NOT NULL DEFAULT 0,
		discount_percent REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS work_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_number INTEGER NOT NULL UNIQUE,
		client_id INTEGER NOT NULL REFERENCES clients(id),
		invoice_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		subtotal_cents INTEGER NOT NULL,
		discount_cents INTEGER NOT NULL,
		total_cents INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_client_date
		ON invoices(client_id, invoice_date);

	CREATE TABLE IF NOT EXISTS time_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id),
		work_type_id INTEGER NOT NULL REFERENCES work_types(id),
		project_name TEXT,
		work_date TEXT NOT NULL,
		minutes_spent INTEGER NOT NULL CHECK (minutes_spent > 0),
		description TEXT,
		invoice_id INTEGER REFERENCES invoices(id),
		created_at TEXT NOT NULL
	);

	-- Hot path: uninvoiced entries of one client in a date range
	CREATE INDEX IF NOT EXISTS idx_time_entries_uninvoiced
		ON time_entries(client_id, work_date) WHERE invoice_id IS NULL;

	CREATE TABLE IF NOT EXISTS invoice_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id INTEGER NOT NULL REFERENCES invoices(id),
		work_type_id INTEGER NOT NULL REFERENCES work_types(id),
		project_name TEXT,
		total_minutes INTEGER NOT NULL,
		hourly_rate_cents INTEGER NOT NULL,
		amount_cents INTEGER NOT NULL,
		discount_cents INTEGER NOT NULL DEFAULT 0,
		entry_count INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice
		ON invoice_lines(invoice_id);

	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payment_date TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		note TEXT,
		reference TEXT,
		created_at TEXT NOT NULL
	);

	-- Retried submissions must not record the same payment twice
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_reference
		ON payments(reference) WHERE reference IS NOT NULL;

	CREATE TABLE IF NOT EXISTS payment_applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payment_id INTEGER NOT NULL REFERENCES payments(id),
		invoice_id INTEGER NOT NULL REFERENCES invoices(id),
		amount_cents INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payment_applications_invoice
		ON payment_applications(invoice_id);

	CREATE TABLE IF NOT EXISTS company_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT,
		address TEXT,
		email TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries runs every statement against one querier. It implements
// billing.Tx; Store wraps it with locking for use outside a transaction.
type queries struct {
	q querier
}

var _ billing.Tx = queries{}

func (s *Store) read() queries {
	return queries{q: s.db}
}

// =============================================================================
// MASTER DATA
// =============================================================================

// SaveClient inserts a client (zero ID) or updates an existing one.
func (s *Store) SaveClient(ctx context.Context, c billing.Client) (*billing.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO clients (name, email, address, hourly_rate_cents, discount_percent, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.Name, nullString(c.Email), nullString(c.Address), int64(c.HourlyRateCents), c.DiscountPercent,
			c.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return nil, fmt.Errorf("failed to insert client: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		c.ID = billing.ClientID(id)
		return &c, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, email = ?, address = ?, hourly_rate_cents = ?, discount_percent = ?
		WHERE id = ?
	`, c.Name, nullString(c.Email), nullString(c.Address), int64(c.HourlyRateCents), c.DiscountPercent, int64(c.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &generic.NotFoundError{Resource: "client", ID: c.ID}
	}
	return &c, nil
}

// ListClients returns clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, clientColumns+` ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []billing.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// SaveWorkType inserts a work type; codes are unique.
func (s *Store) SaveWorkType(ctx context.Context, wt billing.WorkType) (*billing.WorkType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO work_types (code, description) VALUES (?, ?)`,
		wt.Code, nullString(wt.Description))
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &generic.ConflictError{Resource: "work type", Reason: "code already used"}
		}
		return nil, fmt.Errorf("failed to insert work type: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	wt.ID = billing.WorkTypeID(id)
	return &wt, nil
}

// SaveCompanySettings replaces the issuer identity.
func (s *Store) SaveCompanySettings(ctx context.Context, cs billing.CompanySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_settings (id, name, address, email) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, address = excluded.address, email = excluded.email
	`, cs.Name, cs.Address, cs.Email)
	if err != nil {
		return fmt.Errorf("failed to save company settings: %w", err)
	}
	return nil
}

// Reset clears all data (for demo/testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"payment_applications", "payments", "invoice_lines", "time_entries",
		"invoices", "work_types", "clients", "company_settings",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	// Restart AUTOINCREMENT counters; the table is absent before the first insert.
	_, _ = s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence")
	return nil
}

// =============================================================================
// REPOSITORY (billing.Repository interface)
// =============================================================================

func (s *Store) GetClient(ctx context.Context, id billing.ClientID) (*billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetClient(ctx, id)
}

func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetInvoice(ctx, id)
}

func (s *Store) GetTimeEntry(ctx context.Context, id billing.TimeEntryID) (*billing.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetTimeEntry(ctx, id)
}

func (s *Store) ListUninvoicedTimeEntries(ctx context.Context, clientID billing.ClientID, period generic.Period) ([]billing.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListUninvoicedTimeEntries(ctx, clientID, period)
}

func (s *Store) InvoiceNumberExists(ctx context.Context, number int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().InvoiceNumberExists(ctx, number)
}

func (s *Store) SumApplied(ctx context.Context, invoiceID billing.InvoiceID) (generic.Cents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().SumApplied(ctx, invoiceID)
}

// ListWorkTypes returns work types ordered by code.
func (s *Store) ListWorkTypes(ctx context.Context) ([]billing.WorkType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, code, COALESCE(description, '') FROM work_types ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query work types: %w", err)
	}
	defer rows.Close()

	var types []billing.WorkType
	for rows.Next() {
		var wt billing.WorkType
		if err := rows.Scan(&wt.ID, &wt.Code, &wt.Description); err != nil {
			return nil, fmt.Errorf("failed to scan work type: %w", err)
		}
		types = append(types, wt)
	}
	return types, rows.Err()
}

// ListInvoices returns invoices ordered by invoice date, then number.
func (s *Store) ListInvoices(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := dateRange("i.invoice_date", filter.Dates)
	if filter.ClientID != 0 {
		where = append(where, "i.client_id = ?")
		args = append(args, int64(filter.ClientID))
	}
	if filter.ExcludeVoided {
		where = append(where, "i.status <> ?")
		args = append(args, string(billing.StatusVoided))
	}

	query := invoiceColumns + whereClause(where) + ` ORDER BY substr(i.invoice_date, 1, 10), i.invoice_number`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// ListInvoiceLines returns the lines of an invoice with work type details.
func (s *Store) ListInvoiceLines(ctx context.Context, invoiceID billing.InvoiceID) ([]billing.InvoiceLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.invoice_id, l.work_type_id, COALESCE(l.project_name, ''), l.total_minutes,
		       l.hourly_rate_cents, l.amount_cents, l.discount_cents, l.entry_count,
		       w.code, COALESCE(w.description, '')
		FROM invoice_lines l
		JOIN work_types w ON w.id = l.work_type_id
		WHERE l.invoice_id = ?
		ORDER BY l.id
	`, int64(invoiceID))
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []billing.InvoiceLine
	for rows.Next() {
		var l billing.InvoiceLine
		err := rows.Scan(&l.ID, &l.InvoiceID, &l.WorkTypeID, &l.ProjectName, &l.TotalMinutes,
			&l.HourlyRateCents, &l.AmountCents, &l.DiscountCents, &l.EntryCount,
			&l.WorkTypeCode, &l.WorkTypeDescription)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListPaymentApplications returns applications joined with their payment
// and invoice, ordered by payment date, payment id, application id.
func (s *Store) ListPaymentApplications(ctx context.Context, filter billing.ApplicationFilter) ([]billing.AppliedPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := dateRange("p.payment_date", filter.PaymentDates)
	if filter.ClientID != 0 {
		where = append(where, "i.client_id = ?")
		args = append(args, int64(filter.ClientID))
	}
	if filter.InvoiceID != 0 {
		where = append(where, "a.invoice_id = ?")
		args = append(args, int64(filter.InvoiceID))
	}
	if filter.ExcludeVoided {
		where = append(where, "i.status <> ?")
		args = append(args, string(billing.StatusVoided))
	}

	query := `
		SELECT a.id, a.payment_id, a.invoice_id, a.amount_cents,
		       p.payment_date, COALESCE(p.note, ''),
		       i.invoice_number, i.client_id, i.status
		FROM payment_applications a
		JOIN payments p ON p.id = a.payment_id
		JOIN invoices i ON i.id = a.invoice_id` +
		whereClause(where) +
		` ORDER BY substr(p.payment_date, 1, 10), p.id, a.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment applications: %w", err)
	}
	defer rows.Close()

	var apps []billing.AppliedPayment
	for rows.Next() {
		var (
			a           billing.AppliedPayment
			paymentDate string
		)
		err := rows.Scan(&a.ID, &a.PaymentID, &a.InvoiceID, &a.AmountCents,
			&paymentDate, &a.PaymentNote,
			&a.InvoiceNumber, &a.ClientID, &a.InvoiceStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment application: %w", err)
		}
		if a.PaymentDate, err = generic.NormalizeDate(paymentDate); err != nil {
			return nil, fmt.Errorf("payment %d: %w", a.PaymentID, err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// MaxInvoiceNumber returns the highest invoice number, or 0.
func (s *Store) MaxInvoiceNumber(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var highest int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(invoice_number), 0) FROM invoices`).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("failed to read max invoice number: %w", err)
	}
	return highest, nil
}

// GetCompanySettings returns nil, nil when nothing has been saved.
func (s *Store) GetCompanySettings(ctx context.Context) (*billing.CompanySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cs billing.CompanySettings
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(name, ''), COALESCE(address, ''), COALESCE(email, '')
		FROM company_settings WHERE id = 1
	`).Scan(&cs.Name, &cs.Address, &cs.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read company settings: %w", err)
	}
	return &cs, nil
}

// =============================================================================
// TRANSACTIONAL STORE (billing.Tx interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx billing.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

const clientColumns = `
	SELECT id, name, COALESCE(email, ''), COALESCE(address, ''), hourly_rate_cents, discount_percent, created_at
	FROM clients`

const invoiceColumns = `
	SELECT i.id, i.invoice_number, i.client_id, i.invoice_date, i.due_date, i.status,
	       i.subtotal_cents, i.discount_cents, i.total_cents, i.created_at
	FROM invoices i`

const entryColumns = `
	SELECT id, client_id, work_type_id, COALESCE(project_name, ''), work_date, minutes_spent,
	       COALESCE(description, ''), invoice_id, created_at
	FROM time_entries`

func (r queries) GetClient(ctx context.Context, id billing.ClientID) (*billing.Client, error) {
	c, err := scanClient(r.q.QueryRowContext(ctx, clientColumns+` WHERE id = ?`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Resource: "client", ID: id}
	}
	return c, err
}

func (r queries) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRowContext(ctx, invoiceColumns+` WHERE i.id = ?`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Resource: "invoice", ID: id}
	}
	return inv, err
}

func (r queries) GetTimeEntry(ctx context.Context, id billing.TimeEntryID) (*billing.TimeEntry, error) {
	e, err := scanEntry(r.q.QueryRowContext(ctx, entryColumns+` WHERE id = ?`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Resource: "time entry", ID: id}
	}
	return e, err
}

func (r queries) ListUninvoicedTimeEntries(ctx context.Context, clientID billing.ClientID, period generic.Period) ([]billing.TimeEntry, error) {
	where, args := dateRange("work_date", period)
	where = append([]string{"client_id = ?", "invoice_id IS NULL"}, where...)
	args = append([]any{int64(clientID)}, args...)

	rows, err := r.q.QueryContext(ctx,
		entryColumns+whereClause(where)+` ORDER BY substr(work_date, 1, 10), id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var entries []billing.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r queries) InvoiceNumberExists(ctx context.Context, number int64) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM invoices WHERE invoice_number = ?", number,
	).Scan(&count)
	return count > 0, err
}

func (r queries) SumApplied(ctx context.Context, invoiceID billing.InvoiceID) (generic.Cents, error) {
	var total int64
	err := r.q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM payment_applications WHERE invoice_id = ?", int64(invoiceID),
	).Scan(&total)
	return generic.Cents(total), err
}

func (r queries) InsertInvoice(ctx context.Context, inv billing.Invoice) (*billing.Invoice, error) {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO invoices
		(invoice_number, client_id, invoice_date, due_date, status,
		 subtotal_cents, discount_cents, total_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.InvoiceNumber,
		int64(inv.ClientID),
		inv.InvoiceDate.String(),
		inv.DueDate.String(),
		string(inv.Status),
		int64(inv.SubtotalCents),
		int64(inv.DiscountCents),
		int64(inv.TotalCents),
		inv.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &generic.ConflictError{Resource: "invoice", Reason: "invoice number already used"}
		}
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	inv.ID = billing.InvoiceID(id)
	return &inv, nil
}

func (r queries) InsertInvoiceLines(ctx context.Context, invoiceID billing.InvoiceID, lines []billing.InvoiceLine) ([]billing.InvoiceLine, error) {
	saved := make([]billing.InvoiceLine, len(lines))
	for i, l := range lines {
		res, err := r.q.ExecContext(ctx, `
			INSERT INTO invoice_lines
			(invoice_id, work_type_id, project_name, total_minutes, hourly_rate_cents,
			 amount_cents, discount_cents, entry_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			int64(invoiceID),
			int64(l.WorkTypeID),
			nullString(l.ProjectName),
			l.TotalMinutes,
			int64(l.HourlyRateCents),
			int64(l.AmountCents),
			int64(l.DiscountCents),
			l.EntryCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert invoice line: %w", err)
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		l.InvoiceID = invoiceID
		saved[i] = l
	}
	return saved, nil
}

func (r queries) ClaimTimeEntries(ctx context.Context, ids []billing.TimeEntryID, invoiceID billing.InvoiceID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, int64(invoiceID))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, int64(id))
	}

	res, err := r.q.ExecContext(ctx,
		`UPDATE time_entries SET invoice_id = ? WHERE id IN (`+strings.Join(placeholders, ", ")+`) AND invoice_id IS NULL`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to claim time entries: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if claimed != int64(len(ids)) {
		return &generic.ConflictError{
			Resource: "time entry",
			Reason:   fmt.Sprintf("%d of %d entries already claimed by another invoice", int64(len(ids))-claimed, len(ids)),
		}
	}
	return nil
}

func (r queries) UpdateInvoiceStatus(ctx context.Context, id billing.InvoiceID, status billing.InvoiceStatus) error {
	res, err := r.q.ExecContext(ctx, `UPDATE invoices SET status = ? WHERE id = ?`, string(status), int64(id))
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Resource: "invoice", ID: id}
	}
	return nil
}

func (r queries) InsertTimeEntry(ctx context.Context, e billing.TimeEntry) (*billing.TimeEntry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO time_entries
		(client_id, work_type_id, project_name, work_date, minutes_spent, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		int64(e.ClientID),
		int64(e.WorkTypeID),
		nullString(e.ProjectName),
		e.WorkDate.String(),
		e.MinutesSpent,
		nullString(e.Description),
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert time entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	e.ID = billing.TimeEntryID(id)
	return &e, nil
}

// UpdateTimeEntry never touches invoice_id and refuses claimed rows.
func (r queries) UpdateTimeEntry(ctx context.Context, e billing.TimeEntry) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE time_entries
		SET client_id = ?, work_type_id = ?, project_name = ?, work_date = ?, minutes_spent = ?, description = ?
		WHERE id = ? AND invoice_id IS NULL
	`,
		int64(e.ClientID),
		int64(e.WorkTypeID),
		nullString(e.ProjectName),
		e.WorkDate.String(),
		e.MinutesSpent,
		nullString(e.Description),
		int64(e.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update time entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrInvoiced(ctx, e.ID)
	}
	return nil
}

func (r queries) DeleteTimeEntry(ctx context.Context, id billing.TimeEntryID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ? AND invoice_id IS NULL`, int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete time entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrInvoiced(ctx, id)
	}
	return nil
}

func (r queries) missingOrInvoiced(ctx context.Context, id billing.TimeEntryID) error {
	if _, err := r.GetTimeEntry(ctx, id); err != nil {
		return err
	}
	return billing.ErrTimeEntryInvoiced
}

func (r queries) InsertPayment(ctx context.Context, p billing.Payment) (*billing.Payment, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (payment_date, amount_cents, note, reference, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		p.PaymentDate.String(),
		int64(p.AmountCents),
		nullString(p.Note),
		nullString(p.Reference),
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &generic.ConflictError{Resource: "payment", Reason: "reference already recorded"}
		}
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	p.ID = billing.PaymentID(id)
	return &p, nil
}

func (r queries) InsertPaymentApplication(ctx context.Context, app billing.PaymentApplication) (*billing.PaymentApplication, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO payment_applications (payment_id, invoice_id, amount_cents) VALUES (?, ?, ?)
	`, int64(app.PaymentID), int64(app.InvoiceID), int64(app.AmountCents))
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment application: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	app.ID = billing.PaymentApplicationID(id)
	return &app, nil
}

// =============================================================================
// SCANNING
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*billing.Client, error) {
	var (
		c         billing.Client
		createdAt string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Address, &c.HourlyRateCents, &c.DiscountPercent, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan client: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func scanInvoice(row scanner) (*billing.Invoice, error) {
	var (
		inv                           billing.Invoice
		invoiceDate, dueDate, created string
	)
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &invoiceDate, &dueDate, &inv.Status,
		&inv.SubtotalCents, &inv.DiscountCents, &inv.TotalCents, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	if inv.InvoiceDate, err = generic.NormalizeDate(invoiceDate); err != nil {
		return nil, fmt.Errorf("invoice %d: %w", inv.ID, err)
	}
	if inv.DueDate, err = generic.NormalizeDate(dueDate); err != nil {
		return nil, fmt.Errorf("invoice %d: %w", inv.ID, err)
	}
	inv.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &inv, nil
}

func scanEntry(row scanner) (*billing.TimeEntry, error) {
	var (
		e                 billing.TimeEntry
		workDate, created string
		invoiceID         sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.ClientID, &e.WorkTypeID, &e.ProjectName, &workDate, &e.MinutesSpent,
		&e.Description, &invoiceID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan time entry: %w", err)
	}
	if e.WorkDate, err = generic.NormalizeDate(workDate); err != nil {
		return nil, fmt.Errorf("time entry %d: %w", e.ID, err)
	}
	if invoiceID.Valid {
		id := billing.InvoiceID(invoiceID.Int64)
		e.InvoiceID = &id
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &e, nil
}

// Helper functions

// dateRange turns a period into conditions on column, skipping open sides.
func dateRange(column string, p generic.Period) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if !p.Start.IsZero() {
		where = append(where, "substr("+column+", 1, 10) >= ?")
		args = append(args, p.Start.String())
	}
	if !p.End.IsZero() {
		where = append(where, "substr("+column+", 1, 10) <= ?")
		args = append(args, p.End.String())
	}
	return where, args
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
