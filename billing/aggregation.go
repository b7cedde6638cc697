/*
aggregation.go - Time entries to invoice lines

PURPOSE:
  Groups a client's uninvoiced time entries for a date range into invoice
  lines, prices them, applies the client discount, and (on create) writes
  the invoice, its lines and the entry claims as one unit of work.

GROUPING:
  Key = (work type, project name). A missing project and an empty project
  are the same key because project names are normalised to "" on read.
  Lines are ordered by work type id, then project name, so the result does
  not depend on the order entries were stored.

MONEY:
  line.amount = round(total_minutes x rate / 60)
  subtotal    = sum(line.amount)
  discount    = round(subtotal x percent / 100)
  total       = subtotal - discount
  Each line also carries its share of the discount, allocated by largest
  remainder so the shares sum to the invoice discount exactly.

SEE ALSO:
  - generic/types.go: LineAmount, DiscountAmount, Allocate
  - repository.go: Tx contract for ClaimTimeEntries
*/
package billing

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/generic"
)

// =============================================================================
// AGGREGATION - Pure grouping and pricing
// =============================================================================

type lineKey struct {
	WorkTypeID  WorkTypeID
	ProjectName string
}

// LinePreview is one aggregated group before it is persisted.
type LinePreview struct {
	WorkTypeID          WorkTypeID
	WorkTypeCode        string
	WorkTypeDescription string
	ProjectName         string
	TotalMinutes        int64
	HourlyRateCents     generic.Cents
	AmountCents         generic.Cents
	DiscountCents       generic.Cents
	EntryCount          int
	EntryIDs            []TimeEntryID
}

// Preview is the would-be invoice for a client and date range.
type Preview struct {
	Client        Client
	StartDate     generic.Date
	EndDate       generic.Date
	Lines         []LinePreview
	SubtotalCents generic.Cents
	DiscountCents generic.Cents
	TotalCents    generic.Cents
	TotalEntries  int
}

// EntryIDs lists every time entry consumed by the preview.
func (p Preview) EntryIDs() []TimeEntryID {
	ids := make([]TimeEntryID, 0, p.TotalEntries)
	for _, l := range p.Lines {
		ids = append(ids, l.EntryIDs...)
	}
	return ids
}

// Aggregate groups entries and prices them at the client's rate and discount.
// It is the single aggregation used by both preview and create.
func Aggregate(client Client, entries []TimeEntry) Preview {
	groups := make(map[lineKey]*LinePreview)
	for _, e := range entries {
		k := lineKey{WorkTypeID: e.WorkTypeID, ProjectName: NormalizeProject(&e.ProjectName)}
		g, ok := groups[k]
		if !ok {
			g = &LinePreview{
				WorkTypeID:      k.WorkTypeID,
				ProjectName:     k.ProjectName,
				HourlyRateCents: client.HourlyRateCents,
			}
			groups[k] = g
		}
		g.TotalMinutes += e.MinutesSpent
		g.EntryCount++
		g.EntryIDs = append(g.EntryIDs, e.ID)
	}

	lines := make([]LinePreview, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g.EntryIDs, func(i, j int) bool { return g.EntryIDs[i] < g.EntryIDs[j] })
		g.AmountCents = generic.LineAmount(g.TotalMinutes, client.HourlyRateCents)
		lines = append(lines, *g)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].WorkTypeID != lines[j].WorkTypeID {
			return lines[i].WorkTypeID < lines[j].WorkTypeID
		}
		return lines[i].ProjectName < lines[j].ProjectName
	})

	amounts := make([]generic.Cents, len(lines))
	for i, l := range lines {
		amounts[i] = l.AmountCents
	}
	subtotal := generic.Sum(amounts...)
	discount := generic.DiscountAmount(subtotal, client.DiscountPercent)
	for i, share := range generic.Allocate(discount, amounts) {
		lines[i].DiscountCents = share
	}

	return Preview{
		Client:        client,
		Lines:         lines,
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TotalCents:    subtotal - discount,
		TotalEntries:  len(entries),
	}
}

// Verify re-checks the money before anything is persisted.
func (p Preview) Verify() error {
	var amounts, discounts generic.Cents
	for _, l := range p.Lines {
		amounts += l.AmountCents
		discounts += l.DiscountCents
	}
	if amounts != p.SubtotalCents {
		return &generic.InvariantError{Check: "sum of line amounts", Expected: p.SubtotalCents, Actual: amounts}
	}
	if p.TotalCents != p.SubtotalCents-p.DiscountCents {
		return &generic.InvariantError{Check: "total", Expected: p.SubtotalCents - p.DiscountCents, Actual: p.TotalCents}
	}
	if discounts != p.DiscountCents {
		return &generic.InvariantError{Check: "sum of line discounts", Expected: p.DiscountCents, Actual: discounts}
	}
	return nil
}

func (p *Preview) joinWorkTypes(types []WorkType) {
	byID := make(map[WorkTypeID]WorkType, len(types))
	for _, wt := range types {
		byID[wt.ID] = wt
	}
	for i := range p.Lines {
		wt := byID[p.Lines[i].WorkTypeID]
		p.Lines[i].WorkTypeCode = wt.Code
		p.Lines[i].WorkTypeDescription = wt.Description
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// PreviewInvoice aggregates the client's uninvoiced entries dated in
// [startDate, endDate]. An inverted range or no matching entries yields an
// empty preview, not an error.
func (s *Service) PreviewInvoice(ctx context.Context, clientID ClientID, startDate, endDate string) (*Preview, error) {
	period, err := parsePeriod(startDate, endDate)
	if err != nil {
		return nil, err
	}
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListUninvoicedTimeEntries(ctx, clientID, period)
	if err != nil {
		return nil, err
	}
	types, err := s.repo.ListWorkTypes(ctx)
	if err != nil {
		return nil, err
	}

	preview := Aggregate(*client, entries)
	preview.StartDate, preview.EndDate = period.Start, period.End
	preview.joinWorkTypes(types)

	s.logger.Debug("invoice preview",
		zap.Int64("client_id", int64(clientID)),
		zap.Stringer("period", period),
		zap.Int("entries", preview.TotalEntries),
		zap.Int("lines", len(preview.Lines)),
		zap.Int64("total_cents", int64(preview.TotalCents)))
	return &preview, nil
}

// CreateInvoiceInput holds the arguments of CreateInvoiceFromTimeEntries.
type CreateInvoiceInput struct {
	ClientID      ClientID
	StartDate     string
	EndDate       string
	InvoiceNumber int64
	InvoiceDate   string
	DueDate       string
}

// CreateInvoiceFromTimeEntries bills every uninvoiced entry in the range.
// The invoice insert, the line inserts and the entry claims commit together
// or not at all.
func (s *Service) CreateInvoiceFromTimeEntries(ctx context.Context, in CreateInvoiceInput) (*InvoiceDetail, error) {
	period, err := parsePeriod(in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	invoiceDate, err := parseDateField("invoice_date", in.InvoiceDate)
	if err != nil {
		return nil, err
	}
	dueDate, err := parseDateField("due_date", in.DueDate)
	if err != nil {
		return nil, err
	}
	if in.InvoiceNumber <= 0 {
		return nil, invalid("invoice_number", "must be positive")
	}

	client, err := s.repo.GetClient(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	types, err := s.repo.ListWorkTypes(ctx)
	if err != nil {
		return nil, err
	}

	var detail *InvoiceDetail
	err = s.repo.WithTx(ctx, func(tx Tx) error {
		exists, err := tx.InvoiceNumberExists(ctx, in.InvoiceNumber)
		if err != nil {
			return err
		}
		if exists {
			return &generic.ConflictError{Resource: "invoice", Reason: "invoice number already used"}
		}

		entries, err := tx.ListUninvoicedTimeEntries(ctx, in.ClientID, period)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrNoUninvoicedEntries
		}

		preview := Aggregate(*client, entries)
		preview.joinWorkTypes(types)
		if err := preview.Verify(); err != nil {
			return err
		}

		inv, err := tx.InsertInvoice(ctx, Invoice{
			InvoiceNumber: in.InvoiceNumber,
			ClientID:      in.ClientID,
			InvoiceDate:   invoiceDate,
			DueDate:       dueDate,
			Status:        StatusDraft,
			SubtotalCents: preview.SubtotalCents,
			DiscountCents: preview.DiscountCents,
			TotalCents:    preview.TotalCents,
		})
		if err != nil {
			return err
		}

		lines := make([]InvoiceLine, len(preview.Lines))
		for i, l := range preview.Lines {
			lines[i] = InvoiceLine{
				InvoiceID:           inv.ID,
				WorkTypeID:          l.WorkTypeID,
				ProjectName:         l.ProjectName,
				TotalMinutes:        l.TotalMinutes,
				HourlyRateCents:     l.HourlyRateCents,
				AmountCents:         l.AmountCents,
				DiscountCents:       l.DiscountCents,
				EntryCount:          l.EntryCount,
				WorkTypeCode:        l.WorkTypeCode,
				WorkTypeDescription: l.WorkTypeDescription,
			}
		}
		saved, err := tx.InsertInvoiceLines(ctx, inv.ID, lines)
		if err != nil {
			return err
		}
		for i := range saved {
			saved[i].WorkTypeCode = lines[i].WorkTypeCode
			saved[i].WorkTypeDescription = lines[i].WorkTypeDescription
		}

		if err := tx.ClaimTimeEntries(ctx, preview.EntryIDs(), inv.ID); err != nil {
			return err
		}

		detail = &InvoiceDetail{
			Invoice:    *inv,
			Client:     *client,
			Lines:      saved,
			BalanceDue: inv.TotalCents,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice created",
		zap.Int64("invoice_id", int64(detail.ID)),
		zap.Int64("invoice_number", detail.InvoiceNumber),
		zap.Int64("client_id", int64(detail.ClientID)),
		zap.Int("lines", len(detail.Lines)),
		zap.Int64("total_cents", int64(detail.TotalCents)))
	return detail, nil
}

// GetNextInvoiceNumber suggests max(invoice_number)+1, or 1 when there are
// no invoices. It is advisory; creation re-checks uniqueness.
func (s *Service) GetNextInvoiceNumber(ctx context.Context) (int64, error) {
	highest, err := s.repo.MaxInvoiceNumber(ctx)
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

func parsePeriod(startDate, endDate string) (generic.Period, error) {
	start, err := parseDateField("start_date", startDate)
	if err != nil {
		return generic.Period{}, err
	}
	end, err := parseDateField("end_date", endDate)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.Between(start, end), nil
}
