/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	billing data. Master data (company, clients, work types) is written
	through the store; everything else goes through billing.Service so the
	aggregation and payment paths run exactly as they do for real requests.

AVAILABLE SCENARIOS:

	consulting-quarter: Two clients over Q1 2025; invoices, a full and a
	                    partial payment, March work left unbilled
	overpaid-client:    One client whose payment exceeds the invoice,
	                    leaving a negative (credit) balance

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save company settings, work types and clients
 3. Log time entries
 4. Create invoices from the entries and mark some sent
 5. Record payments with applications

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "consulting-quarter"}

USAGE VIA CLI:

	billing seed --scenario overpaid-client

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - cmd/billing: seed command
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, sd *seeder) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "consulting-quarter",
			Name:        "Consulting Quarter",
			Description: "Two clients over Q1 2025 with discounts, partial payment and unbilled March work",
		},
		load: loadConsultingQuarter,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overpaid-client",
			Name:        "Overpaid Client",
			Description: "A payment larger than the invoice leaves the client in credit",
		},
		load: loadOverpaidClient,
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	list := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		list[i] = s.ScenarioDTO
	}
	return list
}

// LoadScenario resets the store and loads the named scenario.
func LoadScenario(ctx context.Context, store Store, svc *billing.Service, id string) error {
	for _, s := range scenarios {
		if s.ID != id {
			continue
		}
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
		return s.load(ctx, &seeder{store: store, svc: svc})
	}
	return fmt.Errorf("unknown scenario %q", id)
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// LoadScenario loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	known := false
	for _, s := range scenarios {
		known = known || s.ID == req.ScenarioID
	}
	if !known {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	if err := LoadScenario(r.Context(), h.Store, h.Service, req.ScenarioID); err != nil {
		h.writeDomainError(w, r, "Failed to load scenario", err)
		return
	}

	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

// seeder carries the first error so loaders read as a straight script.
type seeder struct {
	store Store
	svc   *billing.Service
	err   error
}

func (sd *seeder) client(ctx context.Context, c billing.Client) billing.ClientID {
	if sd.err != nil {
		return 0
	}
	saved, err := sd.store.SaveClient(ctx, c)
	if err != nil {
		sd.err = fmt.Errorf("client %s: %w", c.Name, err)
		return 0
	}
	return saved.ID
}

func (sd *seeder) workType(ctx context.Context, code, description string) billing.WorkTypeID {
	if sd.err != nil {
		return 0
	}
	saved, err := sd.store.SaveWorkType(ctx, billing.WorkType{Code: code, Description: description})
	if err != nil {
		sd.err = fmt.Errorf("work type %s: %w", code, err)
		return 0
	}
	return saved.ID
}

func (sd *seeder) log(ctx context.Context, client billing.ClientID, wt billing.WorkTypeID, project, date string, minutes int64, desc string) {
	if sd.err != nil {
		return
	}
	var p *string
	if project != "" {
		p = &project
	}
	_, err := sd.svc.LogTime(ctx, billing.TimeEntryInput{
		ClientID:     client,
		WorkTypeID:   wt,
		ProjectName:  p,
		WorkDate:     date,
		MinutesSpent: minutes,
		Description:  desc,
	})
	if err != nil {
		sd.err = fmt.Errorf("time entry %s: %w", date, err)
	}
}

func (sd *seeder) invoice(ctx context.Context, in billing.CreateInvoiceInput, send bool) billing.InvoiceID {
	if sd.err != nil {
		return 0
	}
	detail, err := sd.svc.CreateInvoiceFromTimeEntries(ctx, in)
	if err != nil {
		sd.err = fmt.Errorf("invoice %d: %w", in.InvoiceNumber, err)
		return 0
	}
	if send {
		if _, err := sd.svc.MarkInvoiceSent(ctx, detail.ID); err != nil {
			sd.err = fmt.Errorf("send invoice %d: %w", in.InvoiceNumber, err)
		}
	}
	return detail.ID
}

func (sd *seeder) pay(ctx context.Context, in billing.PaymentInput) {
	if sd.err != nil {
		return
	}
	if _, err := sd.svc.RecordPayment(ctx, in); err != nil {
		sd.err = fmt.Errorf("payment %s: %w", in.Reference, err)
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadConsultingQuarter: Acme at 150.00/h with 10% discount, Globex at
// 120.00/h. January and February are billed, March is left for preview.
func loadConsultingQuarter(ctx context.Context, sd *seeder) error {
	if err := sd.store.SaveCompanySettings(ctx, billing.CompanySettings{
		Name:    "Warp Consulting",
		Address: "12 Harbour Street, Portsmouth",
		Email:   "billing@warp.example",
	}); err != nil {
		return err
	}

	dev := sd.workType(ctx, "DEV", "Software development")
	meet := sd.workType(ctx, "MEET", "Meetings and workshops")
	review := sd.workType(ctx, "REVIEW", "Code review")

	acme := sd.client(ctx, billing.Client{
		Name:            "Acme Corp",
		Email:           "ap@acme.example",
		Address:         "1 Acme Way",
		HourlyRateCents: 15000,
		DiscountPercent: 10,
	})
	globex := sd.client(ctx, billing.Client{
		Name:            "Globex",
		Email:           "finance@globex.example",
		HourlyRateCents: 12000,
	})

	// January, Acme: DEV/Portal 300 min, MEET 60 min
	// subtotal 75000 + 15000 = 90000, discount 9000, total 81000
	sd.log(ctx, acme, dev, "Portal", "2025-01-06", 120, "Login flow")
	sd.log(ctx, acme, dev, "Portal", "2025-01-08", 180, "Session handling")
	sd.log(ctx, acme, meet, "", "2025-01-10", 60, "Kickoff")

	// February, Acme: DEV/Portal 240 min, REVIEW/Portal 90 min
	// subtotal 60000 + 22500 = 82500, discount 8250, total 74250
	sd.log(ctx, acme, dev, "Portal", "2025-02-03", 240, "Reporting")
	sd.log(ctx, acme, review, "Portal", "2025-02-12", 90, "Release review")

	// March, Acme: unbilled
	sd.log(ctx, acme, dev, "Mobile", "2025-03-04", 150, "Offline sync")
	sd.log(ctx, acme, meet, "", "2025-03-05", 45, "Planning")

	// Q1, Globex: DEV/Data 200 min + MEET 40 min = 40000 + 8000 = 48000
	sd.log(ctx, globex, dev, "Data", "2025-01-20", 200, "Pipeline")
	sd.log(ctx, globex, meet, "", "2025-02-20", 40, "Status call")

	acmeJan := sd.invoice(ctx, billing.CreateInvoiceInput{
		ClientID: acme, StartDate: "2025-01-01", EndDate: "2025-01-31",
		InvoiceNumber: 1001, InvoiceDate: "2025-01-31", DueDate: "2025-02-28",
	}, true)
	acmeFeb := sd.invoice(ctx, billing.CreateInvoiceInput{
		ClientID: acme, StartDate: "2025-02-01", EndDate: "2025-02-28",
		InvoiceNumber: 1002, InvoiceDate: "2025-02-28", DueDate: "2025-03-31",
	}, true)
	sd.invoice(ctx, billing.CreateInvoiceInput{
		ClientID: globex, StartDate: "2025-01-01", EndDate: "2025-02-28",
		InvoiceNumber: 1003, InvoiceDate: "2025-02-28", DueDate: "2025-03-30",
	}, false)

	sd.pay(ctx, billing.PaymentInput{
		PaymentDate: "2025-02-15",
		AmountCents: 81000,
		Note:        "Wire",
		Reference:   "ACME-WIRE-0215",
		Applications: []billing.ApplicationInput{
			{InvoiceID: acmeJan, AmountCents: 81000},
		},
	})
	sd.pay(ctx, billing.PaymentInput{
		PaymentDate: "2025-03-10",
		AmountCents: 40000,
		Note:        "Partial",
		Reference:   "ACME-WIRE-0310",
		Applications: []billing.ApplicationInput{
			{InvoiceID: acmeFeb, AmountCents: 40000},
		},
	})
	return sd.err
}

// loadOverpaidClient: a 150.00 invoice paid with 200.00, all applied.
func loadOverpaidClient(ctx context.Context, sd *seeder) error {
	if err := sd.store.SaveCompanySettings(ctx, billing.CompanySettings{
		Name:  "Warp Consulting",
		Email: "billing@warp.example",
	}); err != nil {
		return err
	}

	dev := sd.workType(ctx, "DEV", "Software development")
	initech := sd.client(ctx, billing.Client{
		Name:            "Initech",
		Email:           "tps@initech.example",
		HourlyRateCents: 10000,
	})

	sd.log(ctx, initech, dev, "", "2025-01-15", 90, "Report cover sheets")

	inv := sd.invoice(ctx, billing.CreateInvoiceInput{
		ClientID: initech, StartDate: "2025-01-01", EndDate: "2025-01-31",
		InvoiceNumber: 2001, InvoiceDate: "2025-01-31", DueDate: "2025-02-28",
	}, true)

	sd.pay(ctx, billing.PaymentInput{
		PaymentDate: "2025-02-05",
		AmountCents: 20000,
		Note:        "Cheque, rounded up",
		Reference:   "INITECH-CHQ-0205",
		Applications: []billing.ApplicationInput{
			{InvoiceID: inv, AmountCents: 20000},
		},
	})
	return sd.err
}
