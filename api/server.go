/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logging:    zap request line (logging.Middleware)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Secure:     Response hardening headers (unrolled/secure)
  5. CORS:       Cross-origin requests for frontend
  6. Rate limit: Per-IP limit on /api (httprate)

ROUTE GROUPS:
  /api/clients/*       Clients, time logging, preview, statement
  /api/work-types/*    Work type catalogue
  /api/time-entries/*  Edit/delete uninvoiced entries
  /api/invoices/*      Invoice creation and lifecycle
  /api/payments        Payment recording
  /api/settings/*      Company settings
  /api/scenarios/*     Demo scenarios
  /healthz             Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/billing: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/warp/billing-engine/logging"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	CORSOrigins []string
	// RateLimit is requests per minute per IP on /api; 0 disables it.
	RateLimit int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
	}).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.Limit(opts.RateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP)))
		}

		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/{id}", h.GetClient)
			r.Get("/{id}/time-entries", h.ListTimeEntries)
			r.Post("/{id}/time-entries", h.CreateTimeEntry)
			r.Get("/{id}/invoice-preview", h.PreviewInvoice)
			r.Get("/{id}/statement", h.GetStatement)
		})

		// Work type routes
		r.Route("/work-types", func(r chi.Router) {
			r.Get("/", h.ListWorkTypes)
			r.Post("/", h.CreateWorkType)
		})

		// Time entry routes
		r.Route("/time-entries", func(r chi.Router) {
			r.Put("/{id}", h.UpdateTimeEntry)
			r.Delete("/{id}", h.DeleteTimeEntry)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/next-number", h.NextInvoiceNumber)
			r.Post("/", h.CreateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/send", h.SendInvoice)
			r.Post("/{id}/void", h.VoidInvoice)
		})

		r.Post("/payments", h.RecordPayment)

		// Settings routes
		r.Route("/settings", func(r chi.Router) {
			r.Get("/company", h.GetCompanySettings)
			r.Put("/company", h.SaveCompanySettings)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
