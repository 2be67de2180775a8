/*
server.go - HTTP router configuration

PURPOSE:
  Sets up the chi router with middleware and routes. Keeps routing concerns
  separate from handler logic.

MIDDLEWARE STACK:
  1. RequestID: Tags each request for log correlation
  2. Logger: Request logging
  3. Recoverer: Panic recovery (500 instead of crash)
  4. CORS: Cross-origin support for browser clients

SEE ALSO:
  - handlers.go: The handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Get("/{id}", h.GetWorker)
			r.Put("/{id}", h.UpdateWorker)
			r.Get("/{id}/totals", h.GetWorkerTotals)
		})

		r.Route("/rulesets", func(r chi.Router) {
			r.Get("/", h.ListRuleSets)
			r.Post("/", h.CreateRuleSet)
			r.Get("/{id}", h.GetRuleSet)
			r.Post("/{id}/activate", h.ActivateRuleSet)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Post("/", h.CreateJob)
			r.Get("/{id}", h.GetJob)
			r.Put("/{id}", h.UpdateJob)
			r.Post("/{id}/finalize", h.FinalizeJob)
			r.Post("/{id}/unfinalize", h.UnfinalizeJob)
			r.Get("/{id}/receipts", h.ListReceipts)
			r.Post("/{id}/receipts", h.CreateReceipt)
			r.Get("/{id}/allocations", h.ListAllocations)
			r.Post("/{id}/allocations", h.CreateAllocation)
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Put("/{id}", h.UpdateReceipt)
			r.Delete("/{id}", h.DeleteReceipt)
		})

		r.Route("/allocations", func(r chi.Router) {
			r.Put("/{id}", h.UpdateAllocation)
			r.Delete("/{id}", h.DeleteAllocation)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.CreatePayment)
			r.Get("/{id}", h.GetPayment)
			r.Put("/{id}", h.UpdatePayment)
			r.Post("/{id}/mark-paid", h.MarkPaymentPaid)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", h.ListExpenses)
			r.Post("/", h.CreateExpense)
			r.Put("/{id}", h.UpdateExpense)
			r.Delete("/{id}", h.DeleteExpense)
		})

		r.Get("/dashboard", h.GetDashboard)
		r.Get("/reports/profit", h.GetProfitReport)
	})

	return r
}
