// Package api exposes snapshot, dataset and plan operations over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sluicehq/sluice/internal/auth"
	"github.com/sluicehq/sluice/internal/budget"
	"github.com/sluicehq/sluice/internal/metrics"
	"github.com/sluicehq/sluice/internal/snapshot"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	SnapshotStore *snapshot.Store
	Reader        *snapshot.Reader
	PlanStore     *budget.PlanStore
	Engine        *budget.Engine
	Audit         RunAuditor // nil disables run lookups
	Metrics       *metrics.Metrics
	AdminKeyHash  string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Handlers.
	snaps := newSnapshotHandler(deps.SnapshotStore, deps.Reader, deps.Metrics)
	budgets := newBudgetHandler(deps.PlanStore, deps.Engine, deps.Audit)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Observability.
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.ExpositionHandler())
		r.Get("/api/v1/status", deps.Metrics.SummaryHandler())
	}

	// Read-only snapshot and dataset routes.
	r.Route("/api/v1/accounts/{accountID}", func(ar chi.Router) {
		ar.Get("/snapshots/{date}/{hour}", snaps.GetSnapshot)
		ar.Get("/dataset", snaps.GetDataset)
		ar.Get("/spend", snaps.GetSpend)
	})

	// Admin routes (require admin key).
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(auth.AdminAuthMiddleware(deps.AdminKeyHash))

		ar.Get("/plans", budgets.ListPlans)
		ar.Post("/plans", budgets.CreatePlan)
		ar.Get("/plans/{id}", budgets.GetPlan)
		ar.Put("/plans/{id}", budgets.UpdatePlan)
		ar.Delete("/plans/{id}", budgets.DeletePlan)

		ar.Post("/plans/{id}/preview", budgets.PreviewPlan)
		ar.Post("/plans/{id}/apply", budgets.ApplyPlan)

		ar.Get("/runs/{runID}", budgets.GetRun)
	})

	return r
}
