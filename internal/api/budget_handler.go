package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sluicehq/sluice/internal/budget"
)

// RunAuditor exposes the audit trail of past apply runs.
type RunAuditor interface {
	RunEntries(ctx context.Context, runID string) ([]budget.ApplyRecord, error)
}

// budgetHandler groups plan management and redistribution endpoints.
type budgetHandler struct {
	plans  *budget.PlanStore
	engine *budget.Engine
	audit  RunAuditor
}

func newBudgetHandler(plans *budget.PlanStore, engine *budget.Engine, audit RunAuditor) *budgetHandler {
	return &budgetHandler{plans: plans, engine: engine, audit: audit}
}

// ListPlans returns all stored plans.
func (h *budgetHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

// CreatePlan validates and stores a new plan, minting its ID.
func (h *budgetHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var plan budget.Plan
	if err := readJSON(r, &plan); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	plan.ID = uuid.NewString()
	if err := plan.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_plan", err.Error())
		return
	}
	if err := h.plans.Put(&plan); err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// GetPlan returns one plan by ID.
func (h *budgetHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Get(chi.URLParam(r, "id"))
	if errors.Is(err, budget.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such plan")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// UpdatePlan replaces a stored plan's fields, keeping its ID and creation
// time.
func (h *budgetHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.plans.Get(id)
	if errors.Is(err, budget.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such plan")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	var plan budget.Plan
	if err := readJSON(r, &plan); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	plan.ID = existing.ID
	plan.CreatedAt = existing.CreatedAt
	if err := plan.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_plan", err.Error())
		return
	}
	if err := h.plans.Put(&plan); err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// DeletePlan removes a plan.
func (h *budgetHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	err := h.plans.Delete(chi.URLParam(r, "id"))
	if errors.Is(err, budget.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such plan")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewPlan computes a redistribution without touching upstream budgets.
func (h *budgetHandler) PreviewPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Get(chi.URLParam(r, "id"))
	if errors.Is(err, budget.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such plan")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	preview, err := h.engine.BuildPreview(r.Context(), plan)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ApplyPlan computes a fresh preview and submits it. Per-line failures do
// not fail the request; they are reported in the result.
func (h *budgetHandler) ApplyPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Get(chi.URLParam(r, "id"))
	if errors.Is(err, budget.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such plan")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	preview, err := h.engine.BuildPreview(r.Context(), plan)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	result, err := h.engine.Apply(r.Context(), preview)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetRun returns the audit records of one apply run.
func (h *budgetHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_disabled", "audit logging is not configured")
		return
	}
	runID := chi.URLParam(r, "runID")
	records, err := h.audit.RunEntries(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "no such run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "records": records})
}
