/*
handlers.go - HTTP API handlers for the payout engine

PURPOSE:
  Exposes the payout engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine.

ENDPOINTS:
  Workers:
    GET    /api/workers                 List workers
    POST   /api/workers                 Create worker
    GET    /api/workers/{id}            Get worker
    PUT    /api/workers/{id}            Update worker
    GET    /api/workers/{id}/totals     Earned/paid/due rollup

  Rule sets:
    GET    /api/rulesets                List rule sets
    POST   /api/rulesets                Create (optionally copy + activate)
    GET    /api/rulesets/{id}           Get rule set
    POST   /api/rulesets/{id}/activate  Make this the active rule set

  Jobs:
    GET    /api/jobs                    List jobs
    POST   /api/jobs                    Create job (binds active rule set)
    GET    /api/jobs/{id}               Job + breakdown (snapshot or live)
    PUT    /api/jobs/{id}               Update job
    POST   /api/jobs/{id}/finalize      Freeze breakdown into a snapshot
    POST   /api/jobs/{id}/unfinalize    Delete snapshot, back to live
    GET    /api/jobs/{id}/receipts      List receipts
    POST   /api/jobs/{id}/receipts      Record receipt (+ payment sync)
    GET    /api/jobs/{id}/allocations   List allocations
    POST   /api/jobs/{id}/allocations   Create allocation

  Receipts / Allocations (by id):
    PUT    /api/receipts/{id}           Amend receipt (+ payment sync)
    DELETE /api/receipts/{id}           Soft-delete receipt (+ payment sync)
    PUT    /api/allocations/{id}        Update allocation
    DELETE /api/allocations/{id}        Delete allocation

  Payments:
    GET    /api/payments                List (filters: worker_id, job_id, is_paid)
    POST   /api/payments                Create manual payment
    GET    /api/payments/{id}           Get payment
    PUT    /api/payments/{id}           Update payment
    POST   /api/payments/{id}/mark-paid Flip is_paid

  Expenses / Reports:
    GET|POST /api/expenses, PUT|DELETE /api/expenses/{id}
    GET    /api/dashboard               System-wide totals
    GET    /api/reports/profit          Owner earnings - expenses over range

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Conflict (finalized job, duplicate snapshot)
  - 500: Internal errors, invariant violations

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gigledger/payout-engine/engine"
	"github.com/gigledger/payout-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      engine.TxStore
	Syncer     *engine.PaymentSyncer
	Finalizer  *engine.Finalizer
	Aggregator *engine.Aggregator

	NewID func() string
	Now   func() time.Time
}

// NewHandler wires a handler with production defaults (uuid IDs, wall clock).
func NewHandler(store engine.TxStore) *Handler {
	newID := uuid.NewString
	now := time.Now
	return &Handler{
		Store:      store,
		Syncer:     &engine.PaymentSyncer{Store: store, NewID: newID, Now: now},
		Finalizer:  &engine.Finalizer{Store: store, NewID: newID, Now: now},
		Aggregator: &engine.Aggregator{Store: store},
		NewID:      newID,
		Now:        now,
	}
}

// =============================================================================
// WORKERS
// =============================================================================

func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	workers, err := h.Store.ListWorkers(r.Context(), includeArchived)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]WorkerDTO, 0, len(workers))
	for _, worker := range workers {
		dtos = append(dtos, toWorkerDTO(worker))
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": dtos})
}

func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	worker := engine.Worker{
		ID:        engine.WorkerID(h.NewID()),
		Code:      req.Code,
		Name:      req.Name,
		Contact:   req.Contact,
		Notes:     req.Notes,
		IsOwner:   req.IsOwner,
		CreatedAt: h.Now().UTC(),
	}
	if err := h.Store.CreateWorker(r.Context(), worker); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(worker))
}

func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := h.Store.GetWorker(r.Context(), engine.WorkerID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(worker))
}

func (h *Handler) UpdateWorker(w http.ResponseWriter, r *http.Request) {
	var req UpdateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	worker, err := h.Store.GetWorker(r.Context(), engine.WorkerID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if req.Code != nil {
		worker.Code = *req.Code
	}
	if req.Name != nil {
		worker.Name = *req.Name
	}
	if req.Contact != nil {
		worker.Contact = *req.Contact
	}
	if req.Notes != nil {
		worker.Notes = *req.Notes
	}
	if req.IsOwner != nil {
		worker.IsOwner = *req.IsOwner
	}
	if req.IsArchived != nil {
		worker.IsArchived = *req.IsArchived
	}
	if err := h.Store.UpdateWorker(r.Context(), worker); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(worker))
}

func (h *Handler) GetWorkerTotals(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkerID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetWorker(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	totals, err := h.Aggregator.ComputeWorkerTotals(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WorkerTotalsDTO{
		WorkerID: string(totals.WorkerID),
		Earned:   totals.Earned.String(),
		Paid:     totals.Paid.String(),
		Due:      totals.Due.String(),
	})
}

// =============================================================================
// RULE SETS
// =============================================================================

func (h *Handler) ListRuleSets(w http.ResponseWriter, r *http.Request) {
	ruleSets, err := h.Store.ListRuleSets(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]RuleSetDTO, 0, len(ruleSets))
	for _, rs := range ruleSets {
		dto, err := toRuleSetDTO(rs)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rule_sets": dtos})
}

// CreateRuleSet stores a new immutable payload. With CopyFrom set and no
// explicit Rules, the source payload is duplicated; the source row itself
// is never touched.
func (h *Handler) CreateRuleSet(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	var rules engine.Rules
	switch {
	case len(req.Rules) > 0:
		parsed, err := factory.ParseRules(req.Rules)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		rules = parsed
	case req.CopyFrom != "":
		src, err := h.Store.GetRuleSet(r.Context(), engine.RuleSetID(req.CopyFrom))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		rules = src.Rules
	default:
		writeError(w, http.StatusBadRequest, "rules or copy_from is required", nil)
		return
	}

	rs := engine.RuleSet{
		ID:        engine.RuleSetID(h.NewID()),
		Name:      req.Name,
		Rules:     rules,
		Notes:     req.Notes,
		CreatedAt: h.Now().UTC(),
	}
	err := h.Store.WithTx(r.Context(), func(s engine.Store) error {
		if err := s.CreateRuleSet(r.Context(), rs); err != nil {
			return err
		}
		if req.Activate {
			return s.ActivateRuleSet(r.Context(), rs.ID)
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	rs.IsActive = req.Activate

	dto, err := toRuleSetDTO(rs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := h.Store.GetRuleSet(r.Context(), engine.RuleSetID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dto, err := toRuleSetDTO(rs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ActivateRuleSet(w http.ResponseWriter, r *http.Request) {
	id := engine.RuleSetID(chi.URLParam(r, "id"))
	err := h.Store.WithTx(r.Context(), func(s engine.Store) error {
		return s.ActivateRuleSet(r.Context(), id)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active", "id": string(id)})
}

// =============================================================================
// JOBS
// =============================================================================

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	jobs, err := h.Store.ListJobs(r.Context(), includeArchived)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]JobDTO, 0, len(jobs))
	for _, j := range jobs {
		dtos = append(dtos, toJobDTO(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": dtos})
}

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", nil)
		return
	}
	if req.ConnectsUsed < 0 {
		writeError(w, http.StatusBadRequest, "connects_used must be non-negative", nil)
		return
	}

	// Bind the rule set now; the binding survives later activations.
	ruleSetID := engine.RuleSetID(req.RuleSetID)
	if ruleSetID == "" {
		active, err := h.Store.GetActiveRuleSet(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		ruleSetID = active.ID
	} else if _, err := h.Store.GetRuleSet(r.Context(), ruleSetID); err != nil {
		writeEngineError(w, err)
		return
	}

	overrides, err := parseOverrides(req.Overrides)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid overrides", err)
		return
	}

	jobType := engine.JobType(req.Type)
	if jobType == "" {
		jobType = engine.JobFixed
	}
	status := engine.JobStatus(req.Status)
	if status == "" {
		status = engine.StatusDraft
	}

	job := engine.Job{
		ID:           engine.JobID(h.NewID()),
		Code:         req.Code,
		Title:        req.Title,
		ClientName:   req.ClientName,
		Type:         jobType,
		Status:       status,
		ConnectsUsed: req.ConnectsUsed,
		RuleSetID:    ruleSetID,
		Overrides:    overrides,
		StartDate:    parseDatePtr(req.StartDate),
		EndDate:      parseDatePtr(req.EndDate),
		CreatedAt:    h.Now().UTC(),
	}
	if err := h.Store.CreateJob(r.Context(), job); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobDTO(job))
}

// GetJob returns the job plus its breakdown: the frozen snapshot when
// finalized, a fresh computation otherwise.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Store.GetJob(r.Context(), engine.JobID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	bd, err := engine.JobBreakdown(r.Context(), h.Store, job)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	breakdownsComputed.Inc()
	writeJSON(w, http.StatusOK, JobDetailDTO{Job: toJobDTO(job), Breakdown: bd})
}

func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	var req UpdateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	job, err := h.Store.GetJob(r.Context(), engine.JobID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// Calculation inputs are frozen with the job; metadata stays editable.
	touchesCalculation := req.ConnectsUsed != nil || req.Overrides != nil
	if touchesCalculation {
		if err := engine.EnsureEditable(job); err != nil {
			writeEngineError(w, err)
			return
		}
	}

	if req.Code != nil {
		job.Code = *req.Code
	}
	if req.Title != nil {
		job.Title = *req.Title
	}
	if req.ClientName != nil {
		job.ClientName = *req.ClientName
	}
	if req.Type != nil {
		job.Type = engine.JobType(*req.Type)
	}
	if req.Status != nil {
		job.Status = engine.JobStatus(*req.Status)
	}
	if req.ConnectsUsed != nil {
		if *req.ConnectsUsed < 0 {
			writeError(w, http.StatusBadRequest, "connects_used must be non-negative", nil)
			return
		}
		job.ConnectsUsed = *req.ConnectsUsed
	}
	if req.Overrides != nil {
		overrides, err := parseOverrides(req.Overrides)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid overrides", err)
			return
		}
		job.Overrides = overrides
	}
	if req.StartDate != nil {
		job.StartDate = parseDatePtr(*req.StartDate)
	}
	if req.EndDate != nil {
		job.EndDate = parseDatePtr(*req.EndDate)
	}

	if err := h.Store.UpdateJob(r.Context(), job); err != nil {
		writeEngineError(w, err)
		return
	}
	if touchesCalculation {
		if err := h.Syncer.Resync(r.Context(), job.ID); err != nil {
			writeEngineError(w, err)
			return
		}
		paymentSyncRuns.Inc()
	}
	writeJSON(w, http.StatusOK, toJobDTO(job))
}

func (h *Handler) FinalizeJob(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Finalizer.Finalize(r.Context(), engine.JobID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	finalizations.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id":  string(snap.ID),
		"job_id":       string(snap.JobID),
		"rule_set_id":  string(snap.RuleSetID),
		"finalized_at": snap.FinalizedAt.Format(time.RFC3339),
		"breakdown":    snap.Breakdown,
	})
}

func (h *Handler) UnfinalizeJob(w http.ResponseWriter, r *http.Request) {
	id := engine.JobID(chi.URLParam(r, "id"))
	if err := h.Finalizer.Unfinalize(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "live", "job_id": string(id)})
}

// =============================================================================
// RECEIPTS
// =============================================================================

func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	jobID := engine.JobID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetJob(r.Context(), jobID); err != nil {
		writeEngineError(w, err)
		return
	}
	receipts, err := h.Store.ListReceiptsByJob(r.Context(), jobID, false)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]ReceiptDTO, 0, len(receipts))
	for _, rc := range receipts {
		dtos = append(dtos, toReceiptDTO(rc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": dtos})
}

func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req CreateReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	source := engine.ReceiptSource(req.Source)
	if source == "" {
		source = engine.SourceManual
	}

	receipt, err := h.Syncer.RecordReceipt(r.Context(), engine.Receipt{
		JobID:  engine.JobID(chi.URLParam(r, "id")),
		Date:   date,
		Amount: amount,
		Source: source,
		Notes:  req.Notes,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	paymentSyncRuns.Inc()
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

func (h *Handler) UpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var req UpdateReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receipt, err := h.Store.GetReceipt(r.Context(), engine.ReceiptID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err)
			return
		}
		receipt.Date = date
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount", err)
			return
		}
		receipt.Amount = amount
	}
	if req.Source != nil {
		receipt.Source = engine.ReceiptSource(*req.Source)
	}
	if req.Notes != nil {
		receipt.Notes = *req.Notes
	}

	if err := h.Syncer.AmendReceipt(r.Context(), receipt); err != nil {
		writeEngineError(w, err)
		return
	}
	paymentSyncRuns.Inc()
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

func (h *Handler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := engine.ReceiptID(chi.URLParam(r, "id"))
	if err := h.Syncer.RemoveReceipt(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	paymentSyncRuns.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": string(id)})
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	jobID := engine.JobID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetJob(r.Context(), jobID); err != nil {
		writeEngineError(w, err)
		return
	}
	allocations, err := h.Store.ListAllocationsByJob(r.Context(), jobID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]AllocationDTO, 0, len(allocations))
	for _, a := range allocations {
		dtos = append(dtos, toAllocationDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"allocations": dtos})
}

func (h *Handler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	var req CreateAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	jobID := engine.JobID(chi.URLParam(r, "id"))
	alloc, err := h.buildAllocation(jobID, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	err = h.Store.WithTx(r.Context(), func(s engine.Store) error {
		job, err := s.GetJob(r.Context(), jobID)
		if err != nil {
			return err
		}
		if err := engine.EnsureEditable(job); err != nil {
			return err
		}
		if alloc.WorkerID != nil {
			if _, err := s.GetWorker(r.Context(), *alloc.WorkerID); err != nil {
				return err
			}
		}
		existing, err := s.ListAllocationsByJob(r.Context(), jobID)
		if err != nil {
			return err
		}
		if err := engine.CheckPercentSum(jobID, append(existing, alloc)); err != nil {
			return err
		}
		return s.CreateAllocation(r.Context(), alloc)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Syncer.Resync(r.Context(), jobID); err != nil {
		writeEngineError(w, err)
		return
	}
	paymentSyncRuns.Inc()
	writeJSON(w, http.StatusCreated, toAllocationDTO(alloc))
}

func (h *Handler) UpdateAllocation(w http.ResponseWriter, r *http.Request) {
	var req UpdateAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := engine.AllocationID(chi.URLParam(r, "id"))
	var updated engine.Allocation
	err := h.Store.WithTx(r.Context(), func(s engine.Store) error {
		alloc, err := s.GetAllocation(r.Context(), id)
		if err != nil {
			return err
		}
		job, err := s.GetJob(r.Context(), alloc.JobID)
		if err != nil {
			return err
		}
		if err := engine.EnsureEditable(job); err != nil {
			return err
		}

		if req.WorkerID != nil {
			if *req.WorkerID == "" {
				alloc.WorkerID = nil
			} else {
				wid := engine.WorkerID(*req.WorkerID)
				if _, err := s.GetWorker(r.Context(), wid); err != nil {
					return err
				}
				alloc.WorkerID = &wid
			}
		}
		if req.Label != nil {
			alloc.Label = *req.Label
		}
		if req.Role != nil {
			alloc.Role = *req.Role
		}
		if req.ShareType != nil {
			alloc.ShareType = engine.ShareType(*req.ShareType)
		}
		if req.ShareValue != nil {
			v, err := parseAmount(*req.ShareValue)
			if err != nil {
				return err
			}
			alloc.ShareValue = v.Value
		}
		if req.Notes != nil {
			alloc.Notes = *req.Notes
		}

		existing, err := s.ListAllocationsByJob(r.Context(), alloc.JobID)
		if err != nil {
			return err
		}
		proposed := make([]engine.Allocation, 0, len(existing))
		for _, a := range existing {
			if a.ID == alloc.ID {
				proposed = append(proposed, alloc)
			} else {
				proposed = append(proposed, a)
			}
		}
		if err := engine.CheckPercentSum(alloc.JobID, proposed); err != nil {
			return err
		}
		if err := s.UpdateAllocation(r.Context(), alloc); err != nil {
			return err
		}
		updated = alloc
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Syncer.Resync(r.Context(), updated.JobID); err != nil {
		writeEngineError(w, err)
		return
	}
	paymentSyncRuns.Inc()
	writeJSON(w, http.StatusOK, toAllocationDTO(updated))
}

func (h *Handler) DeleteAllocation(w http.ResponseWriter, r *http.Request) {
	id := engine.AllocationID(chi.URLParam(r, "id"))
	var jobID engine.JobID
	err := h.Store.WithTx(r.Context(), func(s engine.Store) error {
		alloc, err := s.GetAllocation(r.Context(), id)
		if err != nil {
			return err
		}
		job, err := s.GetJob(r.Context(), alloc.JobID)
		if err != nil {
			return err
		}
		if err := engine.EnsureEditable(job); err != nil {
			return err
		}
		jobID = alloc.JobID
		return s.DeleteAllocation(r.Context(), id)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Syncer.Resync(r.Context(), jobID); err != nil {
		writeEngineError(w, err)
		return
	}
	paymentSyncRuns.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": string(id)})
}

func (h *Handler) buildAllocation(jobID engine.JobID, req CreateAllocationRequest) (engine.Allocation, error) {
	shareValue, err := parseAmount(req.ShareValue)
	if err != nil {
		return engine.Allocation{}, err
	}
	shareType := engine.ShareType(req.ShareType)
	if shareType != engine.SharePercent && shareType != engine.ShareFixed {
		return engine.Allocation{}, &engine.ConfigError{Field: "share_type", Reason: "must be \"percent\" or \"fixed_amount\""}
	}

	alloc := engine.Allocation{
		ID:         engine.AllocationID(h.NewID()),
		JobID:      jobID,
		Label:      req.Label,
		Role:       req.Role,
		ShareType:  shareType,
		ShareValue: shareValue.Value,
		Notes:      req.Notes,
	}
	if req.WorkerID != nil && *req.WorkerID != "" {
		wid := engine.WorkerID(*req.WorkerID)
		alloc.WorkerID = &wid
	}
	return alloc, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	var filter engine.PaymentFilter
	q := r.URL.Query()
	if v := q.Get("worker_id"); v != "" {
		id := engine.WorkerID(v)
		filter.WorkerID = &id
	}
	if v := q.Get("job_id"); v != "" {
		id := engine.JobID(v)
		filter.JobID = &id
	}
	if v := q.Get("is_paid"); v != "" {
		paid := v == "true"
		filter.IsPaid = &paid
	}
	if v := q.Get("provenance"); v != "" {
		p := engine.Provenance(v)
		filter.Provenance = &p
	}

	payments, err := h.Store.ListPayments(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": dtos})
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	if amount.IsNegative() {
		writeEngineError(w, engine.ErrNegativeAmount)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	if _, err := h.Store.GetWorker(r.Context(), engine.WorkerID(req.WorkerID)); err != nil {
		writeEngineError(w, err)
		return
	}

	payment := engine.Payment{
		ID:         engine.PaymentID(h.NewID()),
		Code:       req.Code,
		WorkerID:   engine.WorkerID(req.WorkerID),
		Amount:     amount,
		Date:       date,
		Method:     req.Method,
		Reference:  req.Reference,
		Notes:      req.Notes,
		IsPaid:     req.IsPaid,
		Provenance: engine.ProvenanceManual,
	}
	if req.JobID != nil && *req.JobID != "" {
		jid := engine.JobID(*req.JobID)
		if _, err := h.Store.GetJob(r.Context(), jid); err != nil {
			writeEngineError(w, err)
			return
		}
		payment.JobID = &jid
	}

	if err := h.Store.CreatePayment(r.Context(), payment); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Store.GetPayment(r.Context(), engine.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(payment))
}

func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payment, err := h.Store.GetPayment(r.Context(), engine.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if req.Code != nil {
		payment.Code = *req.Code
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount", err)
			return
		}
		if amount.IsNegative() {
			writeEngineError(w, engine.ErrNegativeAmount)
			return
		}
		payment.Amount = amount
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err)
			return
		}
		payment.Date = date
	}
	if req.Method != nil {
		payment.Method = *req.Method
	}
	if req.Reference != nil {
		payment.Reference = *req.Reference
	}
	if req.Notes != nil {
		payment.Notes = *req.Notes
	}
	if req.IsPaid != nil {
		payment.IsPaid = *req.IsPaid
	}

	if err := h.Store.UpdatePayment(r.Context(), payment); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(payment))
}

func (h *Handler) MarkPaymentPaid(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Store.GetPayment(r.Context(), engine.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payment.IsPaid = true
	if err := h.Store.UpdatePayment(r.Context(), payment); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(payment))
}

// =============================================================================
// EXPENSES
// =============================================================================

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date range", err)
		return
	}
	expenses, err := h.Store.ListExpenses(r.Context(), from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]ExpenseDTO, 0, len(expenses))
	for _, e := range expenses {
		dtos = append(dtos, toExpenseDTO(e))
	}

	total, err := h.Aggregator.ExpenseTotal(r.Context(), from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	monthly, err := h.Aggregator.MonthlyExpenses(r.Context(), from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	monthlyOut := make(map[string]string, len(monthly))
	for k, v := range monthly {
		monthlyOut[k] = v.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expenses": dtos,
		"total":    total.String(),
		"monthly":  monthlyOut,
	})
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	if amount.IsNegative() {
		writeEngineError(w, engine.ErrNegativeAmount)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	expense := engine.Expense{
		ID:       engine.ExpenseID(h.NewID()),
		Date:     date,
		Amount:   amount,
		Category: req.Category,
		Notes:    req.Notes,
	}
	if err := h.Store.CreateExpense(r.Context(), expense); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(expense))
}

func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	expense, err := h.Store.GetExpense(r.Context(), engine.ExpenseID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err)
			return
		}
		expense.Date = date
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount", err)
			return
		}
		expense.Amount = amount
	}
	if req.Category != nil {
		expense.Category = *req.Category
	}
	if req.Notes != nil {
		expense.Notes = *req.Notes
	}

	if err := h.Store.UpdateExpense(r.Context(), expense); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(expense))
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := engine.ExpenseID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteExpense(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": string(id)})
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Aggregator.ComputeDashboardTotals(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		TotalReceived:    totals.TotalReceived.String(),
		ConnectDeduction: totals.ConnectDeduction.String(),
		PlatformFee:      totals.PlatformFee.String(),
		NetDistributable: totals.NetDistributable.String(),
		TotalPaid:        totals.TotalPaid.String(),
		TotalDue:         totals.TotalDue.String(),
	})
}

func (h *Handler) GetProfitReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date range", err)
		return
	}
	report, err := h.Aggregator.ComputeProfit(r.Context(), from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfitDTO{
		OwnerEarnings: report.OwnerEarnings.String(),
		Expenses:      report.Expenses.String(),
		Profit:        report.Profit.String(),
		MarginPercent: report.MarginPercent.String(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func toRuleSetDTO(rs engine.RuleSet) (RuleSetDTO, error) {
	payload, err := factory.MarshalRules(rs.Rules)
	if err != nil {
		return RuleSetDTO{}, err
	}
	return RuleSetDTO{
		ID:        string(rs.ID),
		Name:      rs.Name,
		IsActive:  rs.IsActive,
		Rules:     payload,
		Notes:     rs.Notes,
		CreatedAt: rs.CreatedAt.Format(time.RFC3339),
	}, nil
}

func parseOverrides(dto *JobOverridesDTO) (engine.JobOverrides, error) {
	var ov engine.JobOverrides
	if dto == nil {
		return ov, nil
	}
	if dto.ConnectMode != nil {
		m := engine.DeductionMode(*dto.ConnectMode)
		ov.ConnectMode = &m
	}
	if dto.ConnectValue != nil {
		v, err := parseAmount(*dto.ConnectValue)
		if err != nil {
			return ov, err
		}
		ov.ConnectValue = &v
	}
	ov.PlatformFeeEnabled = dto.PlatformFeeEnabled
	if dto.PlatformFeeMode != nil {
		m := engine.FeeMode(*dto.PlatformFeeMode)
		ov.PlatformFeeMode = &m
	}
	if dto.PlatformFeeValue != nil {
		v, err := parseAmount(*dto.PlatformFeeValue)
		if err != nil {
			return ov, err
		}
		ov.PlatformFeeValue = &v
	}
	if dto.PlatformFeeApplyOn != nil {
		a := engine.FeeApplyOn(*dto.PlatformFeeApplyOn)
		ov.PlatformFeeApplyOn = &a
	}
	return ov, nil
}

func parseAmount(s string) (engine.Money, error) {
	if s == "" {
		return engine.ZeroMoney(), nil
	}
	var m engine.Money
	if err := m.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		return engine.Money{}, err
	}
	return m, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseDatePtr(s string) *time.Time {
	t, err := parseDate(s)
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

func parseRange(r *http.Request) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}
