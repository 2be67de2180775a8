package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/gigledger/payout-engine/engine/store"
	"github.com/gigledger/payout-engine/factory"
)

// The handler tests run the full router against the in-memory store and
// drive everything through HTTP, the way a browser client would.

type testAPI struct {
	t      *testing.T
	server http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	h := NewHandler(store.NewTxMemory())
	return &testAPI{t: t, server: NewRouter(h, []string{"*"})}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) decode(rec *httptest.ResponseRecorder, into any) {
	a.t.Helper()
	require.NoError(a.t, json.NewDecoder(rec.Body).Decode(into))
}

// seedRuleSet creates and activates the default preset, returning its id.
func (a *testAPI) seedRuleSet() string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/rulesets", map[string]any{
		"name":     "Standard",
		"rules":    json.RawMessage(factory.DefaultRulesJSON()),
		"activate": true,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto RuleSetDTO
	a.decode(rec, &dto)
	return dto.ID
}

func (a *testAPI) seedWorker(name string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/workers", map[string]any{"name": name})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto WorkerDTO
	a.decode(rec, &dto)
	return dto.ID
}

// seedJob creates a job bound to the active rule set with 10 connects.
func (a *testAPI) seedJob() string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/jobs", map[string]any{
		"title":         "Dashboard build",
		"connects_used": 10,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto JobDTO
	a.decode(rec, &dto)
	return dto.ID
}

func (a *testAPI) seedAllocation(jobID, workerID, share string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/jobs/"+jobID+"/allocations", map[string]any{
		"worker_id":   workerID,
		"share_type":  "percent",
		"share_value": share,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto AllocationDTO
	a.decode(rec, &dto)
	return dto.ID
}

func TestAPI_WorkerLifecycle(t *testing.T) {
	api := newTestAPI(t)

	// Create
	id := api.seedWorker("Alice")

	// Get
	rec := api.do(http.MethodGet, "/api/workers/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got WorkerDTO
	api.decode(rec, &got)
	assert.Equal(t, "Alice", got.Name)

	// Update
	rec = api.do(http.MethodPut, "/api/workers/"+id, map[string]any{"is_archived": true})
	require.Equal(t, http.StatusOK, rec.Code)

	// Archived workers drop out of the default list
	rec = api.do(http.MethodGet, "/api/workers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Workers []WorkerDTO `json:"workers"`
	}
	api.decode(rec, &list)
	assert.Empty(t, list.Workers)
}

func TestAPI_WorkerNotFoundIs404(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/workers/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	api.decode(rec, &resp)
	assert.NotEmpty(t, resp.Error)
}

func TestAPI_CreateWorkerRequiresName(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/workers", map[string]any{"code": "W01"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RuleSetRejectsBadPayload(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/rulesets", map[string]any{
		"name":  "Broken",
		"rules": json.RawMessage(`{"currency_default": "USD"}`),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RuleSetCopyFrom(t *testing.T) {
	api := newTestAPI(t)
	srcID := api.seedRuleSet()

	// WHEN a new rule set copies the source without explicit rules
	rec := api.do(http.MethodPost, "/api/rulesets", map[string]any{
		"name":      "v2",
		"copy_from": srcID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var dto RuleSetDTO
	api.decode(rec, &dto)
	assert.NotEqual(t, srcID, dto.ID)
	assert.False(t, dto.IsActive)

	// THEN the source payload is unchanged
	rec = api.do(http.MethodGet, "/api/rulesets/"+srcID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var src RuleSetDTO
	api.decode(rec, &src)
	assert.True(t, src.IsActive)
}

func TestAPI_CreateJobBindsActiveRuleSet(t *testing.T) {
	api := newTestAPI(t)
	rsID := api.seedRuleSet()

	jobID := api.seedJob()

	rec := api.do(http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail JobDetailDTO
	api.decode(rec, &detail)
	assert.Equal(t, rsID, detail.Job.RuleSetID)
}

func TestAPI_CreateJobWithoutRuleSetFails(t *testing.T) {
	// GIVEN no rule set exists yet
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/jobs", map[string]any{"title": "Orphan"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ReceiptDrivesBreakdownAndPayments(t *testing.T) {
	// GIVEN the standard 0.60/0.40 job
	api := newTestAPI(t)
	api.seedRuleSet()
	alice := api.seedWorker("Alice")
	bob := api.seedWorker("Bob")
	jobID := api.seedJob()
	api.seedAllocation(jobID, alice, "0.60")
	api.seedAllocation(jobID, bob, "0.40")

	// WHEN a 1000.00 receipt is posted
	rec := api.do(http.MethodPost, "/api/jobs/"+jobID+"/receipts", map[string]any{
		"date":   "2026-08-01",
		"amount": "1000.00",
		"source": "milestone",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN the job detail shows the computed breakdown
	rec = api.do(http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail JobDetailDTO
	api.decode(rec, &detail)
	assert.Equal(t, "998.5", detail.Breakdown.NetDistributable.String())
	require.Len(t, detail.Breakdown.Allocations, 2)
	assert.Equal(t, "599.1", detail.Breakdown.Allocations[0].Earned.String())
	assert.Equal(t, "399.4", detail.Breakdown.Allocations[1].Earned.String())

	// AND auto payments exist for both workers
	rec = api.do(http.MethodGet, "/api/payments?job_id="+jobID+"&provenance=auto", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payments struct {
		Payments []PaymentDTO `json:"payments"`
	}
	api.decode(rec, &payments)
	assert.Len(t, payments.Payments, 2)
}

func TestAPI_AllocationOvercommitRejected(t *testing.T) {
	api := newTestAPI(t)
	api.seedRuleSet()
	alice := api.seedWorker("Alice")
	jobID := api.seedJob()
	api.seedAllocation(jobID, alice, "0.60")

	// WHEN a second allocation pushes the percent pool past 1
	rec := api.do(http.MethodPost, "/api/jobs/"+jobID+"/allocations", map[string]any{
		"worker_id":   alice,
		"share_type":  "percent",
		"share_value": "0.50",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AllocationRejectsUnknownWorker(t *testing.T) {
	api := newTestAPI(t)
	api.seedRuleSet()
	jobID := api.seedJob()

	// WHEN the allocation names a worker that was never created
	rec := api.do(http.MethodPost, "/api/jobs/"+jobID+"/allocations", map[string]any{
		"worker_id":   "w-ghost",
		"share_type":  "percent",
		"share_value": "0.50",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_FinalizeLifecycle(t *testing.T) {
	api := newTestAPI(t)
	api.seedRuleSet()
	alice := api.seedWorker("Alice")
	jobID := api.seedJob()
	api.seedAllocation(jobID, alice, "0.60")
	rec := api.do(http.MethodPost, "/api/jobs/"+jobID+"/receipts", map[string]any{
		"date": "2026-08-01", "amount": "1000.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Finalize
	rec = api.do(http.MethodPost, "/api/jobs/"+jobID+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Receipt writes are now rejected with a conflict
	rec = api.do(http.MethodPost, "/api/jobs/"+jobID+"/receipts", map[string]any{
		"date": "2026-08-02", "amount": "50.00",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Finalizing twice conflicts too
	rec = api.do(http.MethodPost, "/api/jobs/"+jobID+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unfinalize reopens the job
	rec = api.do(http.MethodPost, "/api/jobs/"+jobID+"/unfinalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodPost, "/api/jobs/"+jobID+"/receipts", map[string]any{
		"date": "2026-08-02", "amount": "50.00",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAPI_ManualPaymentAndMarkPaid(t *testing.T) {
	api := newTestAPI(t)
	api.seedRuleSet()
	alice := api.seedWorker("Alice")

	rec := api.do(http.MethodPost, "/api/payments", map[string]any{
		"worker_id": alice,
		"amount":    "250.00",
		"date":      "2026-08-01",
		"method":    "bank",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p PaymentDTO
	api.decode(rec, &p)
	assert.Equal(t, "manual", p.Provenance)
	assert.False(t, p.IsPaid)

	rec = api.do(http.MethodPost, "/api/payments/"+p.ID+"/mark-paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	api.decode(rec, &p)
	assert.True(t, p.IsPaid)
}

func TestAPI_ManualPaymentRejectsNegativeAmount(t *testing.T) {
	api := newTestAPI(t)
	alice := api.seedWorker("Alice")

	rec := api.do(http.MethodPost, "/api/payments", map[string]any{
		"worker_id": alice,
		"amount":    "-10.00",
		"date":      "2026-08-01",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_WorkerTotals(t *testing.T) {
	api := newTestAPI(t)
	api.seedRuleSet()
	alice := api.seedWorker("Alice")
	jobID := api.seedJob()
	api.seedAllocation(jobID, alice, "0.60")
	rec := api.do(http.MethodPost, "/api/jobs/"+jobID+"/receipts", map[string]any{
		"date": "2026-08-01", "amount": "1000.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodGet, "/api/workers/"+alice+"/totals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var totals WorkerTotalsDTO
	api.decode(rec, &totals)
	assert.Equal(t, "599.1", totals.Earned)
	assert.Equal(t, "0", totals.Paid)
	assert.Equal(t, "599.1", totals.Due)
}

func TestAPI_DashboardAndExpenses(t *testing.T) {
	api := newTestAPI(t)
	api.seedRuleSet()
	alice := api.seedWorker("Alice")
	jobID := api.seedJob()
	api.seedAllocation(jobID, alice, "0.60")
	rec := api.do(http.MethodPost, "/api/jobs/"+jobID+"/receipts", map[string]any{
		"date": "2026-08-01", "amount": "1000.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodPost, "/api/expenses", map[string]any{
		"date": "2026-08-05", "amount": "99.10", "category": "software",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dash DashboardDTO
	api.decode(rec, &dash)
	assert.Equal(t, "1000", dash.TotalReceived)
	assert.Equal(t, "998.5", dash.NetDistributable)

	// Profit reports on owner-flagged workers, so flag Alice first
	rec = api.do(http.MethodPut, "/api/workers/"+alice, map[string]any{"is_owner": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/reports/profit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profit ProfitDTO
	api.decode(rec, &profit)
	assert.Equal(t, "599.1", profit.OwnerEarnings)
	assert.Equal(t, "99.1", profit.Expenses)
	assert.Equal(t, "500", profit.Profit)
}

func TestAPI_HealthAndMetricsEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_DeleteReceiptResyncsPayments(t *testing.T) {
	api := newTestAPI(t)
	api.seedRuleSet()
	alice := api.seedWorker("Alice")
	jobID := api.seedJob()
	api.seedAllocation(jobID, alice, "0.60")

	rec := api.do(http.MethodPost, "/api/jobs/"+jobID+"/receipts", map[string]any{
		"date": "2026-08-01", "amount": "1000.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var receipt ReceiptDTO
	api.decode(rec, &receipt)

	rec = api.do(http.MethodDelete, "/api/receipts/"+receipt.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Auto payment drops to zero once its receipt is gone
	rec = api.do(http.MethodGet, fmt.Sprintf("/api/payments?job_id=%s&provenance=auto", jobID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payments struct {
		Payments []PaymentDTO `json:"payments"`
	}
	api.decode(rec, &payments)
	require.Len(t, payments.Payments, 1)
	assert.Equal(t, "0", payments.Payments[0].Amount)
}
