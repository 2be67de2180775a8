package sqlite

// engine.Store implementations for *Store (locked, runs on *sql.DB) and
// *txStore (unlocked, runs on the open *sql.Tx). Both delegate to the
// shared queries layer in sqlite.go.

import (
	"context"
	"time"

	"github.com/gigledger/payout-engine/engine"
)

// =============================================================================
// *Store - engine.Store against the connection pool
// =============================================================================

func (s *Store) CreateWorker(ctx context.Context, w engine.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createWorker(ctx, w)
}

func (s *Store) GetWorker(ctx context.Context, id engine.WorkerID) (engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getWorker(ctx, id)
}

func (s *Store) ListWorkers(ctx context.Context, includeArchived bool) ([]engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listWorkers(ctx, includeArchived)
}

func (s *Store) UpdateWorker(ctx context.Context, w engine.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateWorker(ctx, w)
}

func (s *Store) CreateRuleSet(ctx context.Context, rs engine.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createRuleSet(ctx, rs)
}

func (s *Store) GetRuleSet(ctx context.Context, id engine.RuleSetID) (engine.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getRuleSet(ctx, id)
}

func (s *Store) GetActiveRuleSet(ctx context.Context) (engine.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getActiveRuleSet(ctx)
}

func (s *Store) ListRuleSets(ctx context.Context) ([]engine.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listRuleSets(ctx)
}

func (s *Store) ActivateRuleSet(ctx context.Context, id engine.RuleSetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.activateRuleSet(ctx, id)
}

func (s *Store) CreateJob(ctx context.Context, j engine.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createJob(ctx, j)
}

func (s *Store) GetJob(ctx context.Context, id engine.JobID) (engine.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getJob(ctx, id)
}

func (s *Store) ListJobs(ctx context.Context, includeArchived bool) ([]engine.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listJobs(ctx, includeArchived)
}

func (s *Store) UpdateJob(ctx context.Context, j engine.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateJob(ctx, j)
}

func (s *Store) CreateReceipt(ctx context.Context, r engine.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createReceipt(ctx, r)
}

func (s *Store) GetReceipt(ctx context.Context, id engine.ReceiptID) (engine.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getReceipt(ctx, id)
}

func (s *Store) ListReceiptsByJob(ctx context.Context, jobID engine.JobID, includeDeleted bool) ([]engine.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listReceiptsByJob(ctx, jobID, includeDeleted)
}

func (s *Store) UpdateReceipt(ctx context.Context, r engine.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateReceipt(ctx, r)
}

func (s *Store) SoftDeleteReceipt(ctx context.Context, id engine.ReceiptID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.softDeleteReceipt(ctx, id, at)
}

func (s *Store) CreateAllocation(ctx context.Context, a engine.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createAllocation(ctx, a)
}

func (s *Store) GetAllocation(ctx context.Context, id engine.AllocationID) (engine.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getAllocation(ctx, id)
}

func (s *Store) ListAllocationsByJob(ctx context.Context, jobID engine.JobID) ([]engine.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listAllocationsByJob(ctx, jobID)
}

func (s *Store) UpdateAllocation(ctx context.Context, a engine.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateAllocation(ctx, a)
}

func (s *Store) DeleteAllocation(ctx context.Context, id engine.AllocationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteAllocation(ctx, id)
}

func (s *Store) CreatePayment(ctx context.Context, p engine.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createPayment(ctx, p)
}

func (s *Store) GetPayment(ctx context.Context, id engine.PaymentID) (engine.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getPayment(ctx, id)
}

func (s *Store) ListPayments(ctx context.Context, f engine.PaymentFilter) ([]engine.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listPayments(ctx, f)
}

func (s *Store) UpdatePayment(ctx context.Context, p engine.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updatePayment(ctx, p)
}

func (s *Store) CreateSnapshot(ctx context.Context, sn engine.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createSnapshot(ctx, sn)
}

func (s *Store) GetSnapshotByJob(ctx context.Context, jobID engine.JobID) (engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getSnapshotByJob(ctx, jobID)
}

func (s *Store) DeleteSnapshotByJob(ctx context.Context, jobID engine.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteSnapshotByJob(ctx, jobID)
}

func (s *Store) CreateExpense(ctx context.Context, e engine.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createExpense(ctx, e)
}

func (s *Store) GetExpense(ctx context.Context, id engine.ExpenseID) (engine.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getExpense(ctx, id)
}

func (s *Store) ListExpenses(ctx context.Context, from, to *time.Time) ([]engine.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listExpenses(ctx, from, to)
}

func (s *Store) UpdateExpense(ctx context.Context, e engine.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateExpense(ctx, e)
}

func (s *Store) DeleteExpense(ctx context.Context, id engine.ExpenseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteExpense(ctx, id)
}

// =============================================================================
// *txStore - engine.Store against the open transaction
// =============================================================================

func (ts *txStore) CreateWorker(ctx context.Context, w engine.Worker) error {
	return ts.q.createWorker(ctx, w)
}

func (ts *txStore) GetWorker(ctx context.Context, id engine.WorkerID) (engine.Worker, error) {
	return ts.q.getWorker(ctx, id)
}

func (ts *txStore) ListWorkers(ctx context.Context, includeArchived bool) ([]engine.Worker, error) {
	return ts.q.listWorkers(ctx, includeArchived)
}

func (ts *txStore) UpdateWorker(ctx context.Context, w engine.Worker) error {
	return ts.q.updateWorker(ctx, w)
}

func (ts *txStore) CreateRuleSet(ctx context.Context, rs engine.RuleSet) error {
	return ts.q.createRuleSet(ctx, rs)
}

func (ts *txStore) GetRuleSet(ctx context.Context, id engine.RuleSetID) (engine.RuleSet, error) {
	return ts.q.getRuleSet(ctx, id)
}

func (ts *txStore) GetActiveRuleSet(ctx context.Context) (engine.RuleSet, error) {
	return ts.q.getActiveRuleSet(ctx)
}

func (ts *txStore) ListRuleSets(ctx context.Context) ([]engine.RuleSet, error) {
	return ts.q.listRuleSets(ctx)
}

func (ts *txStore) ActivateRuleSet(ctx context.Context, id engine.RuleSetID) error {
	return ts.q.activateRuleSet(ctx, id)
}

func (ts *txStore) CreateJob(ctx context.Context, j engine.Job) error {
	return ts.q.createJob(ctx, j)
}

func (ts *txStore) GetJob(ctx context.Context, id engine.JobID) (engine.Job, error) {
	return ts.q.getJob(ctx, id)
}

func (ts *txStore) ListJobs(ctx context.Context, includeArchived bool) ([]engine.Job, error) {
	return ts.q.listJobs(ctx, includeArchived)
}

func (ts *txStore) UpdateJob(ctx context.Context, j engine.Job) error {
	return ts.q.updateJob(ctx, j)
}

func (ts *txStore) CreateReceipt(ctx context.Context, r engine.Receipt) error {
	return ts.q.createReceipt(ctx, r)
}

func (ts *txStore) GetReceipt(ctx context.Context, id engine.ReceiptID) (engine.Receipt, error) {
	return ts.q.getReceipt(ctx, id)
}

func (ts *txStore) ListReceiptsByJob(ctx context.Context, jobID engine.JobID, includeDeleted bool) ([]engine.Receipt, error) {
	return ts.q.listReceiptsByJob(ctx, jobID, includeDeleted)
}

func (ts *txStore) UpdateReceipt(ctx context.Context, r engine.Receipt) error {
	return ts.q.updateReceipt(ctx, r)
}

func (ts *txStore) SoftDeleteReceipt(ctx context.Context, id engine.ReceiptID, at time.Time) error {
	return ts.q.softDeleteReceipt(ctx, id, at)
}

func (ts *txStore) CreateAllocation(ctx context.Context, a engine.Allocation) error {
	return ts.q.createAllocation(ctx, a)
}

func (ts *txStore) GetAllocation(ctx context.Context, id engine.AllocationID) (engine.Allocation, error) {
	return ts.q.getAllocation(ctx, id)
}

func (ts *txStore) ListAllocationsByJob(ctx context.Context, jobID engine.JobID) ([]engine.Allocation, error) {
	return ts.q.listAllocationsByJob(ctx, jobID)
}

func (ts *txStore) UpdateAllocation(ctx context.Context, a engine.Allocation) error {
	return ts.q.updateAllocation(ctx, a)
}

func (ts *txStore) DeleteAllocation(ctx context.Context, id engine.AllocationID) error {
	return ts.q.deleteAllocation(ctx, id)
}

func (ts *txStore) CreatePayment(ctx context.Context, p engine.Payment) error {
	return ts.q.createPayment(ctx, p)
}

func (ts *txStore) GetPayment(ctx context.Context, id engine.PaymentID) (engine.Payment, error) {
	return ts.q.getPayment(ctx, id)
}

func (ts *txStore) ListPayments(ctx context.Context, f engine.PaymentFilter) ([]engine.Payment, error) {
	return ts.q.listPayments(ctx, f)
}

func (ts *txStore) UpdatePayment(ctx context.Context, p engine.Payment) error {
	return ts.q.updatePayment(ctx, p)
}

func (ts *txStore) CreateSnapshot(ctx context.Context, sn engine.Snapshot) error {
	return ts.q.createSnapshot(ctx, sn)
}

func (ts *txStore) GetSnapshotByJob(ctx context.Context, jobID engine.JobID) (engine.Snapshot, error) {
	return ts.q.getSnapshotByJob(ctx, jobID)
}

func (ts *txStore) DeleteSnapshotByJob(ctx context.Context, jobID engine.JobID) error {
	return ts.q.deleteSnapshotByJob(ctx, jobID)
}

func (ts *txStore) CreateExpense(ctx context.Context, e engine.Expense) error {
	return ts.q.createExpense(ctx, e)
}

func (ts *txStore) GetExpense(ctx context.Context, id engine.ExpenseID) (engine.Expense, error) {
	return ts.q.getExpense(ctx, id)
}

func (ts *txStore) ListExpenses(ctx context.Context, from, to *time.Time) ([]engine.Expense, error) {
	return ts.q.listExpenses(ctx, from, to)
}

func (ts *txStore) UpdateExpense(ctx context.Context, e engine.Expense) error {
	return ts.q.updateExpense(ctx, e)
}

func (ts *txStore) DeleteExpense(ctx context.Context, id engine.ExpenseID) error {
	return ts.q.deleteExpense(ctx, id)
}
