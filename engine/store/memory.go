// Package store provides Store implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/gigledger/payout-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record in insertion-order slices behind one coarse
// lock. Lists come back in insertion order, which keeps breakdowns
// deterministic across runs.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	workers     []engine.Worker
	ruleSets    []engine.RuleSet
	jobs        []engine.Job
	receipts    []engine.Receipt
	allocations []engine.Allocation
	payments    []engine.Payment
	snapshots   []engine.Snapshot
	expenses    []engine.Expense
}

func NewMemory() *Memory {
	return &Memory{st: &state{}}
}

func (s *state) clone() *state {
	c := &state{}
	c.workers = append([]engine.Worker{}, s.workers...)
	c.ruleSets = append([]engine.RuleSet{}, s.ruleSets...)
	c.jobs = append([]engine.Job{}, s.jobs...)
	c.receipts = append([]engine.Receipt{}, s.receipts...)
	c.allocations = append([]engine.Allocation{}, s.allocations...)
	c.payments = append([]engine.Payment{}, s.payments...)
	c.snapshots = append([]engine.Snapshot{}, s.snapshots...)
	c.expenses = append([]engine.Expense{}, s.expenses...)
	return c
}

// =============================================================================
// STATE OPERATIONS - Unlocked; callers hold the lock
// =============================================================================

func (s *state) createWorker(w engine.Worker) error {
	s.workers = append(s.workers, w)
	return nil
}

func (s *state) getWorker(id engine.WorkerID) (engine.Worker, error) {
	for _, w := range s.workers {
		if w.ID == id {
			return w, nil
		}
	}
	return engine.Worker{}, engine.ErrWorkerNotFound
}

func (s *state) listWorkers(includeArchived bool) ([]engine.Worker, error) {
	var out []engine.Worker
	for _, w := range s.workers {
		if !includeArchived && w.IsArchived {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *state) updateWorker(w engine.Worker) error {
	for i := range s.workers {
		if s.workers[i].ID == w.ID {
			s.workers[i] = w
			return nil
		}
	}
	return engine.ErrWorkerNotFound
}

func (s *state) createRuleSet(rs engine.RuleSet) error {
	s.ruleSets = append(s.ruleSets, rs)
	return nil
}

func (s *state) getRuleSet(id engine.RuleSetID) (engine.RuleSet, error) {
	for _, rs := range s.ruleSets {
		if rs.ID == id {
			return rs, nil
		}
	}
	return engine.RuleSet{}, engine.ErrRuleSetNotFound
}

func (s *state) getActiveRuleSet() (engine.RuleSet, error) {
	var found *engine.RuleSet
	for i := range s.ruleSets {
		if s.ruleSets[i].IsActive {
			if found != nil {
				return engine.RuleSet{}, engine.ErrMultipleActiveRuleSets
			}
			found = &s.ruleSets[i]
		}
	}
	if found == nil {
		return engine.RuleSet{}, engine.ErrRuleSetNotFound
	}
	return *found, nil
}

func (s *state) listRuleSets() ([]engine.RuleSet, error) {
	return append([]engine.RuleSet{}, s.ruleSets...), nil
}

func (s *state) activateRuleSet(id engine.RuleSetID) error {
	idx := -1
	for i := range s.ruleSets {
		if s.ruleSets[i].ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return engine.ErrRuleSetNotFound
	}
	for i := range s.ruleSets {
		s.ruleSets[i].IsActive = i == idx
	}
	return nil
}

func (s *state) createJob(j engine.Job) error {
	s.jobs = append(s.jobs, j)
	return nil
}

func (s *state) getJob(id engine.JobID) (engine.Job, error) {
	for _, j := range s.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return engine.Job{}, engine.ErrJobNotFound
}

func (s *state) listJobs(includeArchived bool) ([]engine.Job, error) {
	var out []engine.Job
	for _, j := range s.jobs {
		if !includeArchived && j.Status == engine.StatusArchived {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *state) updateJob(j engine.Job) error {
	for i := range s.jobs {
		if s.jobs[i].ID == j.ID {
			s.jobs[i] = j
			return nil
		}
	}
	return engine.ErrJobNotFound
}

func (s *state) createReceipt(r engine.Receipt) error {
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *state) getReceipt(id engine.ReceiptID) (engine.Receipt, error) {
	for _, r := range s.receipts {
		if r.ID == id {
			return r, nil
		}
	}
	return engine.Receipt{}, engine.ErrReceiptNotFound
}

func (s *state) listReceiptsByJob(jobID engine.JobID, includeDeleted bool) ([]engine.Receipt, error) {
	var out []engine.Receipt
	for _, r := range s.receipts {
		if r.JobID != jobID {
			continue
		}
		if !includeDeleted && r.Deleted() {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *state) updateReceipt(r engine.Receipt) error {
	for i := range s.receipts {
		if s.receipts[i].ID == r.ID {
			s.receipts[i] = r
			return nil
		}
	}
	return engine.ErrReceiptNotFound
}

func (s *state) softDeleteReceipt(id engine.ReceiptID, at time.Time) error {
	for i := range s.receipts {
		if s.receipts[i].ID == id {
			t := at
			s.receipts[i].DeletedAt = &t
			return nil
		}
	}
	return engine.ErrReceiptNotFound
}

func (s *state) createAllocation(a engine.Allocation) error {
	s.allocations = append(s.allocations, a)
	return nil
}

func (s *state) getAllocation(id engine.AllocationID) (engine.Allocation, error) {
	for _, a := range s.allocations {
		if a.ID == id {
			return a, nil
		}
	}
	return engine.Allocation{}, engine.ErrAllocationNotFound
}

func (s *state) listAllocationsByJob(jobID engine.JobID) ([]engine.Allocation, error) {
	var out []engine.Allocation
	for _, a := range s.allocations {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *state) updateAllocation(a engine.Allocation) error {
	for i := range s.allocations {
		if s.allocations[i].ID == a.ID {
			s.allocations[i] = a
			return nil
		}
	}
	return engine.ErrAllocationNotFound
}

func (s *state) deleteAllocation(id engine.AllocationID) error {
	for i := range s.allocations {
		if s.allocations[i].ID == id {
			s.allocations = append(s.allocations[:i], s.allocations[i+1:]...)
			return nil
		}
	}
	return engine.ErrAllocationNotFound
}

func (s *state) createPayment(p engine.Payment) error {
	s.payments = append(s.payments, p)
	return nil
}

func (s *state) getPayment(id engine.PaymentID) (engine.Payment, error) {
	for _, p := range s.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return engine.Payment{}, engine.ErrPaymentNotFound
}

func (s *state) listPayments(f engine.PaymentFilter) ([]engine.Payment, error) {
	var out []engine.Payment
	for _, p := range s.payments {
		if f.WorkerID != nil && p.WorkerID != *f.WorkerID {
			continue
		}
		if f.JobID != nil && (p.JobID == nil || *p.JobID != *f.JobID) {
			continue
		}
		if f.AllocationID != nil && (p.AllocationID == nil || *p.AllocationID != *f.AllocationID) {
			continue
		}
		if f.Provenance != nil && p.Provenance != *f.Provenance {
			continue
		}
		if f.IsPaid != nil && p.IsPaid != *f.IsPaid {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *state) updatePayment(p engine.Payment) error {
	for i := range s.payments {
		if s.payments[i].ID == p.ID {
			s.payments[i] = p
			return nil
		}
	}
	return engine.ErrPaymentNotFound
}

func (s *state) createSnapshot(sn engine.Snapshot) error {
	for _, existing := range s.snapshots {
		if existing.JobID == sn.JobID {
			return engine.ErrSnapshotExists
		}
	}
	s.snapshots = append(s.snapshots, sn)
	return nil
}

func (s *state) getSnapshotByJob(jobID engine.JobID) (engine.Snapshot, error) {
	for _, sn := range s.snapshots {
		if sn.JobID == jobID {
			return sn, nil
		}
	}
	return engine.Snapshot{}, engine.ErrSnapshotNotFound
}

func (s *state) deleteSnapshotByJob(jobID engine.JobID) error {
	for i := range s.snapshots {
		if s.snapshots[i].JobID == jobID {
			s.snapshots = append(s.snapshots[:i], s.snapshots[i+1:]...)
			return nil
		}
	}
	return engine.ErrSnapshotNotFound
}

func (s *state) createExpense(e engine.Expense) error {
	s.expenses = append(s.expenses, e)
	return nil
}

func (s *state) getExpense(id engine.ExpenseID) (engine.Expense, error) {
	for _, e := range s.expenses {
		if e.ID == id {
			return e, nil
		}
	}
	return engine.Expense{}, engine.ErrExpenseNotFound
}

func (s *state) listExpenses(from, to *time.Time) ([]engine.Expense, error) {
	var out []engine.Expense
	for _, e := range s.expenses {
		if from != nil && e.Date.Before(*from) {
			continue
		}
		if to != nil && e.Date.After(*to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *state) updateExpense(e engine.Expense) error {
	for i := range s.expenses {
		if s.expenses[i].ID == e.ID {
			s.expenses[i] = e
			return nil
		}
	}
	return engine.ErrExpenseNotFound
}

func (s *state) deleteExpense(id engine.ExpenseID) error {
	for i := range s.expenses {
		if s.expenses[i].ID == id {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return engine.ErrExpenseNotFound
}

// =============================================================================
// LOCKED WRAPPERS - engine.Store implementation
// =============================================================================

func (m *Memory) CreateWorker(_ context.Context, w engine.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createWorker(w)
}

func (m *Memory) GetWorker(_ context.Context, id engine.WorkerID) (engine.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getWorker(id)
}

func (m *Memory) ListWorkers(_ context.Context, includeArchived bool) ([]engine.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listWorkers(includeArchived)
}

func (m *Memory) UpdateWorker(_ context.Context, w engine.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateWorker(w)
}

func (m *Memory) CreateRuleSet(_ context.Context, rs engine.RuleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createRuleSet(rs)
}

func (m *Memory) GetRuleSet(_ context.Context, id engine.RuleSetID) (engine.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getRuleSet(id)
}

func (m *Memory) GetActiveRuleSet(_ context.Context) (engine.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getActiveRuleSet()
}

func (m *Memory) ListRuleSets(_ context.Context) ([]engine.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listRuleSets()
}

func (m *Memory) ActivateRuleSet(_ context.Context, id engine.RuleSetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.activateRuleSet(id)
}

func (m *Memory) CreateJob(_ context.Context, j engine.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createJob(j)
}

func (m *Memory) GetJob(_ context.Context, id engine.JobID) (engine.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getJob(id)
}

func (m *Memory) ListJobs(_ context.Context, includeArchived bool) ([]engine.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listJobs(includeArchived)
}

func (m *Memory) UpdateJob(_ context.Context, j engine.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateJob(j)
}

func (m *Memory) CreateReceipt(_ context.Context, r engine.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createReceipt(r)
}

func (m *Memory) GetReceipt(_ context.Context, id engine.ReceiptID) (engine.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getReceipt(id)
}

func (m *Memory) ListReceiptsByJob(_ context.Context, jobID engine.JobID, includeDeleted bool) ([]engine.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listReceiptsByJob(jobID, includeDeleted)
}

func (m *Memory) UpdateReceipt(_ context.Context, r engine.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateReceipt(r)
}

func (m *Memory) SoftDeleteReceipt(_ context.Context, id engine.ReceiptID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.softDeleteReceipt(id, at)
}

func (m *Memory) CreateAllocation(_ context.Context, a engine.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createAllocation(a)
}

func (m *Memory) GetAllocation(_ context.Context, id engine.AllocationID) (engine.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getAllocation(id)
}

func (m *Memory) ListAllocationsByJob(_ context.Context, jobID engine.JobID) ([]engine.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAllocationsByJob(jobID)
}

func (m *Memory) UpdateAllocation(_ context.Context, a engine.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateAllocation(a)
}

func (m *Memory) DeleteAllocation(_ context.Context, id engine.AllocationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteAllocation(id)
}

func (m *Memory) CreatePayment(_ context.Context, p engine.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createPayment(p)
}

func (m *Memory) GetPayment(_ context.Context, id engine.PaymentID) (engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getPayment(id)
}

func (m *Memory) ListPayments(_ context.Context, f engine.PaymentFilter) ([]engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPayments(f)
}

func (m *Memory) UpdatePayment(_ context.Context, p engine.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updatePayment(p)
}

func (m *Memory) CreateSnapshot(_ context.Context, sn engine.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createSnapshot(sn)
}

func (m *Memory) GetSnapshotByJob(_ context.Context, jobID engine.JobID) (engine.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getSnapshotByJob(jobID)
}

func (m *Memory) DeleteSnapshotByJob(_ context.Context, jobID engine.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteSnapshotByJob(jobID)
}

func (m *Memory) CreateExpense(_ context.Context, e engine.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createExpense(e)
}

func (m *Memory) GetExpense(_ context.Context, id engine.ExpenseID) (engine.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getExpense(id)
}

func (m *Memory) ListExpenses(_ context.Context, from, to *time.Time) ([]engine.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listExpenses(from, to)
}

func (m *Memory) UpdateExpense(_ context.Context, e engine.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateExpense(e)
}

func (m *Memory) DeleteExpense(_ context.Context, id engine.ExpenseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteExpense(id)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	backup := tm.st.clone()

	view := &txMemoryView{st: tm.st}
	if err := fn(view); err != nil {
		tm.st = backup
		return err
	}
	return nil
}

// txMemoryView gives fn direct access to the already-locked state. Using
// the parent Memory inside WithTx would deadlock on the non-reentrant lock.
type txMemoryView struct {
	st *state
}

func (tv *txMemoryView) CreateWorker(_ context.Context, w engine.Worker) error { return tv.st.createWorker(w) }
func (tv *txMemoryView) GetWorker(_ context.Context, id engine.WorkerID) (engine.Worker, error) {
	return tv.st.getWorker(id)
}
func (tv *txMemoryView) ListWorkers(_ context.Context, includeArchived bool) ([]engine.Worker, error) {
	return tv.st.listWorkers(includeArchived)
}
func (tv *txMemoryView) UpdateWorker(_ context.Context, w engine.Worker) error { return tv.st.updateWorker(w) }

func (tv *txMemoryView) CreateRuleSet(_ context.Context, rs engine.RuleSet) error {
	return tv.st.createRuleSet(rs)
}
func (tv *txMemoryView) GetRuleSet(_ context.Context, id engine.RuleSetID) (engine.RuleSet, error) {
	return tv.st.getRuleSet(id)
}
func (tv *txMemoryView) GetActiveRuleSet(_ context.Context) (engine.RuleSet, error) {
	return tv.st.getActiveRuleSet()
}
func (tv *txMemoryView) ListRuleSets(_ context.Context) ([]engine.RuleSet, error) {
	return tv.st.listRuleSets()
}
func (tv *txMemoryView) ActivateRuleSet(_ context.Context, id engine.RuleSetID) error {
	return tv.st.activateRuleSet(id)
}

func (tv *txMemoryView) CreateJob(_ context.Context, j engine.Job) error { return tv.st.createJob(j) }
func (tv *txMemoryView) GetJob(_ context.Context, id engine.JobID) (engine.Job, error) {
	return tv.st.getJob(id)
}
func (tv *txMemoryView) ListJobs(_ context.Context, includeArchived bool) ([]engine.Job, error) {
	return tv.st.listJobs(includeArchived)
}
func (tv *txMemoryView) UpdateJob(_ context.Context, j engine.Job) error { return tv.st.updateJob(j) }

func (tv *txMemoryView) CreateReceipt(_ context.Context, r engine.Receipt) error {
	return tv.st.createReceipt(r)
}
func (tv *txMemoryView) GetReceipt(_ context.Context, id engine.ReceiptID) (engine.Receipt, error) {
	return tv.st.getReceipt(id)
}
func (tv *txMemoryView) ListReceiptsByJob(_ context.Context, jobID engine.JobID, includeDeleted bool) ([]engine.Receipt, error) {
	return tv.st.listReceiptsByJob(jobID, includeDeleted)
}
func (tv *txMemoryView) UpdateReceipt(_ context.Context, r engine.Receipt) error {
	return tv.st.updateReceipt(r)
}
func (tv *txMemoryView) SoftDeleteReceipt(_ context.Context, id engine.ReceiptID, at time.Time) error {
	return tv.st.softDeleteReceipt(id, at)
}

func (tv *txMemoryView) CreateAllocation(_ context.Context, a engine.Allocation) error {
	return tv.st.createAllocation(a)
}
func (tv *txMemoryView) GetAllocation(_ context.Context, id engine.AllocationID) (engine.Allocation, error) {
	return tv.st.getAllocation(id)
}
func (tv *txMemoryView) ListAllocationsByJob(_ context.Context, jobID engine.JobID) ([]engine.Allocation, error) {
	return tv.st.listAllocationsByJob(jobID)
}
func (tv *txMemoryView) UpdateAllocation(_ context.Context, a engine.Allocation) error {
	return tv.st.updateAllocation(a)
}
func (tv *txMemoryView) DeleteAllocation(_ context.Context, id engine.AllocationID) error {
	return tv.st.deleteAllocation(id)
}

func (tv *txMemoryView) CreatePayment(_ context.Context, p engine.Payment) error {
	return tv.st.createPayment(p)
}
func (tv *txMemoryView) GetPayment(_ context.Context, id engine.PaymentID) (engine.Payment, error) {
	return tv.st.getPayment(id)
}
func (tv *txMemoryView) ListPayments(_ context.Context, f engine.PaymentFilter) ([]engine.Payment, error) {
	return tv.st.listPayments(f)
}
func (tv *txMemoryView) UpdatePayment(_ context.Context, p engine.Payment) error {
	return tv.st.updatePayment(p)
}

func (tv *txMemoryView) CreateSnapshot(_ context.Context, sn engine.Snapshot) error {
	return tv.st.createSnapshot(sn)
}
func (tv *txMemoryView) GetSnapshotByJob(_ context.Context, jobID engine.JobID) (engine.Snapshot, error) {
	return tv.st.getSnapshotByJob(jobID)
}
func (tv *txMemoryView) DeleteSnapshotByJob(_ context.Context, jobID engine.JobID) error {
	return tv.st.deleteSnapshotByJob(jobID)
}

func (tv *txMemoryView) CreateExpense(_ context.Context, e engine.Expense) error {
	return tv.st.createExpense(e)
}
func (tv *txMemoryView) GetExpense(_ context.Context, id engine.ExpenseID) (engine.Expense, error) {
	return tv.st.getExpense(id)
}
func (tv *txMemoryView) ListExpenses(_ context.Context, from, to *time.Time) ([]engine.Expense, error) {
	return tv.st.listExpenses(from, to)
}
func (tv *txMemoryView) UpdateExpense(_ context.Context, e engine.Expense) error {
	return tv.st.updateExpense(e)
}
func (tv *txMemoryView) DeleteExpense(_ context.Context, id engine.ExpenseID) error {
	return tv.st.deleteExpense(id)
}
