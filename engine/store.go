/*
store.go - Persistence interfaces for the payout engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Per-entity stores: WorkerStore, RuleSetStore, JobStore, ReceiptStore,
                     AllocationStore, PaymentStore, SnapshotStore,
                     ExpenseStore
  Store:             All of the above combined
  TxStore:           Store plus WithTx for atomic multi-table operations

WRITE CONTRACTS ENCODED IN THE INTERFACES:
  - RuleSet payloads have no update method. A rule change is a new row.
  - Receipts are never hard-deleted; SoftDeleteReceipt sets deleted_at.
  - Payments have no delete method at all. Auto-generated rows are created
    and updated by the sync pass, never removed.
  - Snapshots are created whole and deleted whole; no partial updates.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - engine/store/memory.go: In-memory for testing

SEE ALSO:
  - finalize.go, autopay.go: The operations that need WithTx
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// PER-ENTITY STORES
// =============================================================================

type WorkerStore interface {
	CreateWorker(ctx context.Context, w Worker) error
	GetWorker(ctx context.Context, id WorkerID) (Worker, error)
	ListWorkers(ctx context.Context, includeArchived bool) ([]Worker, error)
	UpdateWorker(ctx context.Context, w Worker) error
}

// RuleSetStore persists rule sets. There is deliberately no UpdateRuleSet:
// payloads are immutable, and the only mutation is which row is active.
type RuleSetStore interface {
	CreateRuleSet(ctx context.Context, rs RuleSet) error
	GetRuleSet(ctx context.Context, id RuleSetID) (RuleSet, error)

	// GetActiveRuleSet returns the single active rule set. If storage holds
	// more than one active row it returns ErrMultipleActiveRuleSets.
	GetActiveRuleSet(ctx context.Context) (RuleSet, error)

	ListRuleSets(ctx context.Context) ([]RuleSet, error)

	// ActivateRuleSet marks id active and deactivates every other rule set,
	// atomically.
	ActivateRuleSet(ctx context.Context, id RuleSetID) error
}

type JobStore interface {
	CreateJob(ctx context.Context, j Job) error
	GetJob(ctx context.Context, id JobID) (Job, error)
	ListJobs(ctx context.Context, includeArchived bool) ([]Job, error)
	UpdateJob(ctx context.Context, j Job) error
}

type ReceiptStore interface {
	CreateReceipt(ctx context.Context, r Receipt) error
	GetReceipt(ctx context.Context, id ReceiptID) (Receipt, error)

	// ListReceiptsByJob returns the job's receipts, soft-deleted rows
	// included only when includeDeleted is set.
	ListReceiptsByJob(ctx context.Context, jobID JobID, includeDeleted bool) ([]Receipt, error)

	UpdateReceipt(ctx context.Context, r Receipt) error
	SoftDeleteReceipt(ctx context.Context, id ReceiptID, at time.Time) error
}

type AllocationStore interface {
	CreateAllocation(ctx context.Context, a Allocation) error
	GetAllocation(ctx context.Context, id AllocationID) (Allocation, error)
	ListAllocationsByJob(ctx context.Context, jobID JobID) ([]Allocation, error)
	UpdateAllocation(ctx context.Context, a Allocation) error
	DeleteAllocation(ctx context.Context, id AllocationID) error
}

// PaymentStore has no delete method. Ever.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
}

// PaymentFilter narrows ListPayments. Zero value means all payments.
type PaymentFilter struct {
	WorkerID     *WorkerID
	JobID        *JobID
	AllocationID *AllocationID
	Provenance   *Provenance
	IsPaid       *bool
}

type SnapshotStore interface {
	// CreateSnapshot persists a frozen breakdown. Returns ErrSnapshotExists
	// if the job already has one.
	CreateSnapshot(ctx context.Context, s Snapshot) error

	GetSnapshotByJob(ctx context.Context, jobID JobID) (Snapshot, error)
	DeleteSnapshotByJob(ctx context.Context, jobID JobID) error
}

type ExpenseStore interface {
	CreateExpense(ctx context.Context, e Expense) error
	GetExpense(ctx context.Context, id ExpenseID) (Expense, error)
	ListExpenses(ctx context.Context, from, to *time.Time) ([]Expense, error)
	UpdateExpense(ctx context.Context, e Expense) error
	DeleteExpense(ctx context.Context, id ExpenseID) error
}

// =============================================================================
// COMBINED + TRANSACTIONAL STORE
// =============================================================================

// Store is everything the engine needs from persistence.
type Store interface {
	WorkerStore
	RuleSetStore
	JobStore
	ReceiptStore
	AllocationStore
	PaymentStore
	SnapshotStore
	ExpenseStore
}

// TxStore wraps Store with transaction support.
// Use this for operations that must not leave partial state: finalization
// and the auto-payment sync pass.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
