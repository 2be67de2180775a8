/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements engine.Store and engine.TxStore using SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  workers:     People (and the house) holding allocations and payments
  rule_sets:   Immutable versioned calculation parameters (JSON payload)
  jobs:        Contracts binding receipts/allocations to a rule set
  receipts:    Money received, soft-deleted via deleted_at
  allocations: Share claims on a job's net distributable
  payments:    Money owed/disbursed; auto rows maintained by the engine
  snapshots:   Frozen breakdowns, one per finalized job
  expenses:    Operating costs for profit reporting

INVARIANTS ENFORCED BY INDEXES:
  - idx_rule_sets_one_active:  at most one active rule set, system-wide
  - snapshots.job_id UNIQUE:   at most one frozen breakdown per job
  - idx_payments_live_auto:    at most one unpaid auto payment per
                               worker+job+allocation
  - idx_payments_code:         payment codes unique when present

WRITE CONTRACTS:
  - rule_sets has no UPDATE beyond the is_active flag; payloads are immutable
  - receipts are never hard-deleted, only stamped with deleted_at
  - payments have no DELETE statement anywhere in this file

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gigledger/payout-engine/engine"
	"github.com/gigledger/payout-engine/factory"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		contact TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		is_owner BOOLEAN NOT NULL DEFAULT FALSE,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_workers_code
		ON workers(code) WHERE code != '';

	-- Rule sets: payload is immutable JSON; only is_active ever changes
	CREATE TABLE IF NOT EXISTS rule_sets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		rules_json TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one active rule set, system-wide
	CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_sets_one_active
		ON rule_sets(is_active) WHERE is_active = 1;

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		connects_used INTEGER NOT NULL DEFAULT 0,
		rule_set_id TEXT NOT NULL,
		overrides_json TEXT NOT NULL DEFAULT '{}',
		is_finalized BOOLEAN NOT NULL DEFAULT FALSE,
		start_date TEXT,
		end_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_code
		ON jobs(code) WHERE code != '';

	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'manual',
		notes TEXT NOT NULL DEFAULT '',
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_job ON receipts(job_id);

	CREATE TABLE IF NOT EXISTS allocations (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		worker_id TEXT,
		label TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		share_type TEXT NOT NULL,
		share_value TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_job ON allocations(job_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		worker_id TEXT NOT NULL,
		job_id TEXT,
		allocation_id TEXT,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		provenance TEXT NOT NULL DEFAULT 'manual'
	);

	CREATE INDEX IF NOT EXISTS idx_payments_worker ON payments(worker_id);
	CREATE INDEX IF NOT EXISTS idx_payments_job ON payments(job_id)
		WHERE job_id IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_code
		ON payments(code) WHERE code != '';

	-- CRITICAL: one live unpaid auto-generated payment per allocation claim
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_live_auto
		ON payments(worker_id, job_id, allocation_id)
		WHERE provenance = 'auto' AND is_paid = 0;

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL UNIQUE,
		rule_set_id TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		finalized_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: queries{db: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every operation against the open *sql.Tx. The parent lock is
// already held by WithTx, so no locking here.
type txStore struct {
	q queries
}

// =============================================================================
// QUERIES - Shared between *sql.DB and *sql.Tx
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// -----------------------------------------------------------------------------
// Workers
// -----------------------------------------------------------------------------

func (q queries) createWorker(ctx context.Context, w engine.Worker) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO workers (id, code, name, contact, notes, is_owner, is_archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Code, w.Name, w.Contact, w.Notes, w.IsOwner, w.IsArchived,
		w.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert worker: %w", err)
	}
	return nil
}

func (q queries) getWorker(ctx context.Context, id engine.WorkerID) (engine.Worker, error) {
	var w engine.Worker
	var createdAt string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, code, name, contact, notes, is_owner, is_archived, created_at
		 FROM workers WHERE id = ?`, id,
	).Scan(&w.ID, &w.Code, &w.Name, &w.Contact, &w.Notes, &w.IsOwner, &w.IsArchived, &createdAt)
	if err == sql.ErrNoRows {
		return engine.Worker{}, engine.ErrWorkerNotFound
	}
	if err != nil {
		return engine.Worker{}, err
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return w, nil
}

func (q queries) listWorkers(ctx context.Context, includeArchived bool) ([]engine.Worker, error) {
	query := `SELECT id, code, name, contact, notes, is_owner, is_archived, created_at
	          FROM workers`
	if !includeArchived {
		query += ` WHERE is_archived = 0`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []engine.Worker
	for rows.Next() {
		var w engine.Worker
		var createdAt string
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Contact, &w.Notes, &w.IsOwner, &w.IsArchived, &createdAt); err != nil {
			return nil, err
		}
		w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func (q queries) updateWorker(ctx context.Context, w engine.Worker) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE workers SET code = ?, name = ?, contact = ?, notes = ?, is_owner = ?, is_archived = ?
		WHERE id = ?`,
		w.Code, w.Name, w.Contact, w.Notes, w.IsOwner, w.IsArchived, w.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrWorkerNotFound)
}

// -----------------------------------------------------------------------------
// Rule sets
// -----------------------------------------------------------------------------

func (q queries) createRuleSet(ctx context.Context, rs engine.RuleSet) error {
	payload, err := factory.MarshalRules(rs.Rules)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO rule_sets (id, name, is_active, rules_json, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.Name, rs.IsActive, string(payload), rs.Notes,
		rs.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrMultipleActiveRuleSets
		}
		return fmt.Errorf("failed to insert rule set: %w", err)
	}
	return nil
}

func (q queries) getRuleSet(ctx context.Context, id engine.RuleSetID) (engine.RuleSet, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, is_active, rules_json, notes, created_at
		 FROM rule_sets WHERE id = ?`, id)
	rs, err := scanRuleSet(row)
	if err == sql.ErrNoRows {
		return engine.RuleSet{}, engine.ErrRuleSetNotFound
	}
	return rs, err
}

func (q queries) getActiveRuleSet(ctx context.Context) (engine.RuleSet, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, is_active, rules_json, notes, created_at
		 FROM rule_sets WHERE is_active = 1`)
	if err != nil {
		return engine.RuleSet{}, err
	}
	defer rows.Close()

	var active []engine.RuleSet
	for rows.Next() {
		rs, err := scanRuleSet(rows)
		if err != nil {
			return engine.RuleSet{}, err
		}
		active = append(active, rs)
	}
	if err := rows.Err(); err != nil {
		return engine.RuleSet{}, err
	}
	switch len(active) {
	case 0:
		return engine.RuleSet{}, engine.ErrRuleSetNotFound
	case 1:
		return active[0], nil
	default:
		return engine.RuleSet{}, engine.ErrMultipleActiveRuleSets
	}
}

func (q queries) listRuleSets(ctx context.Context) ([]engine.RuleSet, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, is_active, rules_json, notes, created_at
		 FROM rule_sets ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.RuleSet
	for rows.Next() {
		rs, err := scanRuleSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (q queries) activateRuleSet(ctx context.Context, id engine.RuleSetID) error {
	// Deactivate first so the partial unique index never sees two active rows.
	if _, err := q.db.ExecContext(ctx, `UPDATE rule_sets SET is_active = 0 WHERE is_active = 1`); err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `UPDATE rule_sets SET is_active = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrRuleSetNotFound)
}

// -----------------------------------------------------------------------------
// Jobs
// -----------------------------------------------------------------------------

func (q queries) createJob(ctx context.Context, j engine.Job) error {
	overrides, err := json.Marshal(j.Overrides)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, code, title, client_name, job_type, status, connects_used,
			rule_set_id, overrides_json, is_finalized, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Code, j.Title, j.ClientName, j.Type, j.Status, j.ConnectsUsed,
		j.RuleSetID, string(overrides), j.IsFinalized,
		nullTime(j.StartDate), nullTime(j.EndDate),
		j.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (q queries) getJob(ctx context.Context, id engine.JobID) (engine.Job, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, code, title, client_name, job_type, status, connects_used,
			rule_set_id, overrides_json, is_finalized, start_date, end_date, created_at
		 FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return engine.Job{}, engine.ErrJobNotFound
	}
	return j, err
}

func (q queries) listJobs(ctx context.Context, includeArchived bool) ([]engine.Job, error) {
	query := `SELECT id, code, title, client_name, job_type, status, connects_used,
			rule_set_id, overrides_json, is_finalized, start_date, end_date, created_at
		 FROM jobs`
	if !includeArchived {
		query += ` WHERE status != 'archived'`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []engine.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (q queries) updateJob(ctx context.Context, j engine.Job) error {
	overrides, err := json.Marshal(j.Overrides)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET code = ?, title = ?, client_name = ?, job_type = ?, status = ?,
			connects_used = ?, rule_set_id = ?, overrides_json = ?, is_finalized = ?,
			start_date = ?, end_date = ?
		WHERE id = ?`,
		j.Code, j.Title, j.ClientName, j.Type, j.Status, j.ConnectsUsed,
		j.RuleSetID, string(overrides), j.IsFinalized,
		nullTime(j.StartDate), nullTime(j.EndDate), j.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrJobNotFound)
}

// -----------------------------------------------------------------------------
// Receipts
// -----------------------------------------------------------------------------

func (q queries) createReceipt(ctx context.Context, r engine.Receipt) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO receipts (id, job_id, date, amount, source, notes, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobID, r.Date.UTC().Format(time.RFC3339), r.Amount.String(),
		r.Source, r.Notes, nullTime(r.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (q queries) getReceipt(ctx context.Context, id engine.ReceiptID) (engine.Receipt, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, job_id, date, amount, source, notes, deleted_at
		 FROM receipts WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return engine.Receipt{}, engine.ErrReceiptNotFound
	}
	return r, err
}

func (q queries) listReceiptsByJob(ctx context.Context, jobID engine.JobID, includeDeleted bool) ([]engine.Receipt, error) {
	query := `SELECT id, job_id, date, amount, source, notes, deleted_at
	          FROM receipts WHERE job_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := q.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []engine.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func (q queries) updateReceipt(ctx context.Context, r engine.Receipt) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE receipts SET date = ?, amount = ?, source = ?, notes = ?
		WHERE id = ?`,
		r.Date.UTC().Format(time.RFC3339), r.Amount.String(), r.Source, r.Notes, r.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrReceiptNotFound)
}

func (q queries) softDeleteReceipt(ctx context.Context, id engine.ReceiptID, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE receipts SET deleted_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrReceiptNotFound)
}

// -----------------------------------------------------------------------------
// Allocations
// -----------------------------------------------------------------------------

func (q queries) createAllocation(ctx context.Context, a engine.Allocation) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO allocations (id, job_id, worker_id, label, role, share_type, share_value, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.JobID, nullWorkerID(a.WorkerID), a.Label, a.Role,
		a.ShareType, a.ShareValue.String(), a.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	return nil
}

func (q queries) getAllocation(ctx context.Context, id engine.AllocationID) (engine.Allocation, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, job_id, worker_id, label, role, share_type, share_value, notes
		 FROM allocations WHERE id = ?`, id)
	a, err := scanAllocation(row)
	if err == sql.ErrNoRows {
		return engine.Allocation{}, engine.ErrAllocationNotFound
	}
	return a, err
}

func (q queries) listAllocationsByJob(ctx context.Context, jobID engine.JobID) ([]engine.Allocation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, job_id, worker_id, label, role, share_type, share_value, notes
		 FROM allocations WHERE job_id = ? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []engine.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func (q queries) updateAllocation(ctx context.Context, a engine.Allocation) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE allocations SET worker_id = ?, label = ?, role = ?, share_type = ?, share_value = ?, notes = ?
		WHERE id = ?`,
		nullWorkerID(a.WorkerID), a.Label, a.Role, a.ShareType, a.ShareValue.String(), a.Notes, a.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrAllocationNotFound)
}

func (q queries) deleteAllocation(ctx context.Context, id engine.AllocationID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM allocations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrAllocationNotFound)
}

// -----------------------------------------------------------------------------
// Payments
// -----------------------------------------------------------------------------

func (q queries) createPayment(ctx context.Context, p engine.Payment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payments (id, code, worker_id, job_id, allocation_id, amount, date,
			method, reference, notes, is_paid, provenance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.WorkerID, nullJobID(p.JobID), nullAllocationID(p.AllocationID),
		p.Amount.String(), p.Date.UTC().Format(time.RFC3339),
		p.Method, p.Reference, p.Notes, p.IsPaid, p.Provenance,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (q queries) getPayment(ctx context.Context, id engine.PaymentID) (engine.Payment, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, code, worker_id, job_id, allocation_id, amount, date,
			method, reference, notes, is_paid, provenance
		 FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return engine.Payment{}, engine.ErrPaymentNotFound
	}
	return p, err
}

func (q queries) listPayments(ctx context.Context, f engine.PaymentFilter) ([]engine.Payment, error) {
	query := `SELECT id, code, worker_id, job_id, allocation_id, amount, date,
			method, reference, notes, is_paid, provenance
		 FROM payments WHERE 1=1`
	var args []any
	if f.WorkerID != nil {
		query += ` AND worker_id = ?`
		args = append(args, *f.WorkerID)
	}
	if f.JobID != nil {
		query += ` AND job_id = ?`
		args = append(args, *f.JobID)
	}
	if f.AllocationID != nil {
		query += ` AND allocation_id = ?`
		args = append(args, *f.AllocationID)
	}
	if f.Provenance != nil {
		query += ` AND provenance = ?`
		args = append(args, *f.Provenance)
	}
	if f.IsPaid != nil {
		query += ` AND is_paid = ?`
		args = append(args, *f.IsPaid)
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []engine.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (q queries) updatePayment(ctx context.Context, p engine.Payment) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE payments SET code = ?, amount = ?, date = ?, method = ?, reference = ?,
			notes = ?, is_paid = ?
		WHERE id = ?`,
		p.Code, p.Amount.String(), p.Date.UTC().Format(time.RFC3339),
		p.Method, p.Reference, p.Notes, p.IsPaid, p.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrPaymentNotFound)
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

func (q queries) createSnapshot(ctx context.Context, sn engine.Snapshot) error {
	payload, err := json.Marshal(sn.Breakdown)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, job_id, rule_set_id, breakdown_json, finalized_at)
		VALUES (?, ?, ?, ?, ?)`,
		sn.ID, sn.JobID, sn.RuleSetID, string(payload),
		sn.FinalizedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrSnapshotExists
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (q queries) getSnapshotByJob(ctx context.Context, jobID engine.JobID) (engine.Snapshot, error) {
	var sn engine.Snapshot
	var breakdownJSON, finalizedAt string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, job_id, rule_set_id, breakdown_json, finalized_at
		 FROM snapshots WHERE job_id = ?`, jobID,
	).Scan(&sn.ID, &sn.JobID, &sn.RuleSetID, &breakdownJSON, &finalizedAt)
	if err == sql.ErrNoRows {
		return engine.Snapshot{}, engine.ErrSnapshotNotFound
	}
	if err != nil {
		return engine.Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(breakdownJSON), &sn.Breakdown); err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to decode snapshot breakdown: %w", err)
	}
	sn.FinalizedAt, _ = time.Parse(time.RFC3339, finalizedAt)
	return sn, nil
}

func (q queries) deleteSnapshotByJob(ctx context.Context, jobID engine.JobID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM snapshots WHERE job_id = ?`, jobID)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrSnapshotNotFound)
}

// -----------------------------------------------------------------------------
// Expenses
// -----------------------------------------------------------------------------

func (q queries) createExpense(ctx context.Context, e engine.Expense) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO expenses (id, date, amount, category, notes)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Date.UTC().Format(time.RFC3339), e.Amount.String(), e.Category, e.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (q queries) getExpense(ctx context.Context, id engine.ExpenseID) (engine.Expense, error) {
	var e engine.Expense
	var date, amount string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, date, amount, category, notes FROM expenses WHERE id = ?`, id,
	).Scan(&e.ID, &date, &amount, &e.Category, &e.Notes)
	if err == sql.ErrNoRows {
		return engine.Expense{}, engine.ErrExpenseNotFound
	}
	if err != nil {
		return engine.Expense{}, err
	}
	e.Date, _ = time.Parse(time.RFC3339, date)
	e.Amount = engine.MustParseMoney(amount)
	return e, nil
}

func (q queries) listExpenses(ctx context.Context, from, to *time.Time) ([]engine.Expense, error) {
	query := `SELECT id, date, amount, category, notes FROM expenses WHERE 1=1`
	var args []any
	if from != nil {
		query += ` AND date >= ?`
		args = append(args, from.UTC().Format(time.RFC3339))
	}
	if to != nil {
		query += ` AND date <= ?`
		args = append(args, to.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []engine.Expense
	for rows.Next() {
		var e engine.Expense
		var date, amount string
		if err := rows.Scan(&e.ID, &date, &amount, &e.Category, &e.Notes); err != nil {
			return nil, err
		}
		e.Date, _ = time.Parse(time.RFC3339, date)
		e.Amount = engine.MustParseMoney(amount)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (q queries) updateExpense(ctx context.Context, e engine.Expense) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE expenses SET date = ?, amount = ?, category = ?, notes = ?
		WHERE id = ?`,
		e.Date.UTC().Format(time.RFC3339), e.Amount.String(), e.Category, e.Notes, e.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrExpenseNotFound)
}

func (q queries) deleteExpense(ctx context.Context, id engine.ExpenseID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, engine.ErrExpenseNotFound)
}

// =============================================================================
// ROW SCANNERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleSet(row rowScanner) (engine.RuleSet, error) {
	var rs engine.RuleSet
	var rulesJSON, createdAt string
	if err := row.Scan(&rs.ID, &rs.Name, &rs.IsActive, &rulesJSON, &rs.Notes, &createdAt); err != nil {
		return engine.RuleSet{}, err
	}
	rules, err := factory.ParseRules([]byte(rulesJSON))
	if err != nil {
		return engine.RuleSet{}, fmt.Errorf("failed to decode rule set %s: %w", rs.ID, err)
	}
	rs.Rules = rules
	rs.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rs, nil
}

func scanJob(row rowScanner) (engine.Job, error) {
	var j engine.Job
	var overridesJSON, createdAt string
	var startDate, endDate sql.NullString
	if err := row.Scan(&j.ID, &j.Code, &j.Title, &j.ClientName, &j.Type, &j.Status,
		&j.ConnectsUsed, &j.RuleSetID, &overridesJSON, &j.IsFinalized,
		&startDate, &endDate, &createdAt); err != nil {
		return engine.Job{}, err
	}
	if overridesJSON != "" {
		if err := json.Unmarshal([]byte(overridesJSON), &j.Overrides); err != nil {
			return engine.Job{}, fmt.Errorf("failed to decode job overrides: %w", err)
		}
	}
	j.StartDate = parseNullTime(startDate)
	j.EndDate = parseNullTime(endDate)
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return j, nil
}

func scanReceipt(row rowScanner) (engine.Receipt, error) {
	var r engine.Receipt
	var date, amount string
	var deletedAt sql.NullString
	if err := row.Scan(&r.ID, &r.JobID, &date, &amount, &r.Source, &r.Notes, &deletedAt); err != nil {
		return engine.Receipt{}, err
	}
	r.Date, _ = time.Parse(time.RFC3339, date)
	r.Amount = engine.MustParseMoney(amount)
	r.DeletedAt = parseNullTime(deletedAt)
	return r, nil
}

func scanAllocation(row rowScanner) (engine.Allocation, error) {
	var a engine.Allocation
	var workerID sql.NullString
	var shareValue string
	if err := row.Scan(&a.ID, &a.JobID, &workerID, &a.Label, &a.Role, &a.ShareType, &shareValue, &a.Notes); err != nil {
		return engine.Allocation{}, err
	}
	if workerID.Valid {
		id := engine.WorkerID(workerID.String)
		a.WorkerID = &id
	}
	a.ShareValue = engine.MustParseMoney(shareValue).Value
	return a, nil
}

func scanPayment(row rowScanner) (engine.Payment, error) {
	var p engine.Payment
	var jobID, allocationID sql.NullString
	var amount, date string
	if err := row.Scan(&p.ID, &p.Code, &p.WorkerID, &jobID, &allocationID, &amount, &date,
		&p.Method, &p.Reference, &p.Notes, &p.IsPaid, &p.Provenance); err != nil {
		return engine.Payment{}, err
	}
	if jobID.Valid {
		id := engine.JobID(jobID.String)
		p.JobID = &id
	}
	if allocationID.Valid {
		id := engine.AllocationID(allocationID.String)
		p.AllocationID = &id
	}
	p.Amount = engine.MustParseMoney(amount)
	p.Date, _ = time.Parse(time.RFC3339, date)
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullWorkerID(id *engine.WorkerID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullJobID(id *engine.JobID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullAllocationID(id *engine.AllocationID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
