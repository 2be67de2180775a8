/*
Auto-payment synchronization.

PURPOSE:
  Keeps one live unpaid auto-generated payment per worker allocation in
  step with what that allocation has earned. Runs after every receipt
  write (create, amend, soft-delete) inside the same transaction as the
  write itself, so payments and receipts can never drift apart on a crash.

RECONCILIATION RULE:
  Auto rows are keyed by worker+job+allocation. For each worker allocation
  on the job:
    outstanding = earned − Σ(amount of PAID auto rows under that key)
    clamped at zero.
  The single unpaid auto row under the key is updated to outstanding
  (created if absent and outstanding > 0). Unpaid rows whose key no longer
  matches any worker allocation (allocation removed, worker reassigned)
  are zeroed. Paid rows are never modified; no payment row is ever
  deleted. Running the sync twice in a row is a no-op.

  House allocations (nil worker) never generate payments.

SEE ALSO:
  - breakdown.go: Source of the earned amounts
  - store.go: PaymentStore, which deliberately has no delete method
*/
package engine

import (
	"context"
	"time"
)

// PaymentSyncer owns receipt writes and the auto-payment rows they drive.
type PaymentSyncer struct {
	Store TxStore

	// NewID mints payment and receipt IDs. Injected for deterministic tests.
	NewID func() string

	// Now stamps fresh auto rows.
	Now func() time.Time
}

// RecordReceipt validates and persists a new receipt, then reconciles the
// job's auto payments. All in one transaction.
func (ps *PaymentSyncer) RecordReceipt(ctx context.Context, r Receipt) (Receipt, error) {
	if r.Amount.IsNegative() {
		return Receipt{}, ErrNegativeAmount
	}
	if r.ID == "" {
		r.ID = ReceiptID(ps.NewID())
	}
	err := ps.Store.WithTx(ctx, func(s Store) error {
		job, err := s.GetJob(ctx, r.JobID)
		if err != nil {
			return err
		}
		if err := EnsureEditable(job); err != nil {
			return err
		}
		if err := s.CreateReceipt(ctx, r); err != nil {
			return err
		}
		return ps.sync(ctx, s, job)
	})
	if err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// AmendReceipt updates an existing receipt in place and reconciles.
func (ps *PaymentSyncer) AmendReceipt(ctx context.Context, r Receipt) error {
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return ps.Store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetReceipt(ctx, r.ID)
		if err != nil {
			return err
		}
		r.JobID = existing.JobID // receipts never move between jobs
		job, err := s.GetJob(ctx, r.JobID)
		if err != nil {
			return err
		}
		if err := EnsureEditable(job); err != nil {
			return err
		}
		if err := s.UpdateReceipt(ctx, r); err != nil {
			return err
		}
		return ps.sync(ctx, s, job)
	})
}

// RemoveReceipt soft-deletes a receipt and reconciles. Payments already
// generated from the receipt stay; only unpaid rows shrink.
func (ps *PaymentSyncer) RemoveReceipt(ctx context.Context, id ReceiptID) error {
	return ps.Store.WithTx(ctx, func(s Store) error {
		r, err := s.GetReceipt(ctx, id)
		if err != nil {
			return err
		}
		job, err := s.GetJob(ctx, r.JobID)
		if err != nil {
			return err
		}
		if err := EnsureEditable(job); err != nil {
			return err
		}
		if err := s.SoftDeleteReceipt(ctx, id, ps.Now().UTC()); err != nil {
			return err
		}
		return ps.sync(ctx, s, job)
	})
}

// Resync reconciles a job's auto payments without a receipt write. Used
// after allocation changes on a live job.
func (ps *PaymentSyncer) Resync(ctx context.Context, jobID JobID) error {
	return ps.Store.WithTx(ctx, func(s Store) error {
		job, err := s.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if err := EnsureEditable(job); err != nil {
			return err
		}
		return ps.sync(ctx, s, job)
	})
}

func (ps *PaymentSyncer) sync(ctx context.Context, s Store, job Job) error {
	bd, err := liveBreakdown(ctx, s, job)
	if err != nil {
		return err
	}

	auto := ProvenanceAuto
	jobID := job.ID
	rows, err := s.ListPayments(ctx, PaymentFilter{
		JobID:      &jobID,
		Provenance: &auto,
	})
	if err != nil {
		return err
	}

	// Bucket the job's auto rows by worker+allocation once, so each
	// breakdown line reconciles against exactly its own history.
	type rowKey struct {
		worker WorkerID
		alloc  AllocationID
	}
	paidBy := make(map[rowKey]Money)
	unpaidBy := make(map[rowKey]*Payment)
	for i := range rows {
		if rows[i].AllocationID == nil {
			continue
		}
		k := rowKey{rows[i].WorkerID, *rows[i].AllocationID}
		if rows[i].IsPaid {
			sum, ok := paidBy[k]
			if !ok {
				sum = ZeroMoney()
			}
			paidBy[k] = sum.Add(rows[i].Amount)
		} else {
			unpaidBy[k] = &rows[i]
		}
	}

	claimed := make(map[rowKey]bool)
	for _, line := range bd.Allocations {
		if line.WorkerID == nil {
			continue
		}
		k := rowKey{*line.WorkerID, line.AllocationID}
		claimed[k] = true

		paid, ok := paidBy[k]
		if !ok {
			paid = ZeroMoney()
		}
		outstanding := line.Earned.Sub(paid)
		if outstanding.IsNegative() {
			outstanding = ZeroMoney()
		}

		switch unpaid := unpaidBy[k]; {
		case unpaid != nil:
			if unpaid.Amount.Equal(outstanding) {
				continue // already in step
			}
			unpaid.Amount = outstanding
			if err := s.UpdatePayment(ctx, *unpaid); err != nil {
				return err
			}
		case outstanding.IsPositive():
			aID := line.AllocationID
			p := Payment{
				ID:           PaymentID(ps.NewID()),
				WorkerID:     *line.WorkerID,
				JobID:        &jobID,
				AllocationID: &aID,
				Amount:       outstanding,
				Date:         ps.Now().UTC(),
				Provenance:   ProvenanceAuto,
			}
			if err := s.CreatePayment(ctx, p); err != nil {
				return err
			}
		}
	}

	// Unpaid rows no line claimed are stale: their allocation was removed
	// or its worker reassigned. Zero them rather than delete.
	for k, p := range unpaidBy {
		if claimed[k] || p.Amount.IsZero() {
			continue
		}
		p.Amount = ZeroMoney()
		if err := s.UpdatePayment(ctx, *p); err != nil {
			return err
		}
	}
	return nil
}
