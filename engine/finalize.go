/*
Finalization: freezing and unfreezing a job's breakdown.

PURPOSE:
  Owns the finalize/unfinalize state machine. Finalizing computes the live
  breakdown one last time, persists it as an immutable snapshot, and flips
  the job's finalized flag; from then on every breakdown read returns the
  snapshot and every mutating write to the job's receipts and allocations
  is rejected. Unfinalizing deletes the snapshot and clears the flag,
  nothing else.

STATE MACHINE:
  live --Finalize--> finalized --Unfinalize--> live

  Finalize preconditions: job not already finalized, no snapshot on
  record, live breakdown IsValid. Re-finalizing after unfinalize builds a
  brand-new snapshot from current data; the old one is gone.

ATOMICITY:
  Snapshot insert and flag flip happen in one store transaction. A job is
  never finalized without a snapshot, and never has a snapshot without
  being finalized.

SEE ALSO:
  - breakdown.go: The snapshot-or-live read path
  - autopay.go: The other WithTx consumer
*/
package engine

import (
	"context"
	"time"
)

// Finalizer freezes and unfreezes jobs.
type Finalizer struct {
	Store TxStore

	// NewID mints snapshot IDs. Injected so tests stay deterministic.
	NewID func() string

	// Now is the finalization clock. Injected for the same reason.
	Now func() time.Time
}

// Finalize freezes jobID's current breakdown into a snapshot.
func (f *Finalizer) Finalize(ctx context.Context, jobID JobID) (Snapshot, error) {
	var snap Snapshot
	err := f.Store.WithTx(ctx, func(s Store) error {
		job, err := s.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.IsFinalized {
			return &FinalizedError{JobID: jobID}
		}
		if _, err := s.GetSnapshotByJob(ctx, jobID); err == nil {
			return ErrSnapshotExists
		} else if !IsNotFound(err) {
			return err
		}

		bd, err := liveBreakdown(ctx, s, job)
		if err != nil {
			return err
		}
		if !bd.IsValid {
			return ErrBreakdownInvalid
		}

		snap = Snapshot{
			ID:          SnapshotID(f.NewID()),
			JobID:       job.ID,
			RuleSetID:   job.RuleSetID,
			Breakdown:   bd,
			FinalizedAt: f.Now().UTC(),
		}
		if err := s.CreateSnapshot(ctx, snap); err != nil {
			return err
		}

		job.IsFinalized = true
		return s.UpdateJob(ctx, job)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Unfinalize deletes jobID's snapshot and clears the flag. Receipts,
// allocations and payments are untouched; the job simply becomes live
// again.
func (f *Finalizer) Unfinalize(ctx context.Context, jobID JobID) error {
	return f.Store.WithTx(ctx, func(s Store) error {
		job, err := s.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if !job.IsFinalized {
			return ErrJobNotFinalized
		}
		if err := s.DeleteSnapshotByJob(ctx, jobID); err != nil {
			return err
		}
		job.IsFinalized = false
		return s.UpdateJob(ctx, job)
	})
}

// EnsureEditable is the single guard every receipt/allocation mutation runs
// through before touching storage.
func EnsureEditable(job Job) error {
	if job.IsFinalized {
		return &FinalizedError{JobID: job.ID}
	}
	return nil
}
