/*
Breakdown: the deterministic per-job financial document.

PURPOSE:
  Assembles the deduction pipeline and allocation resolution into one
  document, and provides the snapshot-or-live read path: a finalized job's
  breakdown comes verbatim from its frozen snapshot, never from a
  recomputation.

DETERMINISM:
  ComputeBreakdown is a pure function of (job, receipts, allocations,
  rules). No clocks, no randomness, no store reads. Same inputs, same
  document, byte for byte once serialized.

SEE ALSO:
  - deduction.go, allocation.go: The two stages composed here
  - finalize.go: Where a breakdown gets frozen into a snapshot
*/
package engine

import "context"

// BreakdownAllocation is one allocation's line in the document.
type BreakdownAllocation struct {
	AllocationID AllocationID `json:"allocation_id"`
	WorkerID     *WorkerID    `json:"worker_id"`
	Label        string       `json:"label"`
	Earned       Money        `json:"earned"`
}

// Breakdown is the full financial document for one job. Amounts serialize
// as decimal strings so a frozen document is byte-stable.
type Breakdown struct {
	TotalReceived    Money                 `json:"total_received"`
	ConnectDeduction Money                 `json:"connect_deduction"`
	PlatformFee      Money                 `json:"platform_fee"`
	NetDistributable Money                 `json:"net_distributable"`
	Allocations      []BreakdownAllocation `json:"allocations"`
	IsValid          bool                  `json:"is_valid"`
	Warnings         []string              `json:"warnings,omitempty"`
}

// ComputeBreakdown produces the live document for a job. Receipts may
// include soft-deleted rows; they are skipped. The allocations slice order
// is preserved in the output.
func ComputeBreakdown(job Job, receipts []Receipt, allocations []Allocation, rules Rules) Breakdown {
	eff := ResolveEffective(job, rules)
	ded := ComputeDeductions(job, receipts, eff)
	out := ResolveAllocations(ded.NetDistributable, allocations, eff)

	bd := Breakdown{
		TotalReceived:    ded.TotalReceived,
		ConnectDeduction: ded.ConnectDeduction,
		PlatformFee:      ded.PlatformFee,
		NetDistributable: ded.NetDistributable,
		IsValid:          out.Valid,
		Warnings:         out.Warnings,
	}
	for _, r := range out.Results {
		bd.Allocations = append(bd.Allocations, BreakdownAllocation{
			AllocationID: r.AllocationID,
			WorkerID:     r.WorkerID,
			Label:        r.Label,
			Earned:       r.Earned,
		})
	}
	if ded.Shortfall {
		bd.Warnings = append(bd.Warnings, "deductions exceed receipts; net clamped to zero")
	}
	return bd
}

// JobBreakdown is the read path every consumer goes through. Finalized jobs
// get their stored snapshot back untouched; live jobs get a fresh
// computation against their bound rule set.
func JobBreakdown(ctx context.Context, store Store, job Job) (Breakdown, error) {
	if job.IsFinalized {
		snap, err := store.GetSnapshotByJob(ctx, job.ID)
		if err != nil {
			return Breakdown{}, err
		}
		return snap.Breakdown, nil
	}
	return liveBreakdown(ctx, store, job)
}

func liveBreakdown(ctx context.Context, store Store, job Job) (Breakdown, error) {
	rs, err := store.GetRuleSet(ctx, job.RuleSetID)
	if err != nil {
		return Breakdown{}, err
	}
	receipts, err := store.ListReceiptsByJob(ctx, job.ID, false)
	if err != nil {
		return Breakdown{}, err
	}
	allocations, err := store.ListAllocationsByJob(ctx, job.ID)
	if err != nil {
		return Breakdown{}, err
	}
	return ComputeBreakdown(job, receipts, allocations, rs.Rules), nil
}
