/*
Allocation resolution: distributing the net among workers.

PURPOSE:
  Turns a job's allocations plus a net distributable into per-allocation
  earned amounts, and guards allocation writes against over-committing the
  percent pool.

RESOLUTION RULES:
  - percent: earned = net × share (share is always a fraction of the FULL
    net, never of a remainder after fixed shares)
  - fixed_amount: earned = share, regardless of net
  - Σ(fixed) > net is a policy violation: the breakdown is still produced
    but flagged invalid, so the problem is visible instead of hidden

SEE ALSO:
  - deduction.go: Where the net distributable comes from
  - breakdown.go: The document these results land in
*/
package engine

import "github.com/shopspring/decimal"

// percentSumEpsilon is the tolerance over 1.0 the write guard allows, to
// absorb representation noise without permitting real over-allocation.
var percentSumEpsilon = decimal.New(1, -6) // 1e-6

// AllocationResult is one allocation's resolved earned amount.
type AllocationResult struct {
	AllocationID AllocationID
	WorkerID     *WorkerID
	Label        string
	Earned       Money
}

// AllocationOutcome is the full resolution for one job.
type AllocationOutcome struct {
	Results  []AllocationResult
	Valid    bool
	Warnings []string
}

// ResolveAllocations computes each allocation's earned amount from the net
// distributable. Results preserve the input order so the document is
// deterministic for a given allocation list.
func ResolveAllocations(net Money, allocations []Allocation, eff EffectiveRules) AllocationOutcome {
	round := eff.Rounding.Apply

	out := AllocationOutcome{
		Results: make([]AllocationResult, 0, len(allocations)),
		Valid:   true,
	}

	fixedTotal := ZeroMoney()
	for _, a := range allocations {
		var earned Money
		switch a.ShareType {
		case ShareFixed:
			earned = Money{Value: a.ShareValue}
			fixedTotal = fixedTotal.Add(earned)
		default:
			earned = net.Mul(a.ShareValue)
		}
		earned = round(earned)
		out.Results = append(out.Results, AllocationResult{
			AllocationID: a.ID,
			WorkerID:     a.WorkerID,
			Label:        a.Label,
			Earned:       earned,
		})
	}

	if fixedTotal.GreaterThan(net) {
		out.Valid = false
		out.Warnings = append(out.Warnings,
			"fixed allocations ("+fixedTotal.String()+") exceed net distributable ("+net.String()+")")
	}
	return out
}

// CheckPercentSum guards allocation writes. The proposed list is the job's
// allocations as they would stand after the write; the sum of percent shares
// may fall short of 1 (the remainder is simply unallocated) but may not
// exceed 1 beyond epsilon.
func CheckPercentSum(jobID JobID, proposed []Allocation) error {
	sum := decimal.Zero
	for _, a := range proposed {
		if a.ShareType == SharePercent {
			sum = sum.Add(a.ShareValue)
		}
	}
	if sum.GreaterThan(decimal.NewFromInt(1).Add(percentSumEpsilon)) {
		return &AllocationSumError{JobID: jobID, Sum: sum}
	}
	return nil
}
