/*
Deduction pipeline: gross receipts down to net distributable.

PURPOSE:
  Computes, for one job, the connect deduction and platform fee taken off
  the total received, producing the net amount available for allocation.

PIPELINE:
  total_received
    - connect_deduction   (per-unit cost, or job override fixed/percent)
    - platform_fee        (fixed, or percent of gross / net-of-connects)
  = net_distributable     (clamped at zero, shortfall flagged)

SEE ALSO:
  - rules.go: EffectiveRules consumed here
  - allocation.go: Distribution of the net this pipeline produces
*/
package engine

import "github.com/shopspring/decimal"

// Deductions is the output of the pipeline for a single job.
type Deductions struct {
	TotalReceived    Money
	ConnectDeduction Money
	PlatformFee      Money
	NetDistributable Money

	// Shortfall is set when deductions exceeded receipts and the net was
	// clamped to zero.
	Shortfall bool
}

// ComputeDeductions runs the pipeline over a job's live receipts. Deleted
// receipts are skipped. Each produced quantity is rounded exactly once.
func ComputeDeductions(job Job, receipts []Receipt, eff EffectiveRules) Deductions {
	round := eff.Rounding.Apply

	total := ZeroMoney()
	for _, r := range receipts {
		if r.Deleted() {
			continue
		}
		total = total.Add(r.Amount)
	}
	total = round(total)

	connect := connectDeduction(job, total, eff)
	connect = round(connect)

	fee := platformFee(total, connect, eff)
	fee = round(fee)

	net := total.Sub(connect).Sub(fee)
	shortfall := net.IsNegative()
	if shortfall {
		net = ZeroMoney()
	}
	net = round(net)

	return Deductions{
		TotalReceived:    total,
		ConnectDeduction: connect,
		PlatformFee:      fee,
		NetDistributable: net,
		Shortfall:        shortfall,
	}
}

func connectDeduction(job Job, total Money, eff EffectiveRules) Money {
	if ov := eff.ConnectOverride; ov != nil {
		switch ov.Mode {
		case DeductPercent:
			return total.Mul(ov.Value.Value)
		default:
			return ov.Value
		}
	}
	return eff.ConnectCostPerUnit.Mul(decimal.NewFromInt(int64(job.ConnectsUsed)))
}

func platformFee(total, connect Money, eff EffectiveRules) Money {
	if !eff.PlatformFee.Enabled {
		return ZeroMoney()
	}
	if eff.PlatformFee.Mode == FeeFixed {
		return Money{Value: eff.PlatformFee.Value}
	}
	base := total
	if eff.PlatformFee.ApplyOn == ApplyOnNet {
		base = total.Sub(connect)
		if base.IsNegative() {
			base = ZeroMoney()
		}
	}
	return base.Mul(eff.PlatformFee.Value)
}
