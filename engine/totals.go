/*
Read-only aggregation: worker totals, dashboard rollups, profit reporting.

PURPOSE:
  Computes the numbers the overview screens show. Every figure derives
  from the same breakdown read path the job detail uses (snapshot for
  finalized jobs, live computation otherwise), so the dashboard can never
  disagree with the per-job view.

GUARANTEE:
  Nothing in this file writes. The Aggregator takes a plain Store and only
  ever calls read methods on it.

SEE ALSO:
  - breakdown.go: JobBreakdown, the shared read path
  - autopay.go: Where the paid/unpaid rows aggregated here come from
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// WorkerTotals is one worker's position across all jobs.
type WorkerTotals struct {
	WorkerID WorkerID
	Earned   Money // Σ earned across job breakdowns
	Paid     Money // Σ payments marked paid
	Due      Money // Earned − Paid
}

// DashboardTotals is the system-wide rollup. Archived jobs and archived
// workers are excluded.
type DashboardTotals struct {
	TotalReceived    Money
	ConnectDeduction Money
	PlatformFee      Money
	NetDistributable Money
	TotalPaid        Money
	TotalDue         Money
}

// ProfitReport covers a date range for the owner.
type ProfitReport struct {
	OwnerEarnings Money
	Expenses      Money
	Profit        Money
	MarginPercent decimal.Decimal // 0 when there are no earnings
}

// Aggregator computes totals. Read-only by construction.
type Aggregator struct {
	Store Store
}

// ComputeWorkerTotals sums a worker's earned amounts over every job and
// nets them against payments marked paid.
func (ag *Aggregator) ComputeWorkerTotals(ctx context.Context, workerID WorkerID) (WorkerTotals, error) {
	jobs, err := ag.Store.ListJobs(ctx, true)
	if err != nil {
		return WorkerTotals{}, err
	}

	earned := ZeroMoney()
	for _, job := range jobs {
		bd, err := JobBreakdown(ctx, ag.Store, job)
		if err != nil {
			return WorkerTotals{}, err
		}
		for _, line := range bd.Allocations {
			if line.WorkerID != nil && *line.WorkerID == workerID {
				earned = earned.Add(line.Earned)
			}
		}
	}

	paidFlag := true
	paidRows, err := ag.Store.ListPayments(ctx, PaymentFilter{WorkerID: &workerID, IsPaid: &paidFlag})
	if err != nil {
		return WorkerTotals{}, err
	}
	paid := ZeroMoney()
	for _, p := range paidRows {
		paid = paid.Add(p.Amount)
	}

	return WorkerTotals{
		WorkerID: workerID,
		Earned:   earned,
		Paid:     paid,
		Due:      earned.Sub(paid),
	}, nil
}

// ComputeDashboardTotals rolls up every non-archived job and nets worker
// due amounts across non-archived workers.
func (ag *Aggregator) ComputeDashboardTotals(ctx context.Context) (DashboardTotals, error) {
	jobs, err := ag.Store.ListJobs(ctx, false)
	if err != nil {
		return DashboardTotals{}, err
	}

	var t DashboardTotals
	t.TotalReceived = ZeroMoney()
	t.ConnectDeduction = ZeroMoney()
	t.PlatformFee = ZeroMoney()
	t.NetDistributable = ZeroMoney()
	for _, job := range jobs {
		bd, err := JobBreakdown(ctx, ag.Store, job)
		if err != nil {
			return DashboardTotals{}, err
		}
		t.TotalReceived = t.TotalReceived.Add(bd.TotalReceived)
		t.ConnectDeduction = t.ConnectDeduction.Add(bd.ConnectDeduction)
		t.PlatformFee = t.PlatformFee.Add(bd.PlatformFee)
		t.NetDistributable = t.NetDistributable.Add(bd.NetDistributable)
	}

	workers, err := ag.Store.ListWorkers(ctx, false)
	if err != nil {
		return DashboardTotals{}, err
	}
	t.TotalPaid = ZeroMoney()
	t.TotalDue = ZeroMoney()
	for _, w := range workers {
		wt, err := ag.ComputeWorkerTotals(ctx, w.ID)
		if err != nil {
			return DashboardTotals{}, err
		}
		t.TotalPaid = t.TotalPaid.Add(wt.Paid)
		t.TotalDue = t.TotalDue.Add(wt.Due)
	}
	return t, nil
}

// ExpenseTotal sums expenses in [from, to]. Nil bounds mean unbounded.
func (ag *Aggregator) ExpenseTotal(ctx context.Context, from, to *time.Time) (Money, error) {
	rows, err := ag.Store.ListExpenses(ctx, from, to)
	if err != nil {
		return Money{}, err
	}
	total := ZeroMoney()
	for _, e := range rows {
		total = total.Add(e.Amount)
	}
	return total, nil
}

// MonthlyExpenses buckets expenses by calendar month ("2026-08" keys).
func (ag *Aggregator) MonthlyExpenses(ctx context.Context, from, to *time.Time) (map[string]Money, error) {
	rows, err := ag.Store.ListExpenses(ctx, from, to)
	if err != nil {
		return nil, err
	}
	buckets := make(map[string]Money)
	for _, e := range rows {
		key := e.Date.Format("2006-01")
		cur, ok := buckets[key]
		if !ok {
			cur = ZeroMoney()
		}
		buckets[key] = cur.Add(e.Amount)
	}
	return buckets, nil
}

// OwnerEarnings computes what owner-flagged workers earned from receipts
// dated in [from, to]. For each job the owner share of the breakdown is
// prorated by the fraction of the job's receipts that fall inside the
// range, so snapshot jobs contribute without being recomputed.
func (ag *Aggregator) OwnerEarnings(ctx context.Context, from, to *time.Time) (Money, error) {
	workers, err := ag.Store.ListWorkers(ctx, true)
	if err != nil {
		return Money{}, err
	}
	owners := make(map[WorkerID]bool)
	for _, w := range workers {
		if w.IsOwner {
			owners[w.ID] = true
		}
	}

	jobs, err := ag.Store.ListJobs(ctx, true)
	if err != nil {
		return Money{}, err
	}

	total := ZeroMoney()
	for _, job := range jobs {
		bd, err := JobBreakdown(ctx, ag.Store, job)
		if err != nil {
			return Money{}, err
		}

		ownerEarned := ZeroMoney()
		for _, line := range bd.Allocations {
			if line.WorkerID != nil && owners[*line.WorkerID] {
				ownerEarned = ownerEarned.Add(line.Earned)
			}
		}
		if ownerEarned.IsZero() {
			continue
		}

		ratio, err := ag.receiptRatio(ctx, job.ID, from, to)
		if err != nil {
			return Money{}, err
		}
		total = total.Add(ownerEarned.Mul(ratio))
	}
	return Money{Value: total.Value.Round(2)}, nil
}

// ComputeProfit is owner earnings minus expenses over a range.
func (ag *Aggregator) ComputeProfit(ctx context.Context, from, to *time.Time) (ProfitReport, error) {
	earnings, err := ag.OwnerEarnings(ctx, from, to)
	if err != nil {
		return ProfitReport{}, err
	}
	expenses, err := ag.ExpenseTotal(ctx, from, to)
	if err != nil {
		return ProfitReport{}, err
	}
	profit := earnings.Sub(expenses)

	margin := decimal.Zero
	if earnings.IsPositive() {
		margin = profit.Value.Div(earnings.Value).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return ProfitReport{
		OwnerEarnings: earnings,
		Expenses:      expenses,
		Profit:        profit,
		MarginPercent: margin,
	}, nil
}

// receiptRatio is the in-range fraction of a job's live receipts, in [0, 1].
func (ag *Aggregator) receiptRatio(ctx context.Context, jobID JobID, from, to *time.Time) (decimal.Decimal, error) {
	receipts, err := ag.Store.ListReceiptsByJob(ctx, jobID, false)
	if err != nil {
		return decimal.Zero, err
	}
	total := ZeroMoney()
	inRange := ZeroMoney()
	for _, r := range receipts {
		total = total.Add(r.Amount)
		if (from == nil || !r.Date.Before(*from)) && (to == nil || !r.Date.After(*to)) {
			inRange = inRange.Add(r.Amount)
		}
	}
	if total.IsZero() {
		return decimal.Zero, nil
	}
	return inRange.Value.Div(total.Value), nil
}
