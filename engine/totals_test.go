package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigledger/payout-engine/engine"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func TestComputeWorkerTotals(t *testing.T) {
	// GIVEN alice earning 599.10 with 200.00 of it marked paid
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	require.NoError(t, f.st.CreatePayment(context.Background(), engine.Payment{
		ID:         "manual-1",
		WorkerID:   f.alice.ID,
		Amount:     money("200.00"),
		Date:       fixedNow,
		IsPaid:     true,
		Provenance: engine.ProvenanceManual,
	}))

	ag := &engine.Aggregator{Store: f.st}

	// WHEN her totals are computed
	totals, err := ag.ComputeWorkerTotals(context.Background(), f.alice.ID)
	require.NoError(t, err)

	// THEN earned comes from the breakdown, paid from flagged rows
	assertMoney(t, "599.10", totals.Earned)
	assertMoney(t, "200.00", totals.Paid)
	assertMoney(t, "399.10", totals.Due)
}

func TestComputeWorkerTotals_UnpaidAutoRowsDoNotCount(t *testing.T) {
	// GIVEN auto rows generated but nothing marked paid
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")

	ag := &engine.Aggregator{Store: f.st}
	totals, err := ag.ComputeWorkerTotals(context.Background(), f.bob.ID)
	require.NoError(t, err)

	assertMoney(t, "399.40", totals.Earned)
	assertMoney(t, "0", totals.Paid)
	assertMoney(t, "399.40", totals.Due)
}

func TestComputeDashboardTotals(t *testing.T) {
	// GIVEN one job with one receipt and one paid payment
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	row := f.autoRows(t, f.allocB.ID)[0]
	row.IsPaid = true
	require.NoError(t, f.st.UpdatePayment(context.Background(), row))

	ag := &engine.Aggregator{Store: f.st}
	totals, err := ag.ComputeDashboardTotals(context.Background())
	require.NoError(t, err)

	assertMoney(t, "1000.00", totals.TotalReceived)
	assertMoney(t, "1.50", totals.ConnectDeduction)
	assertMoney(t, "998.50", totals.NetDistributable)
	assertMoney(t, "399.40", totals.TotalPaid)
	// alice's 599.10 still due; bob settled
	assertMoney(t, "599.10", totals.TotalDue)
}

func TestComputeDashboardTotals_ExcludesArchivedJobs(t *testing.T) {
	// GIVEN the job archived after its receipt landed
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	job := mustGetJob(t, f)
	job.Status = engine.StatusArchived
	require.NoError(t, f.st.UpdateJob(context.Background(), job))

	ag := &engine.Aggregator{Store: f.st}
	totals, err := ag.ComputeDashboardTotals(context.Background())
	require.NoError(t, err)

	assertMoney(t, "0", totals.TotalReceived)
}

func TestExpenseTotalAndMonthlyBuckets(t *testing.T) {
	// GIVEN expenses across two months
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.st.CreateExpense(ctx, engine.Expense{
		ID: "e1", Date: day(t, "2026-07-15"), Amount: money("40.00"), Category: "software",
	}))
	require.NoError(t, f.st.CreateExpense(ctx, engine.Expense{
		ID: "e2", Date: day(t, "2026-08-03"), Amount: money("25.00"), Category: "software",
	}))
	require.NoError(t, f.st.CreateExpense(ctx, engine.Expense{
		ID: "e3", Date: day(t, "2026-08-20"), Amount: money("10.00"), Category: "fees",
	}))

	ag := &engine.Aggregator{Store: f.st}

	// WHEN totalled without bounds
	total, err := ag.ExpenseTotal(ctx, nil, nil)
	require.NoError(t, err)
	assertMoney(t, "75.00", total)

	// AND bucketed by month
	monthly, err := ag.MonthlyExpenses(ctx, nil, nil)
	require.NoError(t, err)
	assertMoney(t, "40.00", monthly["2026-07"])
	assertMoney(t, "35.00", monthly["2026-08"])

	// AND restricted to August only
	from := day(t, "2026-08-01")
	to := day(t, "2026-08-31")
	total, err = ag.ExpenseTotal(ctx, &from, &to)
	require.NoError(t, err)
	assertMoney(t, "35.00", total)
}

func TestComputeProfit(t *testing.T) {
	// GIVEN alice (the owner) earning 599.10 and 99.10 of expenses
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	require.NoError(t, f.st.CreateExpense(context.Background(), engine.Expense{
		ID: "e1", Date: day(t, "2026-08-05"), Amount: money("99.10"), Category: "software",
	}))

	ag := &engine.Aggregator{Store: f.st}
	report, err := ag.ComputeProfit(context.Background(), nil, nil)
	require.NoError(t, err)

	assertMoney(t, "599.10", report.OwnerEarnings)
	assertMoney(t, "99.10", report.Expenses)
	assertMoney(t, "500.00", report.Profit)
	// 500.00 / 599.10 × 100, rounded to 2dp
	assert.Equal(t, "83.46", report.MarginPercent.String())
}

func TestComputeProfit_NoEarningsZeroMargin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.st.CreateExpense(context.Background(), engine.Expense{
		ID: "e1", Date: day(t, "2026-08-05"), Amount: money("50.00"),
	}))

	ag := &engine.Aggregator{Store: f.st}
	report, err := ag.ComputeProfit(context.Background(), nil, nil)
	require.NoError(t, err)

	assertMoney(t, "-50.00", report.Profit)
	assert.True(t, report.MarginPercent.IsZero())
}

func TestOwnerEarnings_ProratedByReceiptDateRange(t *testing.T) {
	// GIVEN two equal receipts in different months
	f := newFixture(t)
	f.addReceipt(t, "500.00", "2026-07-15")
	f.addReceipt(t, "500.00", "2026-08-15")

	ag := &engine.Aggregator{Store: f.st}

	// WHEN earnings are computed for August only
	from := day(t, "2026-08-01")
	to := day(t, "2026-08-31")
	earned, err := ag.OwnerEarnings(context.Background(), &from, &to)
	require.NoError(t, err)

	// THEN alice's total share (0.60 × 998.50 = 599.10) is prorated by the
	// half of receipts that fall in range
	assertMoney(t, "299.55", earned)
}
