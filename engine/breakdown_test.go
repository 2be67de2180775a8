package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigledger/payout-engine/engine"
)

func TestComputeBreakdown_StandardScenario(t *testing.T) {
	// GIVEN one 1000.00 receipt, 10 connects at 0.15, fee disabled, and a
	// 0.60/0.40 percent split
	f := newFixture(t)
	rcpts := []engine.Receipt{{ID: "r1", JobID: f.job.ID, Amount: money("1000.00"), Date: fixedNow}}
	allocs := []engine.Allocation{f.allocA, f.allocB}

	// WHEN the breakdown is computed
	bd := engine.ComputeBreakdown(f.job, rcpts, allocs, f.rs.Rules)

	// THEN every figure matches and the shares sum to the net exactly
	assertMoney(t, "1000.00", bd.TotalReceived)
	assertMoney(t, "1.50", bd.ConnectDeduction)
	assertMoney(t, "0", bd.PlatformFee)
	assertMoney(t, "998.50", bd.NetDistributable)
	require.Len(t, bd.Allocations, 2)
	assertMoney(t, "599.10", bd.Allocations[0].Earned)
	assertMoney(t, "399.40", bd.Allocations[1].Earned)
	assertMoney(t, "998.50", bd.Allocations[0].Earned.Add(bd.Allocations[1].Earned))
	assert.True(t, bd.IsValid)
	assert.Empty(t, bd.Warnings)
}

func TestComputeBreakdown_Deterministic(t *testing.T) {
	// GIVEN fixed inputs
	f := newFixture(t)
	rcpts := []engine.Receipt{
		{ID: "r1", JobID: f.job.ID, Amount: money("333.33"), Date: fixedNow},
		{ID: "r2", JobID: f.job.ID, Amount: money("666.67"), Date: fixedNow},
	}
	allocs := []engine.Allocation{f.allocA, f.allocB}

	// WHEN computed twice and serialized
	first, err := json.Marshal(engine.ComputeBreakdown(f.job, rcpts, allocs, f.rs.Rules))
	require.NoError(t, err)
	second, err := json.Marshal(engine.ComputeBreakdown(f.job, rcpts, allocs, f.rs.Rules))
	require.NoError(t, err)

	// THEN the documents are byte-identical
	assert.Equal(t, first, second)
}

func TestComputeBreakdown_AmountsSerializeAsStrings(t *testing.T) {
	// GIVEN any breakdown
	f := newFixture(t)
	rcpts := []engine.Receipt{{ID: "r1", JobID: f.job.ID, Amount: money("100.00"), Date: fixedNow}}
	bd := engine.ComputeBreakdown(f.job, rcpts, nil, f.rs.Rules)

	raw, err := json.Marshal(bd)
	require.NoError(t, err)

	// THEN amounts travel as quoted decimal strings, never JSON numbers
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	_, isString := decoded["total_received"].(string)
	assert.True(t, isString, "total_received should serialize as a string")
}

func TestComputeBreakdown_ShortfallWarning(t *testing.T) {
	// GIVEN deductions that exceed receipts
	f := newFixture(t)
	job := f.job
	job.ConnectsUsed = 100 // 15.00 in connects against a 10.00 receipt
	rcpts := []engine.Receipt{{ID: "r1", JobID: job.ID, Amount: money("10.00"), Date: fixedNow}}

	bd := engine.ComputeBreakdown(job, rcpts, nil, f.rs.Rules)

	assertMoney(t, "0", bd.NetDistributable)
	require.NotEmpty(t, bd.Warnings)
}

func TestJobBreakdown_LiveJobComputesFresh(t *testing.T) {
	// GIVEN a live job with one receipt
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")

	// WHEN read through the shared path
	bd, err := engine.JobBreakdown(context.Background(), f.st, mustGetJob(t, f))
	require.NoError(t, err)

	assertMoney(t, "998.50", bd.NetDistributable)
}

func TestJobBreakdown_FinalizedJobReadsSnapshot(t *testing.T) {
	// GIVEN a finalized job
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	_, err := f.finalizer().Finalize(context.Background(), f.job.ID)
	require.NoError(t, err)

	// AND drift written directly to storage, bypassing edit validation
	require.NoError(t, f.st.CreateReceipt(context.Background(), engine.Receipt{
		ID: "drift", JobID: f.job.ID, Amount: money("9999.00"), Date: fixedNow,
	}))

	// WHEN the breakdown is read
	bd, err := engine.JobBreakdown(context.Background(), f.st, mustGetJob(t, f))
	require.NoError(t, err)

	// THEN the frozen figures come back, not a recomputation
	assertMoney(t, "1000.00", bd.TotalReceived)
	assertMoney(t, "998.50", bd.NetDistributable)
}

func mustGetJob(t *testing.T, f *fixture) engine.Job {
	t.Helper()
	job, err := f.st.GetJob(context.Background(), f.job.ID)
	require.NoError(t, err)
	return job
}
