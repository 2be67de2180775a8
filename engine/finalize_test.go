package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigledger/payout-engine/engine"
)

func TestFinalize_FreezesBreakdownAndFlipsFlag(t *testing.T) {
	// GIVEN a live job with a computed breakdown
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")

	// WHEN finalized
	snap, err := f.finalizer().Finalize(context.Background(), f.job.ID)
	require.NoError(t, err)

	// THEN the snapshot carries the frozen figures and the flag is set
	assert.Equal(t, f.job.ID, snap.JobID)
	assert.Equal(t, f.rs.ID, snap.RuleSetID)
	assertMoney(t, "998.50", snap.Breakdown.NetDistributable)
	assert.True(t, mustGetJob(t, f).IsFinalized)
}

func TestFinalize_RejectsAlreadyFinalized(t *testing.T) {
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	fin := f.finalizer()
	_, err := fin.Finalize(context.Background(), f.job.ID)
	require.NoError(t, err)

	// WHEN finalized a second time
	_, err = fin.Finalize(context.Background(), f.job.ID)

	// THEN the call fails and no second snapshot appears
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrJobFinalized))
}

func TestFinalize_RejectsInvalidBreakdown(t *testing.T) {
	// GIVEN fixed allocations exceeding the net
	f := newFixture(t)
	f.addReceipt(t, "100.00", "2026-08-01")
	require.NoError(t, f.st.CreateAllocation(context.Background(), engine.Allocation{
		ID:         "alloc-fixed",
		JobID:      f.job.ID,
		ShareType:  engine.ShareFixed,
		ShareValue: dec(t, "5000.00"),
	}))

	// WHEN finalize runs
	_, err := f.finalizer().Finalize(context.Background(), f.job.ID)

	// THEN it is blocked and the job stays live
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrBreakdownInvalid))
	assert.False(t, mustGetJob(t, f).IsFinalized)
}

func TestFinalize_BlocksReceiptAndAllocationWrites(t *testing.T) {
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	_, err := f.finalizer().Finalize(context.Background(), f.job.ID)
	require.NoError(t, err)

	// WHEN a receipt write is attempted on the finalized job
	_, err = f.syncer().RecordReceipt(context.Background(), engine.Receipt{
		JobID: f.job.ID, Amount: money("50.00"), Date: fixedNow,
	})

	// THEN the edit guard rejects it
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrJobFinalized))
}

func TestUnfinalize_ReturnsJobToLive(t *testing.T) {
	// GIVEN a finalized job with drift written directly to storage
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	fin := f.finalizer()
	_, err := fin.Finalize(context.Background(), f.job.ID)
	require.NoError(t, err)
	require.NoError(t, f.st.CreateReceipt(context.Background(), engine.Receipt{
		ID: "drift", JobID: f.job.ID, Amount: money("500.00"), Date: fixedNow,
	}))

	// WHEN unfinalized
	require.NoError(t, fin.Unfinalize(context.Background(), f.job.ID))

	// THEN the snapshot is gone and the breakdown recomputes over all data
	assert.False(t, mustGetJob(t, f).IsFinalized)
	_, err = f.st.GetSnapshotByJob(context.Background(), f.job.ID)
	assert.True(t, engine.IsNotFound(err))

	bd, err := engine.JobBreakdown(context.Background(), f.st, mustGetJob(t, f))
	require.NoError(t, err)
	assertMoney(t, "1500.00", bd.TotalReceived)
}

func TestUnfinalize_RejectsLiveJob(t *testing.T) {
	f := newFixture(t)

	err := f.finalizer().Unfinalize(context.Background(), f.job.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrJobNotFinalized))
}

func TestRefinalize_BuildsFreshSnapshot(t *testing.T) {
	// GIVEN a finalize/unfinalize round trip with a new receipt in between
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")
	fin := f.finalizer()
	_, err := fin.Finalize(context.Background(), f.job.ID)
	require.NoError(t, err)
	require.NoError(t, fin.Unfinalize(context.Background(), f.job.ID))
	f.addReceipt(t, "500.00", "2026-08-10")

	// WHEN finalized again
	snap, err := fin.Finalize(context.Background(), f.job.ID)
	require.NoError(t, err)

	// THEN the new snapshot reflects current data, not the old freeze
	assertMoney(t, "1500.00", snap.Breakdown.TotalReceived)
}

func TestEnsureEditable(t *testing.T) {
	live := engine.Job{ID: "j"}
	assert.NoError(t, engine.EnsureEditable(live))

	frozen := engine.Job{ID: "j", IsFinalized: true}
	err := engine.EnsureEditable(frozen)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrJobFinalized))
}

func TestRuleSetImmutability_ActivationDoesNotMoveBoundJobs(t *testing.T) {
	// GIVEN a job bound to rule set v1 and a later v2 with a pricier connect
	f := newFixture(t)
	f.addReceipt(t, "1000.00", "2026-08-01")

	v2Rules := standardRules()
	v2Rules.ConnectCostPerUnit = money("1.00")
	require.NoError(t, f.st.CreateRuleSet(context.Background(), engine.RuleSet{
		ID: "rs-2", Name: "v2", Rules: v2Rules, CreatedAt: fixedNow,
	}))

	// WHEN v2 is activated
	require.NoError(t, f.st.ActivateRuleSet(context.Background(), "rs-2"))

	// THEN the job still computes under its bound v1 payload
	bd, err := engine.JobBreakdown(context.Background(), f.st, mustGetJob(t, f))
	require.NoError(t, err)
	assertMoney(t, "1.50", bd.ConnectDeduction)
}
