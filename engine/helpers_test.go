package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gigledger/payout-engine/engine"
	store "github.com/gigledger/payout-engine/engine/store"
)

// Shared fixtures for the engine tests. All IDs are sequential so failures
// read well, and the clock is pinned so nothing depends on wall time.

var fixedNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func pinnedClock() time.Time { return fixedNow }

func idSeq(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func money(s string) engine.Money {
	return engine.MustParseMoney(s)
}

func assertMoney(t *testing.T, want string, got engine.Money) {
	t.Helper()
	if !got.Equal(money(want)) {
		t.Fatalf("amount = %s, want %s", got, want)
	}
}

// standardRules is the baseline payload: USD, 0.15 per connect, platform fee
// disabled, 2dp rounding.
func standardRules() engine.Rules {
	return engine.Rules{
		Currency:           "USD",
		ConnectCostPerUnit: money("0.15"),
		PlatformFee: engine.FeeRules{
			Enabled: false,
			Mode:    engine.FeePercent,
			Value:   decimal.RequireFromString("0.10"),
			ApplyOn: engine.ApplyOnNet,
		},
		Rounding:               engine.Rounding2DP,
		RequirePercentSumToOne: true,
	}
}

// fixture is a seeded store: an active rule set, two workers, and one job
// with a 0.60/0.40 percent split between them.
type fixture struct {
	st     *store.TxMemory
	sync   *engine.PaymentSyncer
	rs     engine.RuleSet
	job    engine.Job
	alice  engine.Worker
	bob    engine.Worker
	allocA engine.Allocation
	allocB engine.Allocation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewTxMemory()

	f := &fixture{
		st:   st,
		sync: &engine.PaymentSyncer{Store: st, NewID: idSeq("gen"), Now: pinnedClock},
	}

	f.rs = engine.RuleSet{
		ID:        "rs-1",
		Name:      "Standard",
		IsActive:  true,
		Rules:     standardRules(),
		CreatedAt: fixedNow,
	}
	require.NoError(t, st.CreateRuleSet(ctx, f.rs))

	f.alice = engine.Worker{ID: "w-alice", Name: "Alice", IsOwner: true, CreatedAt: fixedNow}
	f.bob = engine.Worker{ID: "w-bob", Name: "Bob", CreatedAt: fixedNow}
	require.NoError(t, st.CreateWorker(ctx, f.alice))
	require.NoError(t, st.CreateWorker(ctx, f.bob))

	f.job = engine.Job{
		ID:           "job-1",
		Title:        "Dashboard build",
		Type:         engine.JobFixed,
		Status:       engine.StatusActive,
		ConnectsUsed: 10,
		RuleSetID:    f.rs.ID,
		CreatedAt:    fixedNow,
	}
	require.NoError(t, st.CreateJob(ctx, f.job))

	aliceID := f.alice.ID
	bobID := f.bob.ID
	f.allocA = engine.Allocation{
		ID:         "alloc-a",
		JobID:      f.job.ID,
		WorkerID:   &aliceID,
		Label:      "Lead",
		ShareType:  engine.SharePercent,
		ShareValue: dec(t, "0.60"),
	}
	f.allocB = engine.Allocation{
		ID:         "alloc-b",
		JobID:      f.job.ID,
		WorkerID:   &bobID,
		Label:      "Dev",
		ShareType:  engine.SharePercent,
		ShareValue: dec(t, "0.40"),
	}
	require.NoError(t, st.CreateAllocation(ctx, f.allocA))
	require.NoError(t, st.CreateAllocation(ctx, f.allocB))

	return f
}

// syncer returns the fixture's single payment syncer; sharing one keeps
// minted IDs unique across calls.
func (f *fixture) syncer() *engine.PaymentSyncer {
	return f.sync
}

func (f *fixture) finalizer() *engine.Finalizer {
	return &engine.Finalizer{Store: f.st, NewID: idSeq("snap"), Now: pinnedClock}
}

// addReceipt records a receipt through the syncer, running payment sync.
func (f *fixture) addReceipt(t *testing.T, amount, date string) engine.Receipt {
	t.Helper()
	day, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	r, err := f.syncer().RecordReceipt(context.Background(), engine.Receipt{
		JobID:  f.job.ID,
		Date:   day,
		Amount: money(amount),
		Source: engine.SourceMilestone,
	})
	require.NoError(t, err)
	return r
}

// autoRows returns the job's auto-generated payment rows for one allocation.
func (f *fixture) autoRows(t *testing.T, allocID engine.AllocationID) []engine.Payment {
	t.Helper()
	auto := engine.ProvenanceAuto
	jobID := f.job.ID
	rows, err := f.st.ListPayments(context.Background(), engine.PaymentFilter{
		JobID:        &jobID,
		AllocationID: &allocID,
		Provenance:   &auto,
	})
	require.NoError(t, err)
	return rows
}
