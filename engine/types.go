/*
Package engine provides the core payout calculation engine.

PURPOSE:
  This package contains the types and algorithms that turn a job's receipts,
  its bound rule set, and its worker allocations into a reproducible
  financial breakdown, and that keep auto-generated payments in sync with
  what each worker has earned.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact decimal amount (never float) with rounding helpers
  - Worker/Job/Receipt/Allocation/Payment: The persisted records the
    engine reads and writes
  - RuleSet: An immutable, versioned bundle of calculation parameters
  - Snapshot: A frozen breakdown captured at finalization time

DESIGN PRINCIPLES:
  1. Immutability: RuleSet payloads and Snapshots are never modified
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing job/worker IDs
  4. Determinism: The same inputs always produce the same breakdown

USAGE:
  rules := job-bound rule set payload (see rules.go)
  bd := engine.ComputeBreakdown(job, receipts, allocations, rules)

SEE ALSO:
  - rules.go: RuleSet payload and effective-rule resolution
  - breakdown.go: The breakdown document and its computation
  - autopay.go: Payment synchronization after receipt writes
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal amount
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int) Money {
	return Money{Value: decimal.NewFromInt(int64(value))}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(b Money) Money             { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money             { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money   { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money   { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                    { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool              { return m.Value.IsNegative() }
func (m Money) IsZero() bool                  { return m.Value.IsZero() }
func (m Money) IsPositive() bool              { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool      { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool         { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool            { return m.Value.Equal(b.Value) }
func (m Money) String() string                { return m.Value.String() }

// MarshalJSON serializes Money as a quoted decimal string. Snapshots must be
// byte-stable, so amounts are never emitted as JSON numbers.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.Value.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	m.Value = d
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type RuleSetID string
type JobID string
type ReceiptID string
type AllocationID string
type PaymentID string
type SnapshotID string
type ExpenseID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

type JobType string

const (
	JobFixed  JobType = "fixed"
	JobHourly JobType = "hourly"
)

type JobStatus string

const (
	StatusDraft     JobStatus = "draft"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusArchived  JobStatus = "archived"
)

type ReceiptSource string

const (
	SourceMilestone ReceiptSource = "milestone"
	SourceWeekly    ReceiptSource = "weekly"
	SourceBonus     ReceiptSource = "bonus"
	SourceManual    ReceiptSource = "manual"
)

// ShareType determines how an allocation claims the net distributable.
type ShareType string

const (
	// SharePercent: earned = net_distributable × share_value.
	// share_value is a fraction in [0, 1], not a percentage.
	SharePercent ShareType = "percent"

	// ShareFixed: earned = share_value (a money amount).
	ShareFixed ShareType = "fixed_amount"
)

// DeductionMode is how an explicit per-job connect override is expressed.
type DeductionMode string

const (
	DeductFixed   DeductionMode = "fixed"
	DeductPercent DeductionMode = "percent"
)

type FeeMode string

const (
	FeeFixed   FeeMode = "fixed"
	FeePercent FeeMode = "percent"
)

// FeeApplyOn selects the base the platform fee percent is taken from.
type FeeApplyOn string

const (
	ApplyOnGross FeeApplyOn = "gross" // total received
	ApplyOnNet   FeeApplyOn = "net"   // total received minus connect deduction
)

type RoundingMode string

const (
	RoundingNone RoundingMode = "none"
	Rounding2DP  RoundingMode = "2dp"
)

// Provenance distinguishes engine-maintained payments from admin-entered ones.
type Provenance string

const (
	ProvenanceAuto   Provenance = "auto"
	ProvenanceManual Provenance = "manual"
)

// =============================================================================
// PERSISTED RECORDS
// =============================================================================

// Worker is a person (or the house) that can hold allocations and payments.
type Worker struct {
	ID         WorkerID
	Code       string // human code like "W01", supplied by the caller
	Name       string
	Contact    string
	Notes      string
	IsOwner    bool
	IsArchived bool
	CreatedAt  time.Time
}

// RuleSet is an immutable, versioned bundle of calculation parameters.
// "Editing" a rule set always means creating a new one (optionally copied
// from an existing one) and activating it; payloads are never mutated.
// At most one rule set is active at any time, system-wide.
type RuleSet struct {
	ID        RuleSetID
	Name      string
	IsActive  bool
	Rules     Rules // see rules.go
	Notes     string
	CreatedAt time.Time
}

// Job binds receipts and allocations to the rule set that was active when
// the job was created. The binding never changes automatically: breakdown
// computation always resolves through RuleSetID, never "the active one".
type Job struct {
	ID           JobID
	Code         string
	Title        string
	ClientName   string
	Type         JobType
	Status       JobStatus
	ConnectsUsed int
	RuleSetID    RuleSetID
	Overrides    JobOverrides
	IsFinalized  bool
	StartDate    *time.Time
	EndDate      *time.Time
	CreatedAt    time.Time
}

// JobOverrides are optional per-job rule overrides. Each field overrides its
// rule-set counterpart independently; nil means "use the rule set value".
type JobOverrides struct {
	ConnectMode        *DeductionMode
	ConnectValue       *Money
	PlatformFeeEnabled *bool
	PlatformFeeMode    *FeeMode
	PlatformFeeValue   *Money
	PlatformFeeApplyOn *FeeApplyOn
}

// Receipt is money received for a job. Receipts are append/edit/soft-delete;
// removing one never cascades to payments already generated from it.
type Receipt struct {
	ID        ReceiptID
	JobID     JobID
	Date      time.Time
	Amount    Money // non-negative
	Source    ReceiptSource
	Notes     string
	DeletedAt *time.Time
}

func (r Receipt) Deleted() bool { return r.DeletedAt != nil }

// Allocation is a worker's (or the house's) claim on a job's net
// distributable. WorkerID nil means the house share.
type Allocation struct {
	ID         AllocationID
	JobID      JobID
	WorkerID   *WorkerID
	Label      string
	Role       string
	ShareType  ShareType
	ShareValue decimal.Decimal // fraction for percent, money for fixed
	Notes      string
}

// Payment is money owed or disbursed to a worker. Auto-generated payments
// are owned by the PaymentSyncer: it may create or update them, but no code
// path ever deletes a payment row.
type Payment struct {
	ID           PaymentID
	Code         string // human code like "P0001"; empty for auto rows until assigned
	WorkerID     WorkerID
	JobID        *JobID
	AllocationID *AllocationID // set for auto-generated rows
	Amount       Money
	Date         time.Time
	Method       string
	Reference    string
	Notes        string
	IsPaid       bool
	Provenance   Provenance
}

// Snapshot is an immutable frozen breakdown, created only by finalization
// and destroyed only by unfinalization. At most one live snapshot per job.
type Snapshot struct {
	ID          SnapshotID
	JobID       JobID
	RuleSetID   RuleSetID
	Breakdown   Breakdown // see breakdown.go
	FinalizedAt time.Time
}

// Expense is an operating cost tracked for profit reporting.
type Expense struct {
	ID       ExpenseID
	Date     time.Time
	Amount   Money
	Category string
	Notes    string
}
