/*
Error types for the payout engine.

PURPOSE:
  Defines the sentinel and structured errors the engine returns, plus the
  classification helpers the API layer uses to map errors to HTTP statuses.

ERROR CATEGORIES:
  1. Not found: a referenced record does not exist
  2. Validation: the caller sent something the engine refuses to accept
  3. Conflict: the operation collides with existing state (finalized job,
     duplicate snapshot)
  4. Invariant: persisted state violates an engine guarantee; these are
     fatal, not client errors
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrInvalidRules indicates a rule set payload failed strict validation.
	ErrInvalidRules = errors.New("invalid rule set")

	// ErrJobFinalized indicates a mutating operation was attempted on a
	// finalized job.
	ErrJobFinalized = errors.New("job is finalized")

	// ErrJobNotFinalized indicates unfinalize was called on a job with no
	// snapshot to remove.
	ErrJobNotFinalized = errors.New("job is not finalized")

	// ErrAllocationSumExceeded indicates a write would push a job's percent
	// allocations above 100%.
	ErrAllocationSumExceeded = errors.New("percent allocations exceed 100%")

	// ErrBreakdownInvalid indicates finalization was attempted while the
	// live breakdown carries policy violations.
	ErrBreakdownInvalid = errors.New("breakdown is not valid")

	// ErrSnapshotExists indicates a second snapshot was attempted for a job.
	ErrSnapshotExists = errors.New("snapshot already exists for job")

	// ErrMultipleActiveRuleSets indicates the one-active-rule-set invariant
	// is violated in storage. This is fatal, never a client error.
	ErrMultipleActiveRuleSets = errors.New("multiple active rule sets")

	// ErrNegativeAmount indicates a money field that must be non-negative
	// carried a negative value.
	ErrNegativeAmount = errors.New("amount must be non-negative")

	ErrWorkerNotFound     = errors.New("worker not found")
	ErrRuleSetNotFound    = errors.New("rule set not found")
	ErrJobNotFound        = errors.New("job not found")
	ErrReceiptNotFound    = errors.New("receipt not found")
	ErrAllocationNotFound = errors.New("allocation not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrExpenseNotFound    = errors.New("expense not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ConfigError reports a specific field in a rule set payload that failed
// validation. Wraps ErrInvalidRules.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid rule set: field %q: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidRules }

// AllocationSumError carries the offending total when a write would push
// percent allocations over 100%. Wraps ErrAllocationSumExceeded.
type AllocationSumError struct {
	JobID JobID
	Sum   decimal.Decimal
}

func (e *AllocationSumError) Error() string {
	return fmt.Sprintf("percent allocations for job %s sum to %s, limit is 1", e.JobID, e.Sum.String())
}

func (e *AllocationSumError) Unwrap() error { return ErrAllocationSumExceeded }

// FinalizedError names the job a mutating operation was rejected for.
// Wraps ErrJobFinalized.
type FinalizedError struct {
	JobID JobID
}

func (e *FinalizedError) Error() string {
	return fmt.Sprintf("job %s is finalized; unfinalize before editing", e.JobID)
}

func (e *FinalizedError) Unwrap() error { return ErrJobFinalized }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsNotFound reports whether err means a referenced record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrRuleSetNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrReceiptNotFound) ||
		errors.Is(err, ErrAllocationNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrExpenseNotFound)
}

// IsConflict reports whether err means the operation collides with current
// state and the caller should resolve the conflict first.
func IsConflict(err error) bool {
	return errors.Is(err, ErrJobFinalized) ||
		errors.Is(err, ErrJobNotFinalized) ||
		errors.Is(err, ErrSnapshotExists) ||
		errors.Is(err, ErrBreakdownInvalid)
}

// IsClientError reports whether err is the caller's fault (bad input or a
// resolvable conflict) rather than an engine or storage failure.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		IsConflict(err) ||
		errors.Is(err, ErrInvalidRules) ||
		errors.Is(err, ErrAllocationSumExceeded) ||
		errors.Is(err, ErrNegativeAmount)
}

// IsInvariantViolation reports whether err means persisted state broke an
// engine guarantee. These should page somebody, not 400.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrMultipleActiveRuleSets)
}
