/*
Rule set payloads and effective-rule resolution.

PURPOSE:
  Defines the typed calculation parameters a RuleSet carries, validates
  payloads strictly on load, and resolves the effective parameters for a
  given job by layering the job's per-field overrides on top of its bound
  rule set.

KEY CONCEPTS:
  - Rules: The immutable parameter bundle inside a RuleSet
  - EffectiveRules: Rules after job overrides, what the calculator reads
  - Strict validation: Unknown or missing required fields fail loudly;
    nothing is silently defaulted at calculation time

SEE ALSO:
  - factory/rules.go: JSON payload parsing and presets
  - deduction.go: The calculator that consumes EffectiveRules
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE PAYLOAD
// =============================================================================

// FeeRules configures the platform fee stage of the deduction pipeline.
type FeeRules struct {
	Enabled bool
	Mode    FeeMode
	Value   decimal.Decimal // money amount for fixed, fraction for percent
	ApplyOn FeeApplyOn
}

// Rules is the parameter bundle a RuleSet carries. Instances are treated as
// immutable once stored; a change in parameters is a new RuleSet.
type Rules struct {
	Currency               string
	ConnectCostPerUnit     Money
	PlatformFee            FeeRules
	Rounding               RoundingMode
	RequirePercentSumToOne bool
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks a payload strictly. Every violation names the offending
// field; a payload that validates is safe for the calculator to consume
// without further checks.
func (r Rules) Validate() error {
	if r.Currency == "" {
		return &ConfigError{Field: "currency_default", Reason: "required"}
	}
	if r.ConnectCostPerUnit.IsNegative() {
		return &ConfigError{Field: "connect_cost_per_unit", Reason: "must be non-negative"}
	}
	switch r.PlatformFee.Mode {
	case FeeFixed, FeePercent:
	default:
		return &ConfigError{Field: "platform_fee.mode", Reason: "must be \"fixed\" or \"percent\""}
	}
	if r.PlatformFee.Value.IsNegative() {
		return &ConfigError{Field: "platform_fee.value", Reason: "must be non-negative"}
	}
	if r.PlatformFee.Mode == FeePercent && r.PlatformFee.Value.GreaterThan(decimal.NewFromInt(1)) {
		return &ConfigError{Field: "platform_fee.value", Reason: "percent value is a fraction and must not exceed 1"}
	}
	switch r.PlatformFee.ApplyOn {
	case ApplyOnGross, ApplyOnNet:
	default:
		return &ConfigError{Field: "platform_fee.apply_on", Reason: "must be \"gross\" or \"net\""}
	}
	switch r.Rounding {
	case RoundingNone, Rounding2DP:
	default:
		return &ConfigError{Field: "rounding.mode", Reason: "must be \"none\" or \"2dp\""}
	}
	return nil
}

// =============================================================================
// EFFECTIVE RULES
// =============================================================================

// ConnectOverride is an explicit per-job connect deduction, replacing the
// default per-unit cost entirely.
type ConnectOverride struct {
	Mode  DeductionMode
	Value Money // flat amount for fixed, fraction of received for percent
}

// EffectiveRules is what the calculator actually reads: the job's bound
// rules with each override field resolved independently.
type EffectiveRules struct {
	Currency               string
	ConnectCostPerUnit     Money
	ConnectOverride        *ConnectOverride // nil means per-unit cost applies
	PlatformFee            FeeRules
	Rounding               RoundingMode
	RequirePercentSumToOne bool
}

// ResolveEffective layers job overrides on top of a validated rule payload.
// Each override field stands alone: overriding the fee value does not touch
// the fee mode, overriding the connect value does not touch apply_on.
func ResolveEffective(job Job, rules Rules) EffectiveRules {
	eff := EffectiveRules{
		Currency:               rules.Currency,
		ConnectCostPerUnit:     rules.ConnectCostPerUnit,
		PlatformFee:            rules.PlatformFee,
		Rounding:               rules.Rounding,
		RequirePercentSumToOne: rules.RequirePercentSumToOne,
	}

	ov := job.Overrides
	if ov.ConnectMode != nil || ov.ConnectValue != nil {
		co := ConnectOverride{Mode: DeductFixed, Value: ZeroMoney()}
		if ov.ConnectMode != nil {
			co.Mode = *ov.ConnectMode
		}
		if ov.ConnectValue != nil {
			co.Value = *ov.ConnectValue
		}
		eff.ConnectOverride = &co
	}
	if ov.PlatformFeeEnabled != nil {
		eff.PlatformFee.Enabled = *ov.PlatformFeeEnabled
	}
	if ov.PlatformFeeMode != nil {
		eff.PlatformFee.Mode = *ov.PlatformFeeMode
	}
	if ov.PlatformFeeValue != nil {
		eff.PlatformFee.Value = ov.PlatformFeeValue.Value
	}
	if ov.PlatformFeeApplyOn != nil {
		eff.PlatformFee.ApplyOn = *ov.PlatformFeeApplyOn
	}
	return eff
}

// =============================================================================
// ROUNDING
// =============================================================================

// Apply rounds a computed quantity per the configured mode. Rounding happens
// exactly once per quantity, at the point the quantity is produced; callers
// must not round intermediate values twice.
func (mode RoundingMode) Apply(m Money) Money {
	switch mode {
	case Rounding2DP:
		return Money{Value: m.Value.Round(2)}
	default:
		return m
	}
}
