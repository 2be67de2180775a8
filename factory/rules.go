/*
Package factory provides JSON to Go rule set conversion.

PURPOSE:
  Converts JSON rule payloads into engine.Rules and back. This enables rule
  configuration without code changes - an admin can define calculation
  parameters in JSON, and the factory produces validated typed rules.

JSON SCHEMA:
  {
    "currency_default": "USD",
    "connect_cost_per_unit": "0.15",
    "platform_fee": {
      "enabled": false,
      "mode": "percent",
      "value": "0.10",
      "apply_on": "net"
    },
    "rounding": {"mode": "2dp"},
    "require_percent_allocations_sum_to_1": true
  }

  Numeric fields accept either JSON numbers or decimal strings; they are
  always emitted as decimal strings.

STRICTNESS:
  Unknown fields and missing required fields are configuration errors.
  Nothing is silently defaulted: a payload either round-trips exactly or
  is rejected with the offending field named.

USAGE:
  rules, err := factory.ParseRules(payload)

  // Or start from the standard preset
  rules, _ := factory.ParseRules(factory.DefaultRulesJSON())

SEE ALSO:
  - engine/rules.go: Rules type and validation
  - store/sqlite: Persists payloads produced by MarshalRules
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gigledger/payout-engine/engine"
	"github.com/shopspring/decimal"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RulesJSON is the JSON representation of a rule payload. Required fields
// are pointers so a missing field is distinguishable from a zero value.
type RulesJSON struct {
	CurrencyDefault        *string       `json:"currency_default"`
	ConnectCostPerUnit     *json.Number  `json:"connect_cost_per_unit"`
	PlatformFee            *FeeJSON      `json:"platform_fee"`
	Rounding               *RoundingJSON `json:"rounding"`
	RequirePercentSumToOne *bool         `json:"require_percent_allocations_sum_to_1"`
}

// FeeJSON is the platform fee section.
type FeeJSON struct {
	Enabled *bool        `json:"enabled"`
	Mode    *string      `json:"mode"`
	Value   *json.Number `json:"value"`
	ApplyOn *string      `json:"apply_on"`
}

// RoundingJSON is the rounding section.
type RoundingJSON struct {
	Mode *string `json:"mode"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseRules converts a JSON payload into validated engine.Rules.
func ParseRules(payload []byte) (engine.Rules, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var raw RulesJSON
	if err := dec.Decode(&raw); err != nil {
		return engine.Rules{}, &engine.ConfigError{Field: "(payload)", Reason: err.Error()}
	}

	if raw.CurrencyDefault == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "currency_default", Reason: "required"}
	}
	if raw.ConnectCostPerUnit == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "connect_cost_per_unit", Reason: "required"}
	}
	if raw.PlatformFee == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "platform_fee", Reason: "required"}
	}
	if raw.Rounding == nil || raw.Rounding.Mode == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "rounding.mode", Reason: "required"}
	}
	if raw.RequirePercentSumToOne == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "require_percent_allocations_sum_to_1", Reason: "required"}
	}

	fee := raw.PlatformFee
	if fee.Enabled == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "platform_fee.enabled", Reason: "required"}
	}
	if fee.Mode == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "platform_fee.mode", Reason: "required"}
	}
	if fee.Value == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "platform_fee.value", Reason: "required"}
	}
	if fee.ApplyOn == nil {
		return engine.Rules{}, &engine.ConfigError{Field: "platform_fee.apply_on", Reason: "required"}
	}

	connectCost, err := parseDecimal("connect_cost_per_unit", *raw.ConnectCostPerUnit)
	if err != nil {
		return engine.Rules{}, err
	}
	feeValue, err := parseDecimal("platform_fee.value", *fee.Value)
	if err != nil {
		return engine.Rules{}, err
	}

	rules := engine.Rules{
		Currency:           *raw.CurrencyDefault,
		ConnectCostPerUnit: engine.Money{Value: connectCost},
		PlatformFee: engine.FeeRules{
			Enabled: *fee.Enabled,
			Mode:    engine.FeeMode(*fee.Mode),
			Value:   feeValue,
			ApplyOn: engine.FeeApplyOn(*fee.ApplyOn),
		},
		Rounding:               engine.RoundingMode(*raw.Rounding.Mode),
		RequirePercentSumToOne: *raw.RequirePercentSumToOne,
	}

	if err := rules.Validate(); err != nil {
		return engine.Rules{}, err
	}
	return rules, nil
}

func parseDecimal(field string, n json.Number) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, &engine.ConfigError{Field: field, Reason: fmt.Sprintf("not a decimal: %q", n.String())}
	}
	return d, nil
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// MarshalRules emits the canonical payload for a rule bundle. Amounts come
// out as decimal strings so a payload round-trips without representation
// drift.
func MarshalRules(rules engine.Rules) ([]byte, error) {
	out := map[string]any{
		"currency_default":      rules.Currency,
		"connect_cost_per_unit": rules.ConnectCostPerUnit.String(),
		"platform_fee": map[string]any{
			"enabled":  rules.PlatformFee.Enabled,
			"mode":     string(rules.PlatformFee.Mode),
			"value":    rules.PlatformFee.Value.String(),
			"apply_on": string(rules.PlatformFee.ApplyOn),
		},
		"rounding": map[string]any{
			"mode": string(rules.Rounding),
		},
		"require_percent_allocations_sum_to_1": rules.RequirePercentSumToOne,
	}
	return json.Marshal(out)
}

// =============================================================================
// PRESETS
// =============================================================================

// DefaultRulesJSON is the standard starting payload: USD, 0.15 per connect,
// platform fee present but disabled (10% of net when switched on), 2dp
// rounding, percent shares must sum to 1.
func DefaultRulesJSON() []byte {
	return []byte(`{
		"currency_default": "USD",
		"connect_cost_per_unit": "0.15",
		"platform_fee": {
			"enabled": false,
			"mode": "percent",
			"value": "0.10",
			"apply_on": "net"
		},
		"rounding": {"mode": "2dp"},
		"require_percent_allocations_sum_to_1": true
	}`)
}

// DefaultRules is DefaultRulesJSON parsed. Panics only if the preset itself
// is broken, which the factory tests guard against.
func DefaultRules() engine.Rules {
	rules, err := ParseRules(DefaultRulesJSON())
	if err != nil {
		panic(fmt.Sprintf("invalid default rules preset: %v", err))
	}
	return rules
}
