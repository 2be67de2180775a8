package factory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigledger/payout-engine/engine"
)

func TestParseRules_DefaultPreset(t *testing.T) {
	// GIVEN the shipped preset
	rules, err := ParseRules(DefaultRulesJSON())
	require.NoError(t, err)

	// THEN it parses into the expected typed payload
	assert.Equal(t, "USD", rules.Currency)
	assert.Equal(t, "0.15", rules.ConnectCostPerUnit.String())
	assert.False(t, rules.PlatformFee.Enabled)
	assert.Equal(t, engine.FeePercent, rules.PlatformFee.Mode)
	assert.Equal(t, "0.1", rules.PlatformFee.Value.String())
	assert.Equal(t, engine.ApplyOnNet, rules.PlatformFee.ApplyOn)
	assert.Equal(t, engine.Rounding2DP, rules.Rounding)
	assert.True(t, rules.RequirePercentSumToOne)
}

func TestDefaultRules_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { DefaultRules() })
}

func TestParseRules_AcceptsNumbersAndStrings(t *testing.T) {
	// GIVEN the connect cost as a bare JSON number
	payload := []byte(`{
		"currency_default": "USD",
		"connect_cost_per_unit": 0.15,
		"platform_fee": {"enabled": true, "mode": "fixed", "value": "25.00", "apply_on": "gross"},
		"rounding": {"mode": "none"},
		"require_percent_allocations_sum_to_1": false
	}`)

	rules, err := ParseRules(payload)
	require.NoError(t, err)

	assert.Equal(t, "0.15", rules.ConnectCostPerUnit.String())
	assert.Equal(t, "25", rules.PlatformFee.Value.String())
	assert.Equal(t, engine.RoundingNone, rules.Rounding)
}

func TestParseRules_RejectsUnknownFields(t *testing.T) {
	payload := []byte(`{
		"currency_default": "USD",
		"connect_cost_per_unit": "0.15",
		"platform_fee": {"enabled": false, "mode": "percent", "value": "0.10", "apply_on": "net"},
		"rounding": {"mode": "2dp"},
		"require_percent_allocations_sum_to_1": true,
		"surprise": 1
	}`)

	_, err := ParseRules(payload)

	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrInvalidRules))
}

func TestParseRules_MissingFieldsAreNamed(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{
			name:      "no currency",
			payload:   `{"connect_cost_per_unit": "0.15", "platform_fee": {"enabled": false, "mode": "percent", "value": "0.10", "apply_on": "net"}, "rounding": {"mode": "2dp"}, "require_percent_allocations_sum_to_1": true}`,
			wantField: "currency_default",
		},
		{
			name:      "no connect cost",
			payload:   `{"currency_default": "USD", "platform_fee": {"enabled": false, "mode": "percent", "value": "0.10", "apply_on": "net"}, "rounding": {"mode": "2dp"}, "require_percent_allocations_sum_to_1": true}`,
			wantField: "connect_cost_per_unit",
		},
		{
			name:      "no fee section",
			payload:   `{"currency_default": "USD", "connect_cost_per_unit": "0.15", "rounding": {"mode": "2dp"}, "require_percent_allocations_sum_to_1": true}`,
			wantField: "platform_fee",
		},
		{
			name:      "fee missing apply_on",
			payload:   `{"currency_default": "USD", "connect_cost_per_unit": "0.15", "platform_fee": {"enabled": false, "mode": "percent", "value": "0.10"}, "rounding": {"mode": "2dp"}, "require_percent_allocations_sum_to_1": true}`,
			wantField: "platform_fee.apply_on",
		},
		{
			name:      "no rounding mode",
			payload:   `{"currency_default": "USD", "connect_cost_per_unit": "0.15", "platform_fee": {"enabled": false, "mode": "percent", "value": "0.10", "apply_on": "net"}, "require_percent_allocations_sum_to_1": true}`,
			wantField: "rounding.mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.payload))
			require.Error(t, err)

			var cfgErr *engine.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestParseRules_RejectsInvalidValues(t *testing.T) {
	// GIVEN a percent fee above 1
	payload := []byte(`{
		"currency_default": "USD",
		"connect_cost_per_unit": "0.15",
		"platform_fee": {"enabled": true, "mode": "percent", "value": "1.5", "apply_on": "net"},
		"rounding": {"mode": "2dp"},
		"require_percent_allocations_sum_to_1": true
	}`)

	_, err := ParseRules(payload)

	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrInvalidRules))
}

func TestMarshalRules_RoundTrips(t *testing.T) {
	// GIVEN a parsed payload
	rules, err := ParseRules(DefaultRulesJSON())
	require.NoError(t, err)

	// WHEN marshalled and parsed again
	raw, err := MarshalRules(rules)
	require.NoError(t, err)
	again, err := ParseRules(raw)
	require.NoError(t, err)

	// THEN nothing drifts
	assert.Equal(t, rules.Currency, again.Currency)
	assert.True(t, rules.ConnectCostPerUnit.Equal(again.ConnectCostPerUnit))
	assert.True(t, rules.PlatformFee.Value.Equal(again.PlatformFee.Value))
	assert.Equal(t, rules.PlatformFee.ApplyOn, again.PlatformFee.ApplyOn)
	assert.Equal(t, rules.Rounding, again.Rounding)
	assert.Equal(t, rules.RequirePercentSumToOne, again.RequirePercentSumToOne)
}
