package rules

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

func f(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	out, err := Validate(RuleInput{Severity: " high ", RangeMin: f(81), RangeMax: f(90), Unit: " kWh ", Message: " too much "})
	require.Nil(t, err)
	assert.Equal(t, "HIGH", out.Severity)
	assert.Equal(t, "kWh", out.Unit)
	assert.Equal(t, "too much", out.Message)

	rule := out.Rule("p-1")
	assert.Equal(t, storage.SeverityHigh, rule.Severity)
	assert.Equal(t, 81.0, rule.RangeMin)
	assert.Equal(t, 90.0, rule.RangeMax)
	assert.Equal(t, "p-1", rule.ProductID)
}

func TestValidateSinglePointBand(t *testing.T) {
	_, err := Validate(RuleInput{Severity: "MEDIUM", RangeMin: f(5), RangeMax: f(5)})
	assert.Nil(t, err)
}

func TestValidateCountsUnitInCharacters(t *testing.T) {
	out, err := Validate(RuleInput{Severity: "HIGH", RangeMin: f(1), RangeMax: f(2), Unit: strings.Repeat("°", 20)})
	require.Nil(t, err)
	assert.Equal(t, strings.Repeat("°", 20), out.Unit)
}

func TestValidateFailures(t *testing.T) {
	cases := map[string]struct {
		in    RuleInput
		field string
	}{
		"unknown severity": {in: RuleInput{Severity: "LOW", RangeMin: f(1), RangeMax: f(2)}, field: "severity"},
		"inverted range":   {in: RuleInput{Severity: "HIGH", RangeMin: f(10), RangeMax: f(5)}, field: "rangeMin"},
		"missing max":      {in: RuleInput{Severity: "HIGH", RangeMin: f(10)}, field: "rangeMax"},
		"infinite max":     {in: RuleInput{Severity: "HIGH", RangeMin: f(10), RangeMax: f(math.Inf(1))}, field: "rangeMax"},
		"long unit":        {in: RuleInput{Severity: "HIGH", RangeMin: f(1), RangeMax: f(2), Unit: "kilowatt-hours-per-day"}, field: "unit"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(tc.in)
			require.NotNil(t, err)
			assert.Equal(t, "RULE_SCHEMA_INVALID", err.Code)
			fields := []string{}
			for _, d := range err.Details {
				fields = append(fields, d.Field)
			}
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestValidateUsesPrompt(t *testing.T) {
	out, err := Validate(RuleInput{Prompt: `critical above 91 kWh "Overload"`})
	require.Nil(t, err)
	assert.Equal(t, "CRITICAL", out.Severity)
	assert.Equal(t, 91.0, *out.RangeMin)
	assert.Equal(t, float64(OpenEndedMax), *out.RangeMax)
	assert.Equal(t, "kWh", out.Unit)
	assert.Equal(t, "Overload", out.Message)
}

func TestValidateExplicitFieldsWinOverPrompt(t *testing.T) {
	out, err := Validate(RuleInput{Prompt: "high between 1 and 2", Severity: "MEDIUM"})
	require.Nil(t, err)
	assert.Equal(t, "MEDIUM", out.Severity)
	assert.Equal(t, 1.0, *out.RangeMin)
}
