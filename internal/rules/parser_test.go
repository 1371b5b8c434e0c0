package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePromptBetween(t *testing.T) {
	in, err := ParsePrompt(`High between 81 and 90.5 kWh "Consumption high"`)
	require.Nil(t, err)
	assert.Equal(t, "HIGH", in.Severity)
	assert.Equal(t, 81.0, *in.RangeMin)
	assert.Equal(t, 90.5, *in.RangeMax)
	assert.Equal(t, "kWh", in.Unit)
	assert.Equal(t, "Consumption high", in.Message)
}

func TestParsePromptBelow(t *testing.T) {
	in, err := ParsePrompt("medium below 10")
	require.Nil(t, err)
	assert.Equal(t, 0.0, *in.RangeMin)
	assert.Equal(t, 10.0, *in.RangeMax)
	assert.Equal(t, "", in.Unit)
}

func TestParsePromptMissingFields(t *testing.T) {
	_, err := ParsePrompt("something odd")
	require.NotNil(t, err)
	assert.Equal(t, "RULE_AMBIGUOUS", err.Code)
	assert.Len(t, err.Details, 2)

	_, err = ParsePrompt("   ")
	require.NotNil(t, err)
	assert.Equal(t, "empty rule prompt", err.Message)
}

func TestParsePromptIgnoresKeywordsInMessage(t *testing.T) {
	in, err := ParsePrompt(`"High load on feeder" critical above 91 kWh`)
	require.Nil(t, err)
	assert.Equal(t, "CRITICAL", in.Severity)
	assert.Equal(t, "High load on feeder", in.Message)
	assert.Equal(t, 91.0, *in.RangeMin)
	assert.Equal(t, float64(OpenEndedMax), *in.RangeMax)
	assert.Equal(t, "kWh", in.Unit)

	in, err = ParsePrompt(`medium between 10 and 20 "below 5 is fine"`)
	require.Nil(t, err)
	assert.Equal(t, 10.0, *in.RangeMin)
	assert.Equal(t, 20.0, *in.RangeMax)
	assert.Equal(t, "", in.Unit)
}
