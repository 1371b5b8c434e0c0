package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"°C":     "c",
		" C ":    "c",
		"c":      "c",
		"kWh":    "kwh",
		"k W h":  "kwh",
		"m/s":    "ms",
		"%":      "",
		"  °F\t": "f",
		"m²":     "m²",
	}
	for raw, want := range cases {
		assert.Equal(t, want, Normalize(raw), "Normalize(%q)", raw)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("°C", "c"))
	assert.True(t, Equal(" C ", "°c"))
	assert.False(t, Equal("°C", "°F"))
	assert.True(t, Equal("", "  "))
}
