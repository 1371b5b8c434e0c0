package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesAreOrdered(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
}

func TestInitDeclaresEventUniqueness(t *testing.T) {
	content, err := files.ReadFile("001_init.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "UNIQUE (rule_id, measurement_id)"))
	assert.True(t, strings.Contains(string(content), "CHECK (value >= 0)"))
}
