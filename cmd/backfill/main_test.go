package main

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bacorsx/EcoEnergy-IC/internal/historian"
)

func TestToBatchSkipsRejectedReadings(t *testing.T) {
	now := time.Now().UTC()
	readings := []historian.Reading{
		{Value: 12.5, Unit: "kWh", MeasuredAt: now},
		{Value: -1, Unit: "kWh", MeasuredAt: now},
		{Value: math.NaN(), MeasuredAt: now},
		{Value: 3, Unit: "kWh"},
		{Value: 0, Unit: "W", MeasuredAt: now.Add(time.Minute)},
	}
	batch, skipped := toBatch(readings, "4f1c2a52-8c1e-4a7a-9b7e-2f1e8e6c0d11")
	assert.Equal(t, 3, skipped)
	require.Len(t, batch, 2)
	for _, in := range batch {
		require.NotNil(t, in.ProductID)
		assert.Equal(t, "4f1c2a52-8c1e-4a7a-9b7e-2f1e8e6c0d11", *in.ProductID)
	}
	assert.Equal(t, "W", batch[1].Unit)
}

func TestCommandRequiresTableAndProduct(t *testing.T) {
	cmd := command()
	cmd.SetArgs([]string{"--type", "mysql", "--host", "db"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestResolveConnectionNeedsSource(t *testing.T) {
	_, err := resolveConnection(context.Background(), nil, "", &options{})
	assert.Error(t, err)

	opts := &options{conn: historian.Config{Type: "mysql", Host: "db"}}
	cfg, err := resolveConnection(context.Background(), nil, "", opts)
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.Host)
}
