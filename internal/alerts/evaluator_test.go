package alerts_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bacorsx/EcoEnergy-IC/internal/alerts"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
	"github.com/Bacorsx/EcoEnergy-IC/internal/testutil"
)

func evaluate(t *testing.T, store *testutil.MemStore, ev *alerts.Evaluator, m storage.Measurement) []storage.AlertEvent {
	t.Helper()
	var out []storage.AlertEvent
	err := store.Do(context.Background(), func(tx *testutil.MemTx) error {
		var err error
		out, err = ev.Evaluate(context.Background(), tx, m)
		return err
	})
	require.NoError(t, err)
	return out
}

func newEvaluator() *alerts.Evaluator {
	return alerts.NewEvaluator(alerts.Options{}, zerolog.Nop())
}

func measurementFor(store *testutil.MemStore, productID string, value float64, unit string) storage.Measurement {
	return store.AddMeasurement(storage.NewMeasurement{ProductID: &productID, Value: value, Unit: unit, MeasuredAt: time.Now()})
}

func TestEvaluateBandMultiplicity(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("meter")
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 70, RangeMax: 80})
	high := store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityHigh, RangeMin: 81, RangeMax: 90})
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityCritical, RangeMin: 91, RangeMax: 9999999})

	events := evaluate(t, store, newEvaluator(), measurementFor(store, p.ID, 85, "kWh"))
	require.Len(t, events, 1)
	assert.Equal(t, high.ID, events[0].RuleID)
	assert.Equal(t, storage.SeverityHigh, events[0].Severity)
	assert.False(t, events[0].IsResolved)
}

func TestEvaluateCelsiusBands(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("boiler")
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 70, RangeMax: 80, Unit: "°C"})
	high := store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityHigh, RangeMin: 81, RangeMax: 90, Unit: "°C"})
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityCritical, RangeMin: 91, RangeMax: 9999999, Unit: "°C"})

	m := measurementFor(store, p.ID, 85, "°C")
	events := evaluate(t, store, newEvaluator(), m)
	require.Len(t, events, 1)
	assert.Equal(t, high.ID, events[0].RuleID)
	assert.Equal(t, m.ID, events[0].MeasurementID)
	assert.Equal(t, storage.SeverityHigh, events[0].Severity)
	assert.False(t, events[0].IsResolved)
	assert.Len(t, store.Events(), 1)

	assert.Empty(t, evaluate(t, store, newEvaluator(), measurementFor(store, p.ID, 85, "kWh")))
}

func TestEvaluateIsIdempotent(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("meter")
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityHigh, RangeMin: 0, RangeMax: 100})
	m := measurementFor(store, p.ID, 50, "")
	ev := newEvaluator()

	first := evaluate(t, store, ev, m)
	second := evaluate(t, store, ev, m)
	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Len(t, store.Events(), 1)
}

func TestEvaluateRangeIsInclusive(t *testing.T) {
	cases := map[string]struct {
		value float64
		fires bool
	}{
		"at min":      {value: 10, fires: true},
		"at max":      {value: 20, fires: true},
		"inside":      {value: 15, fires: true},
		"below min":   {value: 10 - 1e-9, fires: false},
		"above max":   {value: 20 + 1e-9, fires: false},
		"not a value": {value: math.NaN(), fires: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := testutil.NewMemStore()
			p := store.AddProduct("meter")
			store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 10, RangeMax: 20})
			events := evaluate(t, store, newEvaluator(), measurementFor(store, p.ID, tc.value, ""))
			assert.Equal(t, tc.fires, len(events) == 1)
		})
	}
}

func TestEvaluateUnitMatching(t *testing.T) {
	cases := map[string]struct {
		ruleUnit     string
		measuredUnit string
		fires        bool
	}{
		"wildcard rule":         {ruleUnit: "", measuredUnit: "kWh", fires: true},
		"wildcard both empty":   {ruleUnit: "", measuredUnit: "", fires: true},
		"degree sign stripped":  {ruleUnit: "°C", measuredUnit: "c", fires: true},
		"padded and upper case": {ruleUnit: "c", measuredUnit: " C ", fires: true},
		"different unit":        {ruleUnit: "kWh", measuredUnit: "W", fires: false},
		"rule unit, none given": {ruleUnit: "kWh", measuredUnit: "", fires: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := testutil.NewMemStore()
			p := store.AddProduct("meter")
			store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 0, RangeMax: 100, Unit: tc.ruleUnit})
			events := evaluate(t, store, newEvaluator(), measurementFor(store, p.ID, 42, tc.measuredUnit))
			assert.Equal(t, tc.fires, len(events) == 1)
		})
	}
}

func TestEvaluateInvertedRangeNeverFires(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("meter")
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 50, RangeMax: 10})
	assert.Empty(t, evaluate(t, store, newEvaluator(), measurementFor(store, p.ID, 30, "")))
}

func TestEvaluateWithoutProduct(t *testing.T) {
	store := testutil.NewMemStore()
	ev := newEvaluator()

	orphan := store.AddMeasurement(storage.NewMeasurement{Value: 5, MeasuredAt: time.Now()})
	assert.Empty(t, evaluate(t, store, ev, orphan))

	missing := "00000000-0000-0000-0000-000000000000"
	dangling := store.AddMeasurement(storage.NewMeasurement{ProductID: &missing, Value: 5, MeasuredAt: time.Now()})
	assert.Empty(t, evaluate(t, store, ev, dangling))
}

func TestEvaluateProductWithoutRules(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("meter")
	assert.Empty(t, evaluate(t, store, newEvaluator(), measurementFor(store, p.ID, 5, "")))
}

func TestEvaluateSoftDeletedProductStillEvaluates(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("meter")
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 0, RangeMax: 10})
	store.SoftDeleteProduct(p.ID)
	assert.Len(t, evaluate(t, store, newEvaluator(), measurementFor(store, p.ID, 5, "")), 1)
}

func TestEvaluateSoftDeletedRules(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("meter")
	r := store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 0, RangeMax: 10})
	store.SoftDeleteRule(r.ID)

	permissive := evaluate(t, store, newEvaluator(), measurementFor(store, p.ID, 5, ""))
	assert.Len(t, permissive, 1)

	strict := alerts.NewEvaluator(alerts.Options{SkipDeletedRules: true}, zerolog.Nop())
	assert.Empty(t, evaluate(t, store, strict, measurementFor(store, p.ID, 5, "")))
}

func TestEvaluateStorageFailureIsReturned(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("meter")
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 0, RangeMax: 10})
	m := measurementFor(store, p.ID, 5, "")
	boom := errors.New("connection reset")
	store.FailCreateEvent = boom

	err := store.Do(context.Background(), func(tx *testutil.MemTx) error {
		_, err := newEvaluator().Evaluate(context.Background(), tx, m)
		return err
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.Events())
}

func TestEvaluateConcurrentSameMeasurement(t *testing.T) {
	store := testutil.NewMemStore()
	p := store.AddProduct("meter")
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityMedium, RangeMin: 0, RangeMax: 10})
	store.AddRule(storage.Rule{ProductID: p.ID, Severity: storage.SeverityHigh, RangeMin: 5, RangeMax: 10})
	m := measurementFor(store, p.ID, 7, "")
	ev := newEvaluator()

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Do(context.Background(), func(tx *testutil.MemTx) error {
				events, err := ev.Evaluate(context.Background(), tx, m)
				mu.Lock()
				total += len(events)
				mu.Unlock()
				return err
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, total)
	assert.Len(t, store.Events(), 2)
}

func TestMatches(t *testing.T) {
	rule := storage.Rule{RangeMin: 1, RangeMax: 2, Unit: "kW h"}
	assert.True(t, alerts.Matches(rule, 1.5, "kwh"))
	assert.False(t, alerts.Matches(rule, 1.5, "kw"))
}
