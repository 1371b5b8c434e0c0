// Package alerts decides which threshold rules a measurement satisfies and
// materializes one alert event per satisfied rule.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bacorsx/EcoEnergy-IC/internal/metrics"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
	"github.com/Bacorsx/EcoEnergy-IC/internal/units"
)

// Store is the transaction-scoped view the evaluator reads rules from and
// writes events to. The caller owns the transaction.
type Store interface {
	FindProduct(ctx context.Context, id string) (storage.Product, error)
	RulesForProduct(ctx context.Context, productID string) ([]storage.Rule, error)
	CreateEventIfAbsent(ctx context.Context, ruleID, measurementID string) (storage.AlertEvent, bool, error)
}

type Options struct {
	// SkipDeletedRules excludes soft-deleted rules from evaluation.
	SkipDeletedRules bool
}

type Evaluator struct {
	opts   Options
	logger zerolog.Logger
}

func NewEvaluator(opts Options, logger zerolog.Logger) *Evaluator {
	return &Evaluator{opts: opts, logger: logger}
}

// Evaluate returns the events newly created for m. Events that already
// existed for a (rule, measurement) pair are not returned. A measurement
// without a resolvable product yields no events and no error.
func (e *Evaluator) Evaluate(ctx context.Context, store Store, m storage.Measurement) ([]storage.AlertEvent, error) {
	start := time.Now()
	created, outcome, err := e.evaluate(ctx, store, m)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.Evaluations.WithLabelValues(outcome).Inc()
	if err != nil {
		e.logger.Error().Err(err).Str("measurement_id", m.ID).Msg("alert evaluation failed")
		return nil, err
	}
	if len(created) > 0 {
		e.logger.Info().Str("measurement_id", m.ID).Int("events", len(created)).Msg("alert events created")
	}
	return created, nil
}

func (e *Evaluator) evaluate(ctx context.Context, store Store, m storage.Measurement) ([]storage.AlertEvent, string, error) {
	created := []storage.AlertEvent{}
	if m.ProductID == nil || *m.ProductID == "" {
		return created, "no_product", nil
	}
	productID := *m.ProductID
	if _, err := store.FindProduct(ctx, productID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return created, "no_product", nil
		}
		return nil, "error", fmt.Errorf("find product %s: %w", productID, err)
	}

	rules, err := store.RulesForProduct(ctx, productID)
	if err != nil {
		return nil, "error", fmt.Errorf("load rules: %w", err)
	}

	measuredKey := units.Normalize(m.Unit)
	for _, rule := range rules {
		if e.opts.SkipDeletedRules && !rule.Alive() {
			continue
		}
		if !Matches(rule, m.Value, measuredKey) {
			continue
		}
		evt, isNew, err := store.CreateEventIfAbsent(ctx, rule.ID, m.ID)
		if err != nil {
			return nil, "error", fmt.Errorf("create event for rule %s: %w", rule.ID, err)
		}
		if !isNew {
			metrics.EventConflicts.Inc()
			continue
		}
		evt.Severity = rule.Severity
		metrics.EventsCreated.WithLabelValues(string(rule.Severity)).Inc()
		created = append(created, evt)
	}
	if len(created) == 0 {
		return created, "no_match", nil
	}
	return created, "fired", nil
}

// Matches reports whether value, measured in the unit whose normalized key
// is measuredKey, falls inside the rule's inclusive band. A rule with an
// empty unit matches any unit. Inverted bands and NaN never match.
func Matches(rule storage.Rule, value float64, measuredKey string) bool {
	if key := units.Normalize(rule.Unit); key != "" && key != measuredKey {
		return false
	}
	return rule.RangeMin <= value && value <= rule.RangeMax
}
