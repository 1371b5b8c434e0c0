// Package ingest records measurements and runs alert evaluation inside the
// same transaction as the insert.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Bacorsx/EcoEnergy-IC/internal/alerts"
	"github.com/Bacorsx/EcoEnergy-IC/internal/metrics"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

var ErrNegativeValue = fmt.Errorf("%w: value must be >= 0", storage.ErrInvalidMeasurement)

// UnitOfWork is one open transaction.
type UnitOfWork interface {
	alerts.Store
	InsertMeasurement(ctx context.Context, in storage.NewMeasurement) (storage.Measurement, error)
	GetMeasurement(ctx context.Context, id string) (storage.Measurement, error)
	CopyMeasurements(ctx context.Context, batch []storage.NewMeasurement) (int64, error)
}

// Transactor commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	Do(ctx context.Context, fn func(UnitOfWork) error) error
}

type EventPublisher interface {
	PublishAlertEvents(ctx context.Context, m storage.Measurement, events []storage.AlertEvent) error
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, productID string) error
}

type Result struct {
	Measurement storage.Measurement  `json:"measurement"`
	Events      []storage.AlertEvent `json:"events"`
}

type ImportResult struct {
	Inserted int64 `json:"inserted"`
	Events   int   `json:"events"`
}

type Hook struct {
	tx          Transactor
	evaluator   *alerts.Evaluator
	publisher   EventPublisher
	invalidator CacheInvalidator
	logger      zerolog.Logger
}

type Option func(*Hook)

func WithPublisher(p EventPublisher) Option {
	return func(h *Hook) { h.publisher = p }
}

func WithInvalidator(c CacheInvalidator) Option {
	return func(h *Hook) { h.invalidator = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *Hook) { h.logger = l }
}

func NewHook(tx Transactor, evaluator *alerts.Evaluator, opts ...Option) *Hook {
	h := &Hook{tx: tx, evaluator: evaluator, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type sourceKey struct{}

// WithSource labels measurements recorded under ctx for metrics.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "api"
}

// CreateMeasurement inserts the measurement and evaluates it in one
// transaction. If evaluation fails the insert is rolled back.
func (h *Hook) CreateMeasurement(ctx context.Context, in storage.NewMeasurement) (Result, error) {
	source := sourceFrom(ctx)
	if in.Value < 0 {
		metrics.MeasurementsIngested.WithLabelValues(source, "rejected").Inc()
		return Result{}, ErrNegativeValue
	}
	var res Result
	err := h.tx.Do(ctx, func(uow UnitOfWork) error {
		m, err := uow.InsertMeasurement(ctx, in)
		if err != nil {
			return err
		}
		events, err := h.evaluator.Evaluate(ctx, uow, m)
		if err != nil {
			return fmt.Errorf("evaluate measurement %s: %w", m.ID, err)
		}
		res = Result{Measurement: m, Events: events}
		return nil
	})
	if err != nil {
		status := "failed"
		if errors.Is(err, storage.ErrInvalidMeasurement) {
			status = "rejected"
		}
		metrics.MeasurementsIngested.WithLabelValues(source, status).Inc()
		return Result{}, err
	}
	metrics.MeasurementsIngested.WithLabelValues(source, "accepted").Inc()
	h.afterCommit(ctx, res.Measurement, res.Events)
	return res, nil
}

// Reevaluate runs evaluation again for a stored measurement. Only events
// that did not exist yet are returned.
func (h *Hook) Reevaluate(ctx context.Context, measurementID string) ([]storage.AlertEvent, error) {
	var m storage.Measurement
	var events []storage.AlertEvent
	err := h.tx.Do(ctx, func(uow UnitOfWork) error {
		var err error
		m, err = uow.GetMeasurement(ctx, measurementID)
		if err != nil {
			return err
		}
		events, err = h.evaluator.Evaluate(ctx, uow, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		h.afterCommit(ctx, m, events)
	}
	return events, nil
}

// Import records a batch. Without evaluate the rows are bulk-copied in a
// single transaction and no alert events are produced; with evaluate every
// row goes through CreateMeasurement and the import stops at the first
// failure.
func (h *Hook) Import(ctx context.Context, batch []storage.NewMeasurement, evaluate bool) (ImportResult, error) {
	metrics.ImportBatchSize.Observe(float64(len(batch)))
	if len(batch) == 0 {
		return ImportResult{}, nil
	}
	if evaluate {
		var out ImportResult
		for i, in := range batch {
			res, err := h.CreateMeasurement(ctx, in)
			if err != nil {
				return out, fmt.Errorf("row %d: %w", i, err)
			}
			out.Inserted++
			out.Events += len(res.Events)
		}
		return out, nil
	}

	var n int64
	err := h.tx.Do(ctx, func(uow UnitOfWork) error {
		var err error
		n, err = uow.CopyMeasurements(ctx, batch)
		return err
	})
	source := sourceFrom(ctx)
	if err != nil {
		metrics.MeasurementsIngested.WithLabelValues(source, "failed").Add(float64(len(batch)))
		return ImportResult{}, err
	}
	metrics.MeasurementsIngested.WithLabelValues(source, "accepted").Add(float64(n))
	products := batchProducts(batch)
	if len(products) == 0 {
		h.invalidate(ctx, "")
	}
	for _, id := range products {
		h.invalidate(ctx, id)
	}
	return ImportResult{Inserted: n}, nil
}

// batchProducts lists the distinct products of a batch in first-seen order.
func batchProducts(batch []storage.NewMeasurement) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, in := range batch {
		if in.ProductID == nil {
			continue
		}
		if _, ok := seen[*in.ProductID]; ok {
			continue
		}
		seen[*in.ProductID] = struct{}{}
		out = append(out, *in.ProductID)
	}
	return out
}

func (h *Hook) afterCommit(ctx context.Context, m storage.Measurement, events []storage.AlertEvent) {
	if h.publisher != nil && len(events) > 0 {
		if err := h.publisher.PublishAlertEvents(ctx, m, events); err != nil {
			h.logger.Warn().Err(err).Str("measurement_id", m.ID).Msg("publish alert events failed")
		}
	}
	productID := ""
	if m.ProductID != nil {
		productID = *m.ProductID
	}
	h.invalidate(ctx, productID)
}

func (h *Hook) invalidate(ctx context.Context, productID string) {
	if h.invalidator == nil {
		return
	}
	if err := h.invalidator.Invalidate(ctx, productID); err != nil {
		h.logger.Warn().Err(err).Str("product_id", productID).Msg("cache invalidation failed")
	}
}
