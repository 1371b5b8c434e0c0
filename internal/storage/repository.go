package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

// Tx is a unit of work over a single database transaction. It exposes the
// measurement write path together with the rule and event stores so the
// alert evaluation commits or rolls back with the measurement insert.
type Tx struct {
	tx pgx.Tx
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (r *Repository) InTx(ctx context.Context, fn func(*Tx) error) error {
	err := pgx.BeginFunc(ctx, r.Store.Pool, func(tx pgx.Tx) error {
		return fn(&Tx{tx: tx})
	})
	if err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	return nil
}

func (t *Tx) InsertMeasurement(ctx context.Context, in NewMeasurement) (Measurement, error) {
	return insertMeasurement(ctx, t.tx, in)
}

func (t *Tx) GetMeasurement(ctx context.Context, id string) (Measurement, error) {
	return getMeasurement(ctx, t.tx, id)
}

// FindProduct resolves a product by id, soft-deleted rows included: a
// measurement still references the row until it is purged.
func (t *Tx) FindProduct(ctx context.Context, id string) (Product, error) {
	return getProduct(ctx, t.tx, id, true)
}

func (t *Tx) RulesForProduct(ctx context.Context, productID string) ([]Rule, error) {
	return rulesForProduct(ctx, t.tx, productID)
}

func (t *Tx) CreateEventIfAbsent(ctx context.Context, ruleID, measurementID string) (AlertEvent, bool, error) {
	return createEventIfAbsent(ctx, t.tx, ruleID, measurementID)
}

func (t *Tx) CopyMeasurements(ctx context.Context, batch []NewMeasurement) (int64, error) {
	return copyMeasurements(ctx, t.tx, batch)
}
