package storage

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const measurementColumns = `id, product_id, value, unit, measured_at, status, created_at, updated_at, deleted_at`

// ValidateMeasurement rejects values the schema would refuse.
func ValidateMeasurement(in NewMeasurement) error {
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return fmt.Errorf("%w: value must be a finite number", ErrInvalidMeasurement)
	}
	if in.Value < 0 {
		return fmt.Errorf("%w: value must be >= 0", ErrInvalidMeasurement)
	}
	if utf8.RuneCountInString(in.Unit) > 20 {
		return fmt.Errorf("%w: unit longer than 20 characters", ErrInvalidMeasurement)
	}
	if in.MeasuredAt.IsZero() {
		return fmt.Errorf("%w: measured_at is required", ErrInvalidMeasurement)
	}
	return nil
}

func insertMeasurement(ctx context.Context, q querier, in NewMeasurement) (Measurement, error) {
	if err := ValidateMeasurement(in); err != nil {
		return Measurement{}, err
	}
	row := q.QueryRow(ctx, `
		INSERT INTO measurements (id, product_id, value, unit, measured_at, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,'ACTIVE',now(),now())
		RETURNING `+measurementColumns,
		uuid.NewString(), in.ProductID, in.Value, in.Unit, in.MeasuredAt.UTC(),
	)
	m, err := scanMeasurement(row)
	if err != nil {
		return Measurement{}, fmt.Errorf("insert measurement: %w", classify(err))
	}
	return m, nil
}

func getMeasurement(ctx context.Context, q querier, id string) (Measurement, error) {
	row := q.QueryRow(ctx, `SELECT `+measurementColumns+` FROM measurements WHERE id=$1`, id)
	m, err := scanMeasurement(row)
	if err != nil {
		return Measurement{}, notFound(err)
	}
	return m, nil
}

func copyMeasurements(ctx context.Context, q pgx.Tx, batch []NewMeasurement) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(batch))
	for i, in := range batch {
		if err := ValidateMeasurement(in); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, []any{uuid.NewString(), in.ProductID, in.Value, in.Unit, in.MeasuredAt.UTC(), string(StatusActive), now, now})
	}
	n, err := q.CopyFrom(ctx,
		pgx.Identifier{"measurements"},
		[]string{"id", "product_id", "value", "unit", "measured_at", "status", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy measurements: %w", err)
	}
	return n, nil
}

func (r *Repository) GetMeasurement(ctx context.Context, id string) (Measurement, error) {
	return getMeasurement(ctx, r.Store.Pool, id)
}

// ListMeasurements returns the latest active measurements, newest first.
// An empty productID lists across all products.
func (r *Repository) ListMeasurements(ctx context.Context, productID string, limit int) ([]Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements WHERE status='ACTIVE'`
	args := []any{}
	if productID != "" {
		args = append(args, productID)
		query += fmt.Sprintf(" AND product_id=$%d", len(args))
	}
	args = append(args, clampLimit(limit, 50))
	query += fmt.Sprintf(" ORDER BY measured_at DESC LIMIT $%d", len(args))
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []Measurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func scanMeasurement(row scanner) (Measurement, error) {
	var m Measurement
	err := row.Scan(&m.ID, &m.ProductID, &m.Value, &m.Unit, &m.MeasuredAt, &m.Status, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	return m, err
}

func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
