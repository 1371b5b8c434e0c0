package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, rule_id, measurement_id, is_resolved, resolved_at, created_at, updated_at`

// createEventIfAbsent relies on the (rule_id, measurement_id) unique
// constraint: a writer that loses a concurrent race inserts nothing and
// reads back the winner's row.
func createEventIfAbsent(ctx context.Context, q querier, ruleID, measurementID string) (AlertEvent, bool, error) {
	evt, err := scanEvent(q.QueryRow(ctx, `
		INSERT INTO alert_events (id, rule_id, measurement_id, is_resolved, created_at, updated_at)
		VALUES ($1,$2,$3,false,now(),now())
		ON CONFLICT (rule_id, measurement_id) DO NOTHING
		RETURNING `+eventColumns,
		uuid.NewString(), ruleID, measurementID,
	))
	if err == nil {
		return evt, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return AlertEvent{}, false, fmt.Errorf("insert alert event: %w", err)
	}
	existing, err := scanEvent(q.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM alert_events WHERE rule_id=$1 AND measurement_id=$2`,
		ruleID, measurementID,
	))
	if err != nil {
		return AlertEvent{}, false, fmt.Errorf("load conflicting alert event: %w", err)
	}
	return existing, false, nil
}

func (r *Repository) GetEvent(ctx context.Context, id string) (AlertEvent, error) {
	evt, err := scanEvent(r.Store.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM alert_events WHERE id=$1`, id))
	if err != nil {
		return AlertEvent{}, notFound(err)
	}
	return evt, nil
}

// ResolveEvent flags an event resolved and stamps resolved_at. It reports
// changed=false, leaving the row untouched, when the event was already
// resolved.
func (r *Repository) ResolveEvent(ctx context.Context, id string) (AlertEvent, bool, error) {
	evt, err := scanEvent(r.Store.Pool.QueryRow(ctx, `
		UPDATE alert_events SET is_resolved=true, resolved_at=now(), updated_at=now()
		WHERE id=$1 AND NOT is_resolved
		RETURNING `+eventColumns, id))
	if err == nil {
		return evt, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return AlertEvent{}, false, fmt.Errorf("resolve alert event: %w", err)
	}
	existing, err := r.GetEvent(ctx, id)
	if err != nil {
		return AlertEvent{}, false, err
	}
	return existing, false, nil
}

// ResolveEvents resolves every listed event that is still open, in one
// statement. Unknown and already resolved ids are skipped.
func (r *Repository) ResolveEvents(ctx context.Context, ids []string) ([]ResolvedEvent, error) {
	if len(ids) == 0 {
		return []ResolvedEvent{}, nil
	}
	rows, err := r.Store.Pool.Query(ctx, `
		WITH resolved AS (
			UPDATE alert_events SET is_resolved=true, resolved_at=now(), updated_at=now()
			WHERE id = ANY($1::uuid[]) AND NOT is_resolved
			RETURNING id, rule_id
		)
		SELECT resolved.id, r.product_id
		FROM resolved JOIN alert_rules r ON r.id = resolved.rule_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve alert events: %w", err)
	}
	defer rows.Close()
	results := []ResolvedEvent{}
	for rows.Next() {
		var ev ResolvedEvent
		if err := rows.Scan(&ev.ID, &ev.ProductID); err != nil {
			return nil, err
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

const eventViewSelect = `
	SELECT e.id, e.rule_id, e.measurement_id, e.is_resolved, e.resolved_at, e.created_at, e.updated_at,
	       r.severity, r.product_id, p.name, d.name, r.message, m.value, m.unit, m.measured_at
	FROM alert_events e
	JOIN alert_rules r ON r.id = e.rule_id
	JOIN products p ON p.id = r.product_id
	LEFT JOIN devices d ON d.id = p.device_id
	JOIN measurements m ON m.id = e.measurement_id`

func (r *Repository) GetEventView(ctx context.Context, id string) (EventView, error) {
	v, err := scanEventView(r.Store.Pool.QueryRow(ctx, eventViewSelect+` WHERE e.id=$1`, id))
	if err != nil {
		return EventView{}, notFound(err)
	}
	return v, nil
}

// ListEvents returns joined events, newest first.
func (r *Repository) ListEvents(ctx context.Context, filter EventFilter) ([]EventView, error) {
	where, args := eventWhere(filter)
	args = append(args, clampLimit(filter.Limit, 200))
	query := eventViewSelect + where + fmt.Sprintf(" ORDER BY e.created_at DESC LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []EventView{}
	for rows.Next() {
		v, err := scanEventView(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

func (r *Repository) CountEvents(ctx context.Context, filter EventFilter) (int, error) {
	where, args := eventWhere(filter)
	var n int
	err := r.Store.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM alert_events e
		JOIN alert_rules r ON r.id = e.rule_id`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count alert events: %w", err)
	}
	return n, nil
}

// SeverityCounts groups events created since the cutoff by rule severity.
// Every known severity is present in the result, zero-filled.
func (r *Repository) SeverityCounts(ctx context.Context, since time.Time) ([]SeverityCount, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT r.severity, COUNT(e.id)
		FROM alert_events e
		JOIN alert_rules r ON r.id = e.rule_id
		WHERE e.created_at >= $1
		GROUP BY r.severity`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[Severity]int{}
	for rows.Next() {
		var sev Severity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		counts[sev] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	results := make([]SeverityCount, 0, len(Severities))
	for _, sev := range Severities {
		results = append(results, SeverityCount{Severity: sev, Count: counts[sev]})
	}
	return results, nil
}

func eventWhere(filter EventFilter) (string, []any) {
	clauses := []string{}
	args := []any{}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		clauses = append(clauses, fmt.Sprintf("e.is_resolved = $%d", len(args)))
	}
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("r.product_id = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		clauses = append(clauses, fmt.Sprintf("r.severity = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		clauses = append(clauses, fmt.Sprintf("e.created_at >= $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEvent(row scanner) (AlertEvent, error) {
	var evt AlertEvent
	err := row.Scan(&evt.ID, &evt.RuleID, &evt.MeasurementID, &evt.IsResolved, &evt.ResolvedAt, &evt.CreatedAt, &evt.UpdatedAt)
	return evt, err
}

func scanEventView(row scanner) (EventView, error) {
	var v EventView
	err := row.Scan(
		&v.ID, &v.RuleID, &v.MeasurementID, &v.IsResolved, &v.ResolvedAt, &v.CreatedAt, &v.UpdatedAt,
		&v.Severity, &v.ProductID, &v.ProductName, &v.DeviceName, &v.Message, &v.Value, &v.Unit, &v.MeasuredAt,
	)
	return v, err
}
