package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ruleColumns = `id, product_id, severity, message, range_min, range_max, unit, ` + lifecycleColumns

func (r *Repository) CreateRule(ctx context.Context, rec Rule) (Rule, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO alert_rules (id, product_id, severity, message, range_min, range_max, unit, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'ACTIVE',now(),now())
		RETURNING `+ruleColumns,
		uuid.NewString(), rec.ProductID, string(rec.Severity), rec.Message, rec.RangeMin, rec.RangeMax, rec.Unit,
	)
	out, err := scanRule(row)
	if err != nil {
		return Rule{}, fmt.Errorf("insert rule: %w", classify(err))
	}
	return out, nil
}

// UpdateRule rewrites the band, message and unit of an active rule in place.
// Existing events keep pointing at it.
func (r *Repository) UpdateRule(ctx context.Context, id string, rec Rule) (Rule, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		UPDATE alert_rules SET severity=$2, message=$3, range_min=$4, range_max=$5, unit=$6, updated_at=now()
		WHERE id=$1 AND status='ACTIVE'
		RETURNING `+ruleColumns,
		id, string(rec.Severity), rec.Message, rec.RangeMin, rec.RangeMax, rec.Unit,
	)
	out, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	if err != nil {
		return Rule{}, fmt.Errorf("update rule: %w", classify(err))
	}
	return out, nil
}

func (r *Repository) GetRule(ctx context.Context, id string) (Rule, error) {
	rule, err := scanRule(r.Store.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id=$1 AND status='ACTIVE'`, id))
	if err != nil {
		return Rule{}, notFound(err)
	}
	return rule, nil
}

// ListRules returns the active rules configured for a product.
func (r *Repository) ListRules(ctx context.Context, productID string) ([]Rule, error) {
	return queryRules(ctx, r.Store.Pool, `SELECT `+ruleColumns+` FROM alert_rules WHERE product_id=$1 AND status='ACTIVE' ORDER BY range_min`, productID)
}

func (r *Repository) ListRulesIncludingDeleted(ctx context.Context, productID string) ([]Rule, error) {
	return rulesForProduct(ctx, r.Store.Pool, productID)
}

// rulesForProduct is the evaluator's rule read model. It deliberately does
// not filter on the rule lifecycle; see alerts.Options.SkipDeletedRules.
func rulesForProduct(ctx context.Context, q querier, productID string) ([]Rule, error) {
	rules, err := queryRules(ctx, q, `SELECT `+ruleColumns+` FROM alert_rules WHERE product_id=$1 ORDER BY severity`, productID)
	if err != nil {
		return nil, fmt.Errorf("rules for product %s: %w", productID, err)
	}
	return rules, nil
}

func queryRules(ctx context.Context, q querier, query string, args ...any) ([]Rule, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rule)
	}
	return results, rows.Err()
}

func scanRule(row scanner) (Rule, error) {
	var rule Rule
	err := row.Scan(&rule.ID, &rule.ProductID, &rule.Severity, &rule.Message, &rule.RangeMin, &rule.RangeMax, &rule.Unit, &rule.Status, &rule.CreatedAt, &rule.UpdatedAt, &rule.DeletedAt)
	return rule, err
}
