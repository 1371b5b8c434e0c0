// Package historian reads measurement history out of external SQL databases
// so it can be backfilled into the alert store.
package historian

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	defaultReadLimit = 1000
	maxReadLimit     = 50000
)

type Connector interface {
	TestConnection(ctx context.Context) error
	ReadMeasurements(ctx context.Context, q Query) ([]Reading, error)
	Close() error
}

type Config struct {
	Type     string // mysql | postgres | mssql
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Query selects readings newer than Since, oldest first. UnitColumn is
// optional; rows without a unit get DefaultUnit.
type Query struct {
	Table           string
	ValueColumn     string
	UnitColumn      string
	TimestampColumn string
	DefaultUnit     string
	Since           time.Time
	Limit           int
}

type Reading struct {
	Value      float64
	Unit       string
	MeasuredAt time.Time
}

type dialect struct {
	name        string
	maxSegments int
	quote       func(string) string
	placeholder func(n int) string
	// top renders the row cap for dialects without LIMIT.
	top bool
}

var (
	mysqlDialect = dialect{
		name:        "mysql",
		maxSegments: 1,
		quote:       func(s string) string { return "`" + s + "`" },
		placeholder: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		name:        "postgres",
		maxSegments: 2,
		quote:       func(s string) string { return `"` + s + `"` },
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	mssqlDialect = dialect{
		name:        "mssql",
		maxSegments: 2,
		quote:       func(s string) string { return "[" + s + "]" },
		placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
		top:         true,
	}
)

type sqlConnector struct {
	dialect dialect
	db      *sql.DB
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", c.dialect.name, err)
	}
	return nil
}

func (c *sqlConnector) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *sqlConnector) ReadMeasurements(ctx context.Context, q Query) ([]Reading, error) {
	query, args, err := buildReadQuery(c.dialect, q)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s readings: %w", c.dialect.name, err)
	}
	defer rows.Close()
	readings := []Reading{}
	for rows.Next() {
		var rawValue, rawTime any
		var unit sql.NullString
		if err := rows.Scan(&rawValue, &unit, &rawTime); err != nil {
			return nil, fmt.Errorf("scan %s reading: %w", c.dialect.name, err)
		}
		r, ok := toReading(rawValue, unit, rawTime, q.DefaultUnit)
		if !ok {
			continue
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s readings: %w", c.dialect.name, err)
	}
	return readings, nil
}

func buildReadQuery(d dialect, q Query) (string, []any, error) {
	table, _, err := quoteQualified(q.Table, d.maxSegments, d.quote)
	if err != nil {
		return "", nil, fmt.Errorf("invalid %s table: %w", d.name, err)
	}
	valueCol, err := quoteColumn(q.ValueColumn, d.quote)
	if err != nil {
		return "", nil, fmt.Errorf("value column: %w", err)
	}
	tsCol, err := quoteColumn(q.TimestampColumn, d.quote)
	if err != nil {
		return "", nil, fmt.Errorf("timestamp column: %w", err)
	}
	unitExpr := "NULL"
	if q.UnitColumn != "" {
		if unitExpr, err = quoteColumn(q.UnitColumn, d.quote); err != nil {
			return "", nil, fmt.Errorf("unit column: %w", err)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	if limit > maxReadLimit {
		limit = maxReadLimit
	}

	if d.top {
		query := fmt.Sprintf("SELECT TOP (%s) %s, %s, %s FROM %s WHERE %s > %s ORDER BY %s",
			d.placeholder(1), valueCol, unitExpr, tsCol, table, tsCol, d.placeholder(2), tsCol)
		return query, []any{limit, q.Since.UTC()}, nil
	}
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s > %s ORDER BY %s LIMIT %s",
		valueCol, unitExpr, tsCol, table, tsCol, d.placeholder(1), tsCol, d.placeholder(2))
	return query, []any{q.Since.UTC(), limit}, nil
}

func toReading(rawValue any, unit sql.NullString, rawTime any, defaultUnit string) (Reading, bool) {
	value, ok := toFloat(rawValue)
	if !ok {
		return Reading{}, false
	}
	measuredAt, ok := toTime(rawTime)
	if !ok {
		return Reading{}, false
	}
	r := Reading{Value: value, Unit: defaultUnit, MeasuredAt: measuredAt}
	if unit.Valid && strings.TrimSpace(unit.String) != "" {
		r.Unit = strings.TrimSpace(unit.String)
	}
	return r, true
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

func splitIdentifier(ident string) ([]string, error) {
	trimmed := strings.TrimSpace(ident)
	if trimmed == "" {
		return nil, errors.New("identifier is empty")
	}
	parts := strings.Split(trimmed, ".")
	for _, part := range parts {
		if part == "" {
			return nil, errors.New("identifier contains empty segment")
		}
		if !identPattern.MatchString(part) {
			return nil, fmt.Errorf("identifier segment %q is invalid", part)
		}
	}
	return parts, nil
}

func quoteQualified(ident string, maxSegments int, quote func(string) string) (string, []string, error) {
	parts, err := splitIdentifier(ident)
	if err != nil {
		return "", nil, err
	}
	if maxSegments > 0 && len(parts) > maxSegments {
		return "", nil, fmt.Errorf("identifier %q has too many segments", ident)
	}
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = quote(part)
	}
	return strings.Join(quoted, "."), parts, nil
}

func quoteColumn(name string, quote func(string) string) (string, error) {
	quoted, _, err := quoteQualified(name, 1, quote)
	if err != nil {
		return "", fmt.Errorf("invalid column name %q: %w", name, err)
	}
	return quoted, nil
}
