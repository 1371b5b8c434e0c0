package historian

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteQualified(t *testing.T) {
	quoted, parts, err := quoteQualified("sales.orders", 2, func(s string) string { return `"` + s + `"` })
	require.NoError(t, err)
	assert.Equal(t, `"sales"."orders"`, quoted)
	assert.Equal(t, []string{"sales", "orders"}, parts)

	_, _, err = quoteQualified("a.b.c", 2, func(s string) string { return s })
	assert.Error(t, err)
	_, _, err = quoteQualified("orders; DROP TABLE x", 1, func(s string) string { return s })
	assert.Error(t, err)
	_, _, err = quoteQualified("sales..orders", 2, func(s string) string { return s })
	assert.Error(t, err)
}

func TestBuildReadQueryPostgres(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := buildReadQuery(postgresDialect, Query{
		Table: "public.readings", ValueColumn: "kwh", UnitColumn: "unit", TimestampColumn: "ts", Since: since, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "kwh", "unit", "ts" FROM "public"."readings" WHERE "ts" > $1 ORDER BY "ts" LIMIT $2`, query)
	assert.Equal(t, []any{since, 10}, args)
}

func TestBuildReadQueryMySQLWithoutUnit(t *testing.T) {
	query, args, err := buildReadQuery(mysqlDialect, Query{Table: "readings", ValueColumn: "kwh", TimestampColumn: "ts"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `kwh`, NULL, `ts` FROM `readings` WHERE `ts` > ? ORDER BY `ts` LIMIT ?", query)
	assert.Equal(t, defaultReadLimit, args[1])

	_, _, err = buildReadQuery(mysqlDialect, Query{Table: "db.readings", ValueColumn: "kwh", TimestampColumn: "ts"})
	assert.Error(t, err)
}

func TestBuildReadQueryMSSQL(t *testing.T) {
	query, args, err := buildReadQuery(mssqlDialect, Query{Table: "dbo.readings", ValueColumn: "kwh", TimestampColumn: "ts", Limit: maxReadLimit + 1})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(query, "SELECT TOP (@p1) [kwh], NULL, [ts] FROM [dbo].[readings] WHERE [ts] > @p2"))
	assert.Equal(t, maxReadLimit, args[0])
}

func TestBuildReadQueryRejectsBadColumns(t *testing.T) {
	_, _, err := buildReadQuery(postgresDialect, Query{Table: "readings", ValueColumn: "kwh)", TimestampColumn: "ts"})
	assert.Error(t, err)
	_, _, err = buildReadQuery(postgresDialect, Query{Table: "readings", ValueColumn: "kwh", TimestampColumn: ""})
	assert.Error(t, err)
}

func TestToReading(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	r, ok := toReading([]byte("12.5"), sql.NullString{String: " kWh ", Valid: true}, ts, "W")
	require.True(t, ok)
	assert.Equal(t, Reading{Value: 12.5, Unit: "kWh", MeasuredAt: ts}, r)

	r, ok = toReading(int64(3), sql.NullString{}, "2026-02-03 04:05:06", "W")
	require.True(t, ok)
	assert.Equal(t, "W", r.Unit)
	assert.Equal(t, ts, r.MeasuredAt)

	_, ok = toReading("n/a", sql.NullString{}, ts, "")
	assert.False(t, ok)
	_, ok = toReading(1.0, sql.NullString{}, "yesterday", "")
	assert.False(t, ok)
}

func TestNormalizeType(t *testing.T) {
	for raw, want := range map[string]string{"MySQL": "mysql", "postgresql": "postgres", "sqlserver": "mssql"} {
		got, err := NormalizeType(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := NormalizeType("oracle")
	assert.Error(t, err)
	_, err = NormalizeType(" ")
	assert.Error(t, err)
}

func TestDSNs(t *testing.T) {
	cfg := Config{Host: "db", User: "u", Password: "p@ss word", Database: "hist"}
	assert.Equal(t, "u:p@ss word@tcp(db:3306)/hist?parseTime=true&loc=UTC", mysqlDSN(cfg))
	assert.Equal(t, "postgres://u:p%40ss%20word@db:5432/hist?sslmode=disable", postgresDSN(cfg))
	assert.Equal(t, "sqlserver://u:p%40ss%20word@db:1433?database=hist&encrypt=true", mssqlDSN(cfg))
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(Config{Type: "sqlite"})
	assert.Error(t, err)
}

func TestNewOpensLazily(t *testing.T) {
	c, err := New(Config{Type: "postgres", Host: "127.0.0.1", Port: 1, Database: "x"})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
