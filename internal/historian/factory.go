package historian

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
)

// Types lists the accepted Config.Type values after normalization.
var Types = []string{"mysql", "postgres", "mssql"}

// NormalizeType maps aliases to one of Types.
func NormalizeType(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mysql":
		return "mysql", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "mssql", "sqlserver":
		return "mssql", nil
	case "":
		return "", errors.New("connection type is required")
	default:
		return "", fmt.Errorf("unsupported database type %q", raw)
	}
}

func New(cfg Config) (Connector, error) {
	typ, err := NormalizeType(cfg.Type)
	if err != nil {
		return nil, err
	}
	var d dialect
	var driver, dsn string
	switch typ {
	case "mysql":
		d, driver, dsn = mysqlDialect, "mysql", mysqlDSN(cfg)
	case "postgres":
		d, driver, dsn = postgresDialect, "postgres", postgresDSN(cfg)
	case "mssql":
		d, driver, dsn = mssqlDialect, "sqlserver", mssqlDSN(cfg)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", typ, err)
	}
	return &sqlConnector{dialect: d, db: db}, nil
}

func mysqlDSN(cfg Config) string {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "disable" {
		dsn += "&tls=false"
	} else if sslMode != "" {
		dsn += "&tls=true"
	}
	return dsn
}

func postgresDSN(cfg Config) string {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func mssqlDSN(cfg Config) string {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	encrypt := "true"
	if strings.EqualFold(strings.TrimSpace(cfg.SSLMode), "disable") {
		encrypt = "disable"
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: url.Values{"database": {cfg.Database}, "encrypt": {encrypt}}.Encode(),
	}
	return u.String()
}
