package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresDialect struct{}

func init() {
	registerDialect(postgresDialect{})
}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" }
func (postgresDialect) MaxParams() int     { return 8000 }

// DSN passes the connection string through; read-only sessions are requested
// with default_transaction_read_only when the DSN is a URL
func (postgresDialect) DSN(database string, readOnly bool) string {
	if !readOnly || !strings.Contains(database, "://") {
		return database
	}
	sep := "?"
	if strings.Contains(database, "?") {
		sep = "&"
	}
	return database + sep + "default_transaction_read_only=on"
}

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresDialect) FindRelation(ctx context.Context, q querier, name string) (string, bool, bool, error) {
	var rel, typ string
	err := q.QueryRowContext(ctx, `
		SELECT table_name, table_type FROM information_schema.tables
		WHERE table_schema = current_schema() AND lower(table_name) = lower($1)
		ORDER BY table_type
		LIMIT 1
	`, name).Scan(&rel, &typ)
	if err == sql.ErrNoRows {
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, err
	}
	return rel, typ == "VIEW", true, nil
}

func (postgresDialect) Columns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (postgresDialect) HasLeadingIndex(ctx context.Context, q querier, table, column string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM pg_index i
		JOIN pg_class t ON t.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = i.indkey[0]
		WHERE n.nspname = current_schema() AND t.relname = $1 AND a.attname = $2
	`, table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d postgresDialect) HasMixedCase(ctx context.Context, q querier, table, column string) (bool, error) {
	col := d.QuoteIdent(column)
	return rowExists(ctx, q, `SELECT 1 FROM `+d.QuoteIdent(table)+
		` WHERE `+col+` <> upper(`+col+`) AND `+col+` <> lower(`+col+`) LIMIT 1`)
}
