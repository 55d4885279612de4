package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// querier is the subset of *sql.DB used for catalog introspection
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect isolates the catalog queries and SQL syntax that differ between
// reference store backends
type Dialect interface {
	// Name is the driver name used in configuration
	Name() string
	// DriverName is the database/sql driver to open
	DriverName() string
	// DSN turns the configured database string into a connection string
	DSN(database string, readOnly bool) string
	// Placeholder returns the bind parameter for 1-based position n
	Placeholder(n int) string
	QuoteIdent(name string) string
	// MaxParams bounds the bind parameters of a single statement
	MaxParams() int

	// FindRelation looks up a table or view by case-insensitive name and
	// returns its canonical name
	FindRelation(ctx context.Context, q querier, name string) (rel string, isView bool, found bool, err error)
	// Columns lists the column names of a table or view
	Columns(ctx context.Context, q querier, table string) ([]string, error)
	// HasLeadingIndex reports whether any index on table starts with column
	HasLeadingIndex(ctx context.Context, q querier, table, column string) (bool, error)
	// HasMixedCase reports whether any value of column mixes upper- and lower-case letters
	HasMixedCase(ctx context.Context, q querier, table, column string) (bool, error)
}

var dialects = map[string]Dialect{}

// registerDialect makes a dialect available under its Name
func registerDialect(d Dialect) {
	dialects[d.Name()] = d
}

// DialectFor returns the dialect registered for driver
func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return d, nil
}

// placeholders renders n bind parameters starting at position 1
func placeholders(d Dialect, n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i))
	}
	return b.String()
}

// indexName is the name given to indexes this tool creates
func indexName(table, column string) string {
	return fmt.Sprintf("%s_%s_idx", table, column)
}

// scanStrings collects a single string column from rows
func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// rowExists reports whether query returns at least one row
func rowExists(ctx context.Context, q querier, query string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
