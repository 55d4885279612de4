package store

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

// Read-side tuning applied to every pooled connection
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"temp_store(MEMORY)",
	"cache_size(-262144)",
	"mmap_size(1073741824)",
}

type sqliteDialect struct{}

func init() {
	registerDialect(sqliteDialect{})
}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }
func (sqliteDialect) MaxParams() int     { return 8000 }

func (sqliteDialect) DSN(database string, readOnly bool) string {
	params := make([]string, 0, len(sqlitePragmas)+1)
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	if readOnly {
		params = append(params, "_pragma=query_only(1)")
	}
	return database + "?" + strings.Join(params, "&")
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) FindRelation(ctx context.Context, q querier, name string) (string, bool, bool, error) {
	var rel, typ string
	err := q.QueryRowContext(ctx, `
		SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name = ? COLLATE NOCASE
		ORDER BY type
		LIMIT 1
	`, name).Scan(&rel, &typ)
	if err == sql.ErrNoRows {
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, err
	}
	return rel, typ == "view", true, nil
}

func (sqliteDialect) Columns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (sqliteDialect) HasLeadingIndex(ctx context.Context, q querier, table, column string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM pragma_index_list(?) AS il, pragma_index_info(il.name) AS ii
		WHERE ii.seqno = 0 AND ii.name = ? COLLATE NOCASE
	`, table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d sqliteDialect) HasMixedCase(ctx context.Context, q querier, table, column string) (bool, error) {
	col := d.QuoteIdent(column)
	return rowExists(ctx, q, `SELECT 1 FROM `+d.QuoteIdent(table)+
		` WHERE `+col+` <> UPPER(`+col+`) AND `+col+` <> LOWER(`+col+`) LIMIT 1`)
}
