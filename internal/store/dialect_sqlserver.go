package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

type sqlserverDialect struct{}

func init() {
	registerDialect(sqlserverDialect{})
}

func (sqlserverDialect) Name() string       { return "sqlserver" }
func (sqlserverDialect) DriverName() string { return "sqlserver" }

// SQL Server caps a request at 2100 parameters
func (sqlserverDialect) MaxParams() int { return 2000 }

func (sqlserverDialect) DSN(database string, readOnly bool) string {
	if !readOnly || !strings.Contains(database, "://") {
		return database
	}
	sep := "?"
	if strings.Contains(database, "?") {
		sep = "&"
	}
	return database + sep + "ApplicationIntent=ReadOnly"
}

func (sqlserverDialect) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (sqlserverDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (sqlserverDialect) FindRelation(ctx context.Context, q querier, name string) (string, bool, bool, error) {
	var rel, typ string
	err := q.QueryRowContext(ctx, `
		SELECT TOP 1 TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND UPPER(TABLE_NAME) = UPPER(@p1)
		ORDER BY TABLE_TYPE
	`, name).Scan(&rel, &typ)
	if err == sql.ErrNoRows {
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, err
	}
	return rel, typ == "VIEW", true, nil
}

func (sqlserverDialect) Columns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1
		ORDER BY ORDINAL_POSITION
	`, table)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (sqlserverDialect) HasLeadingIndex(ctx context.Context, q querier, table, column string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id AND ic.key_ordinal = 1
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE i.object_id = OBJECT_ID(QUOTENAME(SCHEMA_NAME()) + '.' + QUOTENAME(@p1)) AND c.name = @p2
	`, table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Comparisons are forced to a binary collation; the default ones ignore case
func (d sqlserverDialect) HasMixedCase(ctx context.Context, q querier, table, column string) (bool, error) {
	col := d.QuoteIdent(column) + ` COLLATE Latin1_General_BIN`
	return rowExists(ctx, q, `SELECT TOP 1 1 FROM `+d.QuoteIdent(table)+
		` WHERE `+col+` <> UPPER(`+col+`) AND `+col+` <> LOWER(`+col+`)`)
}
