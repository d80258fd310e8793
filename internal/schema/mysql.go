package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	mysqlColumnsQuery = `SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA, COLUMN_COMMENT
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE()
ORDER BY TABLE_NAME, ORDINAL_POSITION`

	mysqlKeysQuery = `SELECT TABLE_NAME, COLUMN_NAME, CONSTRAINT_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
FROM information_schema.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE()
ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`

	mysqlTablesQuery = `SELECT TABLE_NAME, TABLE_COMMENT, TABLE_ROWS
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'`

	mysqlIndexesQuery = `SELECT TABLE_NAME, INDEX_NAME, COLUMN_NAME, NON_UNIQUE
FROM information_schema.STATISTICS
WHERE TABLE_SCHEMA = DATABASE()
ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX`
)

func introspectMySQL(ctx context.Context, q queryer) (*Descriptor, error) {
	b := newBuilder("mysql")

	err := scanAll(ctx, q, mysqlColumnsQuery, func(rows *sql.Rows) error {
		var table, nullable, extra string
		var def sql.NullString
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.DeclaredType, &col.BaseType, &nullable, &def, &extra, &col.Comment); err != nil {
			return err
		}
		col.Nullable = nullable == "YES"
		col.Default = nullableDefault(def)
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		col.BaseType = strings.ToLower(col.BaseType)
		b.column(table, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	err = scanAll(ctx, q, mysqlTablesQuery, func(rows *sql.Rows) error {
		var table, comment string
		var estimate sql.NullInt64
		if err := rows.Scan(&table, &comment, &estimate); err != nil {
			return err
		}
		b.metadata(table, Metadata{Comment: comment, EstimatedRows: estimate.Int64})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read table metadata: %w", err)
	}

	err = scanAll(ctx, q, mysqlKeysQuery, func(rows *sql.Rows) error {
		var table, column, constraint string
		var refTable, refColumn sql.NullString
		if err := rows.Scan(&table, &column, &constraint, &refTable, &refColumn); err != nil {
			return err
		}
		if constraint == "PRIMARY" {
			b.primaryKey(table, column)
		}
		if refTable.Valid && refTable.String != "" {
			b.foreignKey(table, ForeignKey{Column: column, RefTable: refTable.String, RefColumn: refColumn.String})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read key usage: %w", err)
	}

	err = scanAll(ctx, q, mysqlIndexesQuery, func(rows *sql.Rows) error {
		var table, index, column string
		var nonUnique int
		if err := rows.Scan(&table, &index, &column, &nonUnique); err != nil {
			return err
		}
		b.indexColumn(table, index, column, nonUnique == 0)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read index statistics: %w", err)
	}

	return b.build(), nil
}
