package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	duckdbColumnsQuery = `SELECT table_name, column_name, data_type, is_nullable, column_default, COALESCE(comment, '')
FROM duckdb_columns()
WHERE schema_name = current_schema() AND NOT internal
ORDER BY table_name, column_index`

	duckdbTablesQuery = `SELECT table_name, COALESCE(comment, ''), COALESCE(estimated_size, 0)
FROM duckdb_tables()
WHERE schema_name = current_schema() AND NOT internal`

	duckdbConstraintsQuery = `SELECT table_name, constraint_type, constraint_column_names, COALESCE(referenced_table, ''), referenced_column_names
FROM duckdb_constraints()
WHERE schema_name = current_schema() AND constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY', 'UNIQUE')
ORDER BY table_name, constraint_index`
)

func introspectDuckDB(ctx context.Context, q queryer) (*Descriptor, error) {
	b := newBuilder("duckdb")

	err := scanAll(ctx, q, duckdbColumnsQuery, func(rows *sql.Rows) error {
		var table string
		var def sql.NullString
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.DeclaredType, &col.Nullable, &def, &col.Comment); err != nil {
			return err
		}
		col.Default = nullableDefault(def)
		col.AutoIncrement = strings.HasPrefix(strings.ToLower(def.String), "nextval(")
		b.column(table, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	err = scanAll(ctx, q, duckdbTablesQuery, func(rows *sql.Rows) error {
		var table, comment string
		var estimate int64
		if err := rows.Scan(&table, &comment, &estimate); err != nil {
			return err
		}
		b.metadata(table, Metadata{Comment: comment, EstimatedRows: estimate})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read table metadata: %w", err)
	}

	err = scanAll(ctx, q, duckdbConstraintsQuery, func(rows *sql.Rows) error {
		var table, kind, refTable string
		var columns, refColumns any
		if err := rows.Scan(&table, &kind, &columns, &refTable, &refColumns); err != nil {
			return err
		}
		cols := stringList(columns)
		switch kind {
		case "PRIMARY KEY":
			for _, col := range cols {
				b.primaryKey(table, col)
			}
		case "UNIQUE":
			name := "unique_" + strings.Join(cols, "_")
			for _, col := range cols {
				b.indexColumn(table, name, col, true)
			}
		case "FOREIGN KEY":
			refs := stringList(refColumns)
			for i, col := range cols {
				if refTable == "" || i >= len(refs) {
					continue
				}
				b.foreignKey(table, ForeignKey{Column: col, RefTable: refTable, RefColumn: refs[i]})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}

	return b.build(), nil
}

func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
