package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	postgresColumnsQuery = `SELECT c.table_name, c.column_name, c.data_type, c.udt_name, c.is_nullable, c.column_default, c.is_identity,
       COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position::int), '')
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = current_schema() AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

	// Key columns are paired with their referenced columns by position, so a
	// composite foreign key yields one row per column pair.
	postgresKeysQuery = `SELECT cl.relname, a.attname, con.contype, COALESCE(rcl.relname, ''), COALESCE(ra.attname, '')
FROM pg_constraint con
JOIN pg_class cl ON cl.oid = con.conrelid
JOIN pg_namespace n ON n.oid = cl.relnamespace
CROSS JOIN LATERAL unnest(con.conkey, COALESCE(con.confkey, con.conkey)) WITH ORDINALITY AS k(attnum, refattnum, ord)
JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
LEFT JOIN pg_class rcl ON con.contype = 'f' AND rcl.oid = con.confrelid
LEFT JOIN pg_attribute ra ON con.contype = 'f' AND ra.attrelid = con.confrelid AND ra.attnum = k.refattnum
WHERE n.nspname = current_schema() AND con.contype IN ('p', 'f')
ORDER BY cl.relname, con.conname, k.ord`

	postgresTablesQuery = `SELECT c.relname, COALESCE(obj_description(c.oid, 'pg_class'), ''), GREATEST(c.reltuples, 0)::bigint
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = current_schema() AND c.relkind IN ('r', 'p')`

	postgresIndexesQuery = `SELECT t.relname, i.relname, a.attname, ix.indisunique
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
CROSS JOIN LATERAL generate_subscripts(ix.indkey, 1) AS k(pos)
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ix.indkey[k.pos]
WHERE n.nspname = current_schema() AND t.relkind IN ('r', 'p')
ORDER BY t.relname, i.relname, k.pos`
)

func introspectPostgres(ctx context.Context, q queryer) (*Descriptor, error) {
	b := newBuilder("postgres")

	err := scanAll(ctx, q, postgresColumnsQuery, func(rows *sql.Rows) error {
		var table, dataType, udt, nullable, identity string
		var def sql.NullString
		var col Column
		if err := rows.Scan(&table, &col.Name, &dataType, &udt, &nullable, &def, &identity, &col.Comment); err != nil {
			return err
		}
		col.DeclaredType = dataType
		if dataType == "USER-DEFINED" || dataType == "ARRAY" {
			col.DeclaredType = udt
		}
		col.Nullable = nullable == "YES"
		col.Default = nullableDefault(def)
		col.AutoIncrement = identity == "YES" || strings.Contains(strings.ToLower(def.String), "nextval")
		b.column(table, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	err = scanAll(ctx, q, postgresTablesQuery, func(rows *sql.Rows) error {
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

	err = scanAll(ctx, q, postgresKeysQuery, func(rows *sql.Rows) error {
		var table, column, kind, refTable, refColumn string
		if err := rows.Scan(&table, &column, &kind, &refTable, &refColumn); err != nil {
			return err
		}
		switch kind {
		case "p":
			b.primaryKey(table, column)
		case "f":
			if refTable != "" {
				b.foreignKey(table, ForeignKey{Column: column, RefTable: refTable, RefColumn: refColumn})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}

	err = scanAll(ctx, q, postgresIndexesQuery, func(rows *sql.Rows) error {
		var table, index, column string
		var unique bool
		if err := rows.Scan(&table, &index, &column, &unique); err != nil {
			return err
		}
		b.indexColumn(table, index, column, unique)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read indexes: %w", err)
	}

	return b.build(), nil
}
