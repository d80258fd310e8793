package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	sqliteTablesQuery  = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	sqliteColumnsQuery = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`
	sqliteFKQuery      = `SELECT seq, "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`
	sqliteIndexQuery   = `SELECT name, "unique" FROM pragma_index_list(?)`
	sqliteIndexInfo    = `SELECT name FROM pragma_index_info(?) ORDER BY seqno`
)

type sqliteFK struct {
	table string
	seq   int
	fk    ForeignKey
}

func introspectSQLite(ctx context.Context, q queryer) (*Descriptor, error) {
	b := newBuilder("sqlite")

	var tables []string
	err := scanAll(ctx, q, sqliteTablesQuery, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		tables = append(tables, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}

	// Primary key columns per table, in key order rather than column order.
	keyColumns := map[string][]string{}
	var fks []sqliteFK
	for _, table := range tables {
		var cols []Column
		var pkCols []string
		var pkSeq []int
		err := scanAll(ctx, q, sqliteColumnsQuery, func(rows *sql.Rows) error {
			var col Column
			var notNull, pk int
			var def sql.NullString
			if err := rows.Scan(&col.Name, &col.DeclaredType, &notNull, &def, &pk); err != nil {
				return err
			}
			col.Nullable = notNull == 0 && pk == 0
			col.Default = nullableDefault(def)
			if pk > 0 {
				pkCols = append(pkCols, col.Name)
				pkSeq = append(pkSeq, pk)
			}
			cols = append(cols, col)
			return nil
		}, table)
		if err != nil {
			return nil, fmt.Errorf("read columns of %s: %w", table, err)
		}

		// A lone INTEGER primary key aliases the rowid and is assigned automatically.
		rowidAlias := ""
		if len(pkCols) == 1 {
			for _, col := range cols {
				if col.Name == pkCols[0] && strings.EqualFold(strings.TrimSpace(col.DeclaredType), "integer") {
					rowidAlias = col.Name
				}
			}
		}
		for _, col := range cols {
			col.AutoIncrement = col.Name == rowidAlias
			b.column(table, col)
		}
		for _, pk := range pkCols {
			b.primaryKey(table, pk)
		}
		if len(pkCols) > 0 {
			ordered := make([]string, len(pkCols))
			for i, seq := range pkSeq {
				if seq-1 < len(ordered) {
					ordered[seq-1] = pkCols[i]
				}
			}
			keyColumns[table] = ordered
		}

		err = scanAll(ctx, q, sqliteFKQuery, func(rows *sql.Rows) error {
			var seq int
			var from, refTable string
			var to sql.NullString
			if err := rows.Scan(&seq, &from, &refTable, &to); err != nil {
				return err
			}
			fks = append(fks, sqliteFK{table: table, seq: seq, fk: ForeignKey{Column: from, RefTable: refTable, RefColumn: to.String}})
			return nil
		}, table)
		if err != nil {
			return nil, fmt.Errorf("read foreign keys of %s: %w", table, err)
		}

		type indexDef struct {
			name   string
			unique bool
		}
		var indexes []indexDef
		err = scanAll(ctx, q, sqliteIndexQuery, func(rows *sql.Rows) error {
			var idx indexDef
			var unique int
			if err := rows.Scan(&idx.name, &unique); err != nil {
				return err
			}
			idx.unique = unique == 1
			indexes = append(indexes, idx)
			return nil
		}, table)
		if err != nil {
			return nil, fmt.Errorf("read indexes of %s: %w", table, err)
		}
		for _, idx := range indexes {
			err := scanAll(ctx, q, sqliteIndexInfo, func(rows *sql.Rows) error {
				var column sql.NullString
				if err := rows.Scan(&column); err != nil {
					return err
				}
				if column.Valid {
					b.indexColumn(table, idx.name, column.String, idx.unique)
				}
				return nil
			}, idx.name)
			if err != nil {
				return nil, fmt.Errorf("read index %s: %w", idx.name, err)
			}
		}
	}

	// A foreign key without target columns references the parent's primary
	// key, matched position by position.
	for _, item := range fks {
		if item.fk.RefColumn == "" {
			if keys := keyColumns[item.fk.RefTable]; item.seq < len(keys) {
				item.fk.RefColumn = keys[item.seq]
			}
		}
		b.foreignKey(item.table, item.fk)
	}
	return b.build(), nil
}
