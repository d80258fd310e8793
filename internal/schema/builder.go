package schema

import (
	"sort"
	"strings"
)

// builder collects raw catalog facts in any order and produces a normalized
// Descriptor. Keys and indexes that name unknown tables are ignored.
type builder struct {
	dialect string
	tables  map[string]*Table
	pks     map[string]map[string]struct{}
}

func newBuilder(dialect string) *builder {
	return &builder{
		dialect: dialect,
		tables:  map[string]*Table{},
		pks:     map[string]map[string]struct{}{},
	}
}

func (b *builder) table(name string) *Table {
	t, ok := b.tables[name]
	if !ok {
		t = &Table{Name: name, Indexes: map[string]Index{}}
		b.tables[name] = t
	}
	return t
}

func (b *builder) column(table string, col Column) {
	if col.BaseType == "" {
		col.BaseType = baseType(col.DeclaredType)
	}
	t := b.table(table)
	t.Columns = append(t.Columns, col)
}

func (b *builder) metadata(table string, meta Metadata) {
	b.table(table).Metadata = meta
}

func (b *builder) primaryKey(table, column string) {
	if _, ok := b.pks[table]; !ok {
		b.pks[table] = map[string]struct{}{}
	}
	b.pks[table][column] = struct{}{}
}

func (b *builder) foreignKey(table string, fk ForeignKey) {
	t, ok := b.tables[table]
	if !ok {
		return
	}
	t.ForeignKeys = append(t.ForeignKeys, fk)
}

func (b *builder) indexColumn(table, index, column string, unique bool) {
	t, ok := b.tables[table]
	if !ok {
		return
	}
	idx := t.Indexes[index]
	idx.Columns = append(idx.Columns, column)
	idx.Unique = unique
	t.Indexes[index] = idx
}

func (b *builder) build() *Descriptor {
	out := &Descriptor{Dialect: b.dialect, Tables: make(map[string]Table, len(b.tables))}
	for name, t := range b.tables {
		if len(t.Columns) == 0 {
			continue
		}
		pkSet := b.pks[name]
		t.PrimaryKeys = make([]string, 0, len(pkSet))
		for col := range pkSet {
			t.PrimaryKeys = append(t.PrimaryKeys, col)
		}
		sort.Strings(t.PrimaryKeys)

		indexed := map[string]bool{}
		unique := map[string]bool{}
		for _, idx := range t.Indexes {
			for _, col := range idx.Columns {
				indexed[col] = true
			}
			if idx.Unique && len(idx.Columns) == 1 && !sameColumns(idx.Columns, t.PrimaryKeys) {
				unique[idx.Columns[0]] = true
			}
		}
		for i := range t.Columns {
			col := &t.Columns[i]
			_, col.IsPrimary = pkSet[col.Name]
			col.IsUnique = col.IsUnique || unique[col.Name]
			col.IsIndexed = col.IsIndexed || indexed[col.Name] || col.IsPrimary
		}
		out.Tables[name] = *t
	}

	// Foreign keys may only point inside the snapshot.
	for name, t := range out.Tables {
		kept := t.ForeignKeys[:0]
		for _, fk := range t.ForeignKeys {
			if _, ok := out.Tables[fk.RefTable]; ok {
				kept = append(kept, fk)
			}
		}
		sort.SliceStable(kept, func(i, j int) bool {
			if kept[i].Column != kept[j].Column {
				return kept[i].Column < kept[j].Column
			}
			return kept[i].RefTable < kept[j].RefTable
		})
		t.ForeignKeys = kept
		out.Tables[name] = t
	}
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// baseType reduces a declared type such as "varchar(255)" or "int unsigned"
// to its lowercase family name.
func baseType(declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexAny(declared, "( "); i >= 0 {
		declared = declared[:i]
	}
	return declared
}
