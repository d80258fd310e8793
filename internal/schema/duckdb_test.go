package schema

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/marcboeker/go-duckdb/v2"
)

func TestDuckDBIntrospection(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE regions (code VARCHAR PRIMARY KEY, label VARCHAR NOT NULL UNIQUE)`,
		`CREATE TABLE sales (id INTEGER PRIMARY KEY, region_code VARCHAR REFERENCES regions(code), amount DOUBLE)`,
		`COMMENT ON TABLE sales IS 'daily sales'`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	introspector, err := NewIntrospector("duckdb", db)
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	d, err := introspector.Introspect(ctx)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}

	sales, ok := d.Tables["sales"]
	if !ok {
		t.Fatalf("sales table missing: %v", d.TableNames())
	}
	if len(sales.Columns) != 3 || sales.Columns[2].Name != "amount" {
		t.Fatalf("sales columns = %+v", sales.Columns)
	}
	if len(sales.PrimaryKeys) != 1 || sales.PrimaryKeys[0] != "id" {
		t.Fatalf("sales primary keys = %v", sales.PrimaryKeys)
	}
	if len(sales.ForeignKeys) != 1 || sales.ForeignKeys[0].RefTable != "regions" || sales.ForeignKeys[0].RefColumn != "code" {
		t.Fatalf("sales foreign keys = %+v", sales.ForeignKeys)
	}
	if sales.Metadata.Comment != "daily sales" {
		t.Fatalf("sales metadata = %+v", sales.Metadata)
	}
	if !d.Tables["regions"].Columns[1].IsUnique {
		t.Fatal("regions.label should be unique")
	}
}
