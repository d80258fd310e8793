package schema

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func TestSQLiteIntrospection(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, email TEXT NOT NULL UNIQUE, region TEXT DEFAULT 'EU')`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL REFERENCES customers, amount REAL)`,
		`CREATE INDEX idx_orders_customer ON orders(customer_id)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	introspector, err := NewIntrospector("sqlite", db)
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	d, err := introspector.Introspect(ctx)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}

	if names := d.TableNames(); len(names) != 2 || names[0] != "customers" || names[1] != "orders" {
		t.Fatalf("TableNames() = %v", names)
	}
	customers := d.Tables["customers"]
	if len(customers.PrimaryKeys) != 1 || customers.PrimaryKeys[0] != "id" {
		t.Fatalf("customers primary keys = %v", customers.PrimaryKeys)
	}
	if !customers.Columns[0].AutoIncrement {
		t.Fatal("INTEGER PRIMARY KEY should be reported as auto increment")
	}
	if !customers.Columns[1].IsUnique || customers.Columns[1].Nullable {
		t.Fatalf("customers.email = %+v", customers.Columns[1])
	}
	if def := customers.Columns[2].Default; def == nil || !strings.Contains(*def, "EU") {
		t.Fatalf("customers.region default = %v", def)
	}

	orders := d.Tables["orders"]
	if len(orders.ForeignKeys) != 1 {
		t.Fatalf("orders foreign keys = %+v", orders.ForeignKeys)
	}
	if fk := orders.ForeignKeys[0]; fk.Column != "customer_id" || fk.RefTable != "customers" || fk.RefColumn != "id" {
		t.Fatalf("orders foreign key = %+v", fk)
	}
	if !orders.Columns[1].IsIndexed {
		t.Fatal("orders.customer_id should be indexed")
	}

	text := RenderPromptText(d)
	if !strings.Contains(text, "- orders.customer_id → customers.id") {
		t.Fatalf("relationship missing from prompt text:\n%s", text)
	}
}

func TestSQLiteImplicitForeignKeyFollowsPrimaryKeyOrder(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE shipments (carrier TEXT NOT NULL, code TEXT NOT NULL, PRIMARY KEY (code, carrier))`,
		`CREATE TABLE parcels (id INTEGER PRIMARY KEY, ship_code TEXT, ship_carrier TEXT, FOREIGN KEY (ship_code, ship_carrier) REFERENCES shipments)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	introspector, err := NewIntrospector("sqlite", db)
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	d, err := introspector.Introspect(ctx)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}

	got := d.Tables["parcels"].ForeignKeys
	want := []ForeignKey{
		{Column: "ship_carrier", RefTable: "shipments", RefColumn: "carrier"},
		{Column: "ship_code", RefTable: "shipments", RefColumn: "code"},
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("parcels foreign keys = %+v, want %+v", got, want)
	}
}
