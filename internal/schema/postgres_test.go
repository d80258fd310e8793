package schema

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresIntrospection(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(postgresColumnsQuery)).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "udt_name", "is_nullable", "column_default", "is_identity", "comment"}).
			AddRow("parcels", "id", "integer", "int4", "NO", "nextval('parcels_id_seq'::regclass)", "NO", "").
			AddRow("parcels", "ship_code", "text", "text", "YES", nil, "NO", "").
			AddRow("parcels", "ship_carrier", "text", "text", "YES", nil, "NO", "").
			AddRow("shipments", "carrier", "text", "text", "NO", nil, "NO", "").
			AddRow("shipments", "code", "text", "text", "NO", nil, "NO", "").
			AddRow("shipments", "status", "USER-DEFINED", "shipment_status", "NO", "'open'::shipment_status", "NO", "lifecycle state"),
	)
	mock.ExpectQuery(regexp.QuoteMeta(postgresTablesQuery)).WillReturnRows(
		sqlmock.NewRows([]string{"relname", "comment", "reltuples"}).
			AddRow("parcels", "", 1200).
			AddRow("shipments", "outbound shipments", 40),
	)
	mock.ExpectQuery(regexp.QuoteMeta(postgresKeysQuery)).WillReturnRows(
		sqlmock.NewRows([]string{"relname", "attname", "contype", "ref_table", "ref_column"}).
			AddRow("parcels", "ship_code", "f", "shipments", "code").
			AddRow("parcels", "ship_carrier", "f", "shipments", "carrier").
			AddRow("parcels", "id", "p", "", "").
			AddRow("shipments", "code", "p", "", "").
			AddRow("shipments", "carrier", "p", "", ""),
	)
	mock.ExpectQuery(regexp.QuoteMeta(postgresIndexesQuery)).WillReturnRows(
		sqlmock.NewRows([]string{"table", "index", "column", "unique"}).
			AddRow("parcels", "parcels_pkey", "id", true).
			AddRow("shipments", "shipments_pkey", "code", true).
			AddRow("shipments", "shipments_pkey", "carrier", true),
	)

	introspector, err := NewIntrospector("postgres", db)
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	d, err := introspector.Introspect(context.Background())
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}

	if d.Dialect != "postgres" || len(d.Tables) != 2 {
		t.Fatalf("descriptor = %+v", d)
	}
	parcels := d.Tables["parcels"]
	want := []ForeignKey{
		{Column: "ship_carrier", RefTable: "shipments", RefColumn: "carrier"},
		{Column: "ship_code", RefTable: "shipments", RefColumn: "code"},
	}
	if len(parcels.ForeignKeys) != len(want) || parcels.ForeignKeys[0] != want[0] || parcels.ForeignKeys[1] != want[1] {
		t.Fatalf("parcels foreign keys = %+v, want %+v", parcels.ForeignKeys, want)
	}
	if !parcels.Columns[0].AutoIncrement || !parcels.Columns[0].IsPrimary {
		t.Fatalf("parcels.id = %+v", parcels.Columns[0])
	}

	shipments := d.Tables["shipments"]
	if got := shipments.Indexes["shipments_pkey"].Columns; len(got) != 2 || got[0] != "code" || got[1] != "carrier" {
		t.Fatalf("shipments_pkey columns = %v", got)
	}
	if len(shipments.PrimaryKeys) != 2 {
		t.Fatalf("shipments primary keys = %v", shipments.PrimaryKeys)
	}
	if status := shipments.Columns[2]; status.DeclaredType != "shipment_status" || status.Comment != "lifecycle state" {
		t.Fatalf("shipments.status = %+v", status)
	}
	if shipments.Metadata.EstimatedRows != 40 || shipments.Metadata.Comment != "outbound shipments" {
		t.Fatalf("shipments metadata = %+v", shipments.Metadata)
	}

	text := RenderPromptText(d)
	for _, line := range []string{"- parcels.ship_code → shipments.code", "- parcels.ship_carrier → shipments.carrier"} {
		if !strings.Contains(text, line) {
			t.Fatalf("prompt text missing %q:\n%s", line, text)
		}
	}
	for _, line := range []string{"- parcels.ship_code → shipments.carrier", "- parcels.ship_carrier → shipments.code"} {
		if strings.Contains(text, line) {
			t.Fatalf("prompt text has crossed relationship %q:\n%s", line, text)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet() error = %v", err)
	}
}
