package sqlcheck

import (
	"context"
	"errors"
	"testing"
)

func TestCleanStripsFencesAndExtractsQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "fenced with language", raw: "```sql\nSELECT 1;\n```", want: "SELECT 1;"},
		{name: "fenced without language", raw: "```\nSELECT a FROM t;\n```", want: "SELECT a FROM t;"},
		{name: "prose around query", raw: "Here you go:\nselect o.id from orders o;\nEnjoy.", want: "select o.id from orders o;"},
		{name: "first of several", raw: "SELECT 1; SELECT 2;", want: "SELECT 1;"},
		{name: "common table expression", raw: "```sql\nWITH totals AS (SELECT 1 AS n) SELECT n FROM totals;\n```", want: "WITH totals AS (SELECT 1 AS n) SELECT n FROM totals;"},
		{name: "no terminator falls back", raw: "  SELECT 1  ", want: "SELECT 1"},
		{name: "non select falls back", raw: "```sql\nUPDATE t SET a = 1;\n```", want: "UPDATE t SET a = 1;"},
		{name: "semicolon inside literal ends the span", raw: "SELECT o.id FROM orders o WHERE o.note = 'a;b';", want: "SELECT o.id FROM orders o WHERE o.note = 'a;"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.raw); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	for _, sql := range []string{
		"SELECT c.region, SUM(o.amount) AS total_amount FROM orders o INNER JOIN customers c ON o.customer_id = c.id GROUP BY c.region;",
		"SELECT 1",
		"ERROR: Please provide the specific request or details about the SQL query you need.",
	} {
		once := Clean(sql)
		if twice := Clean(once); twice != once {
			t.Fatalf("Clean not idempotent: %q -> %q", once, twice)
		}
	}
}

func TestValidateAcceptsParsableSQL(t *testing.T) {
	for _, sql := range []string{
		"SELECT 1;",
		"SELECT c.region, SUM(o.amount) AS total FROM orders AS o INNER JOIN customers AS c ON o.customer_id = c.id GROUP BY c.region;",
		"WITH t AS (SELECT 1 AS n) SELECT t.n FROM t",
		"SELECT 1 UNION SELECT 2",
	} {
		if err := Validate(context.Background(), "mysql", sql); err != nil {
			t.Fatalf("Validate(%q) error = %v", sql, err)
		}
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	for _, sql := range []string{
		"",
		"   ",
		"SELEC * FRM t;",
		"ERROR: Please provide the specific request or details about the SQL query you need.",
	} {
		err := Validate(context.Background(), "mysql", sql)
		if !errors.Is(err, ErrInvalidSyntax) {
			t.Fatalf("Validate(%q) error = %v, want ErrInvalidSyntax", sql, err)
		}
		var syntaxErr *SyntaxError
		if !errors.As(err, &syntaxErr) || syntaxErr.Message == "" {
			t.Fatalf("Validate(%q) error = %#v, want SyntaxError with message", sql, err)
		}
	}
}

func TestAnalyzeReportsReadOnly(t *testing.T) {
	got, err := Analyze(context.Background(), "mysql", "SELECT 1; SELECT 2;")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.Statements != 2 || !got.ReadOnly {
		t.Fatalf("Analyze() = %+v", got)
	}
	got, err = Analyze(context.Background(), "mysql", "DELETE FROM orders WHERE id = 1")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.ReadOnly {
		t.Fatal("DELETE reported as read only")
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := StripTrailingSemicolons(" SELECT 1 ;; "); got != "SELECT 1" {
		t.Fatalf("StripTrailingSemicolons() = %q", got)
	}
}

func TestCleanedLiteralSemicolonFailsValidation(t *testing.T) {
	cleaned := Clean("SELECT o.id FROM orders o WHERE o.note = 'a;b';")
	if err := Validate(context.Background(), "mysql", cleaned); !errors.Is(err, ErrInvalidSyntax) {
		t.Fatalf("Validate(%q) error = %v, want ErrInvalidSyntax", cleaned, err)
	}
}

func TestValidateUsesDialectGrammar(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		dialect string
		sql     string
	}{
		{dialect: "mysql", sql: "SELECT o.region FROM orders o WHERE o.region REGEXP '^E';"},
		{dialect: "mysql", sql: "SELECT `o`.`region` FROM `orders` AS `o` LIMIT 5, 10;"},
		{dialect: "postgres", sql: "SELECT o.region, SUM(o.amount)::numeric AS total FROM orders o GROUP BY o.region;"},
		{dialect: "postgres", sql: "SELECT DISTINCT ON (o.region) o.region, o.amount FROM orders o ORDER BY o.region, o.amount DESC;"},
		{dialect: "duckdb", sql: "SELECT o.region, SUM(o.amount) AS total FROM orders o GROUP BY ALL;"},
		{dialect: "duckdb", sql: "FROM orders o SELECT o.region;"},
		{dialect: "sqlite", sql: "SELECT o.region FROM orders o WHERE o.region GLOB 'N*';"},
		{dialect: "sqlite", sql: "SELECT o.id FROM orders o WHERE o.note = 'a;b' ORDER BY o.id;"},
	}
	for _, tc := range tests {
		if err := Validate(ctx, tc.dialect, tc.sql); err != nil {
			t.Fatalf("Validate(%s, %q) error = %v", tc.dialect, tc.sql, err)
		}
	}
}

func TestValidateRejectsGarbagePerDialect(t *testing.T) {
	ctx := context.Background()
	for _, dialect := range []string{"mysql", "postgres", "sqlite", "duckdb"} {
		for _, sql := range []string{"SELEC * FRM t;", "-- only a comment", "ERROR: Please provide the specific request."} {
			err := Validate(ctx, dialect, sql)
			if !errors.Is(err, ErrInvalidSyntax) {
				t.Fatalf("Validate(%s, %q) error = %v, want ErrInvalidSyntax", dialect, sql, err)
			}
		}
	}
}

func TestValidateRejectsUnknownDialect(t *testing.T) {
	err := Validate(context.Background(), "oracle", "SELECT 1 FROM dual")
	if err == nil || errors.Is(err, ErrInvalidSyntax) {
		t.Fatalf("Validate() error = %v, want unsupported dialect", err)
	}
}

func TestAnalyzeReadOnlyPerDialect(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		dialect  string
		sql      string
		readOnly bool
		count    int
	}{
		{"postgres", "WITH t AS (SELECT 1 AS n) SELECT n FROM t; SELECT 2;", true, 2},
		{"postgres", "WITH gone AS (DELETE FROM orders RETURNING id) SELECT id FROM gone", false, 1},
		{"postgres", "SELECT id FROM orders FOR UPDATE", false, 1},
		{"sqlite", "SELECT 1; -- trailing note", true, 1},
		{"sqlite", "UPDATE orders SET note = 'x;y' WHERE id = 1;", false, 1},
		{"sqlite", "WITH t AS (SELECT 1 AS n) INSERT INTO log SELECT n FROM t", false, 1},
		{"duckdb", "INSERT INTO log SELECT 1; SELECT 2", false, 2},
		{"duckdb", "FROM orders", true, 1},
	}
	for _, tc := range tests {
		got, err := Analyze(ctx, tc.dialect, tc.sql)
		if err != nil {
			t.Fatalf("Analyze(%s, %q) error = %v", tc.dialect, tc.sql, err)
		}
		if got.ReadOnly != tc.readOnly || got.Statements != tc.count {
			t.Fatalf("Analyze(%s, %q) = %+v", tc.dialect, tc.sql, got)
		}
	}
}
