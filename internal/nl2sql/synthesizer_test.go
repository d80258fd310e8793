package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/prompt"
	"github.com/querylens/querylens/internal/schema"
	"github.com/querylens/querylens/internal/sqlcheck"
)

type staticCatalog struct {
	desc *schema.Descriptor
	err  error
}

func (c staticCatalog) Get(ctx context.Context) (*schema.Descriptor, error) {
	return c.desc, c.err
}

func ordersCatalog() staticCatalog {
	return staticCatalog{desc: &schema.Descriptor{
		Dialect: "mysql",
		Tables: map[string]schema.Table{
			"orders": {
				Name:        "orders",
				PrimaryKeys: []string{"id"},
				Columns: []schema.Column{
					{Name: "id", DeclaredType: "int", IsPrimary: true},
					{Name: "region", DeclaredType: "varchar(16)"},
					{Name: "amount", DeclaredType: "decimal(10,2)"},
				},
			},
		},
	}}
}

func newSynth(t *testing.T, client llm.Client, candidates ...string) *Synthesizer {
	t.Helper()
	s, err := NewSynthesizer(llm.NewGateway(client, time.Second, nil), Config{Candidates: candidates, Temperature: 0.3}, nil)
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}
	return s
}

func TestGenerateReturnsValidatedSQL(t *testing.T) {
	var seen llm.Request
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		if req.Model == "gpt-4o" {
			return "", errors.New("overloaded")
		}
		seen = req
		return "```sql\nSELECT o.region, SUM(o.amount) AS total_amount\nFROM orders o\nGROUP BY o.region;\n```", nil
	})
	s := newSynth(t, client, "gpt-4o", "gpt-4")

	got, err := s.Generate(context.Background(), ordersCatalog(), "total sales by region")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Model != "gpt-4" {
		t.Fatalf("Model = %q", got.Model)
	}
	if !strings.HasPrefix(got.SQL, "SELECT o.region") || !strings.HasSuffix(got.SQL, ";") {
		t.Fatalf("SQL = %q", got.SQL)
	}
	if err := sqlcheck.Validate(context.Background(), "mysql", got.SQL); err != nil {
		t.Fatalf("returned SQL does not validate: %v", err)
	}
	if seen.Temperature == nil || *seen.Temperature != 0.3 {
		t.Fatalf("temperature = %v", seen.Temperature)
	}
	if !strings.Contains(seen.Messages[1].Content, "- region VARCHAR(16)") {
		t.Fatalf("schema text missing from prompt:\n%s", seen.Messages[1].Content)
	}
}

func TestGenerateFailsClosedOnInvalidSQL(t *testing.T) {
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "SELEC region FRM orders;", nil
	})
	got, err := newSynth(t, client, "m").Generate(context.Background(), ordersCatalog(), "regions")
	if !errors.Is(err, sqlcheck.ErrInvalidSyntax) {
		t.Fatalf("Generate() error = %v, want ErrInvalidSyntax", err)
	}
	if got.SQL != "" {
		t.Fatalf("partial SQL returned: %q", got.SQL)
	}
}

func TestGenerateRecognizesRejection(t *testing.T) {
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return prompt.RejectionSentinel, nil
	})
	_, err := newSynth(t, client, "m").Generate(context.Background(), ordersCatalog(), "write me a poem")
	if !errors.Is(err, ErrRequestRejected) {
		t.Fatalf("Generate() error = %v, want ErrRequestRejected", err)
	}
}

func TestGenerateReportsExhaustion(t *testing.T) {
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("down")
	})
	_, err := newSynth(t, client, "a", "b").Generate(context.Background(), ordersCatalog(), "regions")
	if !errors.Is(err, llm.ErrExhausted) {
		t.Fatalf("Generate() error = %v, want ErrExhausted", err)
	}
}

func TestGeneratePropagatesSchemaFailure(t *testing.T) {
	called := false
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		called = true
		return "SELECT 1;", nil
	})
	catalog := staticCatalog{err: schema.ErrUnavailable}
	_, err := newSynth(t, client, "m").Generate(context.Background(), catalog, "regions")
	if !errors.Is(err, schema.ErrUnavailable) {
		t.Fatalf("Generate() error = %v, want ErrUnavailable", err)
	}
	if called {
		t.Fatal("model called without a schema")
	}
}

func TestGenerateRejectsEmptyText(t *testing.T) {
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) { return "SELECT 1;", nil })
	if _, err := newSynth(t, client, "m").Generate(context.Background(), ordersCatalog(), "   "); !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("Generate() error = %v, want ErrEmptyRequest", err)
	}
}

func TestNewSynthesizerValidates(t *testing.T) {
	if _, err := NewSynthesizer(nil, Config{Candidates: []string{"m"}}, nil); err == nil {
		t.Fatal("expected error without gateway")
	}
	gw := llm.NewGateway(llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) { return "", nil }), time.Second, nil)
	if _, err := NewSynthesizer(gw, Config{}, nil); err == nil {
		t.Fatal("expected error without candidates")
	}
}
