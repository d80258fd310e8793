package prompt

import (
	"strings"
	"testing"

	"github.com/querylens/querylens/internal/llm"
)

func TestSQLGenerationMessages(t *testing.T) {
	msgs := SQLGeneration{
		Dialect:    "mysql",
		SchemaText: "### orders\n- id INT [PK]",
		Request:    "  total sales by region  ",
	}.Messages()

	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[1].Role != llm.RoleUser {
		t.Fatalf("messages = %+v", msgs)
	}
	user := msgs[1].Content
	for _, want := range []string{
		"Use standard MySQL 8.0+ syntax",
		"End with a semicolon",
		"Avoid implicit/comma joins",
		"Qualify all columns with table aliases",
		"meaningful column aliases",
		RejectionSentinel,
		"Database Schema:\n### orders\n- id INT [PK]",
		"User Request: total sales by region\n",
	} {
		if !strings.Contains(user, want) {
			t.Fatalf("sql prompt missing %q:\n%s", want, user)
		}
	}
}

func TestMessagesAreDeterministic(t *testing.T) {
	p := Insights{RowCount: 3, ColumnCount: 2, Columns: []string{"region", "total"}, CSVPreview: "region,total\nEU,10", ChartKind: "bar"}
	a, b := p.Messages(), p.Messages()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("message %d differs", i)
		}
	}
}

func TestExtractionMessagesNameBindings(t *testing.T) {
	msgs := Extraction{CSVPreview: "region,total\nEU,10\nUS,20", TotalRows: 40, ChartKind: "pie"}.Messages()
	user := msgs[1].Content
	for _, want := range []string{"`csv_data`", "parse_csv(csv_data)", "`result`", "40 total rows", "'numeric_cols'", "'shape'", "pie chart", "Do not use load statements"} {
		if !strings.Contains(user, want) {
			t.Fatalf("extraction prompt missing %q:\n%s", want, user)
		}
	}
}

func TestChartScriptMessages(t *testing.T) {
	msgs := ChartScript{Summary: "headers: [region, total]", ChartKind: "Scatter", Title: "Sales"}.Messages()
	user := msgs[1].Content
	for _, want := range []string{"scatter chart", "`fig` variable MUST", "Do not call show", `"Sales"`, "headers: [region, total]", "fig.pie(labels, values)"} {
		if !strings.Contains(user, want) {
			t.Fatalf("chart prompt missing %q:\n%s", want, user)
		}
	}
}

func TestInsightsMessagesOmitEmptyStats(t *testing.T) {
	user := Insights{RowCount: 1, ColumnCount: 1, Columns: []string{"name"}, CSVPreview: "name\nx"}.Messages()[1].Content
	if strings.Contains(user, "Summary Statistics") {
		t.Fatalf("unexpected stats section:\n%s", user)
	}
	if !strings.Contains(user, "starting with •") {
		t.Fatalf("bullet instruction missing:\n%s", user)
	}
}
