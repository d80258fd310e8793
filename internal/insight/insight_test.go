package insight

import (
	"context"
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/query"
)

type recordingModels struct {
	text       string
	err        error
	candidates [][]string
	messages   []llm.Message
	opts       llm.Options
}

func (m *recordingModels) Complete(ctx context.Context, messages []llm.Message, candidates []string, opts llm.Options) (llm.Outcome, error) {
	m.candidates = append(m.candidates, candidates)
	m.messages = messages
	m.opts = opts
	if m.err != nil {
		return llm.Outcome{}, m.err
	}
	return llm.Outcome{Text: m.text, Model: candidates[0]}, nil
}

func salesResult() query.Result {
	cols := []string{"region", "total"}
	values := [][]any{{"EU", 10.0}, {"US", int64(20)}, {"APAC", "30"}, {"LATAM", 40.0}}
	rows := make([]query.Row, len(values))
	for i, v := range values {
		rows[i] = query.Row{Columns: cols, Values: v}
	}
	return query.Result{Columns: cols, Rows: rows}
}

func newSummarizer(t *testing.T, models Completer) *Summarizer {
	t.Helper()
	s, err := NewSummarizer(models, Config{Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 300}, nil)
	if err != nil {
		t.Fatalf("NewSummarizer() error = %v", err)
	}
	return s
}

func TestSummarizeUsesSingleCandidate(t *testing.T) {
	models := &recordingModels{text: "  • EU leads\n• US follows  "}
	got, err := newSummarizer(t, models).Summarize(context.Background(), salesResult(), "bar")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "• EU leads\n• US follows" {
		t.Fatalf("Summarize() = %q", got)
	}
	if len(models.candidates) != 1 || len(models.candidates[0]) != 1 || models.candidates[0][0] != "gpt-4o-mini" {
		t.Fatalf("candidates = %v", models.candidates)
	}
	if models.opts.MaxTokens != 300 || *models.opts.Temperature != 0.3 {
		t.Fatalf("opts = %+v", models.opts)
	}
	user := models.messages[1].Content
	for _, want := range []string{"Rows: 4, Columns: 2", "region,total\nEU,10\nUS,20\nAPAC,30\n", "Summary Statistics", "bar chart"} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
	if strings.Contains(user, "LATAM") {
		t.Fatalf("preview should hold three rows:\n%s", user)
	}
}

func TestSummarizeEmptyResult(t *testing.T) {
	models := &recordingModels{}
	got, err := newSummarizer(t, models).Summarize(context.Background(), query.Result{Columns: []string{"a"}}, "")
	if err != nil || got != NoDataMessage {
		t.Fatalf("Summarize() = %q, %v", got, err)
	}
	if len(models.candidates) != 0 {
		t.Fatal("model called for empty result")
	}
}

func TestSummarizeReportsUnavailable(t *testing.T) {
	models := &recordingModels{err: &llm.ExhaustedError{Attempts: []llm.Attempt{{Model: "gpt-4o-mini", Err: errors.New("429")}}}}
	_, err := newSummarizer(t, models).Summarize(context.Background(), salesResult(), "")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, llm.ErrExhausted) {
		t.Fatalf("Summarize() error = %v", err)
	}
}

func TestNumericStatsMatchDescribe(t *testing.T) {
	stats := NumericStats(salesResult())
	if len(stats) != 1 || stats[0].Name != "total" {
		t.Fatalf("stats = %+v", stats)
	}
	s := stats[0]
	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
	if s.Count != 4 || !near(s.Mean, 25) || !near(s.Min, 10) || !near(s.Max, 40) {
		t.Fatalf("stats = %+v", s)
	}
	// Sample standard deviation of 10, 20, 30, 40.
	if !near(s.Std, 12.909944487358056) {
		t.Fatalf("std = %v", s.Std)
	}
	if s.Q50 < s.Q25 || s.Q75 < s.Q50 || s.Q25 < s.Min || s.Q75 > s.Max {
		t.Fatalf("quartiles out of order: %+v", s)
	}

	table := Describe(salesResult())
	for _, want := range []string{"total", "count", "4.000000", "mean", "25.000000", "75%", "max"} {
		if !strings.Contains(table, want) {
			t.Fatalf("describe table missing %q:\n%s", want, table)
		}
	}
}

func TestDescribeWithoutNumericColumns(t *testing.T) {
	cols := []string{"name"}
	result := query.Result{Columns: cols, Rows: []query.Row{{Columns: cols, Values: []any{"x"}}}}
	if got := Describe(result); got != "" {
		t.Fatalf("Describe() = %q", got)
	}
}

func TestNumericStatsAcceptsWideIntegers(t *testing.T) {
	cols := []string{"region", "total"}
	result := query.Result{Columns: cols, Rows: []query.Row{
		{Columns: cols, Values: []any{"EU", big.NewInt(7)}},
		{Columns: cols, Values: []any{"US", int16(5)}},
	}}
	stats := NumericStats(result)
	if len(stats) != 1 || stats[0].Name != "total" || stats[0].Count != 2 || stats[0].Mean != 6 {
		t.Fatalf("NumericStats() = %+v", stats)
	}
}
