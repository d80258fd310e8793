// Package insight asks a single model for a short bullet-point reading of a
// query result.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/observability"
	"github.com/querylens/querylens/internal/prompt"
	"github.com/querylens/querylens/internal/query"
)

const (
	NoDataMessage      = "No data available for analysis."
	UnavailableMessage = "Unable to generate insights at this time."

	previewRows = 3
)

var ErrUnavailable = errors.New("insights unavailable")

type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, candidates []string, opts llm.Options) (llm.Outcome, error)
}

type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Summarizer struct {
	models Completer
	cfg    Config
	logger *slog.Logger
}

func NewSummarizer(models Completer, cfg Config, logger *slog.Logger) (*Summarizer, error) {
	if models == nil {
		return nil, fmt.Errorf("model gateway is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("insight model is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Summarizer{models: models, cfg: cfg, logger: logger}, nil
}

// Summarize makes exactly one model call with the configured model. Callers
// that want a message instead of an error use UnavailableMessage.
func (s *Summarizer) Summarize(ctx context.Context, result query.Result, chartKind string) (string, error) {
	if len(result.Rows) == 0 {
		return NoDataMessage, nil
	}
	preview, err := result.CSV(previewRows)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	messages := prompt.Insights{
		RowCount:     len(result.Rows),
		ColumnCount:  len(result.Columns),
		Columns:      result.Columns,
		CSVPreview:   preview,
		SummaryStats: Describe(result),
		ChartKind:    chartKind,
	}.Messages()

	out, err := s.models.Complete(ctx, messages, []string{s.cfg.Model}, llm.Options{
		Task:        "insights",
		Temperature: llm.Float(s.cfg.Temperature),
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		observability.IncrementPipelineFailure("insights")
		s.logger.WarnContext(ctx, "insights_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("model", s.cfg.Model),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return strings.TrimSpace(out.Text), nil
}

// ColumnStats holds the describe-style summary of one numeric column.
type ColumnStats struct {
	Name  string
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Q25   float64
	Q50   float64
	Q75   float64
	Max   float64
}

// NumericStats summarizes every column whose non-null values are all
// numeric. Numeric strings count, as decimal columns arrive as text from some
// drivers.
func NumericStats(result query.Result) []ColumnStats {
	var out []ColumnStats
	for j, name := range result.Columns {
		values := make([]float64, 0, len(result.Rows))
		numeric := true
		for _, row := range result.Rows {
			v := row.Values[j]
			if v == nil {
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				numeric = false
				break
			}
			values = append(values, f)
		}
		if !numeric || len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		cs := ColumnStats{
			Name:  name,
			Count: len(values),
			Mean:  stat.Mean(values, nil),
			Std:   math.NaN(),
			Min:   values[0],
			Q25:   stat.Quantile(0.25, stat.LinInterp, values, nil),
			Q50:   stat.Quantile(0.50, stat.LinInterp, values, nil),
			Q75:   stat.Quantile(0.75, stat.LinInterp, values, nil),
			Max:   values[len(values)-1],
		}
		if len(values) > 1 {
			cs.Std = stat.StdDev(values, nil)
		}
		out = append(out, cs)
	}
	return out
}

// Describe renders NumericStats as a table with one column per numeric
// column and one row per statistic. It is empty when nothing is numeric.
func Describe(result query.Result) string {
	stats := NumericStats(result)
	if len(stats) == 0 {
		return ""
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{""}
	for _, cs := range stats {
		header = append(header, cs.Name)
	}
	fmt.Fprintln(w, strings.Join(header, "\t")+"\t")
	rows := []struct {
		label string
		value func(ColumnStats) float64
	}{
		{"count", func(cs ColumnStats) float64 { return float64(cs.Count) }},
		{"mean", func(cs ColumnStats) float64 { return cs.Mean }},
		{"std", func(cs ColumnStats) float64 { return cs.Std }},
		{"min", func(cs ColumnStats) float64 { return cs.Min }},
		{"25%", func(cs ColumnStats) float64 { return cs.Q25 }},
		{"50%", func(cs ColumnStats) float64 { return cs.Q50 }},
		{"75%", func(cs ColumnStats) float64 { return cs.Q75 }},
		{"max", func(cs ColumnStats) float64 { return cs.Max }},
	}
	for _, r := range rows {
		cells := []string{r.label}
		for _, cs := range stats {
			cells = append(cells, formatStat(r.value(cs)))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case int64:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case *big.Int:
		if typed == nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f, true
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}
