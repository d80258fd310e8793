package chart

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.starlark.net/starlark"

	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/query"
	"github.com/querylens/querylens/internal/script"
)

const extractScript = "```python\n" + `parsed = parse_csv(csv_data)
headers = parsed["headers"]
data = parsed["columns"]
numeric = []
categorical = []
for h in headers:
    if type(data[h][0]) in ("int", "float"):
        numeric.append(h)
    else:
        categorical.append(h)
result = {
    "headers": headers,
    "data": data,
    "numeric_cols": numeric,
    "categorical_cols": categorical,
    "shape": (len(data[headers[0]]), len(headers)),
}
` + "```"

const barScript = `fig = plt.figure(title="Sales by region", xlabel="region", ylabel="total")
fig.bar(df["region"], df["total"], label="total")
fig.legend(True)
`

type scriptedModels struct {
	responses map[string]string
	calls     []llm.Options
	prompts   []string
}

func (m *scriptedModels) Complete(ctx context.Context, messages []llm.Message, candidates []string, opts llm.Options) (llm.Outcome, error) {
	m.calls = append(m.calls, opts)
	for _, msg := range messages {
		m.prompts = append(m.prompts, msg.Content)
	}
	text, ok := m.responses[opts.Task]
	if !ok {
		return llm.Outcome{}, &llm.ExhaustedError{Attempts: []llm.Attempt{{Model: candidates[0], Err: errors.New("unavailable")}}}
	}
	return llm.Outcome{Text: text, Model: candidates[0]}, nil
}

func regionResult() query.Result {
	cols := []string{"region", "total"}
	return query.Result{
		Columns: cols,
		Rows: []query.Row{
			{Columns: cols, Values: []any{"EU", 30.5}},
			{Columns: cols, Values: []any{"US", int64(12)}},
			{Columns: cols, Values: []any{"APAC", "7.25"}},
		},
	}
}

func newPipeline(t *testing.T, models Completer) *Pipeline {
	t.Helper()
	p, err := NewPipeline(models, script.NewRuntime(100_000, nil), Config{
		Model:              "gpt-4",
		ExtractTemperature: 0.5,
		ExtractMaxTokens:   800,
		ChartTemperature:   0.1,
		ChartMaxTokens:     1500,
	}, nil)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func TestRenderProducesPNG(t *testing.T) {
	models := &scriptedModels{responses: map[string]string{"extract": extractScript, "chart": barScript}}
	out, err := newPipeline(t, models).Render(context.Background(), regionResult(), KindBar, "Sales")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.HasPrefix(out.PNG, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("output is not a png (%d bytes)", len(out.PNG))
	}
	if out.Dataset.Shape != [2]int{3, 2} || out.Dataset.NumericColumns[0] != "total" {
		t.Fatalf("dataset = %+v", out.Dataset)
	}
	if out.Figure.Title != "Sales by region" || len(out.Figure.Series) != 1 {
		t.Fatalf("figure = %+v", out.Figure)
	}
	if got := out.Figure.Series[0].Y; got[2] != 7.25 {
		t.Fatalf("bar values = %v", got)
	}
	if len(models.calls) != 2 || models.calls[0].Task != "extract" || models.calls[1].Task != "chart" {
		t.Fatalf("calls = %+v", models.calls)
	}
	if *models.calls[0].Temperature != 0.5 || models.calls[0].MaxTokens != 800 ||
		*models.calls[1].Temperature != 0.1 || models.calls[1].MaxTokens != 1500 {
		t.Fatalf("sampling options = %+v", models.calls)
	}
}

func TestRenderNormalizesKindBeforePrompting(t *testing.T) {
	models := &scriptedModels{responses: map[string]string{"extract": extractScript, "chart": barScript}}
	if _, err := newPipeline(t, models).Render(context.Background(), regionResult(), Kind(" BAR "), "Sales"); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	all := strings.Join(models.prompts, "\n")
	if !strings.Contains(all, "drawn as a bar chart") {
		t.Fatalf("extract prompt does not carry normalized kind:\n%s", all)
	}
	if strings.Contains(all, "drawn as a BAR") {
		t.Fatalf("raw kind leaked into prompts:\n%s", all)
	}
}

func TestRenderWithZeroRowsNeverCallsModel(t *testing.T) {
	models := &scriptedModels{responses: map[string]string{"extract": extractScript, "chart": barScript}}
	_, err := newPipeline(t, models).Render(context.Background(), query.Result{Columns: []string{"region"}}, KindBar, "")

	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) || pipeErr.Phase != PhaseExtract {
		t.Fatalf("Render() error = %v, want extract phase failure", err)
	}
	if !errors.Is(err, ErrPipeline) || !errors.Is(err, ErrNoRows) {
		t.Fatalf("Render() error = %v", err)
	}
	if len(models.calls) != 0 {
		t.Fatalf("model called %d times for empty result", len(models.calls))
	}
}

func TestRenderStopsWhenExtractContractFails(t *testing.T) {
	models := &scriptedModels{responses: map[string]string{
		"extract": `result = {"headers": ["region"], "data": {"region": ["EU"]}}`,
		"chart":   barScript,
	}}
	_, err := newPipeline(t, models).Render(context.Background(), regionResult(), KindBar, "")

	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) || pipeErr.Phase != PhaseExtract {
		t.Fatalf("Render() error = %v", err)
	}
	if !errors.Is(err, script.ErrContract) || !strings.Contains(err.Error(), "numeric_cols") {
		t.Fatalf("Render() error = %v, want missing key", err)
	}
	if len(models.calls) != 1 {
		t.Fatalf("chart phase ran after extract failure: %d calls", len(models.calls))
	}
}

func TestRenderReportsChartPhaseFailures(t *testing.T) {
	cases := map[string]string{
		"no figure":    `x = 1`,
		"not a figure": `fig = "chart"`,
		"no series":    `fig = plt.figure(title="t")`,
		"bad values":   `fig = plt.figure()` + "\n" + `fig.bar(df["region"], df["region"])`,
	}
	for name, src := range cases {
		models := &scriptedModels{responses: map[string]string{"extract": extractScript, "chart": src}}
		_, err := newPipeline(t, models).Render(context.Background(), regionResult(), KindBar, "")
		var pipeErr *PipelineError
		if !errors.As(err, &pipeErr) || pipeErr.Phase != PhaseChart {
			t.Fatalf("%s: Render() error = %v, want chart phase failure", name, err)
		}
	}
}

func TestRenderReportsExhaustedModels(t *testing.T) {
	models := &scriptedModels{responses: map[string]string{}}
	_, err := newPipeline(t, models).Render(context.Background(), regionResult(), KindPie, "")
	if !errors.Is(err, ErrPipeline) || !errors.Is(err, llm.ErrExhausted) {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestRenderRejectsUnknownKind(t *testing.T) {
	models := &scriptedModels{}
	if _, err := newPipeline(t, models).Render(context.Background(), regionResult(), Kind("radar"), ""); !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("Render() error = %v", err)
	}
	if len(models.calls) != 0 {
		t.Fatal("model called for unsupported kind")
	}
}

func TestRenderPNGForEveryKind(t *testing.T) {
	figures := map[Kind]*Figure{
		KindLine: {Title: "trend", Legend: true, Series: []Series{
			{Kind: KindLine, Label: "orders", Labels: []string{"Jan", "Feb", "Mar"}, Y: []float64{3, 5, 4}, Markers: true},
		}},
		KindPie: {Title: "share", Series: []Series{
			{Kind: KindPie, Labels: []string{"EU", "US"}, Y: []float64{60, 40}},
		}},
		KindScatter: {Title: "corr", Series: []Series{
			{Kind: KindScatter, X: []float64{1, 2, 3}, Y: []float64{2, 4, 5}, Alpha: 0.6},
		}},
		KindBar: {Title: "grouped", Legend: true, Series: []Series{
			{Kind: KindBar, Label: "2024", Labels: []string{"EU", "US"}, Y: []float64{1, 2}},
			{Kind: KindBar, Label: "2025", Labels: []string{"EU", "US"}, Y: []float64{2, 3}},
		}},
	}
	for kind, fig := range figures {
		png, err := RenderPNG(fig)
		if err != nil {
			t.Fatalf("RenderPNG(%s) error = %v", kind, err)
		}
		if !bytes.HasPrefix(png, []byte("\x89PNG")) {
			t.Fatalf("RenderPNG(%s) did not produce a png", kind)
		}
	}
	if _, err := RenderPNG(&Figure{}); err == nil {
		t.Fatal("expected error for empty figure")
	}
}

func TestExtractCode(t *testing.T) {
	cases := map[string]string{
		"```python\nx = 1\n```":        "x = 1",
		"Here you go:\n```\ny = 2\n```": "y = 2",
		"  z = 3  ":                     "z = 3",
		"```starlark\nw = 4":            "w = 4",
	}
	for in, want := range cases {
		if got := ExtractCode(in); got != want {
			t.Fatalf("ExtractCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDatasetFromValueRejectsInconsistentShape(t *testing.T) {
	value, err := script.ToValue(map[string]any{
		"headers":          []string{"region", "total"},
		"data":             map[string]any{"region": []any{"EU"}, "total": []any{int64(1)}},
		"numeric_cols":     []string{"total"},
		"categorical_cols": []string{"region"},
		"shape":            starlark.Tuple{starlark.MakeInt(2), starlark.MakeInt(2)},
	})
	if err != nil {
		t.Fatalf("ToValue() error = %v", err)
	}
	if _, err := DatasetFromValue(value); !errors.Is(err, script.ErrContract) || !strings.Contains(err.Error(), "shape") {
		t.Fatalf("DatasetFromValue() error = %v", err)
	}
}

func TestPlotModuleBuildsFigure(t *testing.T) {
	src := `fig = plt.figure(title="t")
fig.line([1, 2, 3], [4, 5, 6], label="a", markers=False)
fig.scatter([1, 2], [3, 4], alpha=0.3)
fig.labels(xlabel="x", ylabel="y")
`
	out, err := script.NewRuntime(0, nil).Run(context.Background(), script.Contract{
		Name:    "chart",
		Inputs:  starlark.StringDict{"plt": PlotModule()},
		Outputs: []string{"fig"},
	}, src)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	fig := out["fig"].(*Figure)
	if len(fig.Series) != 2 || fig.Series[0].X[2] != 3 || fig.Series[0].Markers || fig.Series[1].Alpha != 0.3 {
		t.Fatalf("figure = %+v", fig)
	}
	if fig.XLabel != "x" || fig.YLabel != "y" || fig.Title != "t" {
		t.Fatalf("labels = %q %q %q", fig.Title, fig.XLabel, fig.YLabel)
	}
}
