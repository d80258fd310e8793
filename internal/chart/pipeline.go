package chart

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.starlark.net/starlark"

	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/observability"
	"github.com/querylens/querylens/internal/prompt"
	"github.com/querylens/querylens/internal/query"
	"github.com/querylens/querylens/internal/script"
)

const previewRows = 3

type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, candidates []string, opts llm.Options) (llm.Outcome, error)
}

type Config struct {
	Model              string
	ExtractTemperature float64
	ExtractMaxTokens   int
	ChartTemperature   float64
	ChartMaxTokens     int
}

type Output struct {
	PNG     []byte
	Dataset Dataset
	Figure  *Figure
}

type Pipeline struct {
	models  Completer
	runtime *script.Runtime
	cfg     Config
	logger  *slog.Logger
}

func NewPipeline(models Completer, runtime *script.Runtime, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if models == nil {
		return nil, fmt.Errorf("model gateway is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("chart model is required")
	}
	if runtime == nil {
		runtime = script.NewRuntime(0, logger)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{models: models, runtime: runtime, cfg: cfg, logger: logger}, nil
}

// Render runs the extract phase, then the chart phase, then draws the figure.
// Every failure is a *PipelineError; an empty result fails the extract phase
// before any model call.
func (p *Pipeline) Render(ctx context.Context, result query.Result, kind Kind, title string) (Output, error) {
	kind, err := ParseKind(string(kind))
	if err != nil {
		return Output{}, err
	}
	if len(result.Rows) == 0 {
		return Output{}, p.fail(ctx, PhaseExtract, ErrNoRows)
	}

	dataset, err := p.extract(ctx, result, kind)
	if err != nil {
		return Output{}, p.fail(ctx, PhaseExtract, err)
	}
	fig, err := p.draw(ctx, dataset, kind, title)
	if err != nil {
		return Output{}, p.fail(ctx, PhaseChart, err)
	}
	png, err := RenderPNG(fig)
	if err != nil {
		return Output{}, p.fail(ctx, PhaseRender, err)
	}

	p.logger.InfoContext(ctx, "chart_rendered",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("kind", string(kind)),
		slog.Int("rows", dataset.Rows()),
		slog.Int("series", len(fig.Series)),
		slog.Int("png_bytes", len(png)),
	)
	return Output{PNG: png, Dataset: dataset, Figure: fig}, nil
}

func (p *Pipeline) extract(ctx context.Context, result query.Result, kind Kind) (Dataset, error) {
	csvText, err := result.CSV(0)
	if err != nil {
		return Dataset{}, fmt.Errorf("encode csv: %w", err)
	}
	preview, err := result.CSV(previewRows)
	if err != nil {
		return Dataset{}, fmt.Errorf("encode csv preview: %w", err)
	}

	messages := prompt.Extraction{CSVPreview: preview, TotalRows: len(result.Rows), ChartKind: string(kind)}.Messages()
	code, err := p.generate(ctx, "extract", messages, p.cfg.ExtractTemperature, p.cfg.ExtractMaxTokens)
	if err != nil {
		return Dataset{}, err
	}

	outputs, err := p.runtime.Run(ctx, script.Contract{
		Name: "extract",
		Inputs: starlark.StringDict{
			prompt.BindingCSVData:  starlark.String(csvText),
			prompt.BindingParseCSV: script.ParseCSV,
			"math":                 script.Math,
			"json":                 script.JSON,
		},
		Outputs: []string{prompt.BindingResult},
	}, code)
	if err != nil {
		return Dataset{}, err
	}
	return DatasetFromValue(outputs[prompt.BindingResult])
}

func (p *Pipeline) draw(ctx context.Context, dataset Dataset, kind Kind, title string) (*Figure, error) {
	messages := prompt.ChartScript{Summary: dataset.Summary(5), ChartKind: string(kind), Title: title}.Messages()
	code, err := p.generate(ctx, "chart", messages, p.cfg.ChartTemperature, p.cfg.ChartMaxTokens)
	if err != nil {
		return nil, err
	}

	extracted, err := dataset.Value()
	if err != nil {
		return nil, err
	}
	frame, err := script.OrderedDict(dataset.Headers, columnsAsAny(dataset))
	if err != nil {
		return nil, err
	}
	outputs, err := p.runtime.Run(ctx, script.Contract{
		Name: "chart",
		Inputs: starlark.StringDict{
			prompt.BindingExtractedData: extracted,
			prompt.BindingFrame:         frame,
			prompt.BindingPlot:          PlotModule(),
			"math":                      script.Math,
		},
		Outputs: []string{prompt.BindingFigure},
	}, code)
	if err != nil {
		return nil, err
	}

	fig, ok := outputs[prompt.BindingFigure].(*Figure)
	if !ok {
		return nil, &script.ContractError{Contract: "chart", Binding: prompt.BindingFigure,
			Reason: fmt.Sprintf("is %s, not a figure", outputs[prompt.BindingFigure].Type())}
	}
	if len(fig.Series) == 0 {
		return nil, &script.ContractError{Contract: "chart", Binding: prompt.BindingFigure, Reason: "has no series"}
	}
	if fig.Title == "" {
		fig.Title = title
	}
	return fig, nil
}

func (p *Pipeline) generate(ctx context.Context, task string, messages []llm.Message, temperature float64, maxTokens int) (string, error) {
	out, err := p.models.Complete(ctx, messages, []string{p.cfg.Model}, llm.Options{
		Task:        task,
		Temperature: llm.Float(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	code := ExtractCode(out.Text)
	if code == "" {
		return "", fmt.Errorf("model %s returned no code", out.Model)
	}
	return code, nil
}

func (p *Pipeline) fail(ctx context.Context, phase Phase, err error) error {
	observability.IncrementPipelineFailure("chart_" + string(phase))
	p.logger.WarnContext(ctx, "chart_pipeline_failed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("phase", string(phase)),
		slog.String("error", err.Error()),
	)
	return &PipelineError{Phase: phase, Err: err}
}

var fencedCode = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\n?(.*?)```")

// ExtractCode returns the body of the first fenced block, or the trimmed text
// when there is no complete fence.
func ExtractCode(raw string) string {
	if m := fencedCode.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
			trimmed = trimmed[nl+1:]
		}
	}
	return strings.TrimSpace(trimmed)
}

func columnsAsAny(d Dataset) map[string]any {
	out := make(map[string]any, len(d.Columns))
	for name, values := range d.Columns {
		out[name] = values
	}
	return out
}
