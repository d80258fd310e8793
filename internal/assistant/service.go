// Package assistant wires the generation, execution and chart components
// behind the operations the HTTP surface and the CLI call.
package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/querylens/querylens/internal/archive"
	"github.com/querylens/querylens/internal/chart"
	"github.com/querylens/querylens/internal/config"
	"github.com/querylens/querylens/internal/datasource"
	"github.com/querylens/querylens/internal/insight"
	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/nl2sql"
	"github.com/querylens/querylens/internal/observability"
	"github.com/querylens/querylens/internal/query"
	"github.com/querylens/querylens/internal/schema"
	"github.com/querylens/querylens/internal/script"
)

type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, candidates []string, opts llm.Options) (llm.Outcome, error)
}

type Options struct {
	Synthesis nl2sql.Config
	Query     query.Config
	Chart     chart.Config
	Insight   insight.Config
	MaxSteps  int
}

// OptionsFromConfig maps the service configuration onto the component
// settings.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Synthesis: nl2sql.Config{
			Candidates:  cfg.AI.SQLModels,
			Temperature: cfg.AI.SQLTemperature,
		},
		Query: query.Config{
			MaxRows: cfg.Query.MaxRows,
			Explain: cfg.Query.Explain,
			Timeout: cfg.Query.Timeout,
		},
		Chart: chart.Config{
			Model:              cfg.AI.ChartModel,
			ExtractTemperature: cfg.AI.ExtractTemp,
			ExtractMaxTokens:   cfg.AI.ExtractMaxTokens,
			ChartTemperature:   cfg.AI.ChartTemp,
			ChartMaxTokens:     cfg.AI.ChartMaxTokens,
		},
		Insight: insight.Config{
			Model:       cfg.AI.InsightModel,
			Temperature: cfg.AI.InsightTemp,
			MaxTokens:   cfg.AI.InsightMaxTokens,
		},
		MaxSteps: cfg.Script.MaxSteps,
	}
}

type Service struct {
	sessions    *datasource.Manager
	synthesizer *nl2sql.Synthesizer
	executor    *query.Executor
	charts      *chart.Pipeline
	insights    *insight.Summarizer
	archive     *archive.Archive
	logger      *slog.Logger
}

// New builds the service. archive may be nil, in which case charts are not
// kept after the response.
func New(sessions *datasource.Manager, models Completer, store *archive.Archive, opts Options, logger *slog.Logger) (*Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	synthesizer, err := nl2sql.NewSynthesizer(models, opts.Synthesis, logger)
	if err != nil {
		return nil, err
	}
	charts, err := chart.NewPipeline(models, script.NewRuntime(opts.MaxSteps, logger), opts.Chart, logger)
	if err != nil {
		return nil, err
	}
	insights, err := insight.NewSummarizer(models, opts.Insight, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		sessions:    sessions,
		synthesizer: synthesizer,
		executor:    query.NewExecutor(sessions, opts.Query, logger),
		charts:      charts,
		insights:    insights,
		archive:     store,
		logger:      logger,
	}, nil
}

// GenerateSQL returns a statement only after it passed validation.
func (s *Service) GenerateSQL(ctx context.Context, text string) (string, error) {
	session, err := s.sessions.Session()
	if err != nil {
		return "", err
	}
	result, err := s.synthesizer.Generate(ctx, session.Catalog, text)
	if err != nil {
		return "", err
	}
	return result.SQL, nil
}

func (s *Service) ExecuteQuery(ctx context.Context, sqlText string) (query.Result, error) {
	return s.executor.Run(ctx, sqlText)
}

// GenerateGraph executes sqlText and charts its rows. The chart is returned
// only when both script phases succeeded. Insight and archive failures never
// fail the call.
func (s *Service) GenerateGraph(ctx context.Context, sqlText, kind, name string) (chart.Artifact, error) {
	chartKind, err := chart.ParseKind(kind)
	if err != nil {
		return chart.Artifact{}, err
	}
	result, err := s.executor.Run(ctx, sqlText)
	if err != nil {
		return chart.Artifact{}, err
	}
	out, err := s.charts.Render(ctx, result, chartKind, name)
	if err != nil {
		return chart.Artifact{}, err
	}

	text, err := s.insights.Summarize(ctx, result, string(chartKind))
	if err != nil {
		text = insight.UnavailableMessage
	}
	artifact := chart.Artifact{
		ImageBase64: base64.StdEncoding.EncodeToString(out.PNG),
		Insights:    text,
	}

	if s.archive != nil {
		key, err := s.archive.Save(ctx, archive.Record{
			SQL:       sqlText,
			Kind:      string(chartKind),
			Title:     name,
			PNG:       out.PNG,
			Result:    result,
			CreatedAt: time.Now(),
		})
		if err != nil {
			observability.IncrementPipelineFailure("archive")
			s.logger.WarnContext(ctx, "chart_archive_failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("error", err.Error()),
			)
		} else {
			artifact.ArchiveKey = key
		}
	}
	return artifact, nil
}

func (s *Service) Schema(ctx context.Context) (*schema.Descriptor, error) {
	session, err := s.sessions.Session()
	if err != nil {
		return nil, err
	}
	return session.Catalog.Get(ctx)
}

func (s *Service) SchemaText(ctx context.Context) (string, error) {
	session, err := s.sessions.Session()
	if err != nil {
		return "", err
	}
	return session.Catalog.PromptText(ctx)
}

func (s *Service) RefreshSchema(ctx context.Context) error {
	session, err := s.sessions.Session()
	if err != nil {
		return err
	}
	_, err = session.Catalog.Refresh(ctx)
	return err
}

func (s *Service) IsConnected() bool {
	return s.sessions.IsConnected()
}

func (s *Service) Status() datasource.Status {
	return s.sessions.Status()
}

func (s *Service) Connect(ctx context.Context, cfg datasource.Config) error {
	_, err := s.sessions.Connect(ctx, cfg)
	return err
}

func (s *Service) Disconnect(ctx context.Context) error {
	return s.sessions.Disconnect(ctx)
}

// Archive exposes the chart archive, or nil when archiving is disabled.
func (s *Service) Archive() *archive.Archive {
	return s.archive
}

// Retryable reports whether err is a transient failure that a caller may
// retry unchanged.
func Retryable(err error) bool {
	return errors.Is(err, llm.ErrExhausted) ||
		errors.Is(err, schema.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
