// Package nl2sql turns a natural-language question into a validated SQL
// statement for the connected data source.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/observability"
	"github.com/querylens/querylens/internal/prompt"
	"github.com/querylens/querylens/internal/schema"
	"github.com/querylens/querylens/internal/sqlcheck"
)

var (
	ErrEmptyRequest    = errors.New("request text is required")
	ErrRequestRejected = errors.New("request is not a data question")
)

type Catalog interface {
	Get(ctx context.Context) (*schema.Descriptor, error)
}

type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, candidates []string, opts llm.Options) (llm.Outcome, error)
}

type Config struct {
	Candidates  []string
	Temperature float64
}

type Result struct {
	SQL   string `json:"sql"`
	Model string `json:"model"`
}

type Synthesizer struct {
	models Completer
	cfg    Config
	logger *slog.Logger
}

func NewSynthesizer(models Completer, cfg Config, logger *slog.Logger) (*Synthesizer, error) {
	if models == nil {
		return nil, fmt.Errorf("model gateway is required")
	}
	if len(cfg.Candidates) == 0 {
		return nil, fmt.Errorf("at least one candidate model is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synthesizer{models: models, cfg: cfg, logger: logger}, nil
}

// Generate fails closed: the returned statement has always passed
// sqlcheck.Validate, and any failing stage yields an error and no SQL.
func (s *Synthesizer) Generate(ctx context.Context, catalog Catalog, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyRequest
	}
	if catalog == nil {
		return Result{}, fmt.Errorf("%w: no catalog", schema.ErrUnavailable)
	}
	desc, err := catalog.Get(ctx)
	if err != nil {
		observability.IncrementPipelineFailure("sql_schema")
		return Result{}, err
	}

	messages := prompt.SQLGeneration{
		Dialect:    desc.Dialect,
		SchemaText: schema.RenderPromptText(desc),
		Request:    text,
	}.Messages()
	out, err := s.models.Complete(ctx, messages, s.cfg.Candidates, llm.Options{
		Task:        "sql",
		Temperature: llm.Float(s.cfg.Temperature),
	})
	if err != nil {
		observability.IncrementPipelineFailure("sql_generation")
		return Result{}, fmt.Errorf("generate sql: %w", err)
	}

	sql := sqlcheck.Clean(out.Text)
	if strings.HasPrefix(sql, strings.TrimSuffix(prompt.RejectionSentinel, ".")) {
		observability.IncrementPipelineFailure("sql_rejected")
		return Result{}, ErrRequestRejected
	}
	if err := sqlcheck.Validate(ctx, desc.Dialect, sql); err != nil {
		observability.IncrementPipelineFailure("sql_validation")
		s.logger.WarnContext(ctx, "generated_sql_invalid",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("model", out.Model),
			slog.String("error", err.Error()),
		)
		return Result{}, err
	}

	s.logger.InfoContext(ctx, "sql_generated",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("model", out.Model),
		slog.Int("attempts", len(out.Attempts)),
	)
	return Result{SQL: sql, Model: out.Model}, nil
}
