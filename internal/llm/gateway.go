package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querylens/querylens/internal/observability"
)

var ErrExhausted = errors.New("all candidate models failed")

// Attempt records the outcome of one candidate.
type Attempt struct {
	Model    string
	Err      error
	Duration time.Duration
}

// Outcome is the tagged result of a successful Complete call.
type Outcome struct {
	Text     string
	Model    string
	Attempts []Attempt
}

type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all candidate models failed: no candidates"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Model, a.Err))
	}
	return "all candidate models failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Last returns the error of the final attempt.
func (e *ExhaustedError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

type Options struct {
	// Task labels metrics and logs, e.g. "sql" or "chart".
	Task        string
	Temperature *float64
	MaxTokens   int
}

type Gateway struct {
	client  Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewGateway(client Client, timeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{client: client, timeout: timeout, logger: logger}
}

// Complete tries each candidate once, in order, and returns the first
// non-empty response. It never makes more calls than there are candidates.
func (g *Gateway) Complete(ctx context.Context, messages []Message, candidates []string, opts Options) (Outcome, error) {
	attempts := make([]Attempt, 0, len(candidates))
	for _, model := range candidates {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Model: model, Err: err})
			break
		}
		start := time.Now()
		text, err := g.call(ctx, model, messages, opts)
		elapsed := time.Since(start)
		observability.ObserveModelAttempt(opts.Task, model, err, elapsed)
		attempts = append(attempts, Attempt{Model: model, Err: err, Duration: elapsed})
		if err == nil {
			return Outcome{Text: text, Model: model, Attempts: attempts}, nil
		}
		g.logger.WarnContext(ctx, "model_attempt_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("task", opts.Task),
			slog.String("model", model),
			slog.String("duration", elapsed.String()),
			slog.String("error", err.Error()),
		)
	}
	return Outcome{}, &ExhaustedError{Attempts: attempts}
}

func (g *Gateway) call(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	text, err := g.client.Complete(callCtx, Request{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
