// Package query runs validated SQL against the connected data source.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/querylens/querylens/internal/datasource"
	"github.com/querylens/querylens/internal/observability"
	"github.com/querylens/querylens/internal/sqlcheck"
)

type Sessions interface {
	Session() (*datasource.Session, error)
}

type Config struct {
	// MaxRows refuses larger result sets instead of truncating them. Zero
	// disables the check.
	MaxRows int
	Explain bool
	Timeout time.Duration
}

type Executor struct {
	sessions Sessions
	cfg      Config
	logger   *slog.Logger
}

func NewExecutor(sessions Sessions, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{sessions: sessions, cfg: cfg, logger: logger}
}

// Run validates sqlText, executes it on a dedicated pooled connection and
// attaches an optimization tip from the statement's execution plan.
func (e *Executor) Run(ctx context.Context, sqlText string) (Result, error) {
	if e.sessions == nil {
		return Result{}, datasource.ErrNotConnected
	}
	session, err := e.sessions.Session()
	if err != nil {
		return Result{}, err
	}
	// Parsed in the session's grammar before any pooled connection is taken.
	analysis, err := sqlcheck.Analyze(ctx, string(session.Dialect), sqlText)
	if err != nil {
		return Result{}, err
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	statement := sqlcheck.StripTrailingSemicolons(sqlText)
	start := time.Now()
	result, err := e.fetch(ctx, session.DB, statement)
	if err != nil {
		observability.IncrementPipelineFailure("query_execution")
		e.logger.WarnContext(ctx, "query_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return Result{}, &ExecutionError{SQL: sqlText, Err: err}
	}
	result.Duration = time.Since(start)
	observability.ObserveQuery(len(result.Rows), result.Duration)

	if e.cfg.Explain && analysis.ReadOnly {
		result.OptimizationTip = e.optimizationTip(ctx, session, statement)
	}

	e.logger.InfoContext(ctx, "query_executed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("session_id", session.ID),
		slog.Int("rows", len(result.Rows)),
		slog.Int64("duration_ms", result.Duration.Milliseconds()),
	)
	return result, nil
}

func (e *Executor) fetch(ctx context.Context, db *sql.DB, statement string) (Result, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}
	result := Result{Columns: columns, Rows: make([]Row, 0)}
	if len(columns) == 0 {
		return result, rows.Err()
	}

	for rows.Next() {
		if e.cfg.MaxRows > 0 && len(result.Rows) >= e.cfg.MaxRows {
			return Result{}, fmt.Errorf("%w of %d", ErrRowLimit, e.cfg.MaxRows)
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, Row{Columns: columns, Values: normalizeValues(values)})
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
