package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/querylens/querylens/internal/chart"
	"github.com/querylens/querylens/internal/datasource"
	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/nl2sql"
	"github.com/querylens/querylens/internal/query"
	"github.com/querylens/querylens/internal/schema"
	"github.com/querylens/querylens/internal/script"
	"github.com/querylens/querylens/internal/sqlcheck"
	"github.com/querylens/querylens/internal/storage"
)

type errorMapping struct {
	status    int
	code      string
	retryable bool
}

// classify maps the error taxonomy onto an HTTP status and error code. Order
// matters: wrapped causes are checked before their wrappers.
func classify(err error) errorMapping {
	switch {
	case errors.Is(err, datasource.ErrNotConnected):
		return errorMapping{http.StatusConflict, "DATABASE_NOT_CONNECTED", false}
	case errors.Is(err, nl2sql.ErrEmptyRequest):
		return errorMapping{http.StatusBadRequest, "TEXT_REQUIRED", false}
	case errors.Is(err, nl2sql.ErrRequestRejected):
		return errorMapping{http.StatusUnprocessableEntity, "REQUEST_REJECTED", false}
	case errors.Is(err, chart.ErrUnsupportedKind):
		return errorMapping{http.StatusBadRequest, "UNSUPPORTED_CHART_KIND", false}
	case errors.Is(err, sqlcheck.ErrInvalidSyntax):
		return errorMapping{http.StatusUnprocessableEntity, "INVALID_SQL", false}
	case errors.Is(err, query.ErrRowLimit):
		return errorMapping{http.StatusUnprocessableEntity, "ROW_LIMIT_EXCEEDED", false}
	case errors.Is(err, chart.ErrNoRows):
		return errorMapping{http.StatusUnprocessableEntity, "EMPTY_RESULT", false}
	case errors.Is(err, chart.ErrPipeline):
		return errorMapping{http.StatusBadGateway, "CHART_PIPELINE_FAILED", true}
	case errors.Is(err, llm.ErrExhausted):
		return errorMapping{http.StatusBadGateway, "GENERATION_EXHAUSTED", true}
	case errors.Is(err, schema.ErrUnavailable):
		return errorMapping{http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", true}
	case errors.Is(err, context.DeadlineExceeded):
		return errorMapping{http.StatusGatewayTimeout, "TIMEOUT", true}
	case errors.Is(err, query.ErrExecution):
		return errorMapping{http.StatusBadRequest, "QUERY_EXECUTION_FAILED", false}
	case errors.Is(err, storage.ErrObjectNotFound):
		return errorMapping{http.StatusNotFound, "NOT_FOUND", false}
	default:
		return errorMapping{http.StatusInternalServerError, "INTERNAL_ERROR", true}
	}
}

func writeServiceError(r *http.Request, w http.ResponseWriter, err error) {
	m := classify(err)
	writeError(r.Context(), w, m.status, m.code, err.Error(), m.retryable, errorContext(err))
}

func errorContext(err error) map[string]any {
	extra := map[string]any{}

	var exhausted *llm.ExhaustedError
	if errors.As(err, &exhausted) {
		attempts := make([]map[string]any, 0, len(exhausted.Attempts))
		for _, a := range exhausted.Attempts {
			entry := map[string]any{"model": a.Model}
			if a.Err != nil {
				entry["error"] = a.Err.Error()
			}
			attempts = append(attempts, entry)
		}
		extra["attempts"] = attempts
	}
	var pipeErr *chart.PipelineError
	if errors.As(err, &pipeErr) {
		extra["phase"] = string(pipeErr.Phase)
	}
	var contractErr *script.ContractError
	if errors.As(err, &contractErr) {
		extra["binding"] = contractErr.Binding
	}
	var syntaxErr *sqlcheck.SyntaxError
	if errors.As(err, &syntaxErr) {
		extra["sql"] = syntaxErr.SQL
	}
	var execErr *query.ExecutionError
	if errors.As(err, &execErr) {
		extra["sql"] = execErr.SQL
	}

	if len(extra) == 0 {
		return nil
	}
	return extra
}
