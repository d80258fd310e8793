package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/querylens/querylens/internal/query"
	"github.com/querylens/querylens/internal/storage"
)

type generateRequest struct {
	Text string `json:"text"`
}

type sqlRequest struct {
	SQL string `json:"sql"`
}

type graphRequest struct {
	SQL       string `json:"sql"`
	ChartType string `json:"chart_type"`
	ChartName string `json:"chart_name"`
}

type executeResponse struct {
	Columns         []string       `json:"columns"`
	Results         []query.Row    `json:"results"`
	OptimizationTip string         `json:"optimization_tip,omitempty"`
	Stats           map[string]any `json:"stats"`
}

func handleGenerateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request generateRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid generate request body", false, map[string]any{"details": err.Error()})
		return
	}
	statement, err := deps.Assistant.GenerateSQL(r.Context(), request.Text)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sql": statement})
}

func handleExecuteSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request sqlRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid execute request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	result, err := deps.Assistant.ExecuteQuery(r.Context(), request.SQL)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		Columns:         result.Columns,
		Results:         result.Rows,
		OptimizationTip: result.OptimizationTip,
		Stats: map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
			"row_count":   len(result.Rows),
		},
	})
}

func handleGenerateGraph(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request graphRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid graph request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	artifact, err := deps.Assistant.GenerateGraph(r.Context(), request.SQL, request.ChartType, request.ChartName)
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

func handleGetChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Charts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "chart archive is not enabled", false, nil)
		return
	}
	key := r.PathValue("key")
	body, info, err := deps.Charts.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CHART_NOT_FOUND", "chart was not found", false, map[string]any{"key": key})
			return
		}
		writeServiceError(r, w, err)
		return
	}
	defer func() { _ = body.Close() }()

	contentType := storage.ContentTypePNG
	if strings.HasSuffix(key, ".parquet") {
		contentType = storage.ContentTypeParquet
	}
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
