package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querylens/querylens/internal/auth"
	"github.com/querylens/querylens/internal/chart"
	"github.com/querylens/querylens/internal/config"
	"github.com/querylens/querylens/internal/datasource"
	"github.com/querylens/querylens/internal/observability"
	"github.com/querylens/querylens/internal/query"
	"github.com/querylens/querylens/internal/schema"
	"github.com/querylens/querylens/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// Assistant is the set of operations the HTTP surface exposes.
type Assistant interface {
	GenerateSQL(ctx context.Context, text string) (string, error)
	ExecuteQuery(ctx context.Context, sqlText string) (query.Result, error)
	GenerateGraph(ctx context.Context, sqlText, kind, name string) (chart.Artifact, error)
	Schema(ctx context.Context) (*schema.Descriptor, error)
	SchemaText(ctx context.Context) (string, error)
	RefreshSchema(ctx context.Context) error
	Status() datasource.Status
	Connect(ctx context.Context, cfg datasource.Config) error
	Disconnect(ctx context.Context) error
}

type ChartArchive interface {
	Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
	Charts            ChartArchive
	// ConnectDefaults fills pool settings on connect requests.
	ConnectDefaults datasource.Config
}

type route struct {
	pattern string
	role    string
	handle  func(Dependencies, http.ResponseWriter, *http.Request)
}

var protectedRoutes = []route{
	{"GET /v1/status", auth.RoleAnalyst, handleStatus},
	{"POST /v1/connect", auth.RoleAdmin, handleConnect},
	{"POST /v1/disconnect", auth.RoleAdmin, handleDisconnect},
	{"GET /v1/schema", auth.RoleAnalyst, handleSchema},
	{"GET /v1/schema/text", auth.RoleAnalyst, handleSchemaText},
	{"POST /v1/schema/refresh", auth.RoleAdmin, handleRefreshSchema},
	{"POST /v1/sql/generate", auth.RoleAnalyst, handleGenerateSQL},
	{"POST /v1/sql/execute", auth.RoleAnalyst, handleExecuteSQL},
	{"POST /v1/graph", auth.RoleAnalyst, handleGenerateGraph},
	{"GET /v1/charts/{key...}", auth.RoleAnalyst, handleGetChart},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	for _, rt := range protectedRoutes {
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			if deps.Assistant == nil {
				writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependency is not configured", false, nil)
				return
			}
			if err := auth.RequireRole(r, rt.role); err != nil {
				writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
				return
			}
			rt.handle(deps, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range protectedRoutes {
		mux.Handle(rt.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckObjectStore reports the archive bucket as a readiness dependency.
func CheckObjectStore(ready func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ready == nil {
			return errors.New("object store is not configured")
		}
		return ready(ctx)
	}
}

// CheckModelProvider fails when no completion backend has credentials.
func CheckModelProvider(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.APIKey == "" && cfg.AI.AnthropicAPIKey == "" {
			return errors.New("no model provider api key is configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
