package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/querylens/querylens/internal/datasource"
	"github.com/querylens/querylens/internal/schema"
)

type connectRequest struct {
	Dialect  string `json:"dialect"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

func handleConnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request connectRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid connect request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.DSN) == "" && strings.TrimSpace(request.Database) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATABASE_REQUIRED", "dsn or database is required", false, nil)
		return
	}
	if _, err := datasource.ParseDialect(request.Dialect); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_DIALECT", err.Error(), false, nil)
		return
	}

	cfg := deps.ConnectDefaults
	cfg.Dialect = request.Dialect
	cfg.DSN = request.DSN
	cfg.Host = request.Host
	cfg.Port = request.Port
	cfg.User = request.User
	cfg.Password = request.Password
	cfg.Database = request.Database

	if err := deps.Assistant.Connect(r.Context(), cfg); err != nil {
		// Driver errors can echo credentials, so only the dialect is reported.
		writeError(r.Context(), w, http.StatusBadGateway, "CONNECT_FAILED", "failed to connect to database", true, map[string]any{
			"dialect": request.Dialect,
			"details": redact(err.Error(), request.Password),
		})
		return
	}
	writeJSON(w, http.StatusOK, deps.Assistant.Status())
}

func handleDisconnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := deps.Assistant.Disconnect(r.Context()); err != nil {
		writeServiceError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps.Assistant.Status())
}

func handleStatus(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, deps.Assistant.Status())
}

type columnView struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	BaseType      string  `json:"base_type"`
	Nullable      bool    `json:"nullable"`
	Default       *string `json:"default"`
	AutoIncrement bool    `json:"auto_increment"`
	Comment       string  `json:"comment"`
	IsPrimary     bool    `json:"is_primary"`
	IsUnique      bool    `json:"is_unique"`
	IsIndexed     bool    `json:"is_indexed"`
}

type foreignKeyView struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
}

type indexView struct {
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

type tableView struct {
	Columns     []columnView         `json:"columns"`
	PrimaryKeys []string             `json:"primary_keys"`
	ForeignKeys []foreignKeyView     `json:"foreign_keys"`
	Metadata    map[string]any       `json:"table_metadata"`
	Indexes     map[string]indexView `json:"indexes"`
}

type schemaView struct {
	Dialect     string               `json:"dialect"`
	RefreshedAt time.Time            `json:"refreshed_at"`
	Tables      map[string]tableView `json:"tables"`
}

func newSchemaView(d *schema.Descriptor) schemaView {
	view := schemaView{Dialect: d.Dialect, RefreshedAt: d.RefreshedAt, Tables: make(map[string]tableView, len(d.Tables))}
	for name, table := range d.Tables {
		tv := tableView{
			Columns:     make([]columnView, 0, len(table.Columns)),
			PrimaryKeys: append([]string{}, table.PrimaryKeys...),
			ForeignKeys: make([]foreignKeyView, 0, len(table.ForeignKeys)),
			Metadata: map[string]any{
				"comment":        table.Metadata.Comment,
				"estimated_rows": table.Metadata.EstimatedRows,
			},
			Indexes: make(map[string]indexView, len(table.Indexes)),
		}
		for _, c := range table.Columns {
			tv.Columns = append(tv.Columns, columnView{
				Name:          c.Name,
				Type:          c.DeclaredType,
				BaseType:      c.BaseType,
				Nullable:      c.Nullable,
				Default:       c.Default,
				AutoIncrement: c.AutoIncrement,
				Comment:       c.Comment,
				IsPrimary:     c.IsPrimary,
				IsUnique:      c.IsUnique,
				IsIndexed:     c.IsIndexed,
			})
		}
		for _, fk := range table.ForeignKeys {
			tv.ForeignKeys = append(tv.ForeignKeys, foreignKeyView{Column: fk.Column, ReferencesTable: fk.RefTable, ReferencesColumn: fk.RefColumn})
		}
		for idx, index := range table.Indexes {
			tv.Indexes[idx] = indexView{Columns: index.Columns, Unique: index.Unique}
		}
		view.Tables[name] = tv
	}
	return view
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	desc, err := deps.Assistant.Schema(r.Context())
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSchemaView(desc))
}

func handleSchemaText(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	text, err := deps.Assistant.SchemaText(r.Context())
	if err != nil {
		writeServiceError(r, w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func handleRefreshSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := deps.Assistant.RefreshSchema(r.Context()); err != nil {
		writeServiceError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps.Assistant.Status())
}

func redact(text, secret string) string {
	if secret == "" {
		return text
	}
	return strings.ReplaceAll(text, secret, "****")
}
