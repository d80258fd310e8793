package sqlcheck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

// scratchEngine is an empty in-memory database used only to run the dialect's
// own parser. It never sees the connected data source.
type scratchEngine struct {
	driver string
	dsn    string

	once sync.Once
	db   *sql.DB
	err  error
}

func (e *scratchEngine) open() (*sql.DB, error) {
	e.once.Do(func() {
		e.db, e.err = sql.Open(e.driver, e.dsn)
	})
	return e.db, e.err
}

var (
	sqliteScratch = &scratchEngine{driver: "sqlite", dsn: ":memory:"}
	duckdbScratch = &scratchEngine{driver: "duckdb", dsn: ""}
)

// parseSQLite compiles each statement under EXPLAIN, which prepares the
// program without running it. The scratch database has no tables, so name
// resolution errors are expected and only parser errors fail the check.
func parseSQLite(ctx context.Context, sqlText string) (Analysis, error) {
	stmts := splitStatements(sqlText)
	if len(stmts) == 0 {
		return Analysis{}, &SyntaxError{SQL: sqlText, Message: "no statement found"}
	}
	db, err := sqliteScratch.open()
	if err != nil {
		return Analysis{}, fmt.Errorf("open sqlite parser: %w", err)
	}
	for _, stmt := range stmts {
		query := stmt.text
		if len(stmt.words) == 0 || stmt.words[0] != "EXPLAIN" {
			query = "EXPLAIN " + query
		}
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			if isSQLiteSyntaxError(err) {
				return Analysis{}, &SyntaxError{SQL: sqlText, Message: err.Error()}
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Analysis{}, ctxErr
			}
			continue
		}
		_ = rows.Close()
	}
	return lexicalAnalysis(stmts), nil
}

func isSQLiteSyntaxError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"syntax error", "incomplete input", "unrecognized token"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// parseDuckDB runs DuckDB's statement extraction, which parses without
// binding or executing anything.
func parseDuckDB(ctx context.Context, sqlText string) (Analysis, error) {
	stmts := splitStatements(sqlText)
	if len(stmts) == 0 {
		return Analysis{}, &SyntaxError{SQL: sqlText, Message: "no statement found"}
	}
	db, err := duckdbScratch.open()
	if err != nil {
		return Analysis{}, fmt.Errorf("open duckdb parser: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return Analysis{}, fmt.Errorf("open duckdb parser: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := duckdb.GetTableNames(conn, sqlText, false); err != nil {
		var duckErr *duckdb.Error
		if errors.As(err, &duckErr) && duckErr.Type == duckdb.ErrorTypeParser {
			return Analysis{}, &SyntaxError{SQL: sqlText, Message: duckErr.Msg}
		}
		return Analysis{}, fmt.Errorf("parse duckdb statement: %w", err)
	}
	return lexicalAnalysis(stmts), nil
}
