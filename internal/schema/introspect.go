package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NewIntrospector returns the catalog reader for a dialect. Each introspection
// holds a single pooled connection for its lifetime.
func NewIntrospector(dialect string, db *sql.DB) (Introspector, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	var read func(ctx context.Context, q queryer) (*Descriptor, error)
	switch strings.ToLower(dialect) {
	case "mysql":
		read = introspectMySQL
	case "postgres":
		read = introspectPostgres
	case "sqlite":
		read = introspectSQLite
	case "duckdb":
		read = introspectDuckDB
	default:
		return nil, fmt.Errorf("no introspector for dialect %q", dialect)
	}
	return IntrospectorFunc(func(ctx context.Context) (*Descriptor, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire connection: %w", err)
		}
		defer func() { _ = conn.Close() }()
		return read(ctx, conn)
	}), nil
}

// scanAll runs query and calls scan once per row. Rows are closed before it
// returns so callers may issue follow-up queries on the same connection.
func scanAll(ctx context.Context, q queryer, query string, scan func(*sql.Rows) error, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func nullableDefault(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}
