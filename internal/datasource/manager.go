package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/querylens/querylens/internal/observability"
	"github.com/querylens/querylens/internal/schema"
)

// Session is one live connection and the schema catalog built for it. A
// session is immutable once published; reconnecting produces a new one.
type Session struct {
	ID          string
	Dialect     Dialect
	DB          *sql.DB
	Catalog     *schema.Catalog
	ConnectedAt time.Time
}

type Status struct {
	Connected   bool      `json:"connected"`
	SessionID   string    `json:"session_id,omitempty"`
	Dialect     string    `json:"dialect,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
	Tables      int       `json:"tables"`
}

// Manager holds the current session. Readers load it without locking;
// Connect and Disconnect are serialized.
type Manager struct {
	logger *slog.Logger
	open   func(ctx context.Context, cfg Config) (*sql.DB, Dialect, error)
	now    func() time.Time

	current atomic.Pointer[Session]
	mu      sync.Mutex
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{logger: logger, open: Open, now: time.Now}
}

// Connect opens the database, introspects its schema and only then replaces
// the current session. On failure the previous session stays in place.
func (m *Manager) Connect(ctx context.Context, cfg Config) (*Session, error) {
	db, dialect, err := m.open(ctx, cfg)
	if err != nil {
		m.logger.WarnContext(ctx, "datasource_connect_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("dialect", cfg.Dialect),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	session, err := m.Attach(ctx, dialect, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return session, nil
}

// Attach publishes an already opened handle as the current session. The
// manager takes ownership of db.
func (m *Manager) Attach(ctx context.Context, dialect Dialect, db *sql.DB) (*Session, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	introspector, err := schema.NewIntrospector(string(dialect), db)
	if err != nil {
		return nil, err
	}
	catalog := schema.NewCatalog(introspector, m.logger)
	if _, err := catalog.Refresh(ctx); err != nil {
		return nil, err
	}

	session := &Session{
		ID:          uuid.NewString(),
		Dialect:     dialect,
		DB:          db,
		Catalog:     catalog,
		ConnectedAt: m.now().UTC(),
	}

	m.mu.Lock()
	previous := m.current.Swap(session)
	m.mu.Unlock()
	if previous != nil {
		m.closeSession(ctx, previous)
	}

	m.logger.InfoContext(ctx, "datasource_connected",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("session_id", session.ID),
		slog.String("dialect", string(dialect)),
		slog.Int("tables", len(catalog.Snapshot().Tables)),
	)
	return session, nil
}

func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	previous := m.current.Swap(nil)
	m.mu.Unlock()
	if previous == nil {
		return ErrNotConnected
	}
	return m.closeSession(ctx, previous)
}

func (m *Manager) Session() (*Session, error) {
	session := m.current.Load()
	if session == nil {
		return nil, ErrNotConnected
	}
	return session, nil
}

func (m *Manager) IsConnected() bool {
	return m.current.Load() != nil
}

func (m *Manager) Status() Status {
	session := m.current.Load()
	if session == nil {
		return Status{}
	}
	status := Status{
		Connected:   true,
		SessionID:   session.ID,
		Dialect:     string(session.Dialect),
		ConnectedAt: session.ConnectedAt,
	}
	if d := session.Catalog.Snapshot(); d != nil {
		status.Tables = len(d.Tables)
	}
	return status
}

func (m *Manager) Close() error {
	if err := m.Disconnect(context.Background()); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

func (m *Manager) closeSession(ctx context.Context, session *Session) error {
	err := session.DB.Close()
	attrs := []any{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("session_id", session.ID),
	}
	if err != nil {
		m.logger.WarnContext(ctx, "datasource_close_failed", append(attrs, slog.String("error", err.Error()))...)
		return fmt.Errorf("close session %s: %w", session.ID, err)
	}
	m.logger.InfoContext(ctx, "datasource_disconnected", attrs...)
	return nil
}
