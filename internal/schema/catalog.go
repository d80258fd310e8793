package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/querylens/querylens/internal/observability"
)

// Catalog caches the schema of one connected data source. Readers always see
// a complete snapshot; Refresh swaps the whole Descriptor at once and a failed
// refresh leaves the previous snapshot in place.
type Catalog struct {
	source Introspector
	logger *slog.Logger
	now    func() time.Time

	current atomic.Pointer[Descriptor]
	mu      sync.Mutex
}

func NewCatalog(source Introspector, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{source: source, logger: logger, now: time.Now}
}

// Get returns the cached snapshot, introspecting on first access.
func (c *Catalog) Get(ctx context.Context) (*Descriptor, error) {
	if d := c.current.Load(); d != nil {
		return d, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.current.Load(); d != nil {
		return d, nil
	}
	return c.refreshLocked(ctx)
}

func (c *Catalog) Refresh(ctx context.Context) (*Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// Snapshot returns the cached descriptor without triggering introspection.
func (c *Catalog) Snapshot() *Descriptor {
	return c.current.Load()
}

func (c *Catalog) PromptText(ctx context.Context) (string, error) {
	d, err := c.Get(ctx)
	if err != nil {
		return "", err
	}
	return RenderPromptText(d), nil
}

func (c *Catalog) refreshLocked(ctx context.Context) (*Descriptor, error) {
	if c.source == nil {
		return nil, fmt.Errorf("%w: no introspector configured", ErrUnavailable)
	}
	start := time.Now()
	d, err := c.source.Introspect(ctx)
	if err == nil && d == nil {
		err = fmt.Errorf("introspector returned no descriptor")
	}
	if err != nil {
		observability.ObserveSchemaRefresh(0, err)
		c.logger.WarnContext(ctx, "schema_refresh_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
			slog.Bool("has_previous", c.current.Load() != nil),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	d.RefreshedAt = c.now().UTC()
	c.current.Store(d)
	observability.ObserveSchemaRefresh(len(d.Tables), nil)
	c.logger.InfoContext(ctx, "schema_refreshed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("dialect", d.Dialect),
		slog.Int("tables", len(d.Tables)),
		slog.String("duration", time.Since(start).String()),
	)
	return d, nil
}
