// Package archive keeps rendered charts in object storage together with a
// Parquet snapshot of the rows they were drawn from.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/querylens/querylens/internal/observability"
	"github.com/querylens/querylens/internal/query"
	"github.com/querylens/querylens/internal/storage"
)

type Record struct {
	SQL       string
	Kind      string
	Title     string
	PNG       []byte
	Result    query.Result
	CreatedAt time.Time
}

type Archive struct {
	store  storage.ObjectStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(store storage.ObjectStore, logger *slog.Logger) (*Archive, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Archive{store: store, logger: logger, now: time.Now, newID: uuid.NewString}, nil
}

// Save writes the image and then the snapshot and returns the image key. When
// the snapshot cannot be written the image is removed again so no chart is
// left without its data.
func (a *Archive) Save(ctx context.Context, rec Record) (string, error) {
	if len(rec.PNG) == 0 {
		return "", fmt.Errorf("chart image is required")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.now()
	}
	keys, err := storage.BuildChartKeys(createdAt, a.newID())
	if err != nil {
		return "", err
	}
	snapshot, err := EncodeSnapshot(rec, createdAt)
	if err != nil {
		return "", err
	}

	if _, err := a.store.Put(ctx, keys.Image, bytes.NewReader(rec.PNG), int64(len(rec.PNG)), storage.PutOptions{ContentType: storage.ContentTypePNG}); err != nil {
		return "", fmt.Errorf("archive chart image: %w", err)
	}
	if _, err := a.store.Put(ctx, keys.Snapshot, bytes.NewReader(snapshot), int64(len(snapshot)), storage.PutOptions{ContentType: storage.ContentTypeParquet}); err != nil {
		if delErr := a.store.Delete(ctx, keys.Image); delErr != nil {
			a.logger.WarnContext(ctx, "archive_cleanup_failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("key", keys.Image),
				slog.String("error", delErr.Error()),
			)
		}
		return "", fmt.Errorf("archive result snapshot: %w", err)
	}

	a.logger.InfoContext(ctx, "chart_archived",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("key", keys.Image),
		slog.Int("png_bytes", len(rec.PNG)),
		slog.Int("snapshot_bytes", len(snapshot)),
	)
	return keys.Image, nil
}

// Open returns an archived object. Only keys in the chart layout are served.
func (a *Archive) Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if !storage.IsChartKey(key) {
		return nil, storage.ObjectInfo{}, fmt.Errorf("%w: %q", storage.ErrObjectNotFound, key)
	}
	info, err := a.store.Stat(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	body, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return body, info, nil
}
