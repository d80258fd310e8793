// Package s3 keeps archived charts in an S3-compatible bucket through minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/querylens/querylens/internal/config"
	"github.com/querylens/querylens/internal/storage"
)

// bucket is the part of the S3 API the chart archive touches, bound to a
// single bucket.
type bucket interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	StatObject(ctx context.Context, key string) (storage.ObjectInfo, error)
	RemoveObject(ctx context.Context, key string) error
	Exists(ctx context.Context) (bool, error)
	Make(ctx context.Context, region string) error
}

// Store implements storage.ObjectStore for chart artifacts. Only keys laid out
// by storage.BuildChartKeys are accepted.
type Store struct {
	bucket bucket
	name   string
	prefix string
}

func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	host, secure, err := endpointHost(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store := newStore(name, cfg.Prefix, minioBucket{client: client, name: name})
	if cfg.AutoCreateBucket {
		if err := store.provision(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(name, prefix string, b bucket) *Store {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		prefix = path.Clean(prefix)
	}
	return &Store{bucket: b, name: name, prefix: prefix}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	info, err := s.bucket.PutObject(ctx, objectKey, body, size, contentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put %s: %w", objectKey, err)
	}
	info.Key = key
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.bucket.GetObject(ctx, objectKey)
	if err != nil {
		return nil, s.wrap("get", objectKey, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.StatObject(ctx, objectKey)
	if err != nil {
		return storage.ObjectInfo{}, s.wrap("stat", objectKey, err)
	}
	info.Key = key
	return info, nil
}

// Delete is idempotent: removing an artifact that is already gone succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if err := s.bucket.RemoveObject(ctx, objectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete %s: %w", objectKey, err)
	}
	return nil
}

// Ready fails until the archive bucket exists.
func (s *Store) Ready(ctx context.Context) error {
	ok, err := s.bucket.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.name, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.name)
	}
	return nil
}

func (s *Store) provision(ctx context.Context, region string) error {
	if err := s.Ready(ctx); err == nil {
		return nil
	}
	if err := s.bucket.Make(ctx, region); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.name, err)
	}
	return nil
}

// objectKey maps an archive key to its location under the configured prefix.
func (s *Store) objectKey(key string) (string, error) {
	if !storage.IsChartKey(key) {
		return "", fmt.Errorf("not a chart artifact key: %q", key)
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

func (s *Store) wrap(op, objectKey string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return storage.ErrObjectNotFound
	}
	return fmt.Errorf("%s %s: %w", op, objectKey, err)
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".png":
		return storage.ContentTypePNG
	case ".parquet":
		return storage.ContentTypeParquet
	default:
		return "application/octet-stream"
	}
}

// endpointHost accepts either a bare host:port or a URL; an https scheme
// forces TLS on.
func endpointHost(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("object store endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false, fmt.Errorf("invalid object store endpoint %q", raw)
	}
	return u.Host, useSSL || u.Scheme == "https", nil
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b minioBucket) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	up, err := b.client.PutObject(ctx, b.name, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Size: up.Size, ETag: up.ETag, LastModified: up.LastModified}, nil
}

// GetObject stats the object before returning it; minio defers the request
// until the first read otherwise, hiding a missing key from the caller.
func (b minioBucket) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, notFound(err)
	}
	return obj, nil
}

func (b minioBucket) StatObject(ctx context.Context, key string) (storage.ObjectInfo, error) {
	st, err := b.client.StatObject(ctx, b.name, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Size: st.Size, ETag: st.ETag, LastModified: st.LastModified}, nil
}

func (b minioBucket) RemoveObject(ctx context.Context, key string) error {
	return notFound(b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{}))
}

func (b minioBucket) Exists(ctx context.Context) (bool, error) {
	return b.client.BucketExists(ctx, b.name)
}

func (b minioBucket) Make(ctx context.Context, region string) error {
	return b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: region})
}

func notFound(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
