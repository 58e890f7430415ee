package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

const (
	ContentTypeParquet = "application/vnd.apache.parquet"
	ContentTypeJSON    = "application/json"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore holds dataset files read by the DuckDB executor and written by
// the demo seeder.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// PutBytes uploads an in-memory payload.
func PutBytes(ctx context.Context, store ObjectStore, key string, payload []byte, contentType string) (ObjectInfo, error) {
	return store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), PutOptions{ContentType: contentType})
}
