// Package storage defines where export artifacts live once written.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored artifact. Key is relative to the store.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	// ContentDisposition is served back on download when the store keeps
	// response headers.
	ContentDisposition string
}

// ArtifactPutOptions returns the upload options for a CSV export.
func ArtifactPutOptions(name string) PutOptions {
	return PutOptions{
		ContentType:        ArtifactContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
	}
}

// ObjectStore is a flat namespace of artifacts. List returns entries oldest
// first and Delete of a missing key is not an error.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
