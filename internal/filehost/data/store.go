package data

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound indicates that the blob does not exist in the store
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the storage collaborator owning file content. Each key is
// written exactly once, at registration; only delete paths remove blobs.
type BlobStore interface {
	// Put streams content under key and returns the storage path for it.
	// size may be -1 when unknown (e.g. chunked URL ingestion).
	Put(ctx context.Context, key string, content io.Reader, size int64) (string, error)

	// Get opens the full content at path
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// GetRange opens length bytes of content starting at offset
	GetRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)

	// Delete removes the blob at path. Returns ErrBlobNotFound when absent.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a blob is present at path
	Exists(ctx context.Context, path string) (bool, error)

	// SizeOf returns the blob size in bytes
	SizeOf(ctx context.Context, path string) (int64, error)
}
