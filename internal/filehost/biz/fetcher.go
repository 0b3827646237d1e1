package biz

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nvlabs/dropzone/internal/filehost/data"
	apperrors "github.com/nvlabs/dropzone/internal/pkg/errors"
	"go.uber.org/zap"
)

// FetchTimeout bounds the whole outbound transfer for URL ingestion
const FetchTimeout = 30 * time.Second

// FetchResult describes a blob persisted from a remote URL
type FetchResult struct {
	StoragePath string
	SizeBytes   int64
	ContentType string
}

// Fetcher downloads remote content into the blob store for URL ingestion.
// Transfers are bounded by FetchTimeout and by the size cap, enforced both
// against the declared Content-Length and against the actual bytes copied;
// oversized transfers are aborted and their partial blobs removed.
type Fetcher struct {
	client *http.Client
	store  data.BlobStore
	logger *zap.Logger
}

// NewFetcher creates a fetcher backed by the given blob store
func NewFetcher(store data.BlobStore, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: FetchTimeout,
		},
		store:  store,
		logger: logger,
	}
}

// ValidateURL checks that raw is an absolute http(s) URL
func ValidateURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, apperrors.New(apperrors.ErrURLInvalid, raw)
	}
	return parsed, nil
}

// Fetch downloads rawURL into the store under key, enforcing maxSize
func (f *Fetcher) Fetch(ctx context.Context, rawURL, key string, maxSize int64) (*FetchResult, error) {
	if _, err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrURLInvalid)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Dropzone/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrURLFetchFailed, "could not reach URL")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.ErrURLSourceNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.Newf(apperrors.ErrURLFetchFailed, "upstream returned %s", resp.Status)
	}

	// Reject on the declared length before transferring anything
	if resp.ContentLength > maxSize {
		return nil, apperrors.Newf(apperrors.ErrFileTooLarge, "declared size %d exceeds limit", resp.ContentLength)
	}

	// Stream at most maxSize+1 bytes: one extra byte distinguishes
	// "exactly at the cap" from "over it" without trusting the declaration
	limited := io.LimitReader(resp.Body, maxSize+1)
	path, err := f.store.Put(ctx, key, limited, -1)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to persist fetched content")
	}

	size, err := f.store.SizeOf(ctx, path)
	if err != nil {
		_ = f.store.Delete(ctx, path)
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	if size > maxSize {
		// Aborted transfer: the partial blob must not linger
		if err := f.store.Delete(ctx, path); err != nil && err != data.ErrBlobNotFound {
			f.logger.Error("failed to remove oversized partial blob",
				zap.String("path", path),
				zap.Error(err))
		}
		return nil, apperrors.Newf(apperrors.ErrFileTooLarge, "content exceeds %d byte limit", maxSize)
	}

	f.logger.Info("url content fetched",
		zap.String("url", rawURL),
		zap.String("path", path),
		zap.Int64("bytes", size))

	return &FetchResult{
		StoragePath: path,
		SizeBytes:   size,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
