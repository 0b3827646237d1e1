package data

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DiskStore stores blobs as files under a single directory. It is backed by
// afero so tests can run against an in-memory filesystem.
type DiskStore struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewDiskStore creates a disk store rooted at dir, creating it if needed
func NewDiskStore(fs afero.Fs, dir string, logger *zap.Logger) (*DiskStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskStore{
		fs:     fs,
		dir:    dir,
		logger: logger,
	}, nil
}

func (s *DiskStore) Put(ctx context.Context, key string, content io.Reader, size int64) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(key))

	f, err := s.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create blob file: %w", err)
	}

	written, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Do not leave partial blobs behind
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	s.logger.Debug("blob stored",
		zap.String("path", path),
		zap.Int64("bytes", written))

	return path, nil
}

func (s *DiskStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

func (s *DiskStore) GetRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to seek blob: %w", err)
	}

	return &rangeReader{Reader: io.LimitReader(f, length), closer: f}, nil
}

func (s *DiskStore) Delete(ctx context.Context, path string) error {
	if err := s.fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *DiskStore) Exists(ctx context.Context, path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

func (s *DiskStore) SizeOf(ctx context.Context, path string) (int64, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrBlobNotFound
		}
		return 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Size(), nil
}

// rangeReader bounds reads to a byte span while closing the underlying file
type rangeReader struct {
	io.Reader
	closer io.Closer
}

func (r *rangeReader) Close() error {
	return r.closer.Close()
}
