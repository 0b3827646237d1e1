package biz

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nvlabs/dropzone/internal/filehost/data"
	"github.com/nvlabs/dropzone/internal/filehost/types"
	apperrors "github.com/nvlabs/dropzone/internal/pkg/errors"
	"github.com/nvlabs/dropzone/internal/pkg/scheduler"
	"github.com/nvlabs/dropzone/internal/pkg/shortid"
	"go.uber.org/zap"
)

const (
	// RetentionWindow is how long a file survives after upload
	RetentionWindow = 5 * time.Hour

	// MaxFileSize caps uploads at 128 MiB
	MaxFileSize = 128 << 20

	// FallbackExtension is the generic extension token accepted on access
	// regardless of a record's actual extension
	FallbackExtension = "bin"
)

// RegisterRequest carries the metadata for a newly persisted upload
type RegisterRequest struct {
	ID           string
	OriginalName string
	Extension    string
	MimeType     string
	SizeBytes    int64
	StoragePath  string
	UploadedByIP string
	SourceURL    string
}

// Validate checks the required fields and the size cap
func (r *RegisterRequest) Validate() error {
	if !shortid.IsValid(r.ID) {
		return apperrors.Newf(apperrors.ErrInvalidParams, "invalid file id %q", r.ID)
	}
	if r.OriginalName == "" {
		return apperrors.New(apperrors.ErrInvalidParams, "original name is required")
	}
	if r.MimeType == "" {
		return apperrors.New(apperrors.ErrInvalidParams, "mime type is required")
	}
	if r.StoragePath == "" {
		return apperrors.New(apperrors.ErrInvalidParams, "storage path is required")
	}
	if r.UploadedByIP == "" {
		return apperrors.New(apperrors.ErrInvalidParams, "uploader ip is required")
	}
	if r.SizeBytes <= 0 {
		return apperrors.New(apperrors.ErrInvalidParams, "size must be positive")
	}
	if r.SizeBytes > MaxFileSize {
		return apperrors.Newf(apperrors.ErrFileTooLarge, "%d bytes exceeds the %d byte limit", r.SizeBytes, MaxFileSize)
	}
	return nil
}

type fileEntry struct {
	record *types.FileRecord
	task   scheduler.Task
}

// Registry owns all live file metadata and its lifecycle: registration,
// lookup, deterministic expiry and deletion. A record exists here iff its
// backing blob is believed to exist; any detected mismatch removes the
// record (self-healing).
type Registry struct {
	store  data.BlobStore
	sched  scheduler.Scheduler
	logger *zap.Logger

	mu    sync.Mutex
	files map[string]*fileEntry
}

// NewRegistry creates an empty registry
func NewRegistry(store data.BlobStore, sched scheduler.Scheduler, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		sched:  sched,
		logger: logger,
		files:  make(map[string]*fileEntry),
	}
}

// Register creates the metadata record for a persisted blob and schedules
// its deletion at expiry
func (r *Registry) Register(ctx context.Context, req *RegisterRequest) (*types.FileRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	extension := strings.ToLower(req.Extension)
	if extension == "" {
		extension = FallbackExtension
	}

	now := r.sched.Now()
	record := &types.FileRecord{
		ID:           req.ID,
		OriginalName: req.OriginalName,
		Extension:    extension,
		MimeType:     req.MimeType,
		SizeBytes:    req.SizeBytes,
		StoragePath:  req.StoragePath,
		UploadedAt:   now,
		ExpiresAt:    now.Add(RetentionWindow),
		UploadedByIP: req.UploadedByIP,
		SourceURL:    req.SourceURL,
	}

	entry := &fileEntry{record: record}

	r.mu.Lock()
	if _, exists := r.files[record.ID]; exists {
		r.mu.Unlock()
		return nil, apperrors.Newf(apperrors.ErrInvalidParams, "file id %q already registered", record.ID)
	}
	// One-shot auto-deletion at expiry. The task handle is written before
	// the entry is published, so a concurrent Delete always sees it and can
	// cancel it. Delete is idempotent, so the race between this callback and
	// an explicit delete resolves as a no-op.
	entry.task = r.sched.Schedule(RetentionWindow, func() {
		if err := r.Delete(context.Background(), record.ID); err != nil && !apperrors.Is(err, apperrors.ErrFileNotFound) {
			r.logger.Error("scheduled deletion failed",
				zap.String("file_id", record.ID),
				zap.Error(err))
			return
		}
		r.logger.Info("file auto-deleted after retention window",
			zap.String("file_id", record.ID))
	})
	r.files[record.ID] = entry
	r.mu.Unlock()

	r.logger.Info("file registered",
		zap.String("file_id", record.ID),
		zap.String("name", record.OriginalName),
		zap.Int64("size", record.SizeBytes),
		zap.String("ip", record.UploadedByIP),
		zap.Time("expires_at", record.ExpiresAt))

	return record, nil
}

// Lookup returns the record for id, verifying that its backing blob still
// exists. A record whose blob vanished out-of-band is purged and reported
// as not found.
func (r *Registry) Lookup(ctx context.Context, id string) (*types.FileRecord, error) {
	r.mu.Lock()
	entry, ok := r.files[id]
	r.mu.Unlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}

	// Blob existence check happens outside the lock; no I/O in critical
	// sections
	exists, err := r.store.Exists(ctx, entry.record.StoragePath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	if !exists {
		r.purge(id)
		return nil, apperrors.New(apperrors.ErrFileNotFound, "backing blob is gone")
	}

	return entry.record, nil
}

// ResolveForAccess looks up id and validates the requested extension.
// A mismatched extension is tolerated only for the generic fallback token;
// otherwise the request is rejected to avoid content-type confusion.
func (r *Registry) ResolveForAccess(ctx context.Context, id, extension string) (*types.FileRecord, error) {
	record, err := r.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if extension != record.Extension && extension != FallbackExtension {
		return nil, apperrors.New(apperrors.ErrFileExtensionMismatch, record.AccessPath())
	}

	return record, nil
}

// Delete cancels the pending deletion task, removes the blob and drops the
// record. Deleting an unknown or already-deleted id reports NotFound, not
// a fault.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	entry, ok := r.files[id]
	if ok {
		delete(r.files, id)
	}
	r.mu.Unlock()

	if !ok {
		return apperrors.New(apperrors.ErrFileNotFound)
	}

	if entry.task != nil {
		entry.task.Cancel()
	}

	if err := r.store.Delete(ctx, entry.record.StoragePath); err != nil && err != data.ErrBlobNotFound {
		return apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	r.logger.Info("file deleted",
		zap.String("file_id", id),
		zap.String("path", entry.record.StoragePath))

	return nil
}

// SweepExpired removes every record whose expiry has passed, deleting the
// backing blobs as well. It is the safety net behind the per-record timers
// and returns the number of records removed.
func (r *Registry) SweepExpired(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	var expired []*fileEntry
	for id, entry := range r.files {
		if !now.Before(entry.record.ExpiresAt) {
			expired = append(expired, entry)
			delete(r.files, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range expired {
		if entry.task != nil {
			entry.task.Cancel()
		}
		if err := r.store.Delete(ctx, entry.record.StoragePath); err != nil && err != data.ErrBlobNotFound {
			r.logger.Error("failed to delete expired blob",
				zap.String("file_id", entry.record.ID),
				zap.Error(err))
		}
	}

	if len(expired) > 0 {
		r.logger.Info("expired files swept", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Stats aggregates counters over all live records, keyed by top-level mime
// type
func (r *Registry) Stats() types.RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := types.RegistryStats{
		FilesByType: make(map[string]int),
	}
	for _, entry := range r.files {
		stats.TotalFiles++
		stats.TotalBytes += entry.record.SizeBytes
		topLevel, _, _ := strings.Cut(entry.record.MimeType, "/")
		stats.FilesByType[topLevel]++
	}
	return stats
}

// purge drops a record without touching the blob store, cancelling its
// deletion task. Used by the self-healing existence check.
func (r *Registry) purge(id string) {
	r.mu.Lock()
	entry, ok := r.files[id]
	if ok {
		delete(r.files, id)
	}
	r.mu.Unlock()

	if ok && entry.task != nil {
		entry.task.Cancel()
	}
	if ok {
		r.logger.Warn("purged stale record with missing blob", zap.String("file_id", id))
	}
}
