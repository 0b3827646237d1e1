package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvlabs/dropzone/internal/filehost/data"
	apperrors "github.com/nvlabs/dropzone/internal/pkg/errors"
	"github.com/nvlabs/dropzone/internal/pkg/scheduler"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, *data.DiskStore, *scheduler.Manual) {
	t.Helper()
	store, err := data.NewDiskStore(afero.NewMemMapFs(), "/uploads", zap.NewNop())
	require.NoError(t, err)
	sched := scheduler.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewRegistry(store, sched, zap.NewNop()), store, sched
}

func putAndRegister(t *testing.T, reg *Registry, store *data.DiskStore, id, name, mimeType, content string) string {
	t.Helper()
	ctx := context.Background()

	path, err := store.Put(ctx, id+"."+Extension(name), strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	_, err = reg.Register(ctx, &RegisterRequest{
		ID:           id,
		OriginalName: name,
		Extension:    Extension(name),
		MimeType:     mimeType,
		SizeBytes:    int64(len(content)),
		StoragePath:  path,
		UploadedByIP: "1.2.3.4",
	})
	require.NoError(t, err)
	return path
}

func TestRegisterAndLookup(t *testing.T) {
	reg, store, sched := newTestRegistry(t)
	ctx := context.Background()

	putAndRegister(t, reg, store, "abc12", "a.txt", "text/plain", "hello")

	record, err := reg.Lookup(ctx, "abc12")
	require.NoError(t, err)
	assert.Equal(t, "abc12", record.ID)
	assert.Equal(t, "a.txt", record.OriginalName)
	assert.Equal(t, "txt", record.Extension)
	assert.Equal(t, "text/plain", record.MimeType)
	assert.Equal(t, int64(5), record.SizeBytes)
	assert.Equal(t, sched.Now(), record.UploadedAt)
	assert.Equal(t, sched.Now().Add(RetentionWindow), record.ExpiresAt)
	assert.Equal(t, "1.2.3.4", record.UploadedByIP)
}

func TestRegisterValidation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	valid := func() *RegisterRequest {
		return &RegisterRequest{
			ID:           "abcde",
			OriginalName: "a.txt",
			Extension:    "txt",
			MimeType:     "text/plain",
			SizeBytes:    10,
			StoragePath:  "/uploads/abcde.txt",
			UploadedByIP: "1.2.3.4",
		}
	}

	tests := []struct {
		name     string
		mutate   func(*RegisterRequest)
		wantCode int
	}{
		{"invalid id", func(r *RegisterRequest) { r.ID = "ab" }, apperrors.ErrInvalidParams},
		{"missing name", func(r *RegisterRequest) { r.OriginalName = "" }, apperrors.ErrInvalidParams},
		{"missing mime", func(r *RegisterRequest) { r.MimeType = "" }, apperrors.ErrInvalidParams},
		{"missing path", func(r *RegisterRequest) { r.StoragePath = "" }, apperrors.ErrInvalidParams},
		{"missing ip", func(r *RegisterRequest) { r.UploadedByIP = "" }, apperrors.ErrInvalidParams},
		{"zero size", func(r *RegisterRequest) { r.SizeBytes = 0 }, apperrors.ErrInvalidParams},
		{"over size cap", func(r *RegisterRequest) { r.SizeBytes = MaxFileSize + 1 }, apperrors.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			_, err := reg.Register(ctx, req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tt.wantCode), "want code %d, got %v", tt.wantCode, err)
		})
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()

	putAndRegister(t, reg, store, "dupid", "a.txt", "text/plain", "one")

	_, err := reg.Register(ctx, &RegisterRequest{
		ID:           "dupid",
		OriginalName: "b.txt",
		Extension:    "txt",
		MimeType:     "text/plain",
		SizeBytes:    3,
		StoragePath:  "/uploads/other.txt",
		UploadedByIP: "1.2.3.4",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}

func TestScheduledDeletionFires(t *testing.T) {
	reg, store, sched := newTestRegistry(t)
	ctx := context.Background()

	path := putAndRegister(t, reg, store, "timed", "a.txt", "text/plain", "hello")

	sched.Advance(RetentionWindow + time.Second)

	_, err := reg.Lookup(ctx, "timed")
	assert.True(t, apperrors.Is(err, apperrors.ErrFileNotFound))

	exists, err := store.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists, "auto-deletion must remove the blob")
}

func TestDeleteCancelsScheduledTask(t *testing.T) {
	reg, store, sched := newTestRegistry(t)
	ctx := context.Background()

	path := putAndRegister(t, reg, store, "early", "a.txt", "text/plain", "hello")
	require.Equal(t, 1, sched.PendingTasks())

	require.NoError(t, reg.Delete(ctx, "early"))
	assert.Equal(t, 0, sched.PendingTasks(), "early delete must cancel the timer")

	exists, err := store.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	// Double delete is a no-op reported as NotFound
	err = reg.Delete(ctx, "early")
	assert.True(t, apperrors.Is(err, apperrors.ErrFileNotFound))

	// Even if the cancelled callback somehow ran now, nothing would break
	sched.Advance(RetentionWindow * 2)
}

func TestConcurrentRegisterAndDelete(t *testing.T) {
	reg, store, sched := newTestRegistry(t)
	ctx := context.Background()

	// A delete racing a registration must always observe the deletion task
	// and cancel it; a leaked timer would show up as a pending task.
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("race%02da", i)
		path, err := store.Put(ctx, id+".txt", strings.NewReader("x"), 1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := reg.Register(ctx, &RegisterRequest{
				ID:           id,
				OriginalName: "a.txt",
				Extension:    "txt",
				MimeType:     "text/plain",
				SizeBytes:    1,
				StoragePath:  path,
				UploadedByIP: "1.2.3.4",
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			for {
				err := reg.Delete(ctx, id)
				if err == nil {
					return
				}
				require.True(t, apperrors.Is(err, apperrors.ErrFileNotFound))
			}
		}()
		wg.Wait()
	}

	assert.Equal(t, 0, sched.PendingTasks(), "every delete must cancel its deletion task")
	assert.Equal(t, 0, reg.Stats().TotalFiles)
}

func TestSweepExpired(t *testing.T) {
	reg, store, sched := newTestRegistry(t)
	ctx := context.Background()

	oldPath := putAndRegister(t, reg, store, "older", "a.txt", "text/plain", "old")
	sched.Advance(2 * time.Hour)
	newPath := putAndRegister(t, reg, store, "newer", "b.txt", "text/plain", "new")

	// Sweep at a simulated instant past the first record's expiry only.
	// Passing now directly exercises the sweep as the safety net for lost
	// timers.
	removed := reg.SweepExpired(ctx, sched.Now().Add(RetentionWindow-time.Hour))
	assert.Equal(t, 1, removed)

	_, err := reg.Lookup(ctx, "older")
	assert.True(t, apperrors.Is(err, apperrors.ErrFileNotFound))
	exists, _ := store.Exists(ctx, oldPath)
	assert.False(t, exists, "sweep must delete the blob too")

	_, err = reg.Lookup(ctx, "newer")
	assert.NoError(t, err)
	exists, _ = store.Exists(ctx, newPath)
	assert.True(t, exists)

	assert.Equal(t, 0, reg.SweepExpired(ctx, sched.Now()))
}

func TestLookupSelfHealsOnMissingBlob(t *testing.T) {
	reg, store, sched := newTestRegistry(t)
	ctx := context.Background()

	path := putAndRegister(t, reg, store, "ghost", "a.txt", "text/plain", "hello")

	// Out-of-band blob removal
	require.NoError(t, store.Delete(ctx, path))

	_, err := reg.Lookup(ctx, "ghost")
	assert.True(t, apperrors.Is(err, apperrors.ErrFileNotFound))

	// The stale record is purged and its timer cancelled
	_, err = reg.Lookup(ctx, "ghost")
	assert.True(t, apperrors.Is(err, apperrors.ErrFileNotFound))
	assert.Equal(t, 0, sched.PendingTasks())
	assert.Equal(t, 0, reg.Stats().TotalFiles)
}

func TestResolveForAccess(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()

	putAndRegister(t, reg, store, "video1", "clip.mp4", "video/mp4", "data")

	record, err := reg.ResolveForAccess(ctx, "video1", "mp4")
	require.NoError(t, err)
	assert.Equal(t, "video1", record.ID)

	// The generic fallback token is accepted regardless of actual extension
	record, err = reg.ResolveForAccess(ctx, "video1", FallbackExtension)
	require.NoError(t, err)
	assert.Equal(t, "mp4", record.Extension)

	// A wrong extension is rejected and carries the correct path
	_, err = reg.ResolveForAccess(ctx, "video1", "txt")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrFileExtensionMismatch))
	assert.Equal(t, "/ac/video1.mp4", apperrors.GetDetails(err))

	_, err = reg.ResolveForAccess(ctx, "nope1", "txt")
	assert.True(t, apperrors.Is(err, apperrors.ErrFileNotFound))
}

func TestStats(t *testing.T) {
	reg, store, _ := newTestRegistry(t)

	putAndRegister(t, reg, store, "file1", "a.txt", "text/plain", "12345")
	putAndRegister(t, reg, store, "file2", "b.md", "text/markdown", "123")
	putAndRegister(t, reg, store, "file3", "c.mp4", "video/mp4", "1234567890")

	stats := reg.Stats()
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, int64(18), stats.TotalBytes)
	assert.Equal(t, map[string]int{"text": 2, "video": 1}, stats.FilesByType)
}
