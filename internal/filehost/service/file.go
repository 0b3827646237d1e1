package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/nvlabs/dropzone/internal/filehost/biz"
	"github.com/nvlabs/dropzone/internal/filehost/data"
	"github.com/nvlabs/dropzone/internal/filehost/types"
	apperrors "github.com/nvlabs/dropzone/internal/pkg/errors"
	"github.com/nvlabs/dropzone/internal/pkg/response"
	"github.com/nvlabs/dropzone/internal/pkg/scheduler"
	"github.com/nvlabs/dropzone/internal/pkg/shortid"
	"github.com/nvlabs/dropzone/internal/pkg/validator"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// BanCounter reports the number of currently banned clients, used on the
// stats endpoint
type BanCounter interface {
	BanCount() int
}

// FileService exposes the HTTP handlers for upload, access, metadata,
// deletion and statistics
type FileService struct {
	ids      *shortid.Generator
	registry *biz.Registry
	fetcher  *biz.Fetcher
	store    data.BlobStore
	sched    scheduler.Scheduler
	bans     BanCounter
	logger   *zap.Logger
}

// NewFileService wires the file handlers to their use cases
func NewFileService(
	ids *shortid.Generator,
	registry *biz.Registry,
	fetcher *biz.Fetcher,
	store data.BlobStore,
	sched scheduler.Scheduler,
	bans BanCounter,
	logger *zap.Logger,
) *FileService {
	return &FileService{
		ids:      ids,
		registry: registry,
		fetcher:  fetcher,
		store:    store,
		sched:    sched,
		bans:     bans,
		logger:   logger,
	}
}

// UploadURLRequest is the JSON body for URL ingestion
type UploadURLRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Upload handles a multipart file upload under the form field "file"
func (s *FileService) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.ErrorWithCode(c, apperrors.ErrFileNoFile, gin.H{
			"allowedTypes": biz.AllowedTypeSummary,
			"maxSize":      humanize.IBytes(biz.MaxFileSize),
		})
		return
	}

	if header.Size > biz.MaxFileSize {
		response.ErrorWithCode(c, apperrors.ErrFileTooLarge, gin.H{
			"maxSize":  humanize.IBytes(biz.MaxFileSize),
			"yourSize": humanize.Bytes(uint64(header.Size)),
		})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == biz.DefaultMimeType {
		mimeType = biz.ResolveMimeType(header.Filename)
	}
	if !biz.IsAllowedMimeType(mimeType) {
		response.ErrorWithCode(c, apperrors.ErrFileUnsupportedType, gin.H{
			"yourType":     mimeType,
			"allowedTypes": biz.AllowedTypeSummary,
		})
		return
	}

	src, err := header.Open()
	if err != nil {
		s.logger.Error("failed to open multipart file", zap.Error(err))
		response.InternalError(c, "failed to read uploaded file")
		return
	}
	defer src.Close()

	ctx := c.Request.Context()
	id := s.ids.Generate(0)
	extension := biz.Extension(header.Filename)

	storagePath, err := s.store.Put(ctx, id+"."+extension, src, header.Size)
	if err != nil {
		s.ids.Release(id)
		s.logger.Error("failed to persist upload", zap.String("file_id", id), zap.Error(err))
		response.InternalError(c, "failed to store uploaded file")
		return
	}

	record, err := s.registry.Register(ctx, &biz.RegisterRequest{
		ID:           id,
		OriginalName: header.Filename,
		Extension:    extension,
		MimeType:     mimeType,
		SizeBytes:    header.Size,
		StoragePath:  storagePath,
		UploadedByIP: validator.GetIPOrDefault(c.ClientIP(), "unknown"),
	})
	if err != nil {
		s.discardBlob(c, storagePath)
		s.ids.Release(id)
		response.HandleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "file uploaded successfully", s.uploadPayload(c, record))
}

// UploadFromURL ingests remote content referenced by a client-supplied URL
func (s *FileService) UploadFromURL(c *gin.Context) {
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		response.BadRequest(c, "url is required", gin.H{
			"example": gin.H{
				"url":      "https://example.com/file.jpg",
				"filename": "optional-custom-filename.jpg",
			},
		})
		return
	}

	parsed, err := biz.ValidateURL(req.URL)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	originalName := req.Filename
	if originalName == "" {
		originalName = path.Base(parsed.Path)
	}
	if originalName == "" || originalName == "." || originalName == "/" {
		originalName = "downloaded-file"
	}

	ctx := c.Request.Context()
	id := s.ids.Generate(0)
	extension := biz.Extension(originalName)

	result, err := s.fetcher.Fetch(ctx, req.URL, id+"."+extension, biz.MaxFileSize)
	if err != nil {
		s.ids.Release(id)
		response.HandleError(c, err, gin.H{"maxSize": humanize.IBytes(biz.MaxFileSize)})
		return
	}

	mimeType := result.ContentType
	if mimeType == "" {
		mimeType = biz.ResolveMimeType(originalName)
	}

	record, err := s.registry.Register(ctx, &biz.RegisterRequest{
		ID:           id,
		OriginalName: originalName,
		Extension:    extension,
		MimeType:     mimeType,
		SizeBytes:    result.SizeBytes,
		StoragePath:  result.StoragePath,
		UploadedByIP: validator.GetIPOrDefault(c.ClientIP(), "unknown"),
		SourceURL:    req.URL,
	})
	if err != nil {
		s.discardBlob(c, result.StoragePath)
		s.ids.Release(id)
		response.HandleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "file uploaded from URL successfully", s.uploadPayload(c, record))
}

// Access streams file content. Media types honor single-range requests with
// a fixed chunk size; everything else is served whole.
func (s *FileService) Access(c *gin.Context) {
	id, extension, ok := splitAccessName(c.Param("file"))
	if !ok {
		response.NotFound(c, "file not found")
		return
	}

	ctx := c.Request.Context()
	record, err := s.registry.ResolveForAccess(ctx, id, extension)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrFileExtensionMismatch) {
			response.HandleError(c, err, gin.H{"correctUrl": apperrors.GetDetails(err)})
			return
		}
		response.HandleError(c, err)
		return
	}

	mimeType := record.MimeType
	if mimeType == "" {
		mimeType = biz.ResolveMimeType(record.OriginalName)
	}
	c.Header("Content-Type", mimeType)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", url.PathEscape(record.OriginalName)))
	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("Last-Modified", record.UploadedAt.UTC().Format(http.TimeFormat))
	c.Header("X-File-ID", record.ID)
	c.Header("X-File-Name", record.OriginalName)
	c.Header("X-Expires-At", record.ExpiresAt.Format(time.RFC3339))

	if biz.IsMediaMimeType(mimeType) {
		if planned, ok := biz.PlanRange(c.GetHeader("Range"), record.SizeBytes); ok {
			s.streamRange(c, record, planned)
			return
		}
	}

	rc, err := s.store.Get(ctx, record.StoragePath)
	if err != nil {
		s.logger.Error("failed to open blob",
			zap.String("file_id", record.ID),
			zap.Error(err))
		response.InternalError(c, "failed to access file")
		return
	}

	c.Header("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	c.Status(http.StatusOK)
	s.stream(c, record, rc)
}

func (s *FileService) streamRange(c *gin.Context, record *types.FileRecord, planned *biz.ByteRange) {
	rc, err := s.store.GetRange(c.Request.Context(), record.StoragePath, planned.Start, planned.Length())
	if err != nil {
		s.logger.Error("failed to open blob range",
			zap.String("file_id", record.ID),
			zap.Error(err))
		response.InternalError(c, "failed to access file")
		return
	}

	c.Header("Content-Range", planned.ContentRange())
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", strconv.FormatInt(planned.Length(), 10))
	c.Status(http.StatusPartialContent)
	s.stream(c, record, rc)
}

// stream copies blob content to the client. A mid-stream client disconnect
// is expected with shareable links and never treated as a server fault.
func (s *FileService) stream(c *gin.Context, record *types.FileRecord, rc io.ReadCloser) {
	defer rc.Close()

	if _, err := io.Copy(c.Writer, rc); err != nil {
		if isClientDisconnect(c, err) {
			s.logger.Debug("client disconnected mid-stream", zap.String("file_id", record.ID))
			return
		}
		// Headers are already sent; all we can do is log
		s.logger.Error("content stream failed",
			zap.String("file_id", record.ID),
			zap.Error(err))
	}
}

// Info returns the metadata for a stored file, including remaining lifetime
func (s *FileService) Info(c *gin.Context) {
	record, err := s.registry.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	remaining := record.RemainingTime(s.sched.Now())
	c.JSON(http.StatusOK, gin.H{
		"fileId":                 record.ID,
		"originalName":           record.OriginalName,
		"size":                   record.SizeBytes,
		"formattedSize":          humanize.Bytes(uint64(record.SizeBytes)),
		"mimeType":               record.MimeType,
		"extension":              record.Extension,
		"uploadedAt":             record.UploadedAt.Format(time.RFC3339),
		"expiresAt":              record.ExpiresAt.Format(time.RFC3339),
		"uploadedBy":             record.UploadedByIP,
		"sourceUrl":              record.SourceURL,
		"accessUrl":              baseURL(c) + record.AccessPath(),
		"timeRemaining":          remaining.Milliseconds(),
		"timeRemainingFormatted": formatRemaining(remaining),
	})
}

// Delete removes a stored file ahead of its scheduled expiry
func (s *FileService) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.Delete(c.Request.Context(), id); err != nil {
		response.HandleError(c, err)
		return
	}
	s.ids.Release(id)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "file deleted successfully",
		"fileId":    id,
		"deletedAt": s.sched.Now().Format(time.RFC3339),
	})
}

// Stats returns aggregate service counters
func (s *FileService) Stats(c *gin.Context) {
	stats := s.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"totalFiles":         stats.TotalFiles,
		"totalSize":          stats.TotalBytes,
		"totalSizeFormatted": humanize.Bytes(uint64(stats.TotalBytes)),
		"filesByType":        stats.FilesByType,
		"maxFileSize":        humanize.IBytes(biz.MaxFileSize),
		"fileLifetime":       formatRemaining(biz.RetentionWindow),
		"bannedIPs":          s.bans.BanCount(),
		"shortIds":           s.ids.Stats(),
	})
}

// QR renders a PNG QR code pointing at a file's access URL
func (s *FileService) QR(c *gin.Context) {
	record, err := s.registry.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	png, err := qrcode.Encode(baseURL(c)+record.AccessPath(), qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("failed to render qr code",
			zap.String("file_id", record.ID),
			zap.Error(err))
		response.InternalError(c, "failed to generate QR code")
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

// Describe returns the service descriptor served at the root path
func (s *FileService) Describe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "Dropzone",
		"version":     "1.0.0",
		"description": "temporary file hosting with auto-expiry",
		"endpoints": gin.H{
			"uploadFile":    "POST /upload",
			"uploadFromUrl": "POST /upload-url",
			"accessFile":    "GET /ac/:fileId.:ext",
			"fileInfo":      "GET /info/:fileId",
			"deleteFile":    "DELETE /delete/:fileId",
			"qrCode":        "GET /qr/:fileId",
			"statistics":    "GET /stats",
		},
		"limits": gin.H{
			"maxFileSize":   humanize.IBytes(biz.MaxFileSize),
			"rateLimit":     "2 requests per 5 seconds",
			"fileLifetime":  formatRemaining(biz.RetentionWindow),
			"banDuration":   formatRemaining(3 * time.Hour),
			"uploadTimeout": biz.FetchTimeout.String(),
		},
	})
}

// uploadPayload builds the shared response body for both upload variants
func (s *FileService) uploadPayload(c *gin.Context, record *types.FileRecord) gin.H {
	base := baseURL(c)
	return gin.H{
		"fileId":        record.ID,
		"originalName":  record.OriginalName,
		"size":          record.SizeBytes,
		"formattedSize": humanize.Bytes(uint64(record.SizeBytes)),
		"mimeType":      record.MimeType,
		"accessUrl":     base + record.AccessPath(),
		"expiresAt":     record.ExpiresAt.Format(time.RFC3339),
		"expiresIn":     formatRemaining(biz.RetentionWindow),
		"deleteUrl":     base + "/delete/" + record.ID,
		"infoUrl":       base + "/info/" + record.ID,
	}
}

// discardBlob removes a blob written for a registration that failed
func (s *FileService) discardBlob(c *gin.Context, storagePath string) {
	if err := s.store.Delete(c.Request.Context(), storagePath); err != nil && err != data.ErrBlobNotFound {
		s.logger.Error("failed to discard orphaned blob",
			zap.String("path", storagePath),
			zap.Error(err))
	}
}

// splitAccessName splits "id.ext" on the last dot
func splitAccessName(name string) (id, extension string, ok bool) {
	name = strings.TrimPrefix(name, "/")
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// baseURL reconstructs the externally visible origin, honoring forwarding
// proxy headers
func baseURL(c *gin.Context) string {
	if host := c.GetHeader("X-Forwarded-Host"); host != "" {
		proto := c.GetHeader("X-Forwarded-Proto")
		if proto == "" {
			proto = "https"
		}
		return proto + "://" + host
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// formatRemaining renders a duration the way humans read countdowns
func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	seconds := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%d hours, %d minutes, %d seconds", hours, minutes, seconds)
}

// isClientDisconnect distinguishes a closed client connection from a real
// stream fault
func isClientDisconnect(c *gin.Context, err error) bool {
	if c.Request.Context().Err() != nil {
		return true
	}
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
