package biz

import (
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMimeType is used when nothing better can be resolved
const DefaultMimeType = "application/octet-stream"

// allowedMimeTypes is the upload allow-list: common image, document,
// archive, media, and text/code types
var allowedMimeTypes = map[string]struct{}{
	// Images
	"image/jpeg": {}, "image/png": {}, "image/gif": {}, "image/webp": {},
	"image/svg+xml": {}, "image/bmp": {},
	// Documents
	"application/pdf": {}, "text/plain": {}, "text/markdown": {}, "text/html": {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/vnd.ms-powerpoint": {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	// Archives
	"application/zip": {}, "application/x-rar-compressed": {},
	"application/x-7z-compressed": {}, "application/x-tar": {}, "application/gzip": {},
	// Media
	"video/mp4": {}, "video/webm": {}, "video/ogg": {}, "video/quicktime": {},
	"audio/mpeg": {}, "audio/wav": {}, "audio/ogg": {}, "audio/webm": {}, "audio/aac": {},
	// Code
	"application/javascript": {}, "text/javascript": {}, "application/json": {},
	"text/css": {}, "text/x-python": {}, "text/x-java-source": {}, "text/x-php": {},
	// Other
	"application/octet-stream": {},
}

// AllowedTypeSummary is the human-readable allow-list included in upload
// rejections so clients can self-correct
var AllowedTypeSummary = []string{
	"Images (JPEG, PNG, GIF, WebP, SVG, BMP)",
	"Documents (PDF, TXT, MD, HTML, DOC, DOCX, XLS, XLSX, PPT, PPTX)",
	"Archives (ZIP, RAR, 7Z, TAR, GZ)",
	"Media (MP4, WebM, OGG, MOV, MP3, WAV, AAC)",
	"Code (JS, JSON, CSS, Python, Java, PHP)",
}

// IsAllowedMimeType reports whether the type passes the upload allow-list.
// Parameters (e.g. "; charset=utf-8") are ignored.
func IsAllowedMimeType(mimeType string) bool {
	base := strings.TrimSpace(strings.ToLower(mimeType))
	if idx := strings.IndexByte(base, ';'); idx != -1 {
		base = strings.TrimSpace(base[:idx])
	}
	_, ok := allowedMimeTypes[base]
	return ok
}

// IsMediaMimeType reports whether the type is streamable media, the only
// kinds that honor range requests
func IsMediaMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/") || strings.HasPrefix(mimeType, "audio/")
}

// ResolveMimeType returns the MIME type for a filename based on its
// extension, falling back to the default
func ResolveMimeType(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return DefaultMimeType
	}
	if resolved := mime.TypeByExtension(ext); resolved != "" {
		return resolved
	}
	return DefaultMimeType
}

// DetectMimeType sniffs content when neither the client nor the filename
// yields a usable type. Reads at most the detection prefix from r.
func DetectMimeType(r io.Reader) string {
	detected, err := mimetype.DetectReader(r)
	if err != nil {
		return DefaultMimeType
	}
	return detected.String()
}

// Extension returns the lowercase extension of a filename without the dot,
// or the fallback token when there is none
func Extension(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return FallbackExtension
	}
	return strings.ToLower(ext)
}
