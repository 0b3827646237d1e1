package biz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedMimeType(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{"image/png", true},
		{"application/pdf", true},
		{"video/mp4", true},
		{"audio/mpeg", true},
		{"application/octet-stream", true},
		{"text/plain; charset=utf-8", true},
		{"IMAGE/PNG", true},
		{"application/x-msdownload", false},
		{"text/x-shellscript", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAllowedMimeType(tt.mimeType), tt.mimeType)
	}
}

func TestIsMediaMimeType(t *testing.T) {
	assert.True(t, IsMediaMimeType("video/mp4"))
	assert.True(t, IsMediaMimeType("audio/ogg"))
	assert.False(t, IsMediaMimeType("image/png"))
	assert.False(t, IsMediaMimeType("application/pdf"))
}

func TestResolveMimeType(t *testing.T) {
	// Platform mime tables may append parameters, so match on the base type
	assert.True(t, strings.HasPrefix(ResolveMimeType("notes.txt"), "text/plain"))
	assert.Equal(t, "application/pdf", ResolveMimeType("report.pdf"))
	assert.Equal(t, DefaultMimeType, ResolveMimeType("README"))
	assert.Equal(t, DefaultMimeType, ResolveMimeType("blob.weirdext9"))
}

func TestDetectMimeType(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)
	assert.Equal(t, "image/png", DetectMimeType(strings.NewReader(string(png))))

	assert.True(t, strings.HasPrefix(DetectMimeType(strings.NewReader("plain old text")), "text/plain"))
}

func TestExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"photo.JPG", "jpg"},
		{"archive.tar.gz", "gz"},
		{"clip.mp4", "mp4"},
		{"noext", FallbackExtension},
		{"", FallbackExtension},
		{"trailing.", FallbackExtension},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Extension(tt.filename), tt.filename)
	}
}
