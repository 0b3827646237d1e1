package biz

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkSize caps how many bytes a single partial-content reply carries
const ChunkSize = 1_000_000

// ByteRange is a planned partial-content span within a blob
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

// Length returns the number of bytes in the span
func (r *ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range header value for the span
func (r *ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// PlanRange parses a Range header against a blob of the given size and
// plans the span to serve. Only the single first-range form is supported;
// the requested end position is ignored in favor of the fixed chunk size.
// Returns false when the header is absent, malformed, or out of bounds, in
// which case the caller serves full content.
func PlanRange(header string, size int64) (*ByteRange, bool) {
	if header == "" || size <= 0 {
		return nil, false
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, false
	}
	// Single-range form only: "start-" or "start-end"
	if idx := strings.IndexByte(spec, ','); idx != -1 {
		spec = spec[:idx]
	}
	startStr, _, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, false
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return nil, false
	}

	end := start + ChunkSize - 1
	if end > size-1 {
		end = size - 1
	}

	return &ByteRange{Start: start, End: end, Total: size}, true
}
