package errors

import "net/http"

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer = 1000
	ErrInvalidParams  = 1001

	// File errors (2000-2999)
	ErrFileNotFound          = 2000
	ErrFileNoFile            = 2001
	ErrFileTooLarge          = 2002
	ErrFileUnsupportedType   = 2003
	ErrFileExtensionMismatch = 2004

	// URL ingestion errors (3000-3999)
	ErrURLInvalid        = 3000
	ErrURLFetchFailed    = 3001
	ErrURLSourceNotFound = 3002

	// Abuse control errors (4000-4999)
	ErrIPBanned      = 4000
	ErrIPRateLimited = 4001
	ErrBanNotFound   = 4002
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:  {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},

	// File errors
	ErrFileNotFound:          {ErrFileNotFound, http.StatusNotFound, "File not found"},
	ErrFileNoFile:            {ErrFileNoFile, http.StatusBadRequest, "No file was uploaded"},
	ErrFileTooLarge:          {ErrFileTooLarge, http.StatusRequestEntityTooLarge, "File size exceeds limit"},
	ErrFileUnsupportedType:   {ErrFileUnsupportedType, http.StatusUnsupportedMediaType, "Unsupported file type"},
	ErrFileExtensionMismatch: {ErrFileExtensionMismatch, http.StatusNotFound, "File extension does not match"},

	// URL ingestion errors
	ErrURLInvalid:        {ErrURLInvalid, http.StatusBadRequest, "Invalid URL"},
	ErrURLFetchFailed:    {ErrURLFetchFailed, http.StatusBadRequest, "Failed to fetch URL"},
	ErrURLSourceNotFound: {ErrURLSourceNotFound, http.StatusBadRequest, "File not found at URL"},

	// Abuse control errors
	ErrIPBanned:      {ErrIPBanned, http.StatusTooManyRequests, "IP is banned"},
	ErrIPRateLimited: {ErrIPRateLimited, http.StatusTooManyRequests, "Rate limit exceeded"},
	ErrBanNotFound:   {ErrBanNotFound, http.StatusNotFound, "IP not found in ban list"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns the HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}
