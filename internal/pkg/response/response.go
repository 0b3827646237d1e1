package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/nvlabs/dropzone/internal/pkg/errors"
)

// Response is the unified success envelope
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// SuccessWithMessage sends a 200 response with a message and data
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends an error response. Extra fields are merged into the body at the
// top level so rejections carry enough context for a client to self-correct
// (limits, expiry, correct-usage hints).
func Error(c *gin.Context, httpStatus int, message string, extras ...gin.H) {
	body := gin.H{"error": message}
	for _, extra := range extras {
		for k, v := range extra {
			body[k] = v
		}
	}
	c.JSON(httpStatus, body)
}

// ErrorWithCode sends an error response derived from a business error code
func ErrorWithCode(c *gin.Context, code int, extras ...gin.H) {
	body := gin.H{
		"code":  code,
		"error": apperrors.GetMessage(code),
	}
	for _, extra := range extras {
		for k, v := range extra {
			body[k] = v
		}
	}
	c.JSON(apperrors.GetHTTPStatus(code), body)
}

// HandleError maps an application error onto an HTTP response
func HandleError(c *gin.Context, err error, extras ...gin.H) {
	if err == nil {
		return
	}

	code := apperrors.ExtractCode(err)
	body := gin.H{
		"code":  code,
		"error": apperrors.GetMessage(code),
	}
	if details := apperrors.GetDetails(err); details != "" {
		body["details"] = details
	}
	for _, extra := range extras {
		for k, v := range extra {
			body[k] = v
		}
	}
	c.JSON(apperrors.GetHTTPStatus(code), body)
}

// BadRequest sends a 400 error
func BadRequest(c *gin.Context, message string, extras ...gin.H) {
	Error(c, http.StatusBadRequest, message, extras...)
}

// NotFound sends a 404 error
func NotFound(c *gin.Context, message string, extras ...gin.H) {
	Error(c, http.StatusNotFound, message, extras...)
}

// InternalError sends a 500 error
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
