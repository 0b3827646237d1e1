package service

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvlabs/dropzone/internal/abuse/biz"
	apperrors "github.com/nvlabs/dropzone/internal/pkg/errors"
	"github.com/nvlabs/dropzone/internal/pkg/validator"
	"go.uber.org/zap"
)

// AbuseService exposes the ban middlewares and the ban administration
// handlers
type AbuseService struct {
	guard  *biz.Guard
	logger *zap.Logger
}

// NewAbuseService wires the abuse handlers to the guard
func NewAbuseService(guard *biz.Guard, logger *zap.Logger) *AbuseService {
	return &AbuseService{
		guard:  guard,
		logger: logger,
	}
}

// BanCheck rejects requests from banned clients before any work happens
func (s *AbuseService) BanCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c)
		if record, banned := s.guard.CheckBanned(ip); banned {
			rejectBanned(c, apperrors.ErrIPBanned, record)
			return
		}
		c.Next()
	}
}

// VelocityTrack counts the request against the client's trailing window and
// bans on a violation
func (s *AbuseService) VelocityTrack() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c)
		if record := s.guard.RecordRequest(ip); record != nil {
			rejectBanned(c, apperrors.ErrIPRateLimited, record)
			return
		}
		c.Next()
	}
}

// UploadRateLimit applies the tighter per-upload limit and bans on a
// violation
func (s *AbuseService) UploadRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c)
		if record := s.guard.EnforceUploadLimit(ip); record != nil {
			rejectBanned(c, apperrors.ErrIPRateLimited, record)
			return
		}
		c.Next()
	}
}

func rejectBanned(c *gin.Context, code int, record *biz.BanRecord) {
	c.AbortWithStatusJSON(apperrors.GetHTTPStatus(code), gin.H{
		"code":        code,
		"error":       apperrors.GetMessage(code),
		"reason":      record.Reason,
		"bannedUntil": record.ExpiresAt.Format(time.RFC3339),
		"limits": gin.H{
			"requestsPerMinute": biz.VelocityLimit,
			"uploadsPer5s":      biz.UploadLimit,
		},
	})
}

func clientIP(c *gin.Context) string {
	return validator.GetIPOrDefault(c.ClientIP(), "unknown")
}
