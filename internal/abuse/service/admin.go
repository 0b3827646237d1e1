package service

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/nvlabs/dropzone/internal/pkg/errors"
	"github.com/nvlabs/dropzone/internal/pkg/response"
	"github.com/nvlabs/dropzone/internal/pkg/validator"
	"go.uber.org/zap"
)

// BanList returns every current ban record
func (s *AbuseService) BanList(c *gin.Context) {
	bans := s.guard.ListBans()
	sort.Slice(bans, func(i, j int) bool {
		return bans[i].BannedAt.Before(bans[j].BannedAt)
	})

	list := make([]gin.H, 0, len(bans))
	for _, ban := range bans {
		list = append(list, gin.H{
			"ip":        ban.IP,
			"reason":    ban.Reason,
			"bannedAt":  ban.BannedAt.Format(time.RFC3339),
			"expiresAt": ban.ExpiresAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"totalBanned": len(list),
		"bans":        list,
	})
}

// Unban lifts the ban on an IP
func (s *AbuseService) Unban(c *gin.Context) {
	ip := validator.NormalizeIP(c.Param("ip"))
	if !validator.IsValidIP(ip) {
		response.HandleError(c, apperrors.Newf(apperrors.ErrInvalidParams, "invalid ip %q", ip))
		return
	}

	if !s.guard.Unban(ip) {
		response.HandleError(c, apperrors.New(apperrors.ErrBanNotFound))
		return
	}

	s.logger.Info("ip unbanned by operator", zap.String("ip", ip))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "IP " + ip + " has been unbanned",
	})
}
