package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	abuseservice "github.com/nvlabs/dropzone/internal/abuse/service"
	"github.com/nvlabs/dropzone/internal/conf"
	fileservice "github.com/nvlabs/dropzone/internal/filehost/service"
	"go.uber.org/zap"
)

type HTTPServer struct {
	server *http.Server
	logger *zap.Logger
}

func NewHTTPServer(
	config *conf.Config,
	logger *zap.Logger,
	files *fileservice.FileService,
	abuse *abuseservice.AbuseService,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := NewRouter(logger, files, abuse)

	return &HTTPServer{
		server: &http.Server{
			Addr:    config.Server.Addr(),
			Handler: router,
		},
		logger: logger,
	}
}

// NewRouter builds the gin engine with the full route table. Split out from
// NewHTTPServer so tests can drive the router without binding a port.
func NewRouter(
	logger *zap.Logger,
	files *fileservice.FileService,
	abuse *abuseservice.AbuseService,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(LoggerMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	router.GET("/", files.Describe)

	// Expensive routes carry the full abuse chain: ban check first, then
	// velocity tracking, then the tight upload limit
	banCheck := abuse.BanCheck()
	track := abuse.VelocityTrack()
	uploadLimit := abuse.UploadRateLimit()

	router.POST("/upload", banCheck, track, uploadLimit, files.Upload)
	router.POST("/upload-url", banCheck, track, uploadLimit, files.UploadFromURL)

	router.GET("/ac/:file", banCheck, track, files.Access)
	router.GET("/info/:id", banCheck, track, files.Info)
	router.DELETE("/delete/:id", banCheck, track, files.Delete)
	router.GET("/qr/:id", banCheck, track, files.QR)
	router.GET("/stats", files.Stats)

	router.GET("/banlist", abuse.BanList)
	router.POST("/unban/:ip", abuse.Unban)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "endpoint not found",
			"availableEndpoints": []string{
				"GET /",
				"POST /upload",
				"POST /upload-url",
				"GET /ac/:fileId.:ext",
				"GET /info/:fileId",
				"DELETE /delete/:fileId",
				"GET /qr/:fileId",
				"GET /stats",
			},
		})
	})

	return router
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
