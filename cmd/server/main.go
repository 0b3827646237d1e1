package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	abusebiz "github.com/nvlabs/dropzone/internal/abuse/biz"
	abuseservice "github.com/nvlabs/dropzone/internal/abuse/service"
	"github.com/nvlabs/dropzone/internal/conf"
	filebiz "github.com/nvlabs/dropzone/internal/filehost/biz"
	filedata "github.com/nvlabs/dropzone/internal/filehost/data"
	fileservice "github.com/nvlabs/dropzone/internal/filehost/service"
	"github.com/nvlabs/dropzone/internal/pkg/logger"
	"github.com/nvlabs/dropzone/internal/pkg/scheduler"
	"github.com/nvlabs/dropzone/internal/pkg/shortid"
	"github.com/nvlabs/dropzone/internal/reaper"
	"github.com/nvlabs/dropzone/internal/server"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize global logger
	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize blob store
	store, err := newBlobStore(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize blob store", zap.Error(err))
	}

	// Initialize use cases
	sched := scheduler.NewReal()
	ids := shortid.New()
	registry := filebiz.NewRegistry(store, sched, log.Logger.Named("registry"))
	fetcher := filebiz.NewFetcher(store, log.Logger.Named("fetcher"))
	guard := abusebiz.NewGuard(sched, log.Logger.Named("abuse"))

	// Background sweeps
	sweeper := reaper.New(registry, guard, sched, reaper.DefaultInterval, log.Logger.Named("reaper"))
	sweeper.Start()
	defer sweeper.Stop()

	// Initialize services
	fileService := fileservice.NewFileService(ids, registry, fetcher, store, sched, guard, log.Logger)
	abuseService := abuseservice.NewAbuseService(guard, log.Logger)

	// Initialize server
	httpServer := server.NewHTTPServer(config, log.Logger, fileService, abuseService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func newBlobStore(config *conf.Config, log *zap.Logger) (filedata.BlobStore, error) {
	switch config.Storage.Backend {
	case conf.StorageBackendMinIO:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return filedata.NewMinIOStore(ctx, &filedata.MinIOConfig{
			Endpoint:  config.Storage.MinIO.Endpoint,
			AccessKey: config.Storage.MinIO.AccessKey,
			SecretKey: config.Storage.MinIO.SecretKey,
			UseSSL:    config.Storage.MinIO.UseSSL,
			Bucket:    config.Storage.MinIO.Bucket,
		}, log.Named("minio"))
	default:
		return filedata.NewDiskStore(afero.NewOsFs(), config.Storage.Disk.UploadDir, log.Named("disk"))
	}
}
