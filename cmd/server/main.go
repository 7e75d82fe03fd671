package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/api"
	"github.com/kdimtricp/vslides/internal/config"
	"github.com/kdimtricp/vslides/internal/database"
	"github.com/kdimtricp/vslides/internal/encoder"
	"github.com/kdimtricp/vslides/internal/events"
	"github.com/kdimtricp/vslides/internal/extraction"
	"github.com/kdimtricp/vslides/internal/logger"
	"github.com/kdimtricp/vslides/internal/storage"
	"github.com/kdimtricp/vslides/internal/tracing"
	"github.com/kdimtricp/vslides/internal/video"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.TracingEndpoint, "vslides")
		if err != nil {
			logger.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}

	db, err := database.NewDB(database.Config{
		Type:       cfg.DBType,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		User:       cfg.DBUser,
		Password:   cfg.DBPassword,
		Name:       cfg.DBName,
		SQLitePath: cfg.DBPath,
	})
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Conn(), db.Type(), logger)
	if _, err := migrator.Run(ctx, cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	ffmpeg, err := video.NewFFmpeg(cfg.RenderMaxWidth, logger)
	if err != nil {
		logger.Fatal("video tools unavailable", zap.Error(err))
	}

	var sinks []extraction.Sink
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer conn.Close()

		publisher, err := events.NewPublisher(conn, cfg.RabbitMQExchange)
		if err != nil {
			logger.Fatal("failed to create rabbitmq publisher", zap.Error(err))
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Info("publishing extraction events", zap.String("exchange", cfg.RabbitMQExchange))
	}

	service := extraction.NewService(extraction.Config{
		Opener:  ffmpeg,
		Encoder: encoder.NewJPEG(),
		Videos:  store,
		Blobs:   store,
		Repo:    database.NewSlideRepository(db),
		Sinks:   sinks,
		Defaults: extraction.Settings{
			SensitivityThreshold:    cfg.SensitivityThreshold,
			SamplingInterval:        cfg.SamplingIntervalSeconds,
			RequiredStabilityFrames: cfg.RequiredStabilityFrames,
			SettleDelay:             cfg.SettleDelay,
			JPEGQuality:             cfg.JPEGQuality,
		},
		Logger: logger,
	})
	if err := service.Defaults().Validate(); err != nil {
		logger.Fatal("invalid extraction defaults", zap.Error(err))
	}

	app := &api.App{
		Storage:       store,
		VideoRepo:     database.NewVideoRepository(db),
		Extraction:    service,
		Prober:        ffmpeg,
		MaxUploadSize: cfg.MaxUploadSize,
		Logger:        logger,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	logger.Info("server starting",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageBackend),
		zap.String("database", cfg.DBType),
		zap.Int64("max_upload_size", cfg.MaxUploadSize),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	<-stopped
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "minio":
		if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
			return nil, err
		}
		s, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOBucket,
			TempDir:   cfg.TempDir,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := storage.NewLocalStorage(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
