package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/leesangbok1/vkc-sub001/internal/app"
	"github.com/leesangbok1/vkc-sub001/internal/config"
	grpcHandler "github.com/leesangbok1/vkc-sub001/internal/delivery/grpc"
	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/metrics"
	memoryRepo "github.com/leesangbok1/vkc-sub001/internal/repository/memory"
	minioRepo "github.com/leesangbok1/vkc-sub001/internal/repository/minio"
	redisRepo "github.com/leesangbok1/vkc-sub001/internal/repository/redis"
	tarantoolRepo "github.com/leesangbok1/vkc-sub001/internal/repository/tarantool"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (optional)")
)

const shutdownTimeout = 10 * time.Second

type dataChannel interface {
	repository.DataChannel
	Close() error
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		OutputPath: cfg.Logger.OutputPath,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting realtime sync daemon",
		logger.String("channel_driver", cfg.Channel.Driver),
		logger.Int("metrics_port", cfg.Server.MetricsPort),
		logger.Int("health_port", cfg.Server.HealthPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vaultClient, err := config.NewVaultClient(&cfg.Vault)
	if err != nil {
		appLogger.Fatal("Failed to create Vault client", logger.Error(err))
	}
	if vaultClient != nil {
		appLogger.Info("Loading secrets from Vault")
		if err := config.ApplyVaultSecrets(ctx, cfg, vaultClient); err != nil {
			appLogger.Fatal("Failed to apply Vault secrets", logger.Error(err))
		}
	} else {
		appLogger.Info("Vault is disabled - using configuration file values")
	}

	m := metrics.New()

	channel, err := newChannel(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open data channel", logger.Error(err))
	}
	defer channel.Close()

	deadLetters, closeDeadLetters, err := newDeadLetters(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open dead letter log", logger.Error(err))
	}
	defer closeDeadLetters()

	var attachments repository.AttachmentRepository
	if cfg.MinIO.Enabled {
		appLogger.Info("Connecting to MinIO",
			logger.String("endpoint", cfg.MinIO.Endpoint),
			logger.String("bucket", cfg.MinIO.BucketName),
		)
		storage, err := minioRepo.NewRepository(&minioRepo.Config{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
			BucketName:      cfg.MinIO.BucketName,
		}, appLogger.Named("minio"))
		if err != nil {
			appLogger.Fatal("Failed to create MinIO client", logger.Error(err))
		}
		if err := storage.EnsureBucket(ctx); err != nil {
			appLogger.Fatal("Failed to ensure MinIO bucket", logger.Error(err))
		}
		attachments = storage
	}

	session, err := app.NewSession(app.Dependencies{
		Channel:     channel,
		DeadLetters: deadLetters,
		Attachments: attachments,
		Host:        headlessHost{},
		Alerter:     logAlerter{logger: appLogger.Named("alerts")},
		Metrics:     m,
		Logger:      appLogger,
	}, app.OptionsFromConfig(cfg))
	if err != nil {
		appLogger.Fatal("Failed to create session", logger.Error(err))
	}

	health := grpcHandler.NewHealthHandler(session.Monitor(), appLogger.Named("health"))
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HealthPort))
	if err != nil {
		appLogger.Fatal("Failed to listen", logger.Error(err), logger.Int("port", cfg.Server.HealthPort))
	}
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			appLogger.Error("Health server stopped", logger.Error(err))
		}
	}()

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics server stopped", logger.Error(err))
		}
	}()

	if err := session.Start(ctx); err != nil {
		appLogger.Fatal("Failed to start session", logger.Error(err))
	}

	if cfg.Session.UserID != "" {
		session.SetUser(ctx, &entity.User{ID: cfg.Session.UserID, Name: cfg.Session.UserName})
		watch(ctx, session, cfg.Session, appLogger)
	} else {
		appLogger.Warn("No session user configured - running without subscriptions")
	}

	appLogger.Info("Ready")
	<-ctx.Done()

	appLogger.Info("Received shutdown signal, shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	session.Close(shutdownCtx)
	health.Shutdown()
	grpcServer.GracefulStop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Failed to stop metrics server", logger.Error(err))
	}
}

func newChannel(ctx context.Context, cfg *config.Config, log *logger.Logger) (dataChannel, error) {
	switch cfg.Channel.Driver {
	case config.DriverRedis:
		log.Info("Connecting to Redis", logger.String("address", cfg.Redis.Address))
		return redisRepo.NewChannel(ctx, &redisRepo.Config{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			PingInterval: cfg.Redis.PingInterval,
			DialRetries:  cfg.Redis.DialRetries,
		}, log.Named("redis"))
	default:
		log.Info("Using in-memory data channel")
		return memoryRepo.NewChannel(memoryRepo.Config{Connected: true}, log.Named("memory")), nil
	}
}

func newDeadLetters(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.DeadLetterRepository, func(), error) {
	if !cfg.Tarantool.Enabled {
		return memoryRepo.NewDeadLetters(), func() {}, nil
	}

	log.Info("Connecting to Tarantool", logger.String("address", cfg.Tarantool.Address))
	repo, err := tarantoolRepo.NewRepository(ctx, &tarantoolRepo.Config{
		Address:  cfg.Tarantool.Address,
		User:     cfg.Tarantool.User,
		Password: cfg.Tarantool.Password,
		Timeout:  cfg.Tarantool.Timeout,
	}, log.Named("tarantool"))
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Ping(); err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("failed to ping tarantool: %w", err)
	}
	return repo, func() { repo.Close() }, nil
}

// watch logs room traffic and the notification feed of the configured user until ctx ends
func watch(ctx context.Context, session *app.Session, cfg config.SessionConfig, log *logger.Logger) {
	for _, roomID := range cfg.Rooms {
		messages, err := session.WatchRoom(ctx, roomID)
		if err != nil {
			log.Error("Failed to watch room", logger.String("room_id", roomID), logger.Error(err))
			continue
		}
		go func(roomID string) {
			for list := range messages {
				if len(list) == 0 {
					continue
				}
				last := list[len(list)-1]
				log.Info("Room updated",
					logger.String("room_id", roomID),
					logger.Int("messages", len(list)),
					logger.String("last_sender", last.SenderName),
				)
			}
		}(roomID)
	}

	feeds, err := session.WatchNotifications(ctx, cfg.UserID)
	if err != nil {
		log.Error("Failed to watch notifications", logger.Error(err))
		return
	}
	go func() {
		for f := range feeds {
			log.Info("Notifications updated",
				logger.Int("items", len(f.Items)),
				logger.Int("unread", f.UnreadCount),
			)
		}
	}()
}
