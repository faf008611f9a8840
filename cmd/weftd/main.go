package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weftworks/weft/internal/application/orchestrator"
	"github.com/weftworks/weft/internal/application/scheduler"
	"github.com/weftworks/weft/internal/config"
	eventsmemory "github.com/weftworks/weft/pkg/adapters/events/memory"
	eventsredis "github.com/weftworks/weft/pkg/adapters/events/redis"
	"github.com/weftworks/weft/pkg/adapters/metrics/prometheus"
	storagememory "github.com/weftworks/weft/pkg/adapters/storage/memory"
	storageredis "github.com/weftworks/weft/pkg/adapters/storage/redis"
	"github.com/weftworks/weft/pkg/adapters/steps"
	"github.com/weftworks/weft/pkg/api/grpc"
	"github.com/weftworks/weft/pkg/api/http"
	"github.com/weftworks/weft/pkg/api/websocket"
	"github.com/weftworks/weft/pkg/ports"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting weft daemon",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Initialize Redis client when any backend needs it
	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize adapters
	var eventBus ports.EventBus
	switch cfg.EventBackend {
	case "redis":
		eventBus, err = eventsredis.NewBus(
			redisClient,
			cfg.Redis.ConsumerGroup,
			fmt.Sprintf("%s-%d", cfg.Redis.ConsumerName, os.Getpid()),
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}
	default:
		eventBus = eventsmemory.NewBus()
	}

	var runStore ports.RunStore
	switch cfg.StorageBackend {
	case "redis":
		runStore = storageredis.NewStore(redisClient, cfg.Redis.RunTTL, logger)
	default:
		runStore = storagememory.NewStore()
	}

	metricsCollector := prometheus.NewCollector(nil)

	stepRegistry := steps.NewRegistry(logger)
	if err := steps.RegisterBuiltins(stepRegistry); err != nil {
		logger.Fatal("failed to register built-in steps", zap.Error(err))
	}

	// Initialize application components
	validator := orchestrator.NewValidator(stepRegistry.Types()...)

	schedulerDefaults := scheduler.Config{
		MaxConcurrent:  cfg.Scheduler.MaxConcurrent,
		MaxRetries:     cfg.Scheduler.MaxRetries,
		PollInterval:   cfg.Scheduler.PollInterval,
		CancelGrace:    cfg.Timeouts.CancelGrace,
		HealthInterval: cfg.Scheduler.HealthCheckInterval,
		JumpGuard:      cfg.Scheduler.JumpGuard,
		ResourceWait:   cfg.Scheduler.ResourceWait,
	}

	manager := orchestrator.NewManager(
		eventBus,
		runStore,
		metricsCollector,
		stepRegistry,
		validator,
		logger,
		schedulerDefaults,
		cfg.Timeouts.RunTimeout,
	)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:    cfg.HTTPPort,
		Manager: manager,
		Logger:  logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:    cfg.GRPCPort,
		Manager: manager,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("weft daemon started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("event_backend", cfg.EventBackend),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.Int("max_concurrent", cfg.Scheduler.MaxConcurrent))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	// Shutdown components
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("run manager shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("weft daemon shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
