package main

import (
	"context"
	"errors"
	"fmt"
	"live-chat/auth"
	"live-chat/contract"
	"live-chat/infrastructure/gateway"
	"live-chat/infrastructure/grpc/server"
	"live-chat/internal"
	"live-chat/observability"
	"live-chat/repositories"
	"live-chat/runtime"
	"live-chat/runtime/workers"
	"live-chat/services"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	serviceName    = "live-chat"
	serviceVersion = "0.1.0"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every deferred cleanup on the error paths, main only maps the exit code.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment may already be set.
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	shutdownTracing, err := observability.InitTracing(logger, config.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		return exitRuntime, fmt.Errorf("tracing setup failed: %w", err)
	}
	defer shutdownTracing()

	// 3. Channel log storage
	repository, closeStorage, err := openRepository(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStorage()

	// 4. Registry, supervision & orchestration
	registry := runtime.NewRegistry(logger, repository,
		runtime.WithQueueSize(config.ConnectionBufferSize),
		runtime.WithHistoryLimit(config.HistoryLimit))
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(logger, sup, registry, runtime.OrchestratorConfig{
		ChannelIdleTTL:  config.ChannelIdleTTL,
		JanitorInterval: config.JanitorInterval,
		StatsInterval:   config.StatsInterval,
	})

	resolver := auth.NewJWTResolver(auth.NewTokenIssuer(config.JWTSecret))
	chatService := services.NewChatService(logger, registry, resolver, auth.NewMessageValidator(config.MaxContentLength))

	errChan := make(chan error, 2)
	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		orchestrator.Start(ctx)
	}()

	// 5. gRPC server
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := server.NewGRPCServer(logger, resolver, chatService)
	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress, "at", time.Now().UTC())
		for name := range grpcServer.GetServiceInfo() {
			logger.Debug("gRPC exposed service", "name", name)
		}
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 6. HTTP gateway
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.HTTPPort),
		Handler:           gateway.NewRouter(logger, chatService, config.AllowedOrigins()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP gateway", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP gateway error: %w", err)
		}
	}()

	// 7. Wait for a signal or a server failure
	exitCode, exitErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case exitErr = <-errChan:
		exitCode = exitRuntime
		stop()
	}

	// 8. Graceful shutdown
	// Streams only end when their client leaves, so GracefulStop is bounded by the timeout.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP gateway shutdown incomplete", "error", err)
	}
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("gRPC graceful stop timed out, forcing")
		grpcServer.Stop()
	}
	<-orchestratorDone
	logger.Info("Program stopped cleanly")

	return exitCode, exitErr
}

// openRepository selects the channel log backend. The returned close function is never nil.
func openRepository(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.MessageRepository, func(), error) {
	if config.Storage != internal.StorageBadger {
		logger.Info("Using in-memory channel logs", "history_limit", config.HistoryLimit)
		return repositories.NewMemoryRepository(config.HistoryLimit), func() {}, nil
	}

	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, nil, fmt.Errorf("database opening failed: %w", err)
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s?prefix=%s", config.DebugPort, endpoint, repositories.KeyPrefix))
		database.StartDebugServer(db, config.DebugPort, endpoint, repositories.InspectMapper)
	}

	closeDB := func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}
	return repositories.NewMessageRepository(db, logger), closeDB, nil
}
