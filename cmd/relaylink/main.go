// relaylink client: keeps one session to the relay server alive, tracks the
// engine behind it and exposes a local control API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/relaylink/pkg/api"
	"github.com/codeready-toolchain/relaylink/pkg/cleanup"
	"github.com/codeready-toolchain/relaylink/pkg/config"
	"github.com/codeready-toolchain/relaylink/pkg/connection"
	"github.com/codeready-toolchain/relaylink/pkg/database"
	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/health"
	"github.com/codeready-toolchain/relaylink/pkg/inbox"
	"github.com/codeready-toolchain/relaylink/pkg/ledger"
	"github.com/codeready-toolchain/relaylink/pkg/lifecycle"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
	"github.com/codeready-toolchain/relaylink/pkg/scene"
	"github.com/codeready-toolchain/relaylink/pkg/transport"
	"github.com/codeready-toolchain/relaylink/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newLogger(cfg *config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	connectOnStart := flag.Bool("connect", true,
		"Connect to the relay as soon as the client starts")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Configuration and logging
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("Starting relaylink",
		"version", version.GitCommit,
		"relay", cfg.Relay.WSURL,
		"config_dir", *configDir)

	// 2. Ledger (memory unless a database is configured)
	var (
		store    ledger.Store
		pruner   ledger.Pruner
		dbClient *database.Client
	)
	if cfg.Ledger.Enabled {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		pg := ledger.NewPostgres(dbClient.DB())
		store, pruner = pg, pg
		slog.Info("Ledger stored in PostgreSQL", "database", dbConfig.Database)
	} else {
		mem := ledger.NewMemory(0, 0)
		store, pruner = mem, mem
		slog.Info("Ledger kept in memory")
	}
	// The recorder outlives the signal context so Stop can drain it.
	recorder := ledger.NewRecorder(store, cfg.Ledger.QueueSize)
	recorder.Start(context.Background())
	defer recorder.Stop()

	cleanupSvc := cleanup.NewService(cfg.Retention, pruner)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	// 3. Relay transport and health probes
	ws, err := transport.NewWebSocket(cfg.Relay)
	if err != nil {
		slog.Error("Failed to create relay transport", "error", err)
		os.Exit(1)
	}

	var probers health.Multi
	if cfg.Relay.HealthURL != "" {
		probers = append(probers, health.NewHTTPProber(cfg.Relay.HealthURL, nil))
	}
	if cfg.Relay.HealthGRPCAddr != "" {
		grpcProber, err := health.NewGRPCProber(cfg.Relay.HealthGRPCAddr, "")
		if err != nil {
			slog.Error("Failed to create gRPC health prober", "addr", cfg.Relay.HealthGRPCAddr, "error", err)
			os.Exit(1)
		}
		defer func() { _ = grpcProber.Close() }()
		probers = append(probers, grpcProber)
	}

	// 4. Session services
	noticeSvc := notices.NewService(cfg.Notices)
	sceneCache := scene.NewCache()
	signals := lifecycle.NewSignals()

	router := events.NewRouter()
	router.Handle(events.KindCommandCompleted, sceneCache.Handler())
	messages := inbox.New(0, noticeSvc)
	messages.Install(router)

	mgr, err := connection.NewManager(cfg.Session, connection.Deps{
		Transport: ws,
		Prober:    probers,
		Cache:     sceneCache,
		Notices:   noticeSvc,
		Ledger:    recorder,
		Signals:   signals,
		Router:    router,
	})
	if err != nil {
		slog.Error("Failed to create connection manager", "error", err)
		os.Exit(1)
	}

	mgrDone := make(chan error, 1)
	go func() { mgrDone <- mgr.Run(ctx) }()

	if *connectOnStart {
		if err := mgr.Connect(); err != nil {
			slog.Error("Failed to request initial connect", "error", err)
		}
	}

	// 5. HTTP API (non-blocking)
	httpServer := api.NewServer(cfg.API, mgr, noticeSvc, sceneCache, store)
	httpServer.SetInbox(messages)
	if dbClient != nil {
		httpServer.SetDatabaseClient(dbClient)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.API.ListenAddr)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("relaylink started successfully")

	// 6. Wait for shutdown signal or server error
	managerExited := false
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	case err := <-mgrDone:
		managerExited = true
		slog.Error("Connection manager exited", "error", err)
	}

	// 7. Graceful shutdown
	httpShutdownCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	stop()
	if !managerExited {
		select {
		case <-mgrDone:
		case <-time.After(5 * time.Second):
			slog.Warn("Connection manager shutdown timeout exceeded")
		}
	}

	slog.Info("Shutdown complete")
}
