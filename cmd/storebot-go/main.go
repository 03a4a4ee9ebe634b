// Package main is the entrypoint for the storebot-go server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storebotdev/storebot-go/internal/access"
	"github.com/storebotdev/storebot-go/internal/broadcast"
	"github.com/storebotdev/storebot-go/internal/cache"
	"github.com/storebotdev/storebot-go/internal/config"
	"github.com/storebotdev/storebot-go/internal/httpclient"
	"github.com/storebotdev/storebot-go/internal/identity"
	"github.com/storebotdev/storebot-go/internal/notifier/telegram"
	"github.com/storebotdev/storebot-go/internal/ratelimit"
	"github.com/storebotdev/storebot-go/internal/server"
	"github.com/storebotdev/storebot-go/internal/session"
	"github.com/storebotdev/storebot-go/internal/store"
	"github.com/storebotdev/storebot-go/internal/users"

	// Register cache drivers
	_ "github.com/storebotdev/storebot-go/internal/cache/loader"

	// Register storage drivers
	_ "github.com/storebotdev/storebot-go/internal/store/json"
	_ "github.com/storebotdev/storebot-go/internal/store/sqlite"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	storageDriver := flag.String("storage-driver", "", "Storage driver: json or sqlite (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or valkey (overrides config)")
	telegramToken := flag.String("telegram-token", "", "Telegram bot token (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, selfsigned, or acme (overrides config)")
	adminUsername := flag.String("admin-username", "", "Bootstrap admin username (overrides config)")
	adminPassword := flag.String("admin-password", "", "Bootstrap admin password (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:    listenAddr,
			StorageDriver: storageDriver,
			DataDir:       dataDir,
			CacheDriver:   cacheDriver,
			TelegramToken: telegramToken,
			SSRFMode:      ssrfMode,
			TLSMode:       tlsMode,
			AdminUsername: adminUsername,
			AdminPassword: adminPassword,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create logger with configured level
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	// Open the persistence driver
	driver, err := store.New(&store.DriverConfig{
		Driver:  cfg.Storage.Driver,
		DataDir: cfg.Storage.DataDir,
	})
	if err != nil {
		logger.Error("failed to create storage driver", "error", err)
		os.Exit(1)
	}
	if err := driver.Init(context.Background()); err != nil {
		logger.Error("failed to initialize storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer driver.Close()
	logger.Info("storage initialized", "driver", driver.Name(), "data_dir", cfg.Storage.DataDir)

	// Create cache (defaults to in-memory if not configured)
	cacheInstance, err := cache.New(cfg.Cache.Driver, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	// Outbound HTTP client and Telegram transport
	httpClient := httpclient.New(&cfg.OutboundHTTP)
	notifier := telegram.New(&cfg.Telegram, httpClient, logger)

	// Session state lives on the cache; the Telegram client deletes tracked
	// UI messages during cleanup.
	sessions := session.NewManager(cacheInstance, notifier, logger)

	// Core services
	gate := access.NewGate(driver.(store.AuthStore), sessions, logger)
	issuer := access.NewIssuer(driver.(store.CodeStore), time.Duration(cfg.Access.CodeTTLHours)*time.Hour, logger)
	registry := users.NewRegistry(driver.(store.UserStore), logger)
	audience := broadcast.NewAudience(registry, gate)
	distributor := broadcast.NewDistributor(driver.(store.BroadcastStore), audience, notifier, logger)

	// Admin API auth
	adminAuth, err := identity.NewAdminAuth(cfg.Server.BootstrapAdmin.Username, cfg.Server.BootstrapAdmin.Password, logger)
	if err != nil {
		logger.Error("failed to set up admin auth", "error", err)
		os.Exit(1)
	}
	sessionRepo := identity.NewMemorySessionRepo()

	deps := &server.Deps{
		Issuer:       issuer,
		Gate:         gate,
		Registry:     registry,
		Distributor:  distributor,
		AdminAuth:    adminAuth,
		SessionRepo:  sessionRepo,
		LoginLimiter: ratelimit.New(cacheInstance, ratelimit.LoginConfig()),
	}

	srv, err := server.New(cfg, logger, deps)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
