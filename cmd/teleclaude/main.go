package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/teleclaude/teleclaude/pkg/api"
	"github.com/teleclaude/teleclaude/pkg/bot"
	"github.com/teleclaude/teleclaude/pkg/boundary"
	"github.com/teleclaude/teleclaude/pkg/claudecode"
	"github.com/teleclaude/teleclaude/pkg/client"
	"github.com/teleclaude/teleclaude/pkg/config"
	"github.com/teleclaude/teleclaude/pkg/history"
	"github.com/teleclaude/teleclaude/pkg/skills"
	"github.com/teleclaude/teleclaude/pkg/storage"
	"github.com/teleclaude/teleclaude/pkg/version"
)

const (
	httpShutdownTimeout = 5 * time.Second
	// sessionMaxAge bounds how long an untouched session row survives.
	sessionMaxAge = 30 * 24 * time.Hour
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	configFile := flag.String("config-file", getEnv("TELECLAUDE_CONFIG", "teleclaude.yaml"), "path to the YAML configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file loaded", "error", err)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting teleclaude", "version", version.Full())

	// 1. Load configuration
	settings, err := config.Initialize(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"config_file", *configFile,
		"approved_roots", len(settings.Claude.ApprovedRoots),
		"default_directory", settings.Claude.DefaultDirectory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Open storage and run migrations
	store, err := storage.NewClient(ctx, settings.Database.Path)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err, "path", settings.Database.Path)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	sessions := storage.NewBotSessionRepository(store)
	if removed, err := sessions.CleanupExpired(ctx, sessionMaxAge); err != nil {
		slog.Warn("Session cleanup failed", "error", err)
	} else if removed > 0 {
		slog.Info("Removed expired session rows", "count", removed)
	}

	// 3. Session history and skills
	index := history.NewIndex(settings.Claude.HistoryPath)
	resolver := skills.NewResolver(
		settings.Claude.SkillsRoot,
		settings.Claude.CommandsRoot,
		settings.Claude.PluginRegistryPath,
		settings.Claude.SettingsPath,
	)

	// 4. Backend client manager
	manager := client.NewManager(client.ManagerConfig{
		Store: sessions,
		Index: index,
		Factory: func(opts claudecode.Options) client.Backend {
			return claudecode.NewClient(opts)
		},
		Binary: settings.Claude.Binary,
		PermissionFor: func(workDir string) claudecode.PermissionFunc {
			return boundary.NewGate(settings.Claude.ApprovedRoots, workDir).CanUseTool
		},
		IdleTimeout: settings.Claude.IdleTimeout,
	})

	// 5. Telegram bot
	tgBot, err := bot.New(settings, manager, index, resolver, sessions)
	if err != nil {
		slog.Error("Failed to initialize bot", "error", err)
		os.Exit(1)
	}

	// 6. Optional ops HTTP server
	errCh := make(chan error, 1)
	var httpServer *http.Server
	if settings.API.Addr != "" {
		apiServer := api.NewServer(manager, store, settings.Claude.DefaultDirectory)
		httpServer = &http.Server{
			Addr:    settings.API.Addr,
			Handler: apiServer.Router(),
		}
		go func() {
			slog.Info("HTTP server listening", "addr", settings.API.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	// 7. Run until signal or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("Received signal, shutting down", "signal", sig)
		case err := <-errCh:
			slog.Error("HTTP server failed", "error", err)
		}
		cancel()
	}()

	tgBot.Run(ctx)

	// 8. Graceful shutdown
	manager.DisconnectAll()
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
	}
	slog.Info("Shutdown complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
