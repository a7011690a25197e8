package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otptaskd/internal/api"
	"otptaskd/internal/config"
	"otptaskd/internal/core"
	"otptaskd/internal/logging"
	otptaskdmcp "otptaskd/internal/mcp"
	"otptaskd/internal/notify"
	"otptaskd/internal/otp"
	"otptaskd/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// In MCP modes stdout carries the protocol, so logs go to stderr.
	var logger *slog.Logger
	if cfg.Mode == "http" {
		logger = logging.New(cfg.LogLevel)
	} else {
		logger = logging.NewWithWriter(os.Stderr, cfg.LogLevel)
	}

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir, cfg.Task.TTL)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	sender := otp.NewClient(otp.Config{
		CountryCode:    cfg.Provider.CountryCode,
		RequestTimeout: cfg.Provider.RequestTimeout,
		RatePerSecond:  cfg.Provider.RatePerSecond,
	}, logger)

	var notifier core.Notifier
	if cfg.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Bark.URL)
		if err != nil {
			logger.Error("configure bark notifier", "err", err)
			os.Exit(1)
		}
		notifier = bark
	} else {
		notifier = notify.NoOpNotifier{}
	}

	manager := core.NewManager(storeInst, sender, notifier, logger)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()
	manager.Start(ctx, cfg.Task.SweepInterval)

	switch cfg.Mode {
	case "http":
		runHTTPMode(cfg, manager, logger)
	case "mcp":
		runMCPMode(manager, logger, cancel)
	case "both":
		runBothMode(cfg, manager, logger)
	}
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, manager *core.Manager, logger *slog.Logger) {
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, manager, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdown(cfg, server, manager, logger)
}

// runMCPMode starts only the MCP server.
func runMCPMode(manager *core.Manager, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := otptaskdmcp.NewMCPServer(manager, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down")
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode starts both HTTP and MCP servers.
func runBothMode(cfg *config.Config, manager *core.Manager, logger *slog.Logger) {
	mcpServer := otptaskdmcp.NewMCPServer(manager, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, manager, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdown(cfg, server, manager, logger)
}

func shutdown(cfg *config.Config, server *api.Server, manager *core.Manager, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	stopCtx := manager.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("manager stop timed out")
	}
	logger.Info("shutdown complete")
}
