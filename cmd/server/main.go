// Package main implements the reference server: a small HTTP application
// that registers a handful of service definitions and exposes them for
// invocation behind JWT authentication. The service framework itself has no
// network surface; everything HTTP lives in this embedding.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/phrazzld/servicekit/internal/config"
	"github.com/phrazzld/servicekit/internal/platform/logger"
)

func main() {
	cfg, appLogger, handler, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	appLogger.Info("server starting", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		appLogger.Error("server stopped", slog.String("error", err.Error()))
		log.Fatalf("Server stopped: %v", err)
	}
}

// initializeApp loads configuration, sets up logging, and assembles the
// router with its service registry.
func initializeApp() (*config.Config, *slog.Logger, http.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel))

	handler, err := newRouter(cfg, appLogger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build router: %w", err)
	}

	return cfg, appLogger, handler, nil
}
