// Package cli holds the start-up steps shared by cmd/ordem, cmd/ordem-worker
// and cmd/ordemctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ordem/internal/config"
	"ordem/internal/googleauth"
	"ordem/internal/log"
	"ordem/internal/storage"
)

// SetupLogger builds the process logger from the configured level and
// format and installs it as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	return log.Setup(cfg.LogLevel, cfg.LogFormat)
}

// LoadConfig reads .env (when present) and the environment.
func LoadConfig() *config.Config {
	config.LoadDotEnv()
	return config.Load()
}

// MustValidate exits the process when cfg is invalid.
func MustValidate(logger *log.Logger, cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
}

// OpenStore opens the sqlite database and applies pending migrations.
func OpenStore(logger *log.Logger, path string) (*storage.Store, error) {
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	logger.Info("SQLite store ready", log.FieldPath, path)
	return store, nil
}

// GoogleCredentials returns the service account configured for Sheets and
// Cloud Storage.
func GoogleCredentials(cfg *config.Config) googleauth.Credentials {
	return googleauth.Credentials{JSON: cfg.GoogleServiceAccountJSON, File: cfg.GoogleServiceAccountFile}
}

// SignalContext is cancelled on SIGINT or SIGTERM. The returned stop
// releases the signal handler.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// ShutdownContext bounds the time given to cleanup after the signal.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
