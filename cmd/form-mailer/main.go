// Package main is the entry point for the form mailer webhook server.
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

	"github.com/shineum/form-mailer/internal/config"
	"github.com/shineum/form-mailer/internal/notify"
	"github.com/shineum/form-mailer/internal/provider"
	"github.com/shineum/form-mailer/internal/webhook"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	// A missing transport setting is reported per request, so the server
	// still starts and the diagnostic endpoint can show what is absent.
	if err := cfg.DeliveryConfigured(); err != nil {
		slog.Warn("email delivery is not configured", "kind", "config", "error", err)
	}

	dispatcher := notify.NewDispatcher(cfg, provider.New, slog.Default())
	handler := webhook.New(cfg, dispatcher, slog.Default())

	srv := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	slog.Info("starting form-mailer",
		"listen", cfg.HTTP.Listen,
		"provider", cfg.Provider,
		"email_host", cfg.Email.Host,
		"email_port", cfg.Email.Port,
		"email_secure", cfg.Email.Secure,
		"download_url", notify.DownloadURL(cfg.Site.URL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("received signal, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown timeout reached, forcing close", "error", err)
			srv.Close()
		}
	}

	slog.Info("form-mailer stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
