// Package main runs a local SMTP sink that accepts and logs every message,
// for developing the form mailer without a real relay.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/form-mailer/internal/mailsink"
	mailtls "github.com/shineum/form-mailer/internal/tls"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:2525", "address to listen on")
	domain := flag.String("domain", "localhost", "domain announced to clients")
	username := flag.String("user", "", "AUTH PLAIN username (empty disables auth)")
	password := flag.String("pass", "", "AUTH PLAIN password")
	useTLS := flag.Bool("tls", false, "offer STARTTLS")
	implicitTLS := flag.Bool("implicit-tls", false, "serve implicit TLS instead of STARTTLS")
	certFile := flag.String("cert", "", "TLS certificate file (self-signed when empty)")
	keyFile := flag.String("key", "", "TLS key file (self-signed when empty)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg := mailsink.Config{
		Addr:        *listen,
		Domain:      *domain,
		Username:    *username,
		Password:    *password,
		ImplicitTLS: *implicitTLS,
	}

	if *useTLS || *implicitTLS {
		tlsConfig, err := mailtls.LoadOrGenerateTLS(*certFile, *keyFile)
		if err != nil {
			slog.Error("failed to setup TLS", "error", err)
			os.Exit(1)
		}
		tlsMode := "self-signed"
		if *certFile != "" && *keyFile != "" {
			tlsMode = "file"
		}
		slog.Info("TLS enabled", "tls_mode", tlsMode, "implicit", *implicitTLS)
		cfg.TLSConfig = tlsConfig
	}

	sink, err := mailsink.New(cfg)
	if err != nil {
		slog.Error("invalid mail sink configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := sink.ListenAndServe(ctx); err != nil {
		slog.Error("mail sink error", "error", err)
		os.Exit(1)
	}

	slog.Info("mail sink stopped", "messages", len(sink.Messages()))
}
