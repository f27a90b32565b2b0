// Package main is the entry point for the mail proxy server.
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

	"github.com/joho/godotenv"

	"github.com/dray-supadev/api-gmail/internal/api"
	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/config"
	"github.com/dray-supadev/api-gmail/internal/provider"
	"github.com/dray-supadev/api-gmail/internal/provider/gmail"
	"github.com/dray-supadev/api-gmail/internal/provider/graph"
	"github.com/dray-supadev/api-gmail/internal/provider/ses"
	"github.com/dray-supadev/api-gmail/internal/quote"
	"github.com/dray-supadev/api-gmail/internal/workflow"
)

// shutdownGrace bounds how long in-flight requests may run after a shutdown
// signal.
const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	// A .env file is a local development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)
	logger := slog.Default()

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
	}

	var wf *workflow.Client
	if cfg.WorkflowConfigured() {
		wf = workflow.New(cfg.Workflow.BaseURL, cfg.Workflow.APIToken, httpClient)
	} else {
		slog.Warn("no workflow engine configured, quote preview and notify are unavailable")
	}

	factory, err := buildFactory(cfg, httpClient)
	if err != nil {
		slog.Error("failed to initialize providers", "error", err)
		os.Exit(1)
	}

	orchestrator := quote.New(wf, httpClient, logger)
	server := api.New(cfg, logger, factory, orchestrator, wf)

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.Router(),
	}

	slog.Info("starting mail-proxy",
		"listen", cfg.Server.Listen,
		"ses_configured", cfg.SESConfigured(),
		"workflow_configured", cfg.WorkflowConfigured(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("received signal, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}

	slog.Info("mail-proxy stopped")
}

// loadConfig loads configuration from the specified path (YAML + env
// override) or from environment variables only if no path is given.
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

// buildFactory wires the per-request provider selection. The mailbox
// backends are constructed per request around the forwarded bearer token;
// the send-only SES backend is constructed once at startup.
func buildFactory(cfg *config.Config, httpClient *http.Client) (provider.Factory, error) {
	var sesClient *ses.Client
	if cfg.SESConfigured() {
		var err error
		sesClient, err = ses.New(context.Background(), ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("transactional backend ready",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
		)
	}

	return func(ctx context.Context, kind provider.Kind, token string) (provider.Client, error) {
		switch kind {
		case provider.KindGmail:
			return gmail.New(ctx, token)
		case provider.KindOutlook:
			return graph.New(token, httpClient), nil
		case provider.KindSES:
			if sesClient == nil {
				return nil, &apperr.CapabilityError{Provider: "ses", Op: "sending (backend not configured)"}
			}
			return sesClient, nil
		}
		return nil, apperr.Validation("provider", "must be one of gmail, outlook, ses")
	}, nil
}
