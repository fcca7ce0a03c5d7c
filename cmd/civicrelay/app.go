package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"civicrelay/internal/alert"
	"civicrelay/internal/config"
	"civicrelay/internal/metrics"
	"civicrelay/internal/models"
	"civicrelay/internal/privacy"
	"civicrelay/internal/service"
	"civicrelay/internal/storage"
	"civicrelay/internal/tracing"
	"civicrelay/internal/wire"
	pkgconstants "civicrelay/pkg/constants"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// app is everything one command invocation shares: configuration, the run
// logger and its sinks, tracing, metrics and the storage backend.
type app struct {
	cfg     *models.Config
	tenant  models.TenantConfig
	command string
	runID   string

	logger  *logrus.Logger
	logFile *os.File
	slack   *alert.SlackHook
	tracing *tracing.TracingManager
	span    oteltrace.Span
	metrics *metrics.Registry
	store   storage.Store
}

// newApp loads the configuration and opens every sink of a run. The returned
// context carries the run id and the root span.
func newApp(ctx context.Context, opts *rootOptions, command string, logOut io.Writer) (*app, context.Context, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to load config: %w", err)
	}

	tenant, ok := cfg.Tenant(opts.TenantKey)
	if !ok {
		return nil, ctx, fmt.Errorf("tenant %q is not configured or not active", opts.TenantKey)
	}

	a := &app{
		cfg:     cfg,
		tenant:  tenant,
		command: command,
		runID:   uuid.NewString(),
		metrics: metrics.NewRegistry(),
	}

	logFile, err := openLogFile(cfg.DataDir, storage.NewLayout(tenant.Key).LogFile(command))
	if err != nil {
		return nil, ctx, err
	}
	a.logFile = logFile
	a.logger = newLogger(io.MultiWriter(logOut, logFile), cfg.LogLevel, opts.Verbose)

	if tenant.LogToSlackChannel && cfg.Alert.SlackWebhookURL != "" {
		a.slack = alert.NewSlackHook(cfg.Alert.SlackWebhookURL, tenant.Key, nil)
		a.logger.AddHook(a.slack)
		a.logger.WithField("webhook", privacy.MaskWebhookURL(cfg.Alert.SlackWebhookURL)).Debug("Slack alerts enabled")
	}

	a.tracing = tracing.NewTracingManager(cfg.Tracing, logFile, a.logger)
	if err := a.tracing.Initialize(ctx); err != nil {
		a.logger.Warnf("Failed to initialize tracing: %v", err)
	}

	ctx = service.WithVerbose(ctx, opts.Verbose)
	ctx, a.span = tracing.StartRun(ctx, command, tenant.Key, a.runID)

	a.logger.WithFields(logrus.Fields{
		service.LogFieldTenant:  tenant.Key,
		service.LogFieldCommand: command,
		service.LogFieldRunID:   a.runID,
		"version":               Version,
	}).Info("Starting civicrelay")

	a.store, err = wire.OpenStorage(ctx, cfg, a.logger)
	if err != nil {
		a.close(ctx, err)
		return nil, ctx, fmt.Errorf("failed to open storage: %w", err)
	}

	return a, ctx, nil
}

func (a *app) entry(ctx context.Context) *logrus.Entry {
	return service.LogWithContext(ctx, a.logger).WithFields(logrus.Fields{
		service.LogFieldTenant:  a.tenant.Key,
		service.LogFieldCommand: a.command,
	})
}

// close ends the run: it logs the metrics summary, flushes traces and alerts
// and releases the storage backend and the log file.
func (a *app) close(ctx context.Context, runErr error) {
	entry := a.entry(ctx).WithFields(a.metrics.Summary())
	if runErr != nil {
		entry.WithError(runErr).Error("Run failed")
	} else {
		entry.Info("Run finished")
	}

	if a.span != nil {
		tracing.End(a.span, runErr)
	}
	if err := a.tracing.Shutdown(context.Background()); err != nil {
		a.logger.Warnf("Failed to shutdown tracing: %v", err)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close storage")
		}
	}
	if a.slack != nil {
		if failed := a.slack.Flush(); failed > 0 {
			a.logger.WithField(service.LogFieldCount, failed).Warn("Some alerts could not be delivered")
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// newLogger builds the JSON run logger. verbose forces debug level.
func newLogger(out io.Writer, level string, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(out)

	switch {
	case verbose:
		logger.SetLevel(logrus.DebugLevel)
	case level != "":
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", level)
			parsed = logrus.InfoLevel
		}
		logger.SetLevel(parsed)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// openLogFile opens the per-command log below dataDir for appending.
func openLogFile(dataDir, key string) (*os.File, error) {
	path := filepath.Join(dataDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), pkgconstants.DefaultDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, pkgconstants.DefaultFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
