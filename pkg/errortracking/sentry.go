package errortracking

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
)

const flushTimeout = 2 * time.Second

// Config holds Sentry settings. An empty DSN disables reporting.
type Config struct {
	DSN         string
	Environment string
	Release     string
	ServiceName string
}

// Init configures the global Sentry client and returns a flush function to
// defer in main
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServiceName,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}

	return func() { sentry.Flush(flushTimeout) }, nil
}

// CaptureError reports err with the run ID from ctx attached as a tag
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		if runID := logger.RunIDFromContext(ctx); runID != "" {
			scope.SetTag("run_id", runID)
		}
		hub.CaptureException(err)
	})
}
