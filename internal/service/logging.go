package service

import (
	"context"

	"civicrelay/internal/constants"
	"civicrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx as a verbose run.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeText shortens free text for non-verbose logs. Report subjects are
// public, but full post texts make the log unreadable.
func SanitizeText(text string) string {
	runes := []rune(text)
	if len(runes) <= constants.DefaultLogTextLength {
		return text
	}
	return string(runes[:constants.DefaultLogTextLength]) + "..."
}

// LogWithContext returns an entry carrying the run id stored in ctx.
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(logger)
	if runID := tracing.GetRunID(ctx); runID != "" {
		entry = entry.WithField(LogFieldRunID, runID)
	}
	return entry
}

// LogComposedText logs a post text, in full only when verbose.
func LogComposedText(ctx context.Context, entry *logrus.Entry, text string) {
	if IsVerboseLogging(ctx) {
		entry.WithField("text", text).Debug("Composed post")
		return
	}
	entry.WithField("text", SanitizeText(text)).Debug("Composed post")
}
