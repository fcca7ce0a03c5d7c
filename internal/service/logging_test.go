package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"civicrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestIsVerboseLogging(t *testing.T) {
	assert.False(t, IsVerboseLogging(context.Background()))
	assert.True(t, IsVerboseLogging(WithVerbose(context.Background(), true)))
	assert.False(t, IsVerboseLogging(WithVerbose(context.Background(), false)))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "", SanitizeText(""))
	assert.Equal(t, "kurz", SanitizeText("kurz"))

	long := strings.Repeat("ä", 100)
	got := SanitizeText(long)
	assert.Equal(t, strings.Repeat("ä", 60)+"...", got)
}

func TestLogWithContext(t *testing.T) {
	logger, hook := test.NewNullLogger()

	LogWithContext(context.Background(), logger).Info("no run")
	_, ok := hook.LastEntry().Data[LogFieldRunID]
	assert.False(t, ok)

	LogWithContext(tracing.WithRunID(context.Background(), "run-1"), logger).Info("with run")
	assert.Equal(t, "run-1", hook.LastEntry().Data[LogFieldRunID])
}

func TestLogComposedText(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	hook := test.NewLocal(logger)
	long := strings.Repeat("x", 100)

	LogComposedText(context.Background(), logrus.NewEntry(logger), long)
	assert.Equal(t, SanitizeText(long), hook.LastEntry().Data["text"])

	LogComposedText(WithVerbose(context.Background(), true), logrus.NewEntry(logger), long)
	assert.Equal(t, long, hook.LastEntry().Data["text"])
}
