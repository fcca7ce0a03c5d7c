package errors

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger()

	assert.NotNil(t, logger)
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok, "Logger should use JSON formatter")
}

func TestLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.SetOutput(&buf)

	err := NewDetailNotFoundError("42")
	logger.LogError(err, "Processing new entity failed", logrus.Fields{"tenant": "md"})

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"error_code":"DETAIL_NOT_FOUND"`)
	assert.Contains(t, out, `"entity_id":"42"`)
	assert.Contains(t, out, `"tenant":"md"`)
	assert.Contains(t, out, `"msg":"Processing new entity failed"`)
}

func TestLogger_LogRetryableError(t *testing.T) {
	var buf bytes.Buffer
	logger := WrapLogger(logrus.New())
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&buf)

	logger.LogRetryableError(NewTransportError("portal", "/detail", 503, errors.New("x")), "retryable")
	assert.Contains(t, buf.String(), `"level":"warning"`)

	buf.Reset()
	logger.LogRetryableError(NewTransportError("portal", "/detail", 400, errors.New("x")), "fatal")
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestLogger_PlainError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.SetOutput(&buf)

	logger.WithError(errors.New("plain")).Warn("something")

	out := buf.String()
	assert.Contains(t, out, `"error":"plain"`)
	assert.NotContains(t, out, "error_code")
}
