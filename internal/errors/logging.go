package errors

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with structured error logging
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger
func NewLogger() *Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &Logger{Logger: logger}
}

// WrapLogger adds structured error logging to an existing logger
func WrapLogger(logger *logrus.Logger) *Logger {
	return &Logger{Logger: logger}
}

// LogError logs an error with structured context
func (l *Logger) LogError(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields).Error(message)
}

// LogWarn logs a warning with structured context
func (l *Logger) LogWarn(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields).Warn(message)
}

// LogRetryableError logs a retryable error at warn level, non-retryable at error level
func (l *Logger) LogRetryableError(err error, message string, fields ...logrus.Fields) {
	if IsRetryable(err) {
		l.LogWarn(err, message, fields...)
	} else {
		l.LogError(err, message, fields...)
	}
}

// WithError adds an error and its AppError context to subsequent log entries
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry(err, nil)
}

func (l *Logger) entry(err error, fields []logrus.Fields) *logrus.Entry {
	entry := l.Logger.WithError(err)
	entry = WithAppContext(entry, err)
	for _, field := range fields {
		entry = entry.WithFields(field)
	}
	return entry
}

// WithAppContext copies the code and context of an AppError onto a log entry.
func WithAppContext(entry *logrus.Entry, err error) *logrus.Entry {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return entry
	}
	entry = entry.WithFields(logrus.Fields{
		"error_code": appErr.Code,
		"retryable":  appErr.Retryable,
	})
	for k, v := range appErr.Context {
		entry = entry.WithField(k, v)
	}
	return entry
}
