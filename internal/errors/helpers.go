package errors

import (
	"fmt"
)

// Common error creators for the sync and publish pipeline

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key)
}

// NewStorageError creates a storage error with operation context
func NewStorageError(operation, key string, err error) *AppError {
	return Wrap(err, ErrCodeStorage, fmt.Sprintf("storage %s failed", operation)).
		WithContext("operation", operation).
		WithContext("key", key)
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}

// NewTransportError creates an error for a failed call to the portal or a
// publish backend. statusCode is 0 when no response was received.
func NewTransportError(service, endpoint string, statusCode int, err error) *AppError {
	retryable := statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 408

	appErr := Wrap(err, ErrCodeTransport, fmt.Sprintf("%s call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint)
	if statusCode != 0 {
		appErr = appErr.WithContext("status_code", statusCode)
	}
	appErr.Retryable = retryable
	return appErr
}

// NewDetailNotFoundError is returned when the portal answers a detail request
// with an empty list.
func NewDetailNotFoundError(entityID string) *AppError {
	return New(ErrCodeDetailNotFound, fmt.Sprintf("no details for entity %q", entityID)).
		WithContext("entity_id", entityID)
}

// NewMediaError creates a media processing error
func NewMediaError(operation, mediaID string, err error) *AppError {
	return Wrap(err, ErrCodeMediaDownload, fmt.Sprintf("media %s failed", operation)).
		WithContext("operation", operation).
		WithContext("media_id", mediaID)
}

// NewThreadMissingError reports a follow-up that has no prior publish to reply to
func NewThreadMissingError(channel, entityID string) *AppError {
	return New(ErrCodeThreadMissing, "no prior receipt to reply to").
		WithContext("channel", channel).
		WithContext("entity_id", entityID)
}

// NewArchivalError reports one artifact that could not be relocated
func NewArchivalError(entityID, artifact string, err error) *AppError {
	return Wrap(err, ErrCodeArchivalPartial, fmt.Sprintf("archiving %s failed", artifact)).
		WithContext("entity_id", entityID).
		WithContext("artifact", artifact)
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier)
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration)
}

// Chain multiple errors together for complex operations
func Chain(errors ...*AppError) *AppError {
	if len(errors) == 0 {
		return nil
	}
	if len(errors) == 1 {
		return errors[0]
	}

	primary := errors[0]
	var messages []string
	var allContext = make(map[string]interface{})

	for i, err := range errors {
		if i == 0 {
			messages = append(messages, err.Message)
		} else {
			messages = append(messages, fmt.Sprintf("(%d) %s", i+1, err.Message))
		}

		for k, v := range err.Context {
			key := k
			if i > 0 {
				key = fmt.Sprintf("%s_%d", k, i+1)
			}
			allContext[key] = v
		}
	}

	return &AppError{
		Code:      primary.Code,
		Message:   fmt.Sprintf("multiple errors: %v", messages),
		Cause:     primary.Cause,
		Context:   allContext,
		Retryable: primary.Retryable,
	}
}
