package service

// Logging Standards for civicrelay
//
// This file defines standard field names, log levels, and patterns
// to ensure consistent logging across the pipeline.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldTenant   = "tenant"
	LogFieldEntityID = "entity_id"
	LogFieldChannel  = "channel"
	LogFieldPurpose  = "purpose"
	LogFieldRunID    = "run_id"
	LogFieldCommand  = "command"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldPhase     = "phase"

	// Queue and publish fields
	LogFieldItem      = "item"
	LogFieldReceiptID = "receipt_id"
	LogFieldReplyTo   = "reply_to"
	LogFieldMediaID   = "media_id"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: request payloads, composed texts, per-item storage writes.
//
// INFO: run start and end, phase summaries, successful publishes.
//
// WARN: Something unexpected happened, but the run can continue.
//   - Retryable errors
//   - Queue full, item dropped
//   - Follow-up without a thread parent
//   - Image missing or rejected
//
// ERROR: a per-item failure. Error entries are forwarded to the alert sink
// when the tenant has it enabled.
//
// FATAL: configuration or storage required for startup is unavailable.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Completed operations: "Completed [operation]"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"

// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldTenant:   tenant.Key,
//     LogFieldEntityID: entity.ID,
//     LogFieldChannel:  channel.Name,
//     LogFieldPurpose:  models.PurposeNewEntity,
// }).Info("Item enqueued")
