// Package errors provides foundational, type-safe error primitives used across
// the connect bridge.
//
// This package contains classified error types and helpers for robust error
// handling, including a fluent builder API for constructing ClassifiedError
// values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification (config, helper, remote, player, etc.)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - RetryStrategy: Retry behavior (never, immediate, backoff)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//
// Example usage:
//
//	err := errors.HelperError("spawn failed").
//		WithContext("device_id", dev.ID).
//		Retryable().
//		Build()
package errors
