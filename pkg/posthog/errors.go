package posthog

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Enqueue and Flush after Close has been called.
var ErrClosed = errors.New("posthog: client is closed")

// ErrQueueFull is returned by Enqueue when the pending queue already
// holds MaxQueueSize messages. The message is dropped.
var ErrQueueFull = errors.New("posthog: message queue is full")

// ConfigError is returned by NewWithConfig when a configuration value is
// out of range.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("posthog: invalid config: %s %v: %s", e.Field, e.Value, e.Reason)
}

// FieldError is returned by message validation when a required field is
// missing or malformed.
type FieldError struct {
	Type  string
	Field string
	Value any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("posthog: %s message has invalid %s: %v", e.Type, e.Field, e.Value)
}

// APIError is returned when the ingestion API answers with a non-2xx
// status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("posthog: server returned %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether the failed request may succeed on a retry.
// Client errors are permanent except for timeouts and rate limits.
func (e *APIError) retryable() bool {
	if e.StatusCode == 408 || e.StatusCode == 429 {
		return true
	}
	return e.StatusCode < 400 || e.StatusCode >= 500
}
