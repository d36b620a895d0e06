package kafka

import "errors"

// Domain-specific errors for Kafka operations.
var (
	// ErrDisabled is returned by Connect when the relay is disabled in config.
	ErrDisabled = errors.New("kafka: relay disabled")

	// ErrConnectionFailed is returned when no broker can be reached.
	ErrConnectionFailed = errors.New("kafka: connection failed")

	// ErrPublishFailed is returned or reported when a write fails.
	ErrPublishFailed = errors.New("kafka: publish failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kafka: producer closed")
)
