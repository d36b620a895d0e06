package redis

import "errors"

// Domain-specific errors for Redis operations.
var (
	// ErrDisabled is returned by Connect when the relay is disabled in config.
	ErrDisabled = errors.New("redis: relay disabled")

	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("redis: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("redis: publish failed")
)
