package supervisor

import "errors"

// Domain-specific errors for supervisor operations.
var (
	// ErrNoTopics is returned when no topic is configured.
	ErrNoTopics = errors.New("supervisor: at least one topic is required")

	// ErrDuplicateTopic is returned when a topic is configured twice.
	ErrDuplicateTopic = errors.New("supervisor: duplicate topic")

	// ErrNoSubscriptions is returned by HealthCheck when no client is subscribed.
	ErrNoSubscriptions = errors.New("supervisor: no active subscriptions")

	// ErrUnknownTopic is returned when a lookup names a topic that is not supervised.
	ErrUnknownTopic = errors.New("supervisor: unknown topic")
)
