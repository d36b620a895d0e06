package mqtt

import "errors"

// Errors returned by the broker client and the event relay.
var (
	// ErrConnectionFailed means the broker refused or did not answer the
	// initial connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned for publishes while the client is down,
	// including the gap before paho's auto-reconnect succeeds.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed wraps broker errors, timeouts and oversized payloads.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidTopic is returned for an empty MQTT topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")
)
