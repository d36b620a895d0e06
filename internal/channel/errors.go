package channel

import "errors"

// Domain-specific errors for channel operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnect is reported when the websocket connection cannot be established.
	ErrConnect = errors.New("channel: connect failed")

	// ErrConnectionLost is reported when an established connection closes or errors.
	ErrConnectionLost = errors.New("channel: connection lost")

	// ErrJoinRejected is reported when the server answers the join with a non-ok status.
	ErrJoinRejected = errors.New("channel: join rejected")

	// ErrMalformedMessage is reported when an inbound frame is not a valid envelope.
	ErrMalformedMessage = errors.New("channel: malformed message")

	// ErrHandlerFailure is reported when the handler returns an error or panics.
	ErrHandlerFailure = errors.New("channel: handler failure")

	// ErrInvalidTopic is returned when a topic or topic parameter is empty.
	ErrInvalidTopic = errors.New("channel: topic cannot be empty")

	// ErrInvalidConfig is returned by NewClient for unusable configuration.
	ErrInvalidConfig = errors.New("channel: invalid configuration")

	// ErrAlreadyRunning is returned when Run is called on a client that is running.
	ErrAlreadyRunning = errors.New("channel: client already running")

	// ErrFieldMissing is returned by Payload accessors when a key is absent.
	ErrFieldMissing = errors.New("channel: payload field missing")

	// ErrFieldType is returned by Payload accessors when a value has the wrong type.
	ErrFieldType = errors.New("channel: payload field has unexpected type")
)
