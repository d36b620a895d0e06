package influxdb

import "errors"

// Errors reported by the event recorder. Check them with errors.Is.
var (
	// ErrDisabled is returned by Connect when the influxdb section is off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed means the server did not answer the startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned once the recorder has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps errors from the asynchronous write API. They are
	// delivered through the SetOnError callback, not returned from writes.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
