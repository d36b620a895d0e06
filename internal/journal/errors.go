package journal

import "errors"

var (
	// ErrSessionNotFound is returned when a session id has no row.
	ErrSessionNotFound = errors.New("journal: session not found")

	// ErrInvalidSession is returned when a session is missing id or topic.
	ErrInvalidSession = errors.New("journal: invalid session")
)
