package channel

import "time"

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoining
	StateSubscribed
)

// String returns the lowercase state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoining:
		return "joining"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// AllStates lists every state in transition order.
func AllStates() []State {
	return []State{StateDisconnected, StateConnecting, StateJoining, StateSubscribed}
}

// Transition describes one state change of a Client.
type Transition struct {
	Topic     string
	SessionID string
	From      State
	To        State
	At        time.Time

	// Err is the cause when To is StateDisconnected after a failure.
	// It is nil for transitions caused by cancellation.
	Err error
}
