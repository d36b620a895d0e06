package journal

import "time"

// Session is one connection attempt of a topic client.
type Session struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	URL          string    `json:"url"`
	StartedAt    time.Time `json:"started_at"`
	SubscribedAt time.Time `json:"subscribed_at,omitzero"`
	EndedAt      time.Time `json:"ended_at,omitzero"`

	// EndState is the state the client was in when the session ended:
	// "connecting" for a failed dial, "subscribed" for a dropped feed.
	EndState string `json:"end_state,omitempty"`

	Events   int64  `json:"events"`
	Failures int64  `json:"failures"`
	Error    string `json:"error,omitempty"`
}

// Open reports whether the session has not ended yet.
func (s Session) Open() bool {
	return s.EndedAt.IsZero()
}

// Duration is how long the session lasted, or has lasted so far.
func (s Session) Duration(now time.Time) time.Duration {
	if s.Open() {
		return now.Sub(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}
