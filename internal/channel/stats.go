package channel

import "time"

// Stats is a snapshot of a client's counters.
type Stats struct {
	State             State     `json:"-"`
	ConnectAttempts   uint64    `json:"connect_attempts"`
	Disconnects       uint64    `json:"disconnects"`
	EventsReceived    uint64    `json:"events_received"`
	MalformedMessages uint64    `json:"malformed_messages"`
	HandlerFailures   uint64    `json:"handler_failures"`
	SubscribedSince   time.Time `json:"subscribed_since,omitzero"`
	LastError         string    `json:"last_error,omitempty"`
	LastErrorAt       time.Time `json:"last_error_at,omitzero"`
}

// Stats returns a copy of the client's counters.
func (c *Client) Stats() Stats {
	c.statsMu.RLock()
	s := c.stats
	c.statsMu.RUnlock()
	s.State = c.State()
	return s
}

func (c *Client) recordConnectAttempt() uint64 {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.ConnectAttempts++
	return c.stats.ConnectAttempts
}

func (c *Client) recordSubscribed() {
	c.statsMu.Lock()
	c.stats.SubscribedSince = time.Now()
	c.statsMu.Unlock()
}

func (c *Client) recordSessionEnd(err error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if !c.stats.SubscribedSince.IsZero() {
		c.stats.Disconnects++
	}
	c.stats.SubscribedSince = time.Time{}
	c.setLastErrorLocked(err)
}

func (c *Client) recordEvent() {
	c.statsMu.Lock()
	c.stats.EventsReceived++
	c.statsMu.Unlock()
}

func (c *Client) recordMalformed(err error) {
	c.statsMu.Lock()
	c.stats.MalformedMessages++
	c.setLastErrorLocked(err)
	c.statsMu.Unlock()
}

func (c *Client) recordHandlerFailure(err error) {
	c.statsMu.Lock()
	c.stats.HandlerFailures++
	c.setLastErrorLocked(err)
	c.statsMu.Unlock()
}

func (c *Client) setLastErrorLocked(err error) {
	if err == nil {
		return
	}
	c.stats.LastError = err.Error()
	c.stats.LastErrorAt = time.Now()
}
