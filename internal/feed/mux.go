package feed

import (
	"context"
	"sort"

	"github.com/nerrad567/feedwatch/internal/channel"
)

// HandlerFunc handles one event on a topic.
type HandlerFunc func(ctx context.Context, topic string, payload channel.Payload) error

// FallbackFunc handles events with no registered route.
type FallbackFunc func(ctx context.Context, topic, event string, payload channel.Payload) error

// Mux routes events to handlers by event name.
//
// Routes are registered before the mux is handed to a client; HandleEvent
// may then be called from any number of goroutines.
type Mux struct {
	routes   map[string]HandlerFunc
	fallback FallbackFunc
}

// NewMux returns a Mux whose default handler logs unknown events at debug
// level and ignores them. logger may be nil.
func NewMux(logger channel.Logger) *Mux {
	m := &Mux{routes: make(map[string]HandlerFunc)}
	m.fallback = func(_ context.Context, topic, event string, _ channel.Payload) error {
		if logger != nil {
			logger.Debug("ignoring unhandled event", "topic", topic, "event", event)
		}
		return nil
	}
	return m
}

// Handle registers fn for event, replacing any earlier registration.
func (m *Mux) Handle(event string, fn HandlerFunc) {
	m.routes[event] = fn
}

// SetDefault replaces the handler for unrouted events.
func (m *Mux) SetDefault(fn FallbackFunc) {
	if fn != nil {
		m.fallback = fn
	}
}

// Events returns the routed event names in sorted order.
func (m *Mux) Events() []string {
	events := make([]string, 0, len(m.routes))
	for e := range m.routes {
		events = append(events, e)
	}
	sort.Strings(events)
	return events
}

// Routes reports whether event has a registered handler.
func (m *Mux) Routes(event string) bool {
	_, ok := m.routes[event]
	return ok
}

// HandleEvent dispatches to the handler for event or to the default.
func (m *Mux) HandleEvent(ctx context.Context, topic, event string, payload channel.Payload) error {
	if fn, ok := m.routes[event]; ok {
		return fn(ctx, topic, payload)
	}
	return m.fallback(ctx, topic, event, payload)
}
