package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/feedwatch/internal/channel"
)

// Publisher is the subset of Client the relay needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// Relay republishes feed events and subscription state to MQTT.
//
// It is a supervisor sink (events) and observer (state changes).
type Relay struct {
	pub    Publisher
	qos    byte
	logger Logger
}

// NewRelay returns a Relay publishing through pub at qos. logger may be nil.
func NewRelay(pub Publisher, qos byte, logger Logger) *Relay {
	return &Relay{pub: pub, qos: qos, logger: logger}
}

// eventMessage is the JSON published for every event.
type eventMessage struct {
	Topic      string          `json:"topic"`
	Event      string          `json:"event"`
	Payload    channel.Payload `json:"payload"`
	ReceivedAt string          `json:"received_at"`
}

// stateMessage is the retained JSON published on every state change.
type stateMessage struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HandleEvent publishes one event, non-retained.
func (r *Relay) HandleEvent(_ context.Context, topic, event string, payload channel.Payload) error {
	data, err := json.Marshal(eventMessage{
		Topic:      topic,
		Event:      event,
		Payload:    payload,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return r.pub.Publish(Topics{}.Event(topic, event), data, r.qos, false)
}

// ObserveTransition publishes the new state, retained. Failures are logged;
// the broker may simply be reconnecting.
func (r *Relay) ObserveTransition(tr channel.Transition) {
	msg := stateMessage{
		State:     tr.To.String(),
		SessionID: tr.SessionID,
		Timestamp: tr.At.UTC().Format(time.RFC3339Nano),
	}
	if tr.Err != nil {
		msg.Error = tr.Err.Error()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.pub.PublishRetained(Topics{}.SubscriptionState(tr.Topic), data); err != nil && r.logger != nil {
		r.logger.Warn("publishing subscription state failed", "topic", tr.Topic, "error", err)
	}
}
