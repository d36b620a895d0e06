package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/feed"
)

// Measurement names.
const (
	// MeasurementEvents has one point per received event with field
	// count=1, so sum() gives event volume. Tags: topic, kind (bookmark or
	// tag feed) and event; events outside the bookmark set share the event
	// tag "other" and keep their name in the name field.
	MeasurementEvents = "feed_events"

	// MeasurementState has one point per state transition, tagged by topic
	// and new state.
	MeasurementState = "subscription_state"
)

// Feed kinds used as the kind tag.
const (
	kindBookmark = "bookmark"
	kindTag      = "tag"

	eventOther = "other"
)

// HandleEvent records a received event. It never fails; write errors are
// reported through the SetOnError callback.
func (c *Client) HandleEvent(_ context.Context, topic, event string, _ channel.Payload) error {
	c.writePoint(eventPoint(topic, event, time.Now()))
	return nil
}

// ObserveTransition records a connection state change.
func (c *Client) ObserveTransition(tr channel.Transition) {
	c.writePoint(transitionPoint(tr))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func eventPoint(topic, event string, at time.Time) *write.Point {
	kind := kindBookmark
	if _, ok := channel.TagFromTopic(topic); ok {
		kind = kindTag
	}

	tags := map[string]string{"topic": topic, "kind": kind, "event": event}
	fields := map[string]interface{}{"count": int64(1)}
	if !feed.IsBookmarkEvent(event) {
		tags["event"] = eventOther
		fields["name"] = event
	}
	return write.NewPoint(MeasurementEvents, tags, fields, at)
}

func transitionPoint(tr channel.Transition) *write.Point {
	fields := map[string]interface{}{
		"from":       tr.From.String(),
		"session_id": tr.SessionID,
		"level":      int64(tr.To),
	}
	if tr.Err != nil {
		fields["error"] = tr.Err.Error()
	}

	at := tr.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		MeasurementState,
		map[string]string{
			"topic": tr.Topic,
			"state": tr.To.String(),
		},
		fields,
		at,
	)
}
