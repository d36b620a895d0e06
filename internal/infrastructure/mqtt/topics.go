package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for everything the relay publishes.
const (
	// TopicPrefix is the root of all feedwatch topics.
	TopicPrefix = "feedwatch"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "feedwatch/system"
)

// Topics provides builders for feedwatch MQTT topics.
//
// Channel topics and event names contain ':' (allowed in MQTT) and may in
// principle contain '/', '+' or '#', which would change the topic level
// structure. Segments are sanitised so each channel topic and each event
// name occupies exactly one level:
//
//	mqtt.Topics{}.Event("tag:go", "bookmark:created")
//	// Returns: "feedwatch/event/tag:go/bookmark:created"
type Topics struct{}

// Event returns the topic an event received on a channel topic is relayed to.
//
// Example: feedwatch/event/bookmark:feed/bookmark:chat
func (Topics) Event(channelTopic, event string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, segment(channelTopic), segment(event))
}

// SubscriptionState returns the retained state topic for a channel topic.
//
// Example: feedwatch/subscription/tag:go/state
func (Topics) SubscriptionState(channelTopic string) string {
	return fmt.Sprintf("%s/subscription/%s/state", TopicPrefix, segment(channelTopic))
}

// SystemStatus returns the relay's online/offline status topic.
//
// Example: feedwatch/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEvents returns a pattern matching every relayed event.
//
// Pattern: feedwatch/event/+/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+/+", TopicPrefix)
}

// TopicEvents returns a pattern matching every event of one channel topic.
//
// Pattern: feedwatch/event/tag:go/+
func (Topics) TopicEvents(channelTopic string) string {
	return fmt.Sprintf("%s/event/%s/+", TopicPrefix, segment(channelTopic))
}

var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// segment makes s safe to use as a single topic level.
func segment(s string) string {
	if s == "" {
		return "_"
	}
	return segmentReplacer.Replace(s)
}
