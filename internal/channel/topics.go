package channel

import (
	"fmt"
	"strings"
)

// BookmarkFeedTopic carries every bookmark event on the server.
const BookmarkFeedTopic = "bookmark:feed"

// tagTopicPrefix is prepended to a tag name to build its topic.
const tagTopicPrefix = "tag:"

// TagTopic returns the topic for bookmarks carrying tag.
//
// Example: TagTopic("rust") returns "tag:rust".
func TagTopic(tag string) (string, error) {
	if strings.TrimSpace(tag) == "" {
		return "", fmt.Errorf("%w: tag name is required", ErrInvalidTopic)
	}
	return tagTopicPrefix + tag, nil
}

// TagFromTopic returns the tag name of a tag topic and whether topic is one.
func TagFromTopic(topic string) (string, bool) {
	tag, ok := strings.CutPrefix(topic, tagTopicPrefix)
	if !ok || tag == "" {
		return "", false
	}
	return tag, true
}
