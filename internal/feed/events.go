package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/feedwatch/internal/channel"
)

// Bookmark server event names.
const (
	EventBookmarkCreated = "bookmark:created"
	EventBookmarkUpdated = "bookmark:updated"
	EventBookmarkDeleted = "bookmark:deleted"
	EventBookmarkChat    = "bookmark:chat"
)

// IsBookmarkEvent reports whether event is one of the bookmark server's
// application events. Anything else (presence updates, future events) is
// still delivered but should not become a metric label or series tag.
func IsBookmarkEvent(event string) bool {
	switch event {
	case EventBookmarkCreated, EventBookmarkUpdated, EventBookmarkDeleted, EventBookmarkChat:
		return true
	}
	return false
}

// Bookmark is the payload of a bookmark:created event.
type Bookmark struct {
	Title string
	URL   string
	Tags  []string
}

// Chat is the payload of a bookmark:chat event.
type Chat struct {
	BookmarkTitle string
	UserEmail     string
	Content       string
	Timestamp     string
}

// ParseBookmark extracts a Bookmark. Title and url are required; a missing
// tags list is treated as no tags.
func ParseBookmark(p channel.Payload) (Bookmark, error) {
	var b Bookmark
	var err error

	if b.Title, err = p.StringField("title"); err != nil {
		return Bookmark{}, fmt.Errorf("bookmark: %w", err)
	}
	if b.URL, err = p.StringField("url"); err != nil {
		return Bookmark{}, fmt.Errorf("bookmark: %w", err)
	}

	b.Tags, err = p.StringsField("tags")
	if err != nil && !errors.Is(err, channel.ErrFieldMissing) {
		return Bookmark{}, fmt.Errorf("bookmark: %w", err)
	}
	return b, nil
}

// ParseChat extracts a Chat. Every field is required. The timestamp is kept
// as sent; non-string timestamps (epoch numbers) are formatted as-is.
func ParseChat(p channel.Payload) (Chat, error) {
	var c Chat
	var err error

	if c.BookmarkTitle, err = p.StringField("bookmark_title"); err != nil {
		return Chat{}, fmt.Errorf("chat: %w", err)
	}
	if c.UserEmail, err = p.StringField("user_email"); err != nil {
		return Chat{}, fmt.Errorf("chat: %w", err)
	}
	if c.Content, err = p.StringField("content"); err != nil {
		return Chat{}, fmt.Errorf("chat: %w", err)
	}

	ts, err := p.Field("timestamp")
	if err != nil {
		return Chat{}, fmt.Errorf("chat: %w", err)
	}
	switch v := ts.(type) {
	case string:
		c.Timestamp = v
	case json.Number:
		c.Timestamp = v.String()
	case float64:
		c.Timestamp = fmt.Sprintf("%.0f", v)
	default:
		c.Timestamp = fmt.Sprint(v)
	}
	return c, nil
}
