package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nerrad567/feedwatch/internal/channel"
)

// Printer writes events and connection notices as console text.
//
// One Printer may be shared by several clients; each block is written
// under a lock so blocks from different topics never interleave.
type Printer struct {
	out      io.Writer
	endpoint string
	mux      *Mux
	mu       sync.Mutex
}

// NewPrinter returns a Printer writing to out. endpoint is only used in the
// connection notice. logger may be nil.
func NewPrinter(out io.Writer, endpoint string, logger channel.Logger) *Printer {
	p := &Printer{
		out:      out,
		endpoint: endpoint,
		mux:      NewMux(logger),
	}

	p.mux.Handle(EventBookmarkCreated, p.printCreated)
	p.mux.Handle(EventBookmarkUpdated, p.printRaw)
	p.mux.Handle(EventBookmarkDeleted, p.printRaw)
	p.mux.Handle(EventBookmarkChat, p.printChat)
	return p
}

// HandleEvent prints one event received on topic.
func (p *Printer) HandleEvent(ctx context.Context, topic, event string, payload channel.Payload) error {
	return p.mux.HandleEvent(ctx, topic, event, payload)
}

// Banner prints the start-up line for each kind of feed in topics: one for
// the bookmark feed (and any other non-tag topic), one for tag feeds.
func (p *Printer) Banner(topics []string) {
	var bookmarks, tags bool
	for _, topic := range topics {
		if _, ok := channel.TagFromTopic(topic); ok {
			tags = true
		} else {
			bookmarks = true
		}
	}

	if bookmarks {
		p.write("Starting bookmark feed client...\n")
	}
	if tags {
		p.write("Starting tag feed client...\n")
	}
}

// ObserveTransition prints a notice when a subscription comes up or drops.
func (p *Printer) ObserveTransition(tr channel.Transition) {
	switch {
	case tr.To == channel.StateSubscribed:
		if tag, ok := channel.TagFromTopic(tr.Topic); ok {
			p.write(fmt.Sprintf("Connected to %s for tag: %s\n", p.endpoint, tag))
			return
		}
		p.write(fmt.Sprintf("Connected to %s\n", p.endpoint))

	case tr.To == channel.StateDisconnected && tr.Err != nil:
		if errors.Is(tr.Err, channel.ErrConnect) {
			p.write(fmt.Sprintf("Error: %v\n", tr.Err))
			return
		}
		p.write("Connection lost. Reconnecting...\n")
	}
}

func (p *Printer) printCreated(_ context.Context, topic string, payload channel.Payload) error {
	b, err := ParseBookmark(payload)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("\n")
	if tag, ok := channel.TagFromTopic(topic); ok {
		fmt.Fprintf(&sb, "=== New Bookmark with tag: %s ===\n", tag)
	} else {
		sb.WriteString("=== New Bookmark ===\n")
	}
	fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	fmt.Fprintf(&sb, "URL: %s\n", b.URL)
	fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(b.Tags, ", "))

	p.write(sb.String())
	return nil
}

func (p *Printer) printChat(_ context.Context, topic string, payload channel.Payload) error {
	c, err := ParseChat(payload)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("\n")
	if tag, ok := channel.TagFromTopic(topic); ok {
		fmt.Fprintf(&sb, "=== Chat Message for bookmark with tag: %s ===\n", tag)
	} else {
		sb.WriteString("=== Chat Message ===\n")
	}
	fmt.Fprintf(&sb, "Bookmark: %s\n", c.BookmarkTitle)
	fmt.Fprintf(&sb, "User: %s\n", c.UserEmail)
	fmt.Fprintf(&sb, "Message: %s\n", c.Content)
	fmt.Fprintf(&sb, "Time: %s\n", c.Timestamp)

	p.write(sb.String())
	return nil
}

// printRaw prints the payload as indented JSON. Tag feeds only carry
// created and chat notices, so updates and deletes are skipped there.
func (p *Printer) printRaw(_ context.Context, topic string, payload channel.Payload) error {
	if _, ok := channel.TagFromTopic(topic); ok {
		return nil
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting payload: %w", err)
	}
	p.write(string(data) + "\n")
	return nil
}

func (p *Printer) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.out, s) //nolint:errcheck // Console output is best effort
}
