package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/feedwatch/internal/channel"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("reading scrape: %v", err)
	}
	return string(body)
}

func assertContains(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if !strings.Contains(body, line) {
			t.Errorf("scrape missing %q", line)
		}
	}
}

func TestCollector_Events(t *testing.T) {
	c := New()
	ctx := context.Background()

	for range 3 {
		c.HandleEvent(ctx, "bookmark:feed", "bookmark:created", channel.Payload{}) //nolint:errcheck // Always nil
	}
	c.HandleEvent(ctx, "tag:go", "bookmark:chat", channel.Payload{}) //nolint:errcheck // Always nil
	for _, event := range []string{"presence_diff", "presence_state", "bookmark:xyz-1", "bookmark:xyz-2"} {
		c.HandleEvent(ctx, "bookmark:feed", event, channel.Payload{}) //nolint:errcheck // Always nil
	}

	body := scrape(t, c)
	assertContains(t, body,
		`feedwatch_events_total{event="bookmark:created",topic="bookmark:feed"} 3`,
		`feedwatch_events_total{event="bookmark:chat",topic="tag:go"} 1`,
		`feedwatch_events_total{event="other",topic="bookmark:feed"} 4`,
	)
	for _, event := range []string{"presence_diff", "bookmark:xyz-1"} {
		if strings.Contains(body, `event="`+event+`"`) {
			t.Errorf("scrape has unbounded event label %q", event)
		}
	}
}

func TestEventLabel(t *testing.T) {
	tests := map[string]string{
		"bookmark:created": "bookmark:created",
		"bookmark:updated": "bookmark:updated",
		"bookmark:deleted": "bookmark:deleted",
		"bookmark:chat":    "bookmark:chat",
		"bookmark:renamed": EventOther,
		"":                 EventOther,
	}
	for in, want := range tests {
		if got := eventLabel(in); got != want {
			t.Errorf("eventLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCollector_Transitions(t *testing.T) {
	c := New()
	const topic = "bookmark:feed"
	lost := fmt.Errorf("%w: EOF", channel.ErrConnectionLost)
	refused := fmt.Errorf("%w: refused", channel.ErrConnect)

	for _, tr := range []channel.Transition{
		{Topic: topic, From: channel.StateDisconnected, To: channel.StateConnecting},
		{Topic: topic, From: channel.StateConnecting, To: channel.StateDisconnected, Err: refused},
		{Topic: topic, From: channel.StateDisconnected, To: channel.StateConnecting},
		{Topic: topic, From: channel.StateConnecting, To: channel.StateJoining},
		{Topic: topic, From: channel.StateJoining, To: channel.StateSubscribed},
		{Topic: topic, From: channel.StateSubscribed, To: channel.StateDisconnected, Err: lost},
		{Topic: topic, From: channel.StateDisconnected, To: channel.StateConnecting},
		{Topic: topic, From: channel.StateConnecting, To: channel.StateJoining},
		{Topic: topic, From: channel.StateJoining, To: channel.StateSubscribed},
	} {
		c.ObserveTransition(tr)
	}

	assertContains(t, scrape(t, c),
		`feedwatch_connect_attempts_total{topic="bookmark:feed"} 3`,
		`feedwatch_disconnects_total{topic="bookmark:feed"} 1`,
		`feedwatch_subscription_state{state="subscribed",topic="bookmark:feed"} 1`,
		`feedwatch_subscription_state{state="disconnected",topic="bookmark:feed"} 0`,
		`feedwatch_subscription_state{state="connecting",topic="bookmark:feed"} 0`,
	)
}

func TestCollector_MessageErrors(t *testing.T) {
	c := New()
	c.ObserveError("tag:go", fmt.Errorf("%w: bad json", channel.ErrMalformedMessage))
	c.ObserveError("tag:go", fmt.Errorf("%w: panic", channel.ErrHandlerFailure))
	c.ObserveError("tag:go", fmt.Errorf("%w: again", channel.ErrHandlerFailure))

	assertContains(t, scrape(t, c),
		`feedwatch_message_errors_total{kind="malformed",topic="tag:go"} 1`,
		`feedwatch_message_errors_total{kind="handler",topic="tag:go"} 2`,
	)
}

func TestCollector_HTTPMiddleware(t *testing.T) {
	c := New()
	h := c.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, "ok") //nolint:errcheck // Test handler
	}))

	for _, path := range []string{"/a", "/b", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assertContains(t, scrape(t, c),
		`feedwatch_http_requests_total{method="GET",status="200"} 2`,
		`feedwatch_http_requests_total{method="GET",status="404"} 1`,
		`feedwatch_http_request_duration_seconds_count{method="GET"} 3`,
	)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.HandleEvent(context.Background(), "t", "e", channel.Payload{}) //nolint:errcheck // Always nil

	if strings.Contains(scrape(t, b), "feedwatch_events_total") {
		t.Error("event counted on an unrelated collector")
	}
	if !strings.Contains(scrape(t, a), "go_goroutines") {
		t.Error("runtime collector not registered")
	}
}
