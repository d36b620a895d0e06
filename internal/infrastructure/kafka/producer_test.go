package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
)

// fakeWriter records written messages.
type fakeWriter struct {
	mu       sync.Mutex
	msgs     []kafkago.Message
	writeErr error
	closes   int
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func TestProducer_HandleEvent(t *testing.T) {
	w := &fakeWriter{}
	p := New(w)

	if err := p.HandleEvent(context.Background(), "tag:go", "bookmark:created", channel.NewPayload(map[string]any{"title": "T"})); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "tag:go" {
		t.Errorf("key = %q, want tag:go", msg.Key)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != HeaderEvent || string(msg.Headers[0].Value) != "bookmark:created" {
		t.Errorf("headers = %v", msg.Headers)
	}
	if msg.Time.IsZero() {
		t.Error("message time not set")
	}

	var got eventMessage
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("value %s: %v", msg.Value, err)
	}
	if title, _ := got.Payload.StringField("title"); got.Topic != "tag:go" || got.Event != "bookmark:created" || title != "T" {
		t.Errorf("value = %+v", got)
	}
	if _, err := time.Parse(time.RFC3339Nano, got.ReceivedAt); err != nil {
		t.Errorf("received_at %q: %v", got.ReceivedAt, err)
	}
}

func TestProducer_NilPayload(t *testing.T) {
	w := &fakeWriter{}
	if err := New(w).HandleEvent(context.Background(), "bookmark:feed", "bookmark:deleted", channel.Payload{}); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["payload"].(map[string]any); !ok {
		t.Errorf("payload = %v, want empty object", got["payload"])
	}
}

func TestProducer_WriteError(t *testing.T) {
	p := New(&fakeWriter{writeErr: errors.New("leader not available")})

	err := p.HandleEvent(context.Background(), "tag:go", "bookmark:created", channel.Payload{})
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("HandleEvent() error = %v, want ErrPublishFailed", err)
	}
}

func TestProducer_AsyncCompletionReportsErrors(t *testing.T) {
	p := New(&fakeWriter{})

	var got []error
	p.SetOnError(func(err error) { got = append(got, err) })

	p.complete([]kafkago.Message{{}}, nil)
	p.complete([]kafkago.Message{{}, {}}, errors.New("broker down"))

	if len(got) != 1 {
		t.Fatalf("callback errors = %d, want 1", len(got))
	}
	if !errors.Is(got[0], ErrPublishFailed) {
		t.Errorf("callback error = %v, want ErrPublishFailed", got[0])
	}
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := New(w)

	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if w.closes != 1 {
		t.Errorf("writer closed %d times, want 1", w.closes)
	}

	if err := p.HandleEvent(context.Background(), "tag:go", "bookmark:created", channel.Payload{}); !errors.Is(err, ErrClosed) {
		t.Errorf("HandleEvent() after Close error = %v, want ErrClosed", err)
	}
	if err := p.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrClosed", err)
	}
}

func TestCompressionCodec(t *testing.T) {
	tests := []struct {
		name string
		want kafkago.Compression
	}{
		{"none", 0},
		{"gzip", kafkago.Gzip},
		{"snappy", kafkago.Snappy},
		{"lz4", kafkago.Lz4},
		{"zstd", kafkago.Zstd},
		{"", kafkago.Snappy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compressionCodec(tt.name); got != tt.want {
				t.Errorf("compressionCodec(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.KafkaConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	// Grab a free port and release it so nothing is listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	_, err = Connect(context.Background(), config.KafkaConfig{
		Enabled: true,
		Brokers: []string{addr},
		Topic:   "feedwatch.events",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_NoBrokers(t *testing.T) {
	_, err := Connect(context.Background(), config.KafkaConfig{Enabled: true, Topic: "t"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
