// Package kafka relays feed events to a Kafka topic.
//
// Every event is written to one Kafka topic as a JSON envelope keyed by the
// channel topic, so the hash balancer keeps each channel topic on a single
// partition and consumers see its events in arrival order. The event name is
// also carried in the "event" header for filtering without decoding.
//
// Writes are asynchronous: HandleEvent never waits for the broker, and
// delivery failures are reported through the SetOnError callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
)

// defaultDialTimeout bounds the broker reachability check in Connect and HealthCheck.
const defaultDialTimeout = 5 * time.Second

// HeaderEvent carries the event name on every message.
const HeaderEvent = "event"

// Writer is the subset of *kafkago.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

var _ Writer = (*kafkago.Writer)(nil)

// Producer publishes events to Kafka.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Producer struct {
	writer Writer
	check  func(ctx context.Context) error

	onError func(err error)
	closed  bool
	mu      sync.RWMutex
}

// Connect builds an asynchronous writer for cfg.Topic and verifies that at
// least one broker accepts a connection.
//
// Returns:
//   - *Producer: ready to relay
//   - error: ErrDisabled if cfg.Enabled is false, ErrConnectionFailed if no
//     broker answers
func Connect(ctx context.Context, cfg config.KafkaConfig) (*Producer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	var mechanism sasl.Mechanism
	if cfg.SASL.Enabled {
		m, err := scram.Mechanism(scram.SHA512, cfg.SASL.Username, cfg.SASL.Password)
		if err != nil {
			return nil, fmt.Errorf("creating SASL mechanism: %w", err)
		}
		mechanism = m
	}

	dialer := &kafkago.Dialer{Timeout: defaultDialTimeout, SASLMechanism: mechanism}
	check := func(ctx context.Context) error {
		return dialAnyBroker(ctx, dialer, cfg.Brokers)
	}
	if err := check(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p := &Producer{check: check}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		Transport:    &kafkago.Transport{SASL: mechanism, DialTimeout: defaultDialTimeout},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafkago.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		Async:        true,
		Completion:   p.complete,
	}
	return p, nil
}

// New wraps an existing writer. Writes are reported synchronously by the
// writer's own WriteMessages.
func New(w Writer) *Producer {
	return &Producer{writer: w}
}

// SetOnError sets a callback for asynchronous delivery failures.
func (p *Producer) SetOnError(callback func(err error)) {
	p.mu.Lock()
	p.onError = callback
	p.mu.Unlock()
}

// eventMessage is the JSON value of every message.
type eventMessage struct {
	Topic      string          `json:"topic"`
	Event      string          `json:"event"`
	Payload    channel.Payload `json:"payload"`
	ReceivedAt string          `json:"received_at"`
}

// HandleEvent queues one event keyed by topic.
func (p *Producer) HandleEvent(ctx context.Context, topic, event string, payload channel.Payload) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	now := time.Now().UTC()
	value, err := json.Marshal(eventMessage{
		Topic:      topic,
		Event:      event,
		Payload:    payload,
		ReceivedAt: now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := kafkago.Message{
		Key:     []byte(topic),
		Value:   value,
		Headers: []kafkago.Header{{Key: HeaderEvent, Value: []byte(event)}},
		Time:    now,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// complete receives batch results from the asynchronous writer.
func (p *Producer) complete(msgs []kafkago.Message, err error) {
	if err == nil {
		return
	}
	p.mu.RLock()
	callback := p.onError
	p.mu.RUnlock()
	if callback != nil {
		callback(fmt.Errorf("%w: %d messages: %w", ErrPublishFailed, len(msgs), err))
	}
}

// HealthCheck dials a broker. Producers built with New only report whether
// they are closed.
func (p *Producer) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if p.check == nil {
		return nil
	}
	return p.check(ctx)
}

// Close flushes buffered messages and releases the writer. It is safe to
// call more than once.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("closing kafka writer: %w", err)
	}
	return nil
}

// dialAnyBroker returns nil as soon as one broker accepts a connection.
func dialAnyBroker(ctx context.Context, dialer *kafkago.Dialer, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	var lastErr error
	for _, broker := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close() //nolint:errcheck // Reachability only
		return nil
	}
	return lastErr
}

// compressionCodec maps the configured name to a codec; unknown names use
// snappy.
func compressionCodec(name string) kafkago.Compression {
	switch name {
	case "none":
		return 0
	case "gzip":
		return kafkago.Gzip
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}
