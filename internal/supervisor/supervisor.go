// Package supervisor runs one resilient topic client per configured topic
// and fans their events and state changes out to sinks and observers.
//
// Each topic gets its own connection; nothing is multiplexed. Sinks see
// events in arrival order per topic. Observers see every state transition
// and, when they implement ErrorObserver, every per-message failure.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/feedwatch/internal/channel"
)

// Sink consumes events from every supervised topic.
type Sink interface {
	HandleEvent(ctx context.Context, topic, event string, payload channel.Payload) error
}

// SinkFunc adapts an ordinary function to Sink.
type SinkFunc func(ctx context.Context, topic, event string, payload channel.Payload) error

// HandleEvent calls f(ctx, topic, event, payload).
func (f SinkFunc) HandleEvent(ctx context.Context, topic, event string, payload channel.Payload) error {
	return f(ctx, topic, event, payload)
}

// Observer receives state transitions from every supervised client.
// It runs on the client's goroutine and must not block.
type Observer interface {
	ObserveTransition(tr channel.Transition)
}

// ErrorObserver is implemented by observers that also want per-message
// failures (malformed frames, handler failures).
type ErrorObserver interface {
	ObserveError(topic string, err error)
}

// Config holds the shared connection settings and the topic list.
type Config struct {
	URL               string
	Topics            []string
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
}

type namedSink struct {
	name string
	sink Sink
}

// Supervisor owns the clients for a set of topics.
//
// Sinks and observers must be added before Run.
type Supervisor struct {
	clients []*channel.Client
	byTopic map[string]*channel.Client

	sinks          []namedSink
	observers      []Observer
	errorObservers []ErrorObserver
	mu             sync.RWMutex

	logger channel.Logger
}

// New builds one client per topic. logger may be nil.
func New(cfg Config, logger channel.Logger) (*Supervisor, error) {
	if len(cfg.Topics) == 0 {
		return nil, ErrNoTopics
	}
	if logger == nil {
		logger = nopLogger{}
	}

	s := &Supervisor{
		byTopic: make(map[string]*channel.Client, len(cfg.Topics)),
		logger:  logger,
	}

	for _, topic := range cfg.Topics {
		if _, dup := s.byTopic[topic]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTopic, topic)
		}

		client, err := channel.NewClient(channel.Config{
			URL:               cfg.URL,
			Topic:             topic,
			ReconnectDelay:    cfg.ReconnectDelay,
			HeartbeatInterval: cfg.HeartbeatInterval,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			MaxMessageSize:    cfg.MaxMessageSize,
		}, s.handlerFor(topic))
		if err != nil {
			return nil, fmt.Errorf("creating client for %q: %w", topic, err)
		}

		client.SetLogger(logger)
		client.SetOnStateChange(s.notifyTransition)
		client.SetOnError(func(err error) { s.notifyError(topic, err) })

		s.clients = append(s.clients, client)
		s.byTopic[topic] = client
	}

	return s, nil
}

// AddSink appends a sink. Sinks are called in the order they were added;
// name identifies the sink in errors and logs.
func (s *Supervisor) AddSink(name string, sink Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
	s.mu.Unlock()
}

// AddObserver appends an observer. If it also implements ErrorObserver it
// receives per-message failures too.
func (s *Supervisor) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	if eo, ok := o.(ErrorObserver); ok {
		s.errorObservers = append(s.errorObservers, eo)
	}
	s.mu.Unlock()
}

// SetDialer replaces the dialer of every client.
func (s *Supervisor) SetDialer(d channel.Dialer) {
	for _, c := range s.clients {
		c.SetDialer(d)
	}
}

// Topics returns the supervised topics in configuration order.
func (s *Supervisor) Topics() []string {
	topics := make([]string, len(s.clients))
	for i, c := range s.clients {
		topics[i] = c.Topic()
	}
	return topics
}

// Run starts every client and blocks until ctx is cancelled and all
// clients have stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	s.logger.Info("starting subscriptions", "topics", s.Topics())
	for _, c := range s.clients {
		g.Go(func() error {
			return c.Run(gctx)
		})
	}

	err := g.Wait()
	s.logger.Info("subscriptions stopped")
	return err
}

// Status is the externally visible state of one topic client.
type Status struct {
	Topic string `json:"topic"`
	State string `json:"state"`
	channel.Stats
}

// Snapshot returns the status of every client in configuration order.
func (s *Supervisor) Snapshot() []Status {
	out := make([]Status, len(s.clients))
	for i, c := range s.clients {
		out[i] = statusOf(c)
	}
	return out
}

// Status returns the status of one topic.
func (s *Supervisor) Status(topic string) (Status, error) {
	c, ok := s.byTopic[topic]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return statusOf(c), nil
}

func statusOf(c *channel.Client) Status {
	st := c.Stats()
	return Status{Topic: c.Topic(), State: st.State.String(), Stats: st}
}

// HealthCheck reports whether at least one client is subscribed.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, c := range s.clients {
		if c.State() == channel.StateSubscribed {
			return nil
		}
	}
	return ErrNoSubscriptions
}

// handlerFor returns the channel handler that fans events for topic out to
// every sink. Each sink is isolated: an error or panic in one does not
// prevent the rest from running. All failures are joined.
func (s *Supervisor) handlerFor(topic string) channel.Handler {
	return channel.HandlerFunc(func(ctx context.Context, event string, payload channel.Payload) error {
		s.mu.RLock()
		sinks := s.sinks
		s.mu.RUnlock()

		var errs []error
		for _, ns := range sinks {
			if err := callSink(ctx, ns, topic, event, payload); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ns.name, err))
			}
		}
		return errors.Join(errs...)
	})
}

func callSink(ctx context.Context, ns namedSink, topic, event string, payload channel.Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ns.sink.HandleEvent(ctx, topic, event, payload)
}

func (s *Supervisor) notifyTransition(tr channel.Transition) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	for _, o := range observers {
		s.safeObserve(func() { o.ObserveTransition(tr) })
	}
}

func (s *Supervisor) notifyError(topic string, err error) {
	s.mu.RLock()
	observers := s.errorObservers
	s.mu.RUnlock()

	for _, o := range observers {
		s.safeObserve(func() { o.ObserveError(topic, err) })
	}
}

// safeObserve runs fn, logging instead of propagating a panic.
func (s *Supervisor) safeObserve(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer panic recovered", "panic", r)
		}
	}()
	fn()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
