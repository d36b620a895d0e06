package journal

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/feedwatch/internal/channel"
)

// defaultWriteTimeout bounds each journal write made from a client callback.
const defaultWriteTimeout = 5 * time.Second

// Recorder turns client transitions and events into session rows.
//
// Journal failures never affect the feed: they are logged and dropped.
type Recorder struct {
	repo Repository
	url  string

	// current maps topic to the id of its open session.
	current map[string]string
	mu      sync.Mutex

	logger       channel.Logger
	writeTimeout time.Duration
}

// NewRecorder creates a Recorder for clients connected to url.
// logger may be nil.
func NewRecorder(repo Repository, url string, logger channel.Logger) *Recorder {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Recorder{
		repo:         repo,
		url:          url,
		current:      make(map[string]string),
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
	}
}

// Recover ends sessions left open by a previous process.
func (r *Recorder) Recover(ctx context.Context) error {
	n, err := r.repo.CloseOpen(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Warn("closed abandoned journal sessions", "count", n)
	}
	return nil
}

// ObserveTransition opens a row on Connecting, stamps it on Subscribed and
// closes it on Disconnected.
func (r *Recorder) ObserveTransition(tr channel.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	var err error
	switch tr.To {
	case channel.StateConnecting:
		r.setCurrent(tr.Topic, tr.SessionID)
		err = r.repo.Start(ctx, Session{
			ID:        tr.SessionID,
			Topic:     tr.Topic,
			URL:       r.url,
			StartedAt: tr.At,
		})
	case channel.StateSubscribed:
		err = r.repo.MarkSubscribed(ctx, tr.SessionID, tr.At)
	case channel.StateDisconnected:
		r.clearCurrent(tr.Topic, tr.SessionID)
		var msg string
		if tr.Err != nil {
			msg = tr.Err.Error()
		}
		err = r.repo.End(ctx, tr.SessionID, tr.At, tr.From.String(), msg)
	default:
		return
	}

	if err != nil {
		r.logger.Warn("journal write failed",
			"topic", tr.Topic, "session", tr.SessionID, "state", tr.To.String(), "error", err)
	}
}

// HandleEvent counts an event against the topic's open session.
func (r *Recorder) HandleEvent(ctx context.Context, topic, _ string, _ channel.Payload) error {
	id, ok := r.currentSession(topic)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()
	return r.repo.AddEvent(ctx, id)
}

// ObserveError counts a per-message failure against the open session.
func (r *Recorder) ObserveError(topic string, _ error) {
	id, ok := r.currentSession(topic)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	if err := r.repo.AddFailure(ctx, id); err != nil {
		r.logger.Warn("journal write failed", "topic", topic, "session", id, "error", err)
	}
}

// Sessions lists recent sessions of a topic, newest first.
func (r *Recorder) Sessions(ctx context.Context, topic string, limit int) ([]Session, error) {
	return r.repo.ListByTopic(ctx, topic, limit)
}

func (r *Recorder) setCurrent(topic, id string) {
	r.mu.Lock()
	r.current[topic] = id
	r.mu.Unlock()
}

func (r *Recorder) clearCurrent(topic, id string) {
	r.mu.Lock()
	if r.current[topic] == id {
		delete(r.current, topic)
	}
	r.mu.Unlock()
}

func (r *Recorder) currentSession(topic string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.current[topic]
	return id, ok
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
