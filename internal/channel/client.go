package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection defaults.
const (
	// DefaultReconnectDelay is the fixed wait between a drop and the next dial.
	DefaultReconnectDelay = 5 * time.Second

	// defaultHandshakeTimeout bounds the websocket dial and upgrade.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single outbound frame.
	defaultWriteTimeout = 5 * time.Second

	// defaultMaxMessageSize caps inbound frames (1MB).
	defaultMaxMessageSize = 1 << 20

	// readDeadlineHeartbeats is how many missed heartbeat intervals end a session.
	readDeadlineHeartbeats = 2
)

// Config contains the construction inputs of a Client.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:4000/socket/websocket.
	URL string

	// Topic is the channel to join. Use TagTopic for tag feeds.
	Topic string

	// ReconnectDelay is the fixed wait after every drop or failed dial.
	// Default: 5s.
	ReconnectDelay time.Duration

	// HeartbeatInterval enables protocol heartbeats when positive. A session
	// with no inbound traffic for two intervals is treated as lost.
	// Default: 0 (disabled).
	HeartbeatInterval time.Duration

	// HandshakeTimeout bounds each dial. Default: 10s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound frame. Default: 5s.
	WriteTimeout time.Duration

	// MaxMessageSize caps inbound frames in bytes. Default: 1MB.
	MaxMessageSize int64
}

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Client maintains a live subscription to one topic.
//
// Thread Safety:
//   - Run must be called from a single goroutine; a second concurrent call
//     returns ErrAlreadyRunning.
//   - State, Stats and the setters are safe for concurrent use.
type Client struct {
	cfg     Config
	handler Handler
	dialer  Dialer

	running atomic.Bool
	state   atomic.Int32

	stats   Stats
	statsMu sync.RWMutex

	logger        Logger
	onStateChange func(Transition)
	onError       func(error)
	callbackMu    sync.RWMutex
}

// NewClient validates cfg and returns a Client that is not yet connected.
//
// Parameters:
//   - cfg: endpoint, topic and timing settings (zero durations take defaults)
//   - handler: receives every application event on the topic
//
// Returns:
//   - *Client: ready for Run
//   - error: ErrInvalidTopic or ErrInvalidConfig
func NewClient(cfg Config, handler Handler) (*Client, error) {
	if cfg.Topic == "" {
		return nil, ErrInvalidTopic
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler is required", ErrInvalidConfig)
	}
	if cfg.ReconnectDelay < 0 || cfg.HeartbeatInterval < 0 || cfg.HandshakeTimeout < 0 || cfg.WriteTimeout < 0 {
		return nil, fmt.Errorf("%w: durations cannot be negative", ErrInvalidConfig)
	}

	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	return &Client{
		cfg:     cfg,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: nopLogger{},
	}, nil
}

// Topic returns the topic the client joins.
func (c *Client) Topic() string {
	return c.cfg.Topic
}

// URL returns the endpoint the client dials.
func (c *Client) URL() string {
	return c.cfg.URL
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// SetLogger sets a logger for connection and message reporting.
// If not set, nothing is logged.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	c.callbackMu.Lock()
	c.logger = logger
	c.callbackMu.Unlock()
}

// SetDialer replaces the websocket dialer. Intended for TLS settings and tests.
func (c *Client) SetDialer(dialer Dialer) {
	c.callbackMu.Lock()
	c.dialer = dialer
	c.callbackMu.Unlock()
}

// SetOnStateChange sets a callback invoked on every state transition.
// It runs on the client's goroutine and must not block.
func (c *Client) SetOnStateChange(callback func(Transition)) {
	c.callbackMu.Lock()
	c.onStateChange = callback
	c.callbackMu.Unlock()
}

// SetOnError sets a callback invoked for per-message failures
// (ErrMalformedMessage, ErrHandlerFailure).
func (c *Client) SetOnError(callback func(error)) {
	c.callbackMu.Lock()
	c.onError = callback
	c.callbackMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.callbackMu.RLock()
	defer c.callbackMu.RUnlock()
	return c.logger
}

func (c *Client) getDialer() Dialer {
	c.callbackMu.RLock()
	defer c.callbackMu.RUnlock()
	return c.dialer
}

// Run keeps the subscription alive until ctx is cancelled.
//
// Every failure is handled inside the loop: the session ends, the client
// waits ReconnectDelay and dials again. Run returns nil once ctx is done.
//
// Returns:
//   - error: ErrAlreadyRunning if another Run is active, nil otherwise
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	log := c.getLogger()
	log.Info("starting topic client", "topic", c.cfg.Topic, "url", c.cfg.URL)

	for {
		if ctx.Err() != nil {
			break
		}

		sessionID := uuid.NewString()
		err := c.session(ctx, sessionID)
		if ctx.Err() != nil {
			c.transition(sessionID, StateDisconnected, nil)
			break
		}

		c.transition(sessionID, StateDisconnected, err)
		c.recordSessionEnd(err)

		if errors.Is(err, ErrConnect) {
			log.Warn("connection failed", "topic", c.cfg.Topic, "session", sessionID, "error", err)
		} else {
			log.Warn("connection lost", "topic", c.cfg.Topic, "session", sessionID, "error", err)
		}

		log.Info("reconnecting", "topic", c.cfg.Topic, "delay", c.cfg.ReconnectDelay)
		if !sleep(ctx, c.cfg.ReconnectDelay) {
			break
		}
	}

	log.Info("topic client stopped", "topic", c.cfg.Topic)
	return nil
}

// session runs one connection from dial to drop. It always returns a non-nil
// error describing why the session ended.
func (c *Client) session(ctx context.Context, sessionID string) error {
	log := c.getLogger()

	c.transition(sessionID, StateConnecting, nil)
	attempt := c.recordConnectAttempt()
	log.Info("connecting", "topic", c.cfg.Topic, "url", c.cfg.URL, "session", sessionID, "attempt", attempt)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, resp, err := c.getDialer().DialContext(dialCtx, c.cfg.URL, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // Handshake response body is not used
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	log.Info("connected", "topic", c.cfg.Topic, "url", c.cfg.URL, "session", sessionID)

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	w := &frameWriter{conn: conn, timeout: c.cfg.WriteTimeout}

	// Closing the socket is the only way to unblock a pending read, so the
	// watcher closes it on cancellation. The deferred func stops the watcher
	// and any heartbeat goroutine before returning.
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		conn.Close() //nolint:errcheck // Connection is discarded either way
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.Close() //nolint:errcheck // Unblocks ReadMessage
		case <-done:
		}
	}()

	c.transition(sessionID, StateJoining, nil)
	if err := w.write(JoinEnvelope(c.cfg.Topic)); err != nil {
		return fmt.Errorf("%w: sending join: %w", ErrConnectionLost, err)
	}
	log.Debug("join sent", "topic", c.cfg.Topic, "session", sessionID)
	c.transition(sessionID, StateSubscribed, nil)
	c.recordSubscribed()

	if c.cfg.HeartbeatInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.heartbeatLoop(w, done, sessionID)
		}()
	}

	return c.receiveLoop(ctx, conn, sessionID)
}

// receiveLoop reads frames until the connection fails or the server closes
// the channel.
func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn, sessionID string) error {
	log := c.getLogger()

	for {
		if c.cfg.HeartbeatInterval > 0 {
			deadline := time.Now().Add(readDeadlineHeartbeats * c.cfg.HeartbeatInterval)
			if err := conn.SetReadDeadline(deadline); err != nil {
				return fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.recordMalformed(err)
			log.Warn("discarding malformed message",
				"topic", c.cfg.Topic,
				"session", sessionID,
				"error", err,
				"size", len(data),
			)
			c.notifyError(err)
			continue
		}

		if err := c.dispatch(ctx, env, sessionID); err != nil {
			return err
		}
	}
}

// dispatch routes one envelope. A non-nil return ends the session.
func (c *Client) dispatch(ctx context.Context, env Envelope, sessionID string) error {
	log := c.getLogger()

	if env.Topic != c.cfg.Topic {
		log.Debug("ignoring message for other topic",
			"topic", c.cfg.Topic,
			"message_topic", env.Topic,
			"event", env.Event,
		)
		return nil
	}

	switch env.Event {
	case EventReply:
		if env.Ref != joinRef {
			return nil
		}
		status, _ := env.Payload.StringField("status") //nolint:errcheck // Missing status is treated as rejection
		if status != replyStatusOK {
			response, _ := env.Payload.Field("response") //nolint:errcheck // Response is only used in the error text
			return fmt.Errorf("%w: status %q, response %v", ErrJoinRejected, status, response)
		}
		log.Info("joined topic", "topic", c.cfg.Topic, "session", sessionID)
		return nil

	case EventError, EventClose:
		return fmt.Errorf("%w: server sent %s", ErrConnectionLost, env.Event)
	}

	c.recordEvent()
	if err := c.invokeHandler(ctx, env); err != nil {
		c.recordHandlerFailure(err)
		log.Warn("event handler failed",
			"topic", c.cfg.Topic,
			"session", sessionID,
			"event", env.Event,
			"error", err,
		)
		c.notifyError(err)
	}
	return nil
}

// invokeHandler calls the handler with panic recovery.
func (c *Client) invokeHandler(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrHandlerFailure, r)
		}
	}()

	if herr := c.handler.HandleEvent(ctx, env.Event, env.Payload); herr != nil {
		return fmt.Errorf("%w: %w", ErrHandlerFailure, herr)
	}
	return nil
}

// heartbeatLoop writes a heartbeat every interval until done is closed or a
// write fails. A failed write is left to the read side, which will see the
// broken connection or the missed deadline.
func (c *Client) heartbeatLoop(w *frameWriter, done <-chan struct{}, sessionID string) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	// Refs after the join ref.
	ref := 1
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ref++
			if err := w.write(heartbeatEnvelope(strconv.Itoa(ref))); err != nil {
				c.getLogger().Debug("heartbeat failed", "topic", c.cfg.Topic, "session", sessionID, "error", err)
				return
			}
		}
	}
}

// transition moves the client to state `to` and notifies the observer.
func (c *Client) transition(sessionID string, to State, cause error) {
	from := State(c.state.Swap(int32(to)))
	if from == to && cause == nil {
		return
	}

	c.callbackMu.RLock()
	callback := c.onStateChange
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(Transition{
			Topic:     c.cfg.Topic,
			SessionID: sessionID,
			From:      from,
			To:        to,
			At:        time.Now(),
			Err:       cause,
		})
	}
}

func (c *Client) notifyError(err error) {
	c.callbackMu.RLock()
	callback := c.onError
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// frameWriter serialises writes on one connection. gorilla/websocket allows
// only one concurrent writer.
type frameWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (w *frameWriter) write(env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", env.Event, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// sleep waits for d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
