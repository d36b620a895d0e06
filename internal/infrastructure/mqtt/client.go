package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
)

// unhealthyAfter is the number of consecutive failed publishes after which
// HealthCheck reports the relay as degraded even though the TCP session is up.
const unhealthyAfter = 3

// Client is the broker connection behind the event relay.
//
// It announces the supervised feed topics in a retained status message on
// every (re)connect and withdraws them on Close; the broker publishes the
// LWT variant if the process dies. paho handles reconnection.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics []string

	connected atomic.Bool

	// failing counts publishes that failed since the last success.
	failing   int
	lastErr   error
	publishMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the subset of logging.Logger the client uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect dials the broker and announces topics as the feeds this process
// relays. It fails with ErrConnectionFailed when the broker does not accept
// the connection within the connect timeout.
func Connect(cfg config.MQTTConfig, topics []string) (*Client, error) {
	c := &Client{cfg: cfg, topics: topics}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID, topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("mqtt reconnecting", "client_id", cfg.Broker.ClientID)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark connected now so
	// IsConnected is true as soon as Connect returns.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.announce(statusOnline, "")

	if logger := c.getLogger(); logger != nil {
		logger.Info("mqtt connected", "client_id", c.cfg.Broker.ClientID, "topics", c.topics)
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("mqtt connection lost", "error", err)
	}
}

// announce publishes the retained relay status and waits for the broker to
// take it.
func (c *Client) announce(status, reason string) {
	payload := buildStatusPayload(status, c.cfg.Broker.ClientID, reason, c.topics)
	token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("publishing relay status failed", "status", status, "error", token.Error())
		}
	}
}

// Close withdraws the status announcement and disconnects. Closing a client
// that never connected, or closing twice, is not an error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.announce(statusOffline, reasonShutdown)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable, and
// ErrPublishFailed once several event publishes in a row have failed.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.publishMu.Lock()
	n, last := c.failing, c.lastErr
	c.publishMu.Unlock()
	if n >= unhealthyAfter {
		return fmt.Errorf("%w: last %d publishes failed: %v", ErrPublishFailed, n, last)
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// SetLogger sets a logger for connection events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) recordPublish(err error) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	if err == nil {
		c.failing = 0
		return
	}
	c.failing++
	c.lastErr = err
}
