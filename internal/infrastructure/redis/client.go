// Package redis relays feed events to Redis pub/sub channels.
//
// Every event received on a channel topic is published as a JSON envelope
// to the Redis channel <prefix><topic>, e.g. "feedwatch:tag:go", so any
// number of local processes can follow the feed with SUBSCRIBE or
// PSUBSCRIBE feedwatch:*. Delivery is best effort, as with Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
)

const (
	// defaultPoolTimeout bounds the wait for a pooled connection.
	defaultPoolTimeout = 5 * time.Second

	// defaultConnectTimeout bounds the initial ping.
	defaultConnectTimeout = 5 * time.Second

	defaultPoolSize = 10
)

// Conn is the subset of *goredis.Client the relay uses.
type Conn interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

var _ Conn = (*goredis.Client)(nil)

// Client publishes events to Redis.
//
// Thread Safety:
//   - All methods are safe for concurrent use; the underlying client pools
//     connections.
type Client struct {
	conn   Conn
	prefix string
}

// Connect creates a pooled client and verifies the server answers PING.
//
// Returns:
//   - *Client: ready to relay
//   - error: ErrDisabled if cfg.Enabled is false, ErrConnectionFailed if the
//     ping fails
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    poolSize,
		PoolTimeout: defaultPoolTimeout,
	})

	c := New(rdb, cfg.ChannelPrefix)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := c.HealthCheck(pingCtx); err != nil {
		rdb.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

// New wraps an existing connection.
func New(conn Conn, prefix string) *Client {
	return &Client{conn: conn, prefix: prefix}
}

// Channel returns the Redis channel events of topic are published to.
func (c *Client) Channel(topic string) string {
	return c.prefix + topic
}

// eventMessage is the JSON published for every event.
type eventMessage struct {
	Topic      string          `json:"topic"`
	Event      string          `json:"event"`
	Payload    channel.Payload `json:"payload"`
	ReceivedAt string          `json:"received_at"`
}

// HandleEvent publishes one event to the topic's channel.
func (c *Client) HandleEvent(ctx context.Context, topic, event string, payload channel.Payload) error {
	data, err := json.Marshal(eventMessage{
		Topic:      topic,
		Event:      event,
		Payload:    payload,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	if err := c.conn.Publish(ctx, c.Channel(topic), data).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.conn.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
