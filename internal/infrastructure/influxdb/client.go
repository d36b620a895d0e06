package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second

	// failureWindow is how many flush intervals a write failure keeps the
	// recorder unhealthy. One clean batch after that clears it.
	failureWindow = 2
)

// Client records feed activity in InfluxDB.
//
// Points are queued on the non-blocking write API and sent in batches, so
// the feed goroutines never wait on the database. Batch failures arrive on a
// separate goroutine; the last one is kept for HealthCheck and passed to the
// SetOnError callback.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	flush    time.Duration

	closed atomic.Bool

	mu          sync.Mutex
	onError     func(err error)
	lastFailure time.Time
	lastErr     error
	failures    int
}

// Connect verifies the server with a ping and starts the write API for
// cfg.Org and cfg.Bucket. It returns ErrDisabled when the section is off and
// ErrConnectionFailed when the server does not answer.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		flush:    flush,
	}
	go c.collectWriteErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// collectWriteErrors runs until the write API closes its error channel.
func (c *Client) collectWriteErrors(errs <-chan error) {
	for err := range errs {
		err = fmt.Errorf("%w: %w", ErrWriteFailed, err)

		c.mu.Lock()
		c.failures++
		c.lastErr = err
		c.lastFailure = time.Now()
		callback := c.onError
		c.mu.Unlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes queued points and shuts the client down. It is safe to call
// more than once and on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server and reports ErrWriteFailed while a batch has
// failed within the last few flush intervals.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr != nil && time.Since(c.lastFailure) < failureWindow*c.flush {
		return fmt.Errorf("%d failed batches, last: %w", c.failures, c.lastErr)
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && !c.closed.Load()
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Flush blocks until queued points are written. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}
