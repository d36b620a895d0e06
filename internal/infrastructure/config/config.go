package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for feedwatch.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Endpoint     EndpointConfig     `yaml:"endpoint"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Logging      LoggingConfig      `yaml:"logging"`
	API          APIConfig          `yaml:"api"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Journal      JournalConfig      `yaml:"journal"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
}

// EndpointConfig describes the channel server.
type EndpointConfig struct {
	// URL is the websocket address, e.g. ws://localhost:4000/socket/websocket.
	URL string `yaml:"url"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`

	// MaxMessageSize caps inbound frames in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// SubscriptionConfig lists the topics to follow and the reconnect policy.
type SubscriptionConfig struct {
	// Topics each get their own connection, e.g. ["bookmark:feed", "tag:go"].
	Topics []string `yaml:"topics"`

	// ReconnectDelay is the fixed wait after every drop. Default: 5s
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// HeartbeatInterval enables protocol heartbeats when positive.
	// Default: 0 (disabled)
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// APIConfig contains status API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is where the API serves the Prometheus exposition. Default: /metrics
	Path string `yaml:"path"`
}

// JournalConfig contains the SQLite connection journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for the event relay.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// RedisConfig contains Redis pub/sub relay settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`

	// ChannelPrefix is prepended to the topic name. Default: "feedwatch:"
	ChannelPrefix string `yaml:"channel_prefix"`
}

// KafkaConfig contains Kafka relay settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`

	// Topic receives every event, keyed by channel topic. Default: "feedwatch.events"
	Topic string `yaml:"topic"`

	// Compression is one of none, gzip, snappy, lz4, zstd. Default: snappy
	Compression  string          `yaml:"compression"`
	BatchSize    int             `yaml:"batch_size"`
	BatchTimeout time.Duration   `yaml:"batch_timeout"`
	RequiredAcks int             `yaml:"required_acks"`
	SASL         KafkaSASLConfig `yaml:"sasl"`
}

// KafkaSASLConfig contains SCRAM-SHA-512 credentials.
type KafkaSASLConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FEEDWATCH_SECTION_KEY
// For example: FEEDWATCH_ENDPOINT_URL, FEEDWATCH_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config matching the local development server.
func defaultConfig() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			URL:              "ws://localhost:4000/socket/websocket",
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
			MaxMessageSize:   1 << 20,
		},
		Subscription: SubscriptionConfig{
			Topics:         []string{"bookmark:feed"},
			ReconnectDelay: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Journal: JournalConfig{
			Path:        "./data/feedwatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "feedwatch",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			ChannelPrefix: "feedwatch:",
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "feedwatch.events",
			Compression:  "snappy",
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: 1,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "feedwatch",
			Bucket:        "feedwatch",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FEEDWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Endpoint and subscription
	if v := os.Getenv("FEEDWATCH_ENDPOINT_URL"); v != "" {
		cfg.Endpoint.URL = v
	}
	if v := os.Getenv("FEEDWATCH_TOPICS"); v != "" {
		cfg.Subscription.Topics = splitList(v)
	}
	if v := os.Getenv("FEEDWATCH_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FEEDWATCH_RECONNECT_DELAY: %w", err)
		}
		cfg.Subscription.ReconnectDelay = d
	}

	// Logging
	if v := os.Getenv("FEEDWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// API
	if v := os.Getenv("FEEDWATCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FEEDWATCH_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEEDWATCH_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// Journal
	if v := os.Getenv("FEEDWATCH_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// MQTT
	if v := os.Getenv("FEEDWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FEEDWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FEEDWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Redis
	if v := os.Getenv("FEEDWATCH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FEEDWATCH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Kafka
	if v := os.Getenv("FEEDWATCH_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("FEEDWATCH_KAFKA_USERNAME"); v != "" {
		cfg.Kafka.SASL.Username = v
	}
	if v := os.Getenv("FEEDWATCH_KAFKA_PASSWORD"); v != "" {
		cfg.Kafka.SASL.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FEEDWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Endpoint validation
	if c.Endpoint.URL == "" {
		errs = append(errs, "endpoint.url is required")
	} else if u, err := url.Parse(c.Endpoint.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, "endpoint.url must be a ws:// or wss:// URL")
	}
	if c.Endpoint.HandshakeTimeout < 0 || c.Endpoint.WriteTimeout < 0 {
		errs = append(errs, "endpoint timeouts cannot be negative")
	}

	// Subscription validation
	if len(c.Subscription.Topics) == 0 {
		errs = append(errs, "subscription.topics must list at least one topic")
	}
	seen := make(map[string]bool, len(c.Subscription.Topics))
	for _, topic := range c.Subscription.Topics {
		if strings.TrimSpace(topic) == "" {
			errs = append(errs, "subscription.topics cannot contain an empty topic")
			continue
		}
		if seen[topic] {
			errs = append(errs, fmt.Sprintf("subscription.topics lists %q twice", topic))
		}
		seen[topic] = true
	}
	if c.Subscription.ReconnectDelay < 0 {
		errs = append(errs, "subscription.reconnect_delay cannot be negative")
	}
	if c.Subscription.HeartbeatInterval < 0 {
		errs = append(errs, "subscription.heartbeat_interval cannot be negative")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// Redis validation
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}

	// Kafka validation
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka.topic is required when kafka is enabled")
		}
		switch c.Kafka.Compression {
		case "", "none", "gzip", "snappy", "lz4", "zstd":
		default:
			errs = append(errs, "kafka.compression must be one of none, gzip, snappy, lz4, zstd")
		}
		if c.Kafka.RequiredAcks < -1 || c.Kafka.RequiredAcks > 1 {
			errs = append(errs, "kafka.required_acks must be -1, 0, or 1")
		}
		if c.Kafka.SASL.Enabled && c.Kafka.SASL.Username == "" {
			errs = append(errs, "kafka.sasl.username is required when sasl is enabled")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
