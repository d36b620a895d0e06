// feedwatch follows bookmark topics on a Phoenix channel server and prints
// every event it receives, reconnecting after a fixed delay whenever the
// connection drops.
//
// Usage:
//
//	feedwatch          follow the topics in the configuration (default bookmark:feed)
//	feedwatch <tag>    follow tag:<tag> only
//
// Configuration is read from FEEDWATCH_CONFIG, or configs/feedwatch.yaml
// when present. Optional components (status API, journal, MQTT, Redis,
// Kafka, InfluxDB) are enabled there.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nerrad567/feedwatch/internal/api"
	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/feed"
	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
	"github.com/nerrad567/feedwatch/internal/infrastructure/database"
	"github.com/nerrad567/feedwatch/internal/infrastructure/influxdb"
	"github.com/nerrad567/feedwatch/internal/infrastructure/kafka"
	"github.com/nerrad567/feedwatch/internal/infrastructure/logging"
	"github.com/nerrad567/feedwatch/internal/infrastructure/metrics"
	"github.com/nerrad567/feedwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/feedwatch/internal/infrastructure/redis"
	"github.com/nerrad567/feedwatch/internal/journal"
	"github.com/nerrad567/feedwatch/internal/supervisor"
	"github.com/nerrad567/feedwatch/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path, used only when it exists.
const defaultConfigPath = "configs/feedwatch.yaml"

const usage = "usage: feedwatch [tag]"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New(usage)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run is the application, separated from main for testability. Events go
// to stdout, logs and errors to stderr.
//
// Returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	topics, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, usage)
		return exitUsage
	}

	if err := serve(ctx, topics, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

// parseArgs maps the optional tag argument to a topic list. No arguments
// returns nil, meaning the configured topics.
func parseArgs(args []string) ([]string, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
		topic, err := channel.TagTopic(strings.TrimSpace(args[0]))
		if err != nil {
			return nil, errUsage
		}
		return []string{topic}, nil
	default:
		return nil, errUsage
	}
}

// component is a started optional component reported by the health endpoint.
type component struct {
	name  string
	check api.HealthChecker
}

// serve loads configuration, wires every enabled component around the
// supervisor and blocks until ctx is cancelled. Components are closed in
// reverse order of startup by deferred calls.
func serve(ctx context.Context, topics []string, stdout, stderr io.Writer) error {
	log := logging.Default(stderr)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if topics != nil {
		cfg.Subscription.Topics = topics
	}

	log = logging.NewWithWriter(cfg.Logging, version, logOutput(cfg.Logging, stdout, stderr))
	log.Info("starting feedwatch",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	sup, err := supervisor.New(supervisor.Config{
		URL:               cfg.Endpoint.URL,
		Topics:            cfg.Subscription.Topics,
		ReconnectDelay:    cfg.Subscription.ReconnectDelay,
		HeartbeatInterval: cfg.Subscription.HeartbeatInterval,
		HandshakeTimeout:  cfg.Endpoint.HandshakeTimeout,
		WriteTimeout:      cfg.Endpoint.WriteTimeout,
		MaxMessageSize:    cfg.Endpoint.MaxMessageSize,
	}, log.With("component", "channel"))
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}

	printer := feed.NewPrinter(stdout, cfg.Endpoint.URL, log)
	printer.Banner(sup.Topics())
	sup.AddSink("console", printer)
	sup.AddObserver(printer)

	var components []component

	// Metrics
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
		sup.AddSink("metrics", collector)
		sup.AddObserver(collector)
	}

	// Journal
	var sessions api.SessionLister
	if cfg.Journal.Enabled {
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrating journal: %w", err)
		}

		recorder := journal.NewRecorder(journal.NewSQLiteRepository(db), cfg.Endpoint.URL, log.With("component", "journal"))
		if err := recorder.Recover(ctx); err != nil {
			return fmt.Errorf("recovering journal: %w", err)
		}
		sup.AddSink("journal", recorder)
		sup.AddObserver(recorder)
		sessions = recorder
		components = append(components, component{"journal", db})
		log.Info("journal enabled", "path", db.Path())
	}

	// MQTT relay
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT, sup.Topics())
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)

		relay := mqtt.NewRelay(mqttClient, mqttClient.QoS(), log)
		sup.AddSink("mqtt", relay)
		sup.AddObserver(relay)
		components = append(components, component{"mqtt", mqttClient})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Redis relay
	if cfg.Redis.Enabled {
		redisClient, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		sup.AddSink("redis", redisClient)
		components = append(components, component{"redis", redisClient})
		log.Info("Redis connected", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.ChannelPrefix)
	}

	// Kafka relay
	if cfg.Kafka.Enabled {
		producer, err := kafka.Connect(ctx, cfg.Kafka)
		if err != nil {
			return fmt.Errorf("connecting to Kafka: %w", err)
		}
		defer func() {
			log.Info("closing Kafka producer")
			if closeErr := producer.Close(); closeErr != nil {
				log.Error("error closing Kafka", "error", closeErr)
			}
		}()
		producer.SetOnError(func(err error) {
			log.Error("Kafka write error", "error", err)
		})
		sup.AddSink("kafka", producer)
		components = append(components, component{"kafka", producer})
		log.Info("Kafka connected", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// InfluxDB telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sup.AddSink("influxdb", influxClient)
		sup.AddObserver(influxClient)
		components = append(components, component{"influxdb", influxClient})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Status API
	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:    cfg.API,
			Metrics:   cfg.Metrics,
			Logger:    log.With("component", "api"),
			Status:    sup,
			Sessions:  sessions,
			Collector: collector,
			Version:   version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		for _, c := range components {
			server.AddHealthCheck(c.name, c.check)
		}
		sup.AddSink("stream", server.Hub())
		sup.AddObserver(server.Hub())

		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("running subscriptions: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns FEEDWATCH_CONFIG if set, otherwise the default path
// when that file exists, otherwise "" for built-in defaults.
func getConfigPath() string {
	if path := os.Getenv("FEEDWATCH_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// logOutput resolves logging.output against the process streams.
func logOutput(cfg config.LoggingConfig, stdout, stderr io.Writer) io.Writer {
	if strings.EqualFold(cfg.Output, "stdout") {
		return stdout
	}
	return stderr
}
