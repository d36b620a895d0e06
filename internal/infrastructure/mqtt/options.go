package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho options: broker URL (tcp:// or ssl://),
// client ID, optional credentials, clean session, auto-reconnect and TLS.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	opts.AddBroker(brokerURL)

	opts.SetClientID(cfg.Broker.ClientID)

	// Authentication (if credentials provided)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// The relay only publishes, so nothing is kept on the broker.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		tlsConfig := &tls.Config{
			MinVersion: tlsMinVersion,
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}

// Relay status values and reasons.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonShutdown = "graceful_shutdown"
	reasonCrash    = "unexpected_disconnect"
)

// statusMessage is the retained payload on feedwatch/system/status.
type statusMessage struct {
	Status    string   `json:"status"`
	ClientID  string   `json:"client_id"`
	Topics    []string `json:"topics"`
	Reason    string   `json:"reason,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// configureLWT registers the retained status the broker publishes if the
// relay disappears without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string, topics []string) {
	opts.SetWill(Topics{}.SystemStatus(), buildStatusPayload(statusOffline, clientID, reasonCrash, topics), 1, true)
}

func buildStatusPayload(status, clientID, reason string, topics []string) string {
	if topics == nil {
		topics = []string{}
	}
	data, _ := json.Marshal(statusMessage{ //nolint:errcheck // Strings and a string slice always marshal
		Status:    status,
		ClientID:  clientID,
		Topics:    topics,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(data)
}
