package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
)

// testConfig returns a configuration for a local Mosquitto broker.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// skipIfNoBroker skips tests that need a broker at 127.0.0.1:1883.
func skipIfNoBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 500*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available at 127.0.0.1:1883")
	}
	conn.Close()
}

// =============================================================================
// Broker tests
// =============================================================================

func TestConnect(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig("feedwatch-test-connect"), []string{"tag:go"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose_MarksDisconnected(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig("feedwatch-test-close"), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.Publish("feedwatch/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestRelay_RoundTrip(t *testing.T) {
	skipIfNoBroker(t)

	// Independent subscriber using paho directly.
	subOpts := pahomqtt.NewClientOptions().AddBroker("tcp://127.0.0.1:1883").SetClientID("feedwatch-test-sub")
	sub := pahomqtt.NewClient(subOpts)
	if token := sub.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("subscriber connect failed: %v", token.Error())
	}
	defer sub.Disconnect(100)

	received := make(chan pahomqtt.Message, 1)
	token := sub.Subscribe(Topics{}.TopicEvents("tag:go"), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- msg
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe failed: %v", token.Error())
	}

	client, err := Connect(testConfig("feedwatch-test-relay"), []string{"tag:go"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	relay := NewRelay(client, client.QoS(), nil)
	if err := relay.HandleEvent(context.Background(), "tag:go", "bookmark:created", channel.NewPayload(map[string]any{"title": "T"})); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.Topic() != "feedwatch/event/tag:go/bookmark:created" {
			t.Errorf("topic = %q", msg.Topic())
		}
		var got eventMessage
		if err := json.Unmarshal(msg.Payload(), &got); err != nil {
			t.Fatalf("payload %s: %v", msg.Payload(), err)
		}
		if title, _ := got.Payload.StringField("title"); title != "T" {
			t.Errorf("payload = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
}

// =============================================================================
// Offline tests
// =============================================================================

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig("feedwatch-test-refused")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (&Client{}).HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", payload: []byte("x"), qos: 1, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "feedwatch/test", payload: []byte("x"), qos: 3, wantErr: ErrInvalidQoS},
		{name: "too large", topic: "feedwatch/test", payload: make([]byte, maxPayloadSize+1), qos: 1, wantErr: ErrPublishFailed},
		{name: "not connected", topic: "feedwatch/test", payload: []byte("x"), qos: 1, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	topics := []string{"bookmark:feed", "tag:go"}

	tests := []struct {
		name       string
		payload    string
		wantStatus string
		wantReason string
		wantTopics []string
	}{
		{name: "online", payload: buildStatusPayload(statusOnline, "fw-1", "", topics), wantStatus: "online", wantTopics: topics},
		{name: "offline", payload: buildStatusPayload(statusOffline, "fw-1", reasonShutdown, topics), wantStatus: "offline", wantReason: "graceful_shutdown", wantTopics: topics},
		{name: "no topics", payload: buildStatusPayload(statusOffline, "fw-1", reasonCrash, nil), wantStatus: "offline", wantReason: "unexpected_disconnect", wantTopics: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg statusMessage
			if err := json.Unmarshal([]byte(tt.payload), &msg); err != nil {
				t.Fatalf("invalid JSON %q: %v", tt.payload, err)
			}
			if msg.Status != tt.wantStatus || msg.Reason != tt.wantReason || msg.ClientID != "fw-1" {
				t.Errorf("status = %+v", msg)
			}
			if !reflect.DeepEqual(msg.Topics, tt.wantTopics) {
				t.Errorf("topics = %v, want %v", msg.Topics, tt.wantTopics)
			}
			if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
				t.Errorf("timestamp %q: %v", msg.Timestamp, err)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("fw-opts")
	cfg.Auth = config.MQTTAuthConfig{Username: "user", Password: "pass"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID, []string{"tag:go"})

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "fw-opts" || opts.Username != "user" {
		t.Errorf("ClientID, Username = %q, %q", opts.ClientID, opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil with tls enabled")
	}
	if !opts.WillEnabled || opts.WillTopic != "feedwatch/system/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

// =============================================================================
// Offline tests against a stand-in paho client
// =============================================================================

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *doneToken) Error() error { return t.err }

type pahoPublish struct {
	topic    string
	retained bool
	payload  string
}

// stubPaho implements the parts of pahomqtt.Client the relay client calls.
type stubPaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	err          error
	publishes    []pahoPublish
	disconnected bool
}

func (s *stubPaho) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.disconnected
}

func (s *stubPaho) Publish(topic string, _ byte, retained bool, payload any) pahomqtt.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	s.publishes = append(s.publishes, pahoPublish{topic: topic, retained: retained, payload: body})
	return &doneToken{err: s.err}
}

func (s *stubPaho) Disconnect(uint) {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
}

func (s *stubPaho) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func newStubbedClient(topics []string) (*Client, *stubPaho) {
	stub := &stubPaho{}
	c := &Client{client: stub, cfg: testConfig("fw-stub"), topics: topics}
	c.connected.Store(true)
	return c, stub
}

func TestHealthCheck_RepeatedPublishFailures(t *testing.T) {
	c, stub := newStubbedClient(nil)
	ctx := context.Background()

	stub.setErr(errors.New("not authorized"))
	for i := range unhealthyAfter {
		if err := c.HealthCheck(ctx); err != nil {
			t.Fatalf("HealthCheck() after %d failures error = %v", i, err)
		}
		if err := c.Publish("feedwatch/event/tag:go/bookmark:created", []byte("{}"), 1, false); !errors.Is(err, ErrPublishFailed) {
			t.Fatalf("Publish() error = %v, want ErrPublishFailed", err)
		}
	}

	err := c.HealthCheck(ctx)
	if !errors.Is(err, ErrPublishFailed) || !strings.Contains(err.Error(), "not authorized") {
		t.Errorf("HealthCheck() error = %v, want ErrPublishFailed with cause", err)
	}

	stub.setErr(nil)
	if err := c.Publish("feedwatch/event/tag:go/bookmark:created", []byte("{}"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() after recovery error = %v", err)
	}
}

func TestRelay_StateUsesRetainedPublish(t *testing.T) {
	c, stub := newStubbedClient([]string{"tag:go"})

	NewRelay(c, c.QoS(), nil).ObserveTransition(channel.Transition{Topic: "tag:go", To: channel.StateSubscribed})

	if len(stub.publishes) != 1 {
		t.Fatalf("publishes = %d, want 1", len(stub.publishes))
	}
	got := stub.publishes[0]
	if got.topic != "feedwatch/subscription/tag:go/state" || !got.retained {
		t.Errorf("publish = %+v, want retained state", got)
	}
}

func TestConnectAndClose_AnnounceTopics(t *testing.T) {
	topics := []string{"bookmark:feed", "tag:go"}
	c, stub := newStubbedClient(topics)

	c.handleConnect()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if len(stub.publishes) != 2 {
		t.Fatalf("publishes = %d, want online then offline", len(stub.publishes))
	}
	for i, want := range []string{"online", "offline"} {
		p := stub.publishes[i]
		if p.topic != "feedwatch/system/status" || !p.retained {
			t.Errorf("publish %d = %+v", i, p)
		}
		var msg statusMessage
		if err := json.Unmarshal([]byte(p.payload), &msg); err != nil {
			t.Fatalf("payload %q: %v", p.payload, err)
		}
		if msg.Status != want || !reflect.DeepEqual(msg.Topics, topics) {
			t.Errorf("status %d = %+v, want %s with %v", i, msg, want, topics)
		}
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
