package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/infrastructure/logging"
)

// Stream message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeState       = "state"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSAllTopics subscribes a client to every topic.
	WSAllTopics = "*"
)

const (
	wsSendBufferSize = 256
	wsMaxMessageSize = 4096
	wsPingInterval   = 30 * time.Second
	wsPongTimeout    = 10 * time.Second
)

// WSMessage is sent to and received from stream clients.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Event     string `json:"event,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe messages.
type WSSubscribePayload struct {
	Topics []string `json:"topics"`
}

// wsStatePayload is the payload of state messages.
type wsStatePayload struct {
	State     string `json:"state"`
	From      string `json:"from"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// Hub re-broadcasts feed events and state changes to stream clients.
//
// It is registered with the supervisor as a sink and an observer. A slow
// client drops messages rather than delaying the feed.
type Hub struct {
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected stream client.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
	mu     sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", h.ClientCount())
}

// Unregister removes a client. Only the goroutine that removes the client
// closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("stream client disconnected", "clients", h.ClientCount())
}

// HandleEvent broadcasts a feed event to clients following topic.
func (h *Hub) HandleEvent(_ context.Context, topic, event string, payload channel.Payload) error {
	h.broadcast(topic, WSMessage{
		Type:    WSTypeEvent,
		Topic:   topic,
		Event:   event,
		Payload: payload,
	})
	return nil
}

// ObserveTransition broadcasts a state change to clients following the topic.
func (h *Hub) ObserveTransition(tr channel.Transition) {
	p := wsStatePayload{
		State:     tr.To.String(),
		From:      tr.From.String(),
		SessionID: tr.SessionID,
	}
	if tr.Err != nil {
		p.Error = tr.Err.Error()
	}
	h.broadcast(tr.Topic, WSMessage{
		Type:    WSTypeState,
		Topic:   tr.Topic,
		Payload: p,
	})
}

// broadcast snapshots the client list under the hub lock, then sends
// without holding it.
func (h *Hub) broadcast(topic string, msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal stream message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.follows(topic) {
			client.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels so the
// write pumps exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close() //nolint:errcheck // Shutting down
		}
		delete(h.clients, client)
	}
}

// handleStream upgrades to a WebSocket. Topics can be preselected with
// repeated ?topic= parameters; clients may also send subscribe messages.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", "error", err, "request_id", requestIDFrom(r.Context()))
		return
	}

	client := &WSClient{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		topics: make(map[string]struct{}),
	}
	for _, topic := range r.URL.Query()["topic"] {
		if topic != "" {
			client.topics[topic] = struct{}{}
		}
	}

	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // Connection is done
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("stream read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Connection is done
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsPongTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsPongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.mu.Lock()
		for _, t := range msg.Payload.Topics {
			c.topics[t] = struct{}{}
		}
		c.mu.Unlock()
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"subscribed": msg.Payload.Topics})
	case WSTypeUnsubscribe:
		c.mu.Lock()
		for _, t := range msg.Payload.Topics {
			delete(c.topics, t)
		}
		c.mu.Unlock()
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": msg.Payload.Topics})
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// trySend queues data, dropping it when the buffer is full or the client
// has gone.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) follows(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.topics[WSAllTopics]; ok {
		return true
	}
	_, ok := c.topics[topic]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
