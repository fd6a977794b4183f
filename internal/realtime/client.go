package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sous-kitchen/edge-core/internal/auth"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/config"
)

// Upgrader configures the WebSocket upgrader for the hub.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// Client represents a connected WebSocket client bound to an
// authenticated principal.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	principal     *auth.Principal
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

// NewClient wraps an upgraded connection. The caller registers the
// client with the hub and starts the pumps.
func NewClient(hub *Hub, conn *websocket.Conn, principal *auth.Principal) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, hub.cfg.SendBufferSize),
		principal:     principal,
		subscriptions: make(map[string]struct{}),
	}
}

// Principal returns the identity the connection authenticated as.
func (c *Client) Principal() *auth.Principal {
	return c.principal
}

// ReadPump reads messages from the WebSocket connection.
func (c *Client) ReadPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if the client doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection.
func (c *Client) WritePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		c.handleSubscribe(msg)
	case TypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case TypePing:
		c.sendResponse(msg.ID, TypePong, nil)
	case TypeTelemetry:
		c.handleTelemetry(msg)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe adds event names to the client's subscription list.
func (c *Client) handleSubscribe(msg Message) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}

	var sub SubscribePayload
	if err := json.Unmarshal(payloadBytes, &sub); err != nil {
		c.sendError(msg.ID, "invalid subscribe payload")
		return
	}

	c.mu.Lock()
	for _, ev := range sub.Events {
		c.subscriptions[ev] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed",
		"events", sub.Events,
		"organization_id", c.principal.OrganizationID,
	)

	c.sendResponse(msg.ID, TypeResponse, map[string]any{
		"subscribed": sub.Events,
	})
}

// handleUnsubscribe removes event names from the client's subscription list.
func (c *Client) handleUnsubscribe(msg Message) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}

	var sub SubscribePayload
	if err := json.Unmarshal(payloadBytes, &sub); err != nil {
		c.sendError(msg.ID, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ev := range sub.Events {
		delete(c.subscriptions, ev)
	}
	c.mu.Unlock()

	c.sendResponse(msg.ID, TypeResponse, map[string]any{
		"unsubscribed": sub.Events,
	})
}

// handleTelemetry ingests a telemetry sample from a hardware connection.
// Suppressed samples get no feedback; the sender cannot distinguish a
// throttled sample from a stored one.
func (c *Client) handleTelemetry(msg Message) {
	if !c.principal.IsHardware() {
		c.sendError(msg.ID, "telemetry requires a hardware connection")
		return
	}

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}

	var sample TelemetryPayload
	if err := json.Unmarshal(payloadBytes, &sample); err != nil || sample.Key == "" {
		c.sendError(msg.ID, "invalid telemetry payload")
		return
	}

	value, ok := numericValue(sample.Value)
	if !ok {
		c.sendError(msg.ID, "telemetry value must be numeric or boolean")
		return
	}

	if c.hub.throttle != nil && !c.hub.throttle.Allow(c.principal.HardwareID, sample.Key, time.Now()) {
		return
	}

	if c.hub.sink != nil {
		c.hub.sink.RecordTelemetry(c.principal.HardwareID, sample.Key, value, sample.Metadata)
	}
}

// numericValue coerces a decoded JSON value to a float64 metric value.
// Booleans map to 0/1 so on-off sensors land in the same store.
func numericValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during fan-out)
// and full buffers (slow client).
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// isSubscribed checks if the client is subscribed to an event name.
func (c *Client) isSubscribed(event string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[event]
	return ok
}

// sendResponse sends a response message to the client.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *Client) sendResponse(id, msgType string, payload any) {
	msg := Message{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *Client) sendError(id, message string) {
	c.sendResponse(id, TypeError, map[string]string{"message": message})
}
