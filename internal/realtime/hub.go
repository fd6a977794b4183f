package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sous-kitchen/edge-core/internal/infrastructure/config"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/logging"
)

// Message types exchanged over the socket.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeTelemetry   = "telemetry"
	TypeEvent       = "event"
	TypeResponse    = "response"
	TypeError       = "error"
)

// Message represents a message sent to/from a WebSocket client.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// SubscribePayload is the payload for subscribe/unsubscribe messages.
type SubscribePayload struct {
	Events []string `json:"events"`
}

// TelemetryPayload is the payload of a telemetry message from hardware.
type TelemetryPayload struct {
	Key      string         `json:"key"`
	Value    any            `json:"value"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TelemetrySink receives telemetry samples that survive throttling.
// Implementations must not block; delivery happens on the client's read
// goroutine.
type TelemetrySink interface {
	RecordTelemetry(hardwareID, key string, value float64, metadata map[string]any)
}

// Hub manages WebSocket connections and routes events to them.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	throttle *TelemetryThrottle
	sink     TelemetrySink

	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// NewHub creates a realtime hub.
//
// sink may be nil; accepted telemetry is then discarded after throttling,
// which keeps the protocol identical whether or not a time-series store
// is configured.
func NewHub(cfg config.WebSocketConfig, throttle *TelemetryThrottle, sink TelemetrySink, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger.With("component", "realtime"),
		throttle: throttle,
		sink:     sink,
		clients:  make(map[*Client]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected",
		"kind", client.principal.Kind,
		"organization_id", client.principal.OrganizationID,
		"clients", h.ClientCount(),
	)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// PublishToHardware delivers an event to every connection held by the
// given hardware unit. Subscriptions are not consulted: a unit waiting to
// pair cannot know event names in advance.
func (h *Hub) PublishToHardware(hardwareID, event string, payload any) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		h.logger.Error("failed to marshal hardware event", "event", event, "error", err)
		return
	}

	sent := 0
	for _, client := range h.snapshot() {
		if client.principal.IsHardware() && client.principal.HardwareID == hardwareID {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("hardware event sent", "event", event, "hardware_id", hardwareID, "recipients", sent)
	}
}

// PublishToOrganization fans an event out to every connection in the
// organisation that subscribed to it.
//
// The organisation comes from each connection's authenticated principal,
// so an event can never cross a tenant boundary no matter what a client
// subscribes to.
func (h *Hub) PublishToOrganization(orgID, event string, payload any) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		h.logger.Error("failed to marshal organization event", "event", event, "error", err)
		return
	}

	sent := 0
	for _, client := range h.snapshot() {
		if client.principal.OrganizationID == orgID && client.isSubscribed(event) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("organization event sent", "event", event, "organization_id", orgID, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// snapshot copies the client set under the hub lock so fan-out never
// holds hub and client locks simultaneously.
func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// marshalEvent builds the wire form of a server-to-client event.
func marshalEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(Message{
		Type:      TypeEvent,
		EventType: event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}
