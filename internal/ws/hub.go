package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pharmacy-chat-service/internal/models"
	"pharmacy-chat-service/internal/observability"
)

type client struct {
	info ConnInfo
	// Serializes data writes; gorilla connections allow only one
	// concurrent writer.
	writeMu sync.Mutex
}

// Hub maintains the active websocket connections. Connections are
// keyed by user id so a message echo reaches every open tab of both
// conversation participants; customer connections additionally watch
// presence snapshots.
type Hub struct {
	mu       sync.RWMutex
	clients  map[int]map[*websocket.Conn]*client
	watchers map[*websocket.Conn]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[int]map[*websocket.Conn]*client),
		watchers: make(map[*websocket.Conn]*client),
	}
}

// AddClient registers a websocket connection for a user.
func (h *Hub) AddClient(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*websocket.Conn]*client)
	}
	h.clients[userID][conn] = &client{info: info}
}

// RemoveClient removes a websocket connection for a user.
func (h *Hub) RemoveClient(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
	delete(h.watchers, conn)
}

// AddWatcher subscribes an already registered connection to presence
// snapshots.
func (h *Hub) AddWatcher(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[userID][conn]; ok {
		h.watchers[conn] = c
	}
}

// BroadcastMessage delivers a persisted message to both participants.
func (h *Hub) BroadcastMessage(msg models.ChatMessage) {
	event := models.ChatEvent{Type: models.EventTypeMessage, Message: &msg}
	h.fanOut(h.participantClients(msg.CustomerID, msg.PharmacistID), event)
}

// BroadcastPresence pushes the presence snapshot to all watchers.
func (h *Hub) BroadcastPresence(snapshot []models.PresenceEntry) {
	h.mu.RLock()
	targets := make(map[*websocket.Conn]*client, len(h.watchers))
	for conn, c := range h.watchers {
		targets[conn] = c
	}
	h.mu.RUnlock()

	h.fanOut(targets, models.ChatEvent{Type: models.EventTypePresence, Presence: snapshot})
}

// SendPresence delivers the snapshot to a single connection, used right
// after a customer connects.
func (h *Hub) SendPresence(conn *websocket.Conn, snapshot []models.PresenceEntry) {
	h.mu.RLock()
	c := h.watchers[conn]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	h.writeEvent(conn, c, models.ChatEvent{Type: models.EventTypePresence, Presence: snapshot})
}

func (h *Hub) participantClients(customerID, pharmacistID int) map[*websocket.Conn]*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := make(map[*websocket.Conn]*client)
	for conn, c := range h.clients[customerID] {
		targets[conn] = c
	}
	for conn, c := range h.clients[pharmacistID] {
		targets[conn] = c
	}
	return targets
}

func (h *Hub) fanOut(targets map[*websocket.Conn]*client, event models.ChatEvent) {
	for conn, c := range targets {
		h.writeEvent(conn, c, event)
	}
}

func (h *Hub) writeEvent(conn *websocket.Conn, c *client, event models.ChatEvent) {
	c.writeMu.Lock()
	err := conn.WriteJSON(event)
	c.writeMu.Unlock()
	if err != nil {
		log.Printf("websocket write error: %v", err)
		conn.Close()
		h.RemoveClient(c.info.UserID, conn)
		h.publishWSError(c.info, err)
	}
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	observability.IncWSEvent(string(info.Role), "ws_error")
	_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   wsEventPayload(info, "ws_error", time.Since(info.ConnectedAt), err.Error()),
	})
}

func wsEventPayload(info ConnInfo, event string, duration time.Duration, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"role":        string(info.Role),
			"duration_ms": duration.Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
