package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"

	"pharmacy-chat-service/internal/auth"
	"pharmacy-chat-service/internal/models"
	"pharmacy-chat-service/internal/observability"
	"pharmacy-chat-service/internal/presence"
	"pharmacy-chat-service/internal/repositories"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// ChatWebSocketHandler handles chat websocket connections. Pharmacist
// connections drive presence registration; customer connections watch
// presence snapshots.
type ChatWebSocketHandler struct {
	hub         *Hub
	registry    *presence.Registry
	messageRepo repositories.MessageRepository
	secret      []byte
	sanitizer   *bluemonday.Policy
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, registry *presence.Registry, messageRepo repositories.MessageRepository, secret []byte) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		hub:         hub,
		registry:    registry,
		messageRepo: messageRepo,
		secret:      secret,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("pharmacy-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := h.identify(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		Role:        identity.Role,
		DisplayName: identity.DisplayName,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(info.UserID, conn, info)

	switch identity.Role {
	case models.RolePharmacist:
		h.registry.Register(models.PresenceEntry{
			PharmacistID: identity.UserID,
			DisplayName:  identity.DisplayName,
			AvatarRef:    c.Query("avatar"),
		}, info.ConnID)
	case models.RoleCustomer:
		h.hub.AddWatcher(info.UserID, conn)
		h.hub.SendPresence(conn, h.registry.List())
	}

	observability.IncWSActive(string(info.Role))
	observability.IncWSEvent(string(info.Role), "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   wsEventPayload(info, "ws_connect", 0, ""),
	})

	go h.readPump(conn, info)
}

func (h *ChatWebSocketHandler) identify(c *gin.Context) (auth.Identity, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}
	parts := strings.Split(token, " ")
	if len(parts) != 2 {
		return auth.Identity{}, errors.New("invalid token")
	}
	return auth.ValidateToken(parts[1], h.secret)
}

// readPump consumes inbound frames until the connection dies. It also
// owns connection liveness: missed pongs count as an abrupt disconnect
// and take the pharmacist's presence entry down with the connection.
func (h *ChatWebSocketHandler) readPump(conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(info.UserID, conn)
		if info.Role == models.RolePharmacist {
			h.registry.Unregister(info.UserID, info.ConnID)
		}
		observability.DecWSActive(string(info.Role))
		observability.IncWSEvent(string(info.Role), "ws_disconnect")
		_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   wsEventPayload(info, "ws_disconnect", time.Since(info.ConnectedAt), closeReason),
		})
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.pingLoop(conn, stopPing)

	for {
		var frame models.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.hub.publishWSError(info, err)
			}
			return
		}
		if frame.Type == models.FrameTypeSend {
			h.handleSend(info, frame)
		}
	}
}

func (h *ChatWebSocketHandler) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// handleSend persists an inbound message and broadcasts the server echo
// carrying the store-assigned id and timestamp.
func (h *ChatWebSocketHandler) handleSend(info ConnInfo, frame models.ClientFrame) {
	content := strings.TrimSpace(h.sanitizer.Sanitize(frame.Content))
	if content == "" || frame.ReceiverID == 0 {
		observability.IncWSEvent(string(info.Role), "send_rejected")
		return
	}

	customerID, pharmacistID := info.UserID, frame.ReceiverID
	if info.Role == models.RolePharmacist {
		customerID, pharmacistID = frame.ReceiverID, info.UserID
	}

	ctx, span := otel.Tracer("pharmacy-chat-service/ws").Start(context.Background(), "ws.send")
	defer span.End()

	msg, err := h.messageRepo.CreateMessage(ctx, customerID, pharmacistID, info.Role, content)
	if err != nil {
		log.Printf("failed to store message conn_id=%s: %v", info.ConnID, err)
		observability.IncWSEvent(string(info.Role), "send_failed")
		return
	}

	h.hub.BroadcastMessage(msg)
	observability.IncWSEvent(string(info.Role), "message_sent")
}
