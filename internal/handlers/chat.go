package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"pharmacy-chat-service/internal/models"
	"pharmacy-chat-service/internal/presence"
	"pharmacy-chat-service/internal/repositories"
	"pharmacy-chat-service/internal/ws"
)

// ChatHandler manages the REST surface of the chat subsystem: presence
// snapshots, history fetches, and the non-websocket send path.
type ChatHandler struct {
	messageRepo    repositories.MessageRepository
	registry       *presence.Registry
	hub            *ws.Hub
	sanitizer      *bluemonday.Policy
	defaultContact *models.PresenceEntry
}

// NewChatHandler builds a ChatHandler. defaultContact, when non-nil, is
// advertised as the fallback when no pharmacist is online.
func NewChatHandler(messageRepo repositories.MessageRepository, registry *presence.Registry, hub *ws.Hub, defaultContact *models.PresenceEntry) *ChatHandler {
	return &ChatHandler{
		messageRepo:    messageRepo,
		registry:       registry,
		hub:            hub,
		sanitizer:      bluemonday.StrictPolicy(),
		defaultContact: defaultContact,
	}
}

// ListOnlinePharmacists returns the current presence snapshot ordered
// by registration time. When the registry is empty and a default
// contact is configured, the contact rides along so clients have
// someone to address messages to.
func (h *ChatHandler) ListOnlinePharmacists(c *gin.Context) {
	snapshot := h.registry.List()
	resp := gin.H{"pharmacists": snapshot}
	if len(snapshot) == 0 && h.defaultContact != nil {
		resp["default_contact"] = h.defaultContact
	}
	c.JSON(http.StatusOK, resp)
}

// GetConversationMessages returns the persisted backlog of the caller's
// conversation with the partner, oldest first.
func (h *ChatHandler) GetConversationMessages(c *gin.Context) {
	customerID, pharmacistID, ok := h.conversationPair(c)
	if !ok {
		return
	}

	opts := repositories.HistoryOptions{}
	if raw := c.Query("before_id"); raw != "" {
		beforeID, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id"})
			return
		}
		opts.BeforeID = beforeID
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		opts.Limit = limit
	}

	msgs, err := h.messageRepo.GetConversationMessages(c.Request.Context(), customerID, pharmacistID, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostConversationMessage stores a message and broadcasts the echo to
// both participants' live connections.
func (h *ChatHandler) PostConversationMessage(c *gin.Context) {
	customerID, pharmacistID, ok := h.conversationPair(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content := strings.TrimSpace(h.sanitizer.Sanitize(req.Content))
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}

	role := models.Role(c.GetString("userRole"))
	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), customerID, pharmacistID, role, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.BroadcastMessage(msg)
	c.JSON(http.StatusCreated, msg)
}

// conversationPair resolves the (customer, pharmacist) key from the
// caller's role and the partner id in the path.
func (h *ChatHandler) conversationPair(c *gin.Context) (int, int, bool) {
	partnerID, err := strconv.Atoi(c.Param("partner_id"))
	if err != nil || partnerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid partner id"})
		return 0, 0, false
	}

	userID := c.GetInt("userID")
	switch models.Role(c.GetString("userRole")) {
	case models.RoleCustomer:
		return userID, partnerID, true
	case models.RolePharmacist:
		return partnerID, userID, true
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "unknown role"})
		return 0, 0, false
	}
}
