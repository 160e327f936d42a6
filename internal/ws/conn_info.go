package ws

import (
	"time"

	"pharmacy-chat-service/internal/models"
)

type ConnInfo struct {
	ConnID      string
	UserID      int
	Role        models.Role
	DisplayName string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
