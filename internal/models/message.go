package models

import "time"

// Role identifies which side of a conversation authored a message.
type Role string

const (
	RoleCustomer   Role = "customer"
	RolePharmacist Role = "pharmacist"
)

// Valid reports whether the role is one of the two known participants.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RolePharmacist
}

// ChatMessage represents a message between a customer and a pharmacist.
// ID is assigned by the store; it is zero on optimistic client-side
// messages that have not been acknowledged yet.
type ChatMessage struct {
	ID           int       `db:"id" json:"id,omitempty"`
	CustomerID   int       `db:"customer_id" json:"customer_id"`
	PharmacistID int       `db:"pharmacist_id" json:"pharmacist_id"`
	SenderRole   Role      `db:"sender_role" json:"sender_role"`
	Content      string    `db:"content" json:"content"`
	SentAt       time.Time `db:"sent_at" json:"sent_at"`
}

// SenderID returns the user id of the participant that authored the message.
func (m ChatMessage) SenderID() int {
	if m.SenderRole == RolePharmacist {
		return m.PharmacistID
	}
	return m.CustomerID
}

// ReceiverID returns the user id of the other participant.
func (m ChatMessage) ReceiverID() int {
	if m.SenderRole == RolePharmacist {
		return m.CustomerID
	}
	return m.PharmacistID
}

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type     string          `json:"type"`
	Message  *ChatMessage    `json:"message,omitempty"`
	Presence []PresenceEntry `json:"presence,omitempty"`
}

const (
	EventTypeMessage  = "message"
	EventTypePresence = "presence"
)

// ClientFrame is what a client writes into its websocket.
type ClientFrame struct {
	Type       string    `json:"type"`
	ReceiverID int       `json:"receiver_id,omitempty"`
	Content    string    `json:"content,omitempty"`
	SentAt     time.Time `json:"sent_at,omitempty"`
}

// FrameTypeSend asks the server to persist and broadcast a message.
const FrameTypeSend = "send"
