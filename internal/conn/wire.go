package conn

import (
	"encoding/json"
	"time"
)

// Envelope is the framing of every push channel message, both directions:
// an event name plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventNewMessage   = "newMessage"
	EventMessageError = "messageError"
	EventUserTyping   = "userTyping"
)

// Outbound event names.
const (
	EventJoin        = "join"
	EventUserOnline  = "userOnline"
	EventUserOffline = "userOffline"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
)

// MessageRecord is a full message as the server relays it. The sender
// receives its own messages back through this same event (the echo); the
// ClientMsgID round-trips so the echo can be correlated with the
// optimistic copy.
type MessageRecord struct {
	ID          string    `json:"_id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Text        string    `json:"text"`
	ClientMsgID string    `json:"clientMsgId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SendPayload is the outbound sendMessage body.
type SendPayload struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Text        string `json:"text"`
	ClientMsgID string `json:"clientMsgId"`
}

// TypingPayload carries a typing indicator in either direction. On the
// way out SenderID is the local user; inbound it is the partner.
type TypingPayload struct {
	SenderID    string `json:"userId"`
	RecipientID string `json:"recipientId,omitempty"`
	Typing      bool   `json:"isTyping"`
}

// ErrorPayload is the server's rejection of a pushed message.
type ErrorPayload struct {
	ClientMsgID string `json:"clientMsgId,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
	Message     string `json:"error"`
}

// PresencePayload announces a user coming online or going offline.
type PresencePayload struct {
	UserID string `json:"userId"`
}
