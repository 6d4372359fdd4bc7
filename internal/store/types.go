package store

// DeliveryState tracks an optimistic send through its lifecycle.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

// Message is one entry of a conversation. A message originated locally
// carries a ClientID from creation; its ID is assigned once the server
// echo (or a history fetch) confirms it. Inbound messages are confirmed
// from the start.
type Message struct {
	ID        string
	ClientID  string
	Text      string
	FromMe    bool
	Read      bool
	Timestamp int64 // unix millis
	State     DeliveryState
}

// Friend is a conversation partner. ID is the server record id (_id);
// UserID is the opaque stable id. Sender references may arrive keyed by
// either, depending on the source.
type Friend struct {
	ID     string
	UserID string
	Name   string
}

// FriendEntry is a friend plus list-display metadata.
type FriendEntry struct {
	Friend
	Unread   int
	LastText string
	LastAt   int64
}
