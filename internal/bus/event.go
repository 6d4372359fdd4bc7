package bus

import "time"

// Namespace prefixes used across the client. Kinds are dot-namespaced,
// so subscribing to a namespace receives every kind under it.
const (
	NSPush    = "push."    // inbound push-channel events (decoded wire payloads)
	NSConn    = "conn."    // connection state changes
	NSMessage = "message." // store mutations (appended, confirmed, failed, received)
	NSRoster  = "roster."  // friend list / unread changes
	NSTyping  = "typing."  // typing set changes
	NSNotify  = "notify."  // transient notification changes
)

// Event is a domain event published on the in-process bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
