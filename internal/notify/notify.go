package notify

import (
	"sync"
	"time"

	"github.com/prodevopz/prochat/internal/bus"
)

// Level distinguishes success and error notices.
type Level int

const (
	Info Level = iota
	Error
)

// Notice is a transient, user-visible notification.
type Notice struct {
	Level Level
	Text  string
}

// Notifier holds at most one active notice. A new notice replaces the
// current one rather than stacking, and expires on its own.
type Notifier struct {
	mu      sync.RWMutex
	current Notice
	expires time.Time
	ttl     time.Duration
	bus     *bus.Bus
}

// New creates a notifier whose notices expire after ttl.
func New(b *bus.Bus, ttl time.Duration) *Notifier {
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &Notifier{bus: b, ttl: ttl}
}

// Info replaces the current notice with a success message.
func (n *Notifier) Info(text string) {
	n.set(Notice{Level: Info, Text: text})
}

// Error replaces the current notice with an error message.
func (n *Notifier) Error(text string) {
	n.set(Notice{Level: Error, Text: text})
}

func (n *Notifier) set(notice Notice) {
	n.mu.Lock()
	n.current = notice
	n.expires = time.Now().Add(n.ttl)
	n.mu.Unlock()

	if n.bus != nil {
		n.bus.Emit("notify.updated", notice)
	}
}

// Current returns the active notice, or ok=false if none or expired.
func (n *Notifier) Current() (Notice, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.current.Text == "" || time.Now().After(n.expires) {
		return Notice{}, false
	}
	return n.current, true
}
