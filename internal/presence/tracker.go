package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/conn"
)

// TypingSender pushes typing indicators to the server.
type TypingSender interface {
	SendTyping(p conn.TypingPayload) error
}

// Tracker debounces local typing activity and tracks remote typing
// state. Keystrokes within the idle window collapse into one "typing"
// signal; the stop signal goes out once the window elapses with no
// further activity. Remote indicators expire on their own after twice
// the idle window, so a lost stop signal cannot leave a partner shown
// as typing forever.
type Tracker struct {
	push   TypingSender
	bus    *bus.Bus
	logger *zap.Logger
	idle   time.Duration

	mu     sync.Mutex
	selfID string
	local  map[string]*time.Timer
	remote map[string]*time.Timer
	cancel context.CancelFunc
}

// NewTracker creates a typing tracker with the given local idle window.
func NewTracker(push TypingSender, b *bus.Bus, logger *zap.Logger, idle time.Duration) *Tracker {
	return &Tracker{
		push:   push,
		bus:    b,
		logger: logger.Named("presence"),
		idle:   idle,
		local:  make(map[string]*time.Timer),
		remote: make(map[string]*time.Timer),
	}
}

// SetSelf records the logged-in user id stamped on outbound indicators.
func (t *Tracker) SetSelf(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selfID = id
}

// Start subscribes to remote typing events on the bus.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	ch, unsub := t.bus.Subscribe("push.typing", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if p, ok := evt.Payload.(conn.TypingPayload); ok {
					t.HandleRemote(p)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the tracker and clears all typing state, announcing a stop
// for any conversation still marked as locally typing.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.StopAll()
}

// LocalKeystroke records typing activity in a conversation. The first
// keystroke pushes the indicator; followups within the idle window only
// extend it.
func (t *Tracker) LocalKeystroke(friendID string) {
	t.mu.Lock()
	timer, active := t.local[friendID]
	if active {
		timer.Reset(t.idle)
		t.mu.Unlock()
		return
	}
	t.local[friendID] = time.AfterFunc(t.idle, func() {
		t.stopLocal(friendID, true)
	})
	selfID := t.selfID
	t.mu.Unlock()

	if err := t.push.SendTyping(conn.TypingPayload{
		SenderID:    selfID,
		RecipientID: friendID,
		Typing:      true,
	}); err != nil {
		t.logger.Debug("typing indicator not sent", zap.Error(err))
	}
}

// StopLocal ends the local typing indicator immediately, for example
// when the message is sent or the conversation closes.
func (t *Tracker) StopLocal(friendID string) {
	t.stopLocal(friendID, false)
}

func (t *Tracker) stopLocal(friendID string, expired bool) {
	t.mu.Lock()
	timer, active := t.local[friendID]
	if !active {
		t.mu.Unlock()
		return
	}
	if !expired {
		timer.Stop()
	}
	delete(t.local, friendID)
	selfID := t.selfID
	t.mu.Unlock()

	if err := t.push.SendTyping(conn.TypingPayload{
		SenderID:    selfID,
		RecipientID: friendID,
		Typing:      false,
	}); err != nil {
		t.logger.Debug("typing stop not sent", zap.Error(err))
	}
}

// StopAll ends every local indicator.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.local))
	for id := range t.local {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.StopLocal(id)
	}
}

// HandleRemote applies a partner's typing indicator. A start arms (or
// extends) the expiry; a stop clears immediately.
func (t *Tracker) HandleRemote(p conn.TypingPayload) {
	t.mu.Lock()
	timer, shown := t.remote[p.SenderID]
	if p.Typing {
		if shown {
			timer.Reset(2 * t.idle)
			t.mu.Unlock()
			return
		}
		sender := p.SenderID
		t.remote[sender] = time.AfterFunc(2*t.idle, func() {
			t.expireRemote(sender)
		})
		t.mu.Unlock()
		t.publishUpdate(p.SenderID, true)
		return
	}
	if shown {
		timer.Stop()
		delete(t.remote, p.SenderID)
	}
	t.mu.Unlock()
	if shown {
		t.publishUpdate(p.SenderID, false)
	}
}

func (t *Tracker) expireRemote(senderID string) {
	t.mu.Lock()
	_, shown := t.remote[senderID]
	delete(t.remote, senderID)
	t.mu.Unlock()
	if shown {
		t.publishUpdate(senderID, false)
	}
}

// Typing reports whether a partner is currently shown as typing.
func (t *Tracker) Typing(senderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, shown := t.remote[senderID]
	return shown
}

// Update is the payload of "typing.updated" events.
type Update struct {
	SenderID string
	Typing   bool
}

func (t *Tracker) publishUpdate(senderID string, typing bool) {
	t.bus.Emit("typing.updated", Update{SenderID: senderID, Typing: typing})
}
