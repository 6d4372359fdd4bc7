package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/api"
	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/conn"
	"github.com/prodevopz/prochat/internal/notify"
	"github.com/prodevopz/prochat/internal/store"
)

// Historian fetches a conversation's authoritative message history.
type Historian interface {
	History(ctx context.Context, friendID string) ([]api.HistoryMessage, error)
}

// Confirmed is published as "message.confirmed" once a pending send has
// been resolved to its server identity.
type Confirmed struct {
	FriendID    string
	ClientMsgID string
	ServerID    string
}

// Received is published as "message.received" for a partner message.
type Received struct {
	FriendID  string
	MessageID string
}

// Failed is published as "message.failed" when the server rejects a send.
type Failed struct {
	FriendID    string
	ClientMsgID string
	Reason      string
}

// HistoryLoaded is published as "message.history_loaded" after a fetch
// has been merged into the store.
type HistoryLoaded struct {
	FriendID string
	Count    int
}

// Engine reconciles push deliveries and history fetches into the store.
// It subscribes to "push." events on the bus and processes them on a
// single goroutine, so store mutations for a conversation are ordered.
// While a conversation is open it also re-fetches history on a timer as
// a safety net for missed push deliveries.
type Engine struct {
	store    *store.Store
	history  Historian
	bus      *bus.Bus
	notifier *notify.Notifier
	logger   *zap.Logger
	interval time.Duration

	mu         sync.Mutex
	self       api.User
	cancel     context.CancelFunc
	pollCancel context.CancelFunc
}

// NewEngine creates a new sync engine. interval is the history re-fetch
// period for the open conversation.
func NewEngine(st *store.Store, h Historian, b *bus.Bus, n *notify.Notifier, logger *zap.Logger, interval time.Duration) *Engine {
	return &Engine{
		store:    st,
		history:  h,
		bus:      b,
		notifier: n,
		logger:   logger.Named("sync"),
		interval: interval,
	}
}

// SetSelf records the logged-in user so inbound records can be split
// into echoes and partner messages.
func (e *Engine) SetSelf(u api.User) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.self = u
}

func (e *Engine) isSelf(ref string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ref != "" && (ref == e.self.ID || ref == e.self.UserID)
}

// Start subscribes to inbound push events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe(bus.NSPush, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and any active history poll.
func (e *Engine) Stop() {
	e.mu.Lock()
	pollCancel := e.pollCancel
	e.pollCancel = nil
	e.mu.Unlock()
	if pollCancel != nil {
		pollCancel()
	}
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "push.message":
		rec, ok := evt.Payload.(conn.MessageRecord)
		if !ok {
			return
		}
		e.ingestRecord(rec)
	case "push.error":
		p, ok := evt.Payload.(conn.ErrorPayload)
		if !ok {
			return
		}
		e.handleSendError(p)
	}
}

// ingestRecord routes one relayed message. The sender receives its own
// messages back through the same event, so an echo resolves the pending
// optimistic copy instead of appending a second one.
func (e *Engine) ingestRecord(rec conn.MessageRecord) {
	if e.isSelf(rec.SenderID) {
		e.confirmEcho(rec)
		return
	}

	friend, ok := e.store.ResolveFriend(rec.SenderID)
	if !ok {
		e.logger.Warn("message from unknown sender", zap.String("sender", rec.SenderID))
		return
	}
	appended := e.store.IngestIncoming(friend.ID, store.Message{
		ID:        rec.ID,
		Text:      rec.Text,
		Timestamp: rec.CreatedAt.UnixMilli(),
	})
	if !appended {
		return
	}
	e.publish("message.received", Received{FriendID: friend.ID, MessageID: rec.ID})
}

func (e *Engine) confirmEcho(rec conn.MessageRecord) {
	friend, ok := e.store.ResolveFriend(rec.RecipientID)
	if !ok {
		return
	}
	ts := rec.CreatedAt.UnixMilli()
	confirmed := false
	if rec.ClientMsgID != "" {
		confirmed = e.store.ConfirmPending(friend.ID, rec.ClientMsgID, rec.ID, ts)
	}
	if !confirmed {
		// Echo without (or with a stale) correlation id: fall back to
		// the newest pending with the same text.
		confirmed = e.store.ConfirmNewestPending(friend.ID, rec.Text, rec.ID, ts)
	}
	if !confirmed {
		// Nothing pending, likely sent from another device. Treat it
		// as a regular confirmed message.
		e.store.IngestIncoming(friend.ID, store.Message{
			ID:        rec.ID,
			Text:      rec.Text,
			FromMe:    true,
			Timestamp: ts,
		})
	}
	e.publish("message.confirmed", Confirmed{
		FriendID:    friend.ID,
		ClientMsgID: rec.ClientMsgID,
		ServerID:    rec.ID,
	})
}

func (e *Engine) handleSendError(p conn.ErrorPayload) {
	friendID := ""
	if friend, ok := e.store.ResolveFriend(p.RecipientID); ok {
		friendID = friend.ID
		if p.ClientMsgID != "" {
			e.store.FailPending(friendID, p.ClientMsgID)
		}
	}
	e.logger.Warn("server rejected message",
		zap.String("client_msg_id", p.ClientMsgID),
		zap.String("reason", p.Message))
	e.notifier.Error(p.Message)
	e.publish("message.failed", Failed{
		FriendID:    friendID,
		ClientMsgID: p.ClientMsgID,
		Reason:      p.Message,
	})
}

// OpenConversation marks a conversation active, fetches its history, and
// keeps re-fetching on a timer until the conversation is closed or
// another one is opened.
func (e *Engine) OpenConversation(ctx context.Context, friendID string) {
	e.store.SetActive(friendID)
	e.publish("roster.updated", friendID)

	pollCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.pollCancel != nil {
		e.pollCancel()
	}
	e.pollCancel = cancel
	e.mu.Unlock()

	go func() {
		e.refresh(pollCtx, friendID)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.refresh(pollCtx, friendID)
			case <-pollCtx.Done():
				return
			}
		}
	}()
}

// CloseConversation stops the history poll and clears the selection.
func (e *Engine) CloseConversation() {
	e.mu.Lock()
	cancel := e.pollCancel
	e.pollCancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.store.Deactivate()
	e.publish("roster.updated", "")
}

// refresh fetches and merges one conversation's history.
func (e *Engine) refresh(ctx context.Context, friendID string) {
	msgs, err := e.history.History(ctx, friendID)
	if ctx.Err() != nil {
		// Conversation closed while the fetch was in flight; do not
		// mutate the store on its behalf.
		return
	}
	if err != nil {
		e.logger.Warn("history fetch failed", zap.String("friend", friendID), zap.Error(err))
		return
	}
	e.ApplyHistory(friendID, msgs)
}

// ApplyHistory merges a fetched history into the store. The server's
// read flags become the unread count, except for the open conversation,
// which is read by definition.
func (e *Engine) ApplyHistory(friendID string, msgs []api.HistoryMessage) {
	fetched := make([]store.Message, 0, len(msgs))
	unread := 0
	for _, m := range msgs {
		fromMe := e.isSelf(m.Sender)
		if !fromMe && !m.Read {
			unread++
		}
		fetched = append(fetched, store.Message{
			ID:        m.ID,
			Text:      m.Text,
			FromMe:    fromMe,
			Read:      m.Read,
			Timestamp: m.CreatedAt.UnixMilli(),
		})
	}
	e.store.LoadHistory(friendID, fetched)
	if e.store.ActiveID() != friendID {
		e.store.SetUnread(friendID, unread)
	}
	e.publish("message.history_loaded", HistoryLoaded{FriendID: friendID, Count: len(fetched)})
}

func (e *Engine) publish(kind string, payload any) {
	e.bus.Emit(kind, payload)
}
