// Package chat exposes the single surface the UI talks to: snapshots of
// the current conversation state, and the user intents that mutate it.
// The UI never touches the store or the coordinators directly.
package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/conn"
	"github.com/prodevopz/prochat/internal/notify"
	"github.com/prodevopz/prochat/internal/outbox"
	"github.com/prodevopz/prochat/internal/presence"
	"github.com/prodevopz/prochat/internal/roster"
	"github.com/prodevopz/prochat/internal/store"
	chatsync "github.com/prodevopz/prochat/internal/sync"
)

// ErrNoActiveConversation is returned by SendText when no conversation
// is open.
var ErrNoActiveConversation = errors.New("no open conversation")

// Session is the logout surface of the REST client.
type Session interface {
	Logout(ctx context.Context) error
}

// Snapshot is one consistent view of everything the UI renders.
type Snapshot struct {
	Friends       []store.FriendEntry
	ActiveID      string
	ActiveName    string
	Messages      []store.Message
	PartnerTyping bool
	ConnState     conn.State
	Notice        notify.Notice
	HasNotice     bool
}

// Controller is the UI facade over the store and the coordinators.
type Controller struct {
	store    *store.Store
	engine   *chatsync.Engine
	sender   *outbox.Sender
	tracker  *presence.Tracker
	roster   *roster.Coordinator
	machine  *conn.Machine
	notifier *notify.Notifier
	session  Session
	logger   *zap.Logger
}

// NewController wires the facade.
func NewController(
	st *store.Store,
	engine *chatsync.Engine,
	sender *outbox.Sender,
	tracker *presence.Tracker,
	ros *roster.Coordinator,
	machine *conn.Machine,
	notifier *notify.Notifier,
	session Session,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		store:    st,
		engine:   engine,
		sender:   sender,
		tracker:  tracker,
		roster:   ros,
		machine:  machine,
		notifier: notifier,
		session:  session,
		logger:   logger.Named("chat"),
	}
}

// Snapshot captures the current view state.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Friends:   c.store.Friends(),
		ActiveID:  c.store.ActiveID(),
		ConnState: c.machine.Current(),
	}
	if s.ActiveID != "" {
		s.Messages = c.store.Messages(s.ActiveID)
		if f, ok := c.store.ResolveFriend(s.ActiveID); ok {
			s.ActiveName = f.Name
			s.PartnerTyping = c.tracker.Typing(f.ID) || c.tracker.Typing(f.UserID)
		}
	}
	s.Notice, s.HasNotice = c.notifier.Current()
	return s
}

// SelectConversation opens a conversation thread.
func (c *Controller) SelectConversation(ctx context.Context, friendID string) {
	if prev := c.store.ActiveID(); prev != "" && prev != friendID {
		c.tracker.StopLocal(prev)
	}
	c.engine.OpenConversation(ctx, friendID)
}

// CloseConversation returns to the friend list.
func (c *Controller) CloseConversation() {
	if active := c.store.ActiveID(); active != "" {
		c.tracker.StopLocal(active)
	}
	c.engine.CloseConversation()
}

// SendText dispatches the composed message to the open conversation.
func (c *Controller) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	active := c.store.ActiveID()
	if active == "" {
		return ErrNoActiveConversation
	}
	c.tracker.StopLocal(active)
	_, err := c.sender.Send(ctx, active, text)
	return err
}

// InputChanged reports composer activity for the typing indicator.
func (c *Controller) InputChanged(text string) {
	active := c.store.ActiveID()
	if active == "" {
		return
	}
	if text == "" {
		c.tracker.StopLocal(active)
		return
	}
	c.tracker.LocalKeystroke(active)
}

// Search returns addable users for a query.
func (c *Controller) Search(ctx context.Context, query string) ([]store.Friend, error) {
	return c.roster.Search(ctx, query)
}

// AddFriend adds a user to the friend list.
func (c *Controller) AddFriend(ctx context.Context, userID string) error {
	return c.roster.AddFriend(ctx, userID)
}

// RemoveFriend removes a friend; if its conversation was open, the view
// falls back to the friend list.
func (c *Controller) RemoveFriend(ctx context.Context, friendID string) error {
	wasActive := c.store.ActiveID() == friendID
	if err := c.roster.RemoveFriend(ctx, friendID); err != nil {
		return err
	}
	if wasActive {
		c.engine.CloseConversation()
	}
	return nil
}

// Logout ends the server session. Local teardown happens on shutdown.
func (c *Controller) Logout(ctx context.Context) error {
	c.tracker.StopAll()
	if err := c.session.Logout(ctx); err != nil {
		c.logger.Warn("logout failed", zap.Error(err))
		return err
	}
	return nil
}
