package roster

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/api"
	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/notify"
	"github.com/prodevopz/prochat/internal/outbox"
	"github.com/prodevopz/prochat/internal/store"
	chatsync "github.com/prodevopz/prochat/internal/sync"
)

// Directory is the server surface for friend management.
type Directory interface {
	ListFriends(ctx context.Context) ([]api.User, error)
	SearchUsers(ctx context.Context, query string) ([]api.User, error)
	AddFriend(ctx context.Context, userID string) (*api.User, error)
	RemoveFriend(ctx context.Context, userID string) error
}

// Coordinator keeps the friend list ordered by recency and maintains
// unread counters. It subscribes to message resolution events: any
// message activity moves that friend to the front of the list, and a
// partner message for a conversation that is not open bumps its unread
// counter. It also fronts the friend management API calls.
type Coordinator struct {
	store    *store.Store
	dir      Directory
	bus      *bus.Bus
	notifier *notify.Notifier
	logger   *zap.Logger

	self   api.User
	cancel context.CancelFunc
}

// NewCoordinator creates a roster coordinator.
func NewCoordinator(st *store.Store, dir Directory, b *bus.Bus, n *notify.Notifier, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:    st,
		dir:      dir,
		bus:      b,
		notifier: n,
		logger:   logger.Named("roster"),
	}
}

// SetSelf records the logged-in user so search results can exclude it.
func (c *Coordinator) SetSelf(u api.User) {
	c.self = u
}

// Start subscribes to message resolution events on the bus.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	ch, unsub := c.bus.Subscribe(bus.NSMessage, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the coordinator.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Coordinator) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "message.received":
		p, ok := evt.Payload.(chatsync.Received)
		if !ok {
			return
		}
		if c.store.ActiveID() != p.FriendID {
			c.store.IncrementUnread(p.FriendID)
		}
		c.store.MoveToFront(p.FriendID)
		c.publishUpdated()
	case "message.appended":
		// Optimistic sends front the conversation immediately.
		p, ok := evt.Payload.(outbox.Appended)
		if !ok {
			return
		}
		c.store.MoveToFront(p.FriendID)
		c.publishUpdated()
	case "message.confirmed":
		switch p := evt.Payload.(type) {
		case chatsync.Confirmed:
			c.store.MoveToFront(p.FriendID)
			c.publishUpdated()
		case outbox.Resolved:
			c.store.MoveToFront(p.FriendID)
			c.publishUpdated()
		}
	}
}

// Load fetches the friend list and seeds the store. Existing
// conversations survive a reload.
func (c *Coordinator) Load(ctx context.Context) error {
	users, err := c.dir.ListFriends(ctx)
	if err != nil {
		return fmt.Errorf("loading friends: %w", err)
	}
	friends := make([]store.Friend, 0, len(users))
	for _, u := range users {
		friends = append(friends, store.Friend{ID: u.ID, UserID: u.UserID, Name: u.Name})
	}
	c.store.SetFriends(friends)
	c.logger.Info("friend list loaded", zap.Int("count", len(friends)))
	c.publishUpdated()
	return nil
}

// Search returns candidate users for a query, excluding the logged-in
// user and anyone already on the friend list.
func (c *Coordinator) Search(ctx context.Context, query string) ([]store.Friend, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	users, err := c.dir.SearchUsers(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	results := make([]store.Friend, 0, len(users))
	for _, u := range users {
		if u.ID == c.self.ID || u.UserID == c.self.UserID {
			continue
		}
		if _, exists := c.store.ResolveFriend(u.ID); exists {
			continue
		}
		results = append(results, store.Friend{ID: u.ID, UserID: u.UserID, Name: u.Name})
	}
	return results, nil
}

// AddFriend adds a user to the friend list.
func (c *Coordinator) AddFriend(ctx context.Context, userID string) error {
	friend, err := c.dir.AddFriend(ctx, userID)
	if err != nil {
		return err
	}
	c.store.AddFriend(store.Friend{ID: friend.ID, UserID: friend.UserID, Name: friend.Name})
	c.notifier.Info(fmt.Sprintf("%s added", friend.Name))
	c.publishUpdated()
	return nil
}

// RemoveFriend removes a friend and its conversation.
func (c *Coordinator) RemoveFriend(ctx context.Context, friendID string) error {
	friend, ok := c.store.ResolveFriend(friendID)
	if !ok {
		return fmt.Errorf("unknown friend %q", friendID)
	}
	if err := c.dir.RemoveFriend(ctx, friend.UserID); err != nil {
		return err
	}
	c.store.RemoveFriend(friend.ID)
	c.publishUpdated()
	return nil
}

func (c *Coordinator) publishUpdated() {
	c.bus.Emit("roster.updated", nil)
}
