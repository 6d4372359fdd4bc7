package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/api"
	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/conn"
	"github.com/prodevopz/prochat/internal/notify"
	"github.com/prodevopz/prochat/internal/store"
	chatsync "github.com/prodevopz/prochat/internal/sync"
)

// PushSender is the push channel send surface.
type PushSender interface {
	SendMessage(p conn.SendPayload) error
}

// RestSender is the fallback send route used while the channel is down.
type RestSender interface {
	SendText(ctx context.Context, recipientID, text string) (*api.HistoryMessage, error)
}

// Sender performs optimistic sends: the message lands in the store as
// pending immediately, goes out over the push channel, and is confirmed
// by the server echo. While the channel is down it falls back to REST
// and confirms from the response. A pending that sees neither within
// the timeout is marked failed.
type Sender struct {
	store    *store.Store
	push     PushSender
	rest     RestSender
	bus      *bus.Bus
	notifier *notify.Notifier
	logger   *zap.Logger
	timeout  time.Duration

	mu     sync.Mutex
	selfID string
	timers map[string]*time.Timer
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(st *store.Store, push PushSender, rest RestSender, b *bus.Bus, n *notify.Notifier, logger *zap.Logger, timeout time.Duration) *Sender {
	return &Sender{
		store:    st,
		push:     push,
		rest:     rest,
		bus:      b,
		notifier: n,
		logger:   logger.Named("outbox"),
		timeout:  timeout,
		timers:   make(map[string]*time.Timer),
	}
}

// SetSelf records the logged-in user id stamped on outbound payloads.
func (s *Sender) SetSelf(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = id
}

// Start subscribes to message resolution events so confirm timeouts can
// be cancelled as soon as the echo lands.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe(bus.NSMessage, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				s.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the sender and drops all outstanding timers.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Send dispatches one text message to a friend. The returned correlation
// id identifies the optimistic copy until the echo resolves it.
func (s *Sender) Send(ctx context.Context, friendID, text string) (string, error) {
	s.mu.Lock()
	selfID := s.selfID
	s.mu.Unlock()

	clientID := uuid.NewString()
	now := time.Now().UnixMilli()
	s.store.AppendPending(friendID, clientID, text, now)
	s.bus.Emit("message.appended", Appended{FriendID: friendID, ClientMsgID: clientID})

	err := s.push.SendMessage(conn.SendPayload{
		SenderID:    selfID,
		RecipientID: friendID,
		Text:        text,
		ClientMsgID: clientID,
	})
	if err == nil {
		s.armTimeout(friendID, clientID)
		return clientID, nil
	}
	if !errors.Is(err, conn.ErrChannelUnavailable) {
		s.fail(friendID, clientID, err.Error())
		return clientID, err
	}

	// Channel is down: send over REST and confirm from the response.
	s.logger.Info("push channel down, sending over rest", zap.String("client_msg_id", clientID))
	msg, err := s.rest.SendText(ctx, friendID, text)
	if err != nil {
		s.fail(friendID, clientID, err.Error())
		s.notifier.Error("message not sent: connection unavailable")
		return clientID, err
	}
	serverID := ""
	ts := now
	if msg != nil {
		serverID = msg.ID
		if !msg.CreatedAt.IsZero() {
			ts = msg.CreatedAt.UnixMilli()
		}
	}
	s.store.ConfirmPending(friendID, clientID, serverID, ts)
	s.bus.Emit("message.confirmed", Resolved{FriendID: friendID, ClientMsgID: clientID, ServerID: serverID})
	return clientID, nil
}

// Appended is published as "message.appended" when an optimistic copy
// lands in the store.
type Appended struct {
	FriendID    string
	ClientMsgID string
}

// Resolved is published as "message.confirmed" for a REST-confirmed send.
type Resolved struct {
	FriendID    string
	ClientMsgID string
	ServerID    string
}

// Failed is published as "message.failed" when a send could not be
// delivered or confirmed.
type Failed struct {
	FriendID    string
	ClientMsgID string
	Reason      string
}

func (s *Sender) armTimeout(friendID, clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[clientID] = time.AfterFunc(s.timeout, func() {
		s.mu.Lock()
		delete(s.timers, clientID)
		s.mu.Unlock()
		if s.store.FailPending(friendID, clientID) {
			s.logger.Warn("send confirmation timed out", zap.String("client_msg_id", clientID))
			s.notifier.Error("message delivery not confirmed")
			s.bus.Emit("message.failed", Failed{
				FriendID:    friendID,
				ClientMsgID: clientID,
				Reason:      "confirmation timeout",
			})
		}
	})
}

func (s *Sender) fail(friendID, clientID, reason string) {
	s.store.FailPending(friendID, clientID)
	s.logger.Warn("send failed", zap.String("client_msg_id", clientID), zap.String("reason", reason))
	s.bus.Emit("message.failed", Failed{
		FriendID:    friendID,
		ClientMsgID: clientID,
		Reason:      reason,
	})
}

func (s *Sender) handleEvent(evt bus.Event) {
	if evt.Kind != "message.confirmed" && evt.Kind != "message.failed" {
		return
	}
	switch p := evt.Payload.(type) {
	case Resolved:
		s.disarm(p.ClientMsgID)
	case Failed:
		s.disarm(p.ClientMsgID)
	case chatsync.Confirmed:
		s.disarm(p.ClientMsgID)
	case chatsync.Failed:
		s.disarm(p.ClientMsgID)
	}
}

func (s *Sender) disarm(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clientID == "" {
		return
	}
	if t, ok := s.timers[clientID]; ok {
		t.Stop()
		delete(s.timers, clientID)
	}
}
