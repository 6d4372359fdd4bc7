package archive

import (
	"context"

	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/outbox"
	"github.com/prodevopz/prochat/internal/store"
	chatsync "github.com/prodevopz/prochat/internal/sync"
)

const warmStartDepth = 50

// Recorder trails the in-memory store onto disk. It subscribes to
// message and roster events and persists confirmed state; pendings are
// never archived.
type Recorder struct {
	db     *DB
	store  *store.Store
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewRecorder creates an archive recorder.
func NewRecorder(db *DB, st *store.Store, b *bus.Bus, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:     db,
		store:  st,
		bus:    b,
		logger: logger.Named("archive"),
	}
}

// Start subscribes to message and roster events on the bus.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	msgCh, msgUnsub := r.bus.Subscribe(bus.NSMessage, 256)
	rosterCh, rosterUnsub := r.bus.Subscribe(bus.NSRoster, 64)

	go func() {
		defer msgUnsub()
		defer rosterUnsub()
		for {
			select {
			case evt := <-msgCh:
				r.handleMessageEvent(evt)
			case <-rosterCh:
				r.snapshotFriends()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the recorder.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Recorder) handleMessageEvent(evt bus.Event) {
	switch evt.Kind {
	case "message.received":
		if p, ok := evt.Payload.(chatsync.Received); ok {
			r.persistMessage(p.FriendID, p.MessageID)
		}
	case "message.confirmed":
		switch p := evt.Payload.(type) {
		case chatsync.Confirmed:
			r.persistMessage(p.FriendID, p.ServerID)
		case outbox.Resolved:
			// REST fallback confirmations never see a push echo.
			r.persistMessage(p.FriendID, p.ServerID)
		}
	case "message.history_loaded":
		if p, ok := evt.Payload.(chatsync.HistoryLoaded); ok {
			r.persistConversation(p.FriendID)
		}
	}
}

// persistMessage looks the message up in the authoritative store and
// archives it.
func (r *Recorder) persistMessage(friendID, msgID string) {
	if msgID == "" {
		return
	}
	for _, m := range r.store.Messages(friendID) {
		if m.ID == msgID {
			if err := r.db.UpsertMessage(friendID, m); err != nil {
				r.logger.Warn("archive write failed", zap.Error(err))
			}
			return
		}
	}
}

func (r *Recorder) persistConversation(friendID string) {
	for _, m := range r.store.Messages(friendID) {
		if m.State != store.StateConfirmed {
			continue
		}
		if err := r.db.UpsertMessage(friendID, m); err != nil {
			r.logger.Warn("archive write failed", zap.Error(err))
			return
		}
	}
}

func (r *Recorder) snapshotFriends() {
	current := r.store.Friends()
	known := make(map[string]bool, len(current))
	for i, f := range current {
		known[f.ID] = true
		if err := r.db.UpsertFriend(f.Friend, i); err != nil {
			r.logger.Warn("archive write failed", zap.Error(err))
			return
		}
	}
	archived, err := r.db.Friends()
	if err != nil {
		return
	}
	for _, f := range archived {
		if !known[f.ID] {
			_ = r.db.DeleteFriend(f.ID)
		}
	}
}

// WarmStart seeds the store from the archive so the UI has content
// before the first server fetch. Server data overwrites it shortly
// after.
func (r *Recorder) WarmStart() error {
	friends, err := r.db.Friends()
	if err != nil {
		return err
	}
	if len(friends) == 0 {
		return nil
	}
	r.store.SetFriends(friends)
	for _, f := range friends {
		msgs, err := r.db.RecentMessages(f.ID, warmStartDepth)
		if err != nil {
			return err
		}
		if len(msgs) > 0 {
			r.store.SeedConversation(f.ID, msgs)
		}
	}
	r.logger.Info("warm start from archive", zap.Int("friends", len(friends)))
	return nil
}
