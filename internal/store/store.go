package store

import "sync"

// Store is the in-memory source of UI truth: the ordered friend list and,
// per friend, an ordered message sequence with an unread counter. All
// mutations go through Store methods behind one mutex; callers never hold
// references into its internals. Only the sync engine and its sibling
// coordinators mutate it — the UI layer reads snapshots.
type Store struct {
	mu      sync.RWMutex
	friends []Friend
	convs   map[string]*conversation
	active  string
}

type conversation struct {
	messages []Message
	unread   int
}

// New creates an empty store.
func New() *Store {
	return &Store{convs: make(map[string]*conversation)}
}

func (s *Store) conv(friendID string) *conversation {
	c, ok := s.convs[friendID]
	if !ok {
		c = &conversation{}
		s.convs[friendID] = c
	}
	return c
}

// SetFriends replaces the friend list, seeding an empty conversation for
// each new friend. Existing conversations are kept.
func (s *Store) SetFriends(friends []Friend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends = append([]Friend(nil), friends...)
	for _, f := range friends {
		s.conv(f.ID)
	}
}

// AddFriend appends a friend (no-op if already present) and seeds an
// empty conversation.
func (s *Store) AddFriend(f Friend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.friends {
		if existing.ID == f.ID {
			return
		}
	}
	s.friends = append(s.friends, f)
	s.conv(f.ID)
}

// RemoveFriend deletes a friend and its conversation. Returns true when
// the removed conversation was the active one (the selection is cleared).
func (s *Store) RemoveFriend(friendID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.friends {
		if f.ID == friendID {
			s.friends = append(s.friends[:i], s.friends[i+1:]...)
			break
		}
	}
	delete(s.convs, friendID)
	if s.active == friendID {
		s.active = ""
		return true
	}
	return false
}

// ResolveFriend finds a friend by either record id or stable user id.
func (s *Store) ResolveFriend(ref string) (Friend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.friends {
		if f.ID == ref || f.UserID == ref {
			return f, true
		}
	}
	return Friend{}, false
}

// Friends returns the ordered friend list with display metadata.
func (s *Store) Friends() []FriendEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]FriendEntry, 0, len(s.friends))
	for _, f := range s.friends {
		e := FriendEntry{Friend: f}
		if c, ok := s.convs[f.ID]; ok {
			e.Unread = c.unread
			if n := len(c.messages); n > 0 {
				e.LastText = c.messages[n-1].Text
				e.LastAt = c.messages[n-1].Timestamp
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// SetActive marks a conversation as open and resets its unread counter.
// Opening the thread is the only read-acknowledgement signal.
func (s *Store) SetActive(friendID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = friendID
	if c, ok := s.convs[friendID]; ok {
		c.unread = 0
	}
}

// Deactivate clears the active conversation selection.
func (s *Store) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = ""
}

// ActiveID returns the open conversation's friend id, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Messages returns a copy of the conversation's ordered messages.
func (s *Store) Messages(friendID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[friendID]
	if !ok {
		return nil
	}
	return append([]Message(nil), c.messages...)
}

// AppendPending appends an optimistic outbound message.
func (s *Store) AppendPending(friendID, clientID, text string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv(friendID).messages = append(s.conv(friendID).messages, Message{
		ClientID:  clientID,
		Text:      text,
		FromMe:    true,
		Timestamp: ts,
		State:     StatePending,
	})
}

// ConfirmPending resolves the pending message with the given correlation id
// to its server identity. If the server id already exists in the
// conversation (the authoritative copy arrived first via fetch), the
// pending entry is dropped instead of confirmed — never two copies.
// Returns false when no such pending exists.
func (s *Store) ConfirmPending(friendID, clientID, serverID string, ts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[friendID]
	if !ok {
		return false
	}
	idx := -1
	for i, m := range c.messages {
		if m.State == StatePending && m.ClientID == clientID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	if serverID != "" && s.hasServerID(c, serverID) {
		c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
		return true
	}
	c.messages[idx].ID = serverID
	c.messages[idx].State = StateConfirmed
	if ts > 0 {
		c.messages[idx].Timestamp = ts
	}
	return true
}

// ConfirmNewestPending is the fallback when an echo carries no correlation
// id: the newest pending outbound message with matching text is confirmed.
func (s *Store) ConfirmNewestPending(friendID, text, serverID string, ts int64) bool {
	s.mu.Lock()
	clientID := ""
	if c, ok := s.convs[friendID]; ok {
		for i := len(c.messages) - 1; i >= 0; i-- {
			if c.messages[i].State == StatePending && c.messages[i].Text == text {
				clientID = c.messages[i].ClientID
				break
			}
		}
	}
	s.mu.Unlock()
	if clientID == "" {
		return false
	}
	return s.ConfirmPending(friendID, clientID, serverID, ts)
}

// FailPending marks the pending message with the given correlation id as
// failed. Returns false when no such pending exists (already resolved).
func (s *Store) FailPending(friendID, clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[friendID]
	if !ok {
		return false
	}
	for i, m := range c.messages {
		if m.State == StatePending && m.ClientID == clientID {
			c.messages[i].State = StateFailed
			return true
		}
	}
	return false
}

// IngestIncoming appends an inbound message, deduplicating by server id.
// Returns true when the message was appended.
func (s *Store) IngestIncoming(friendID string, m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(friendID)
	if m.ID != "" && s.hasServerID(c, m.ID) {
		return false
	}
	m.State = StateConfirmed
	c.messages = append(c.messages, m)
	return true
}

// LoadHistory applies an explicit history fetch: the fetched ordered set
// becomes the conversation, then any message that arrived while the fetch
// was in flight (unknown server id, or still pending) is re-appended in its
// original order so a racing push delivery is never discarded. A pending
// whose text matches a fetched outbound message is considered confirmed by
// the fetch and absorbed.
func (s *Store) LoadHistory(friendID string, fetched []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(friendID)

	known := make(map[string]bool, len(fetched))
	absorbable := make(map[string]int)
	merged := make([]Message, 0, len(fetched)+4)
	for _, m := range fetched {
		m.State = StateConfirmed
		merged = append(merged, m)
		if m.ID != "" {
			known[m.ID] = true
		}
		if m.FromMe {
			absorbable[m.Text]++
		}
	}

	for _, m := range c.messages {
		switch {
		case m.ID != "":
			if !known[m.ID] {
				merged = append(merged, m)
				known[m.ID] = true
			}
		case m.State == StatePending && absorbable[m.Text] > 0:
			absorbable[m.Text]--
		default:
			merged = append(merged, m)
		}
	}

	c.messages = merged
}

// SeedConversation fills an empty conversation (archive warm start).
// No-op when the conversation already has messages.
func (s *Store) SeedConversation(friendID string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(friendID)
	if len(c.messages) > 0 {
		return
	}
	c.messages = append([]Message(nil), msgs...)
}

// IncrementUnread bumps the unread counter for a friend.
func (s *Store) IncrementUnread(friendID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv(friendID).unread++
}

// SetUnread sets the unread counter (from a fetch's read flags).
func (s *Store) SetUnread(friendID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	s.conv(friendID).unread = n
}

// ResetUnread zeroes the unread counter for a friend.
func (s *Store) ResetUnread(friendID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[friendID]; ok {
		c.unread = 0
	}
}

// Unread returns the unread counter for a friend.
func (s *Store) Unread(friendID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.convs[friendID]; ok {
		return c.unread
	}
	return 0
}

// MoveToFront relocates a friend to the head of the list, preserving the
// relative order of all others.
func (s *Store) MoveToFront(friendID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.friends {
		if f.ID == friendID {
			if i == 0 {
				return
			}
			copy(s.friends[1:i+1], s.friends[:i])
			s.friends[0] = f
			return
		}
	}
}

func (s *Store) hasServerID(c *conversation, serverID string) bool {
	for _, m := range c.messages {
		if m.ID == serverID {
			return true
		}
	}
	return false
}
