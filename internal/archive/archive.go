package archive

import (
	"fmt"
	"time"

	"github.com/prodevopz/prochat/internal/store"
)

// UpsertFriend records a friend and its list position.
func (db *DB) UpsertFriend(f store.Friend, position int) error {
	_, err := db.Exec(`
		INSERT INTO friends (id, user_id, name, position, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			position = excluded.position,
			updated_at = excluded.updated_at`,
		f.ID, f.UserID, f.Name, position, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert friend: %w", err)
	}
	return nil
}

// DeleteFriend removes a friend and its archived conversation.
func (db *DB) DeleteFriend(friendID string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE friend_id = ?`, friendID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := db.Exec(`DELETE FROM friends WHERE id = ?`, friendID); err != nil {
		return fmt.Errorf("delete friend: %w", err)
	}
	return nil
}

// UpsertMessage records one confirmed message (idempotent on msg id).
func (db *DB) UpsertMessage(friendID string, m store.Message) error {
	if m.ID == "" {
		return nil
	}
	_, err := db.Exec(`
		INSERT INTO messages (friend_id, msg_id, text, from_me, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(friend_id, msg_id) DO UPDATE SET
			text = excluded.text,
			from_me = excluded.from_me,
			timestamp = excluded.timestamp`,
		friendID, m.ID, m.Text, m.FromMe, m.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}

// Friends returns the archived friend list in its last known order.
func (db *DB) Friends() ([]store.Friend, error) {
	rows, err := db.Query(`SELECT id, user_id, name FROM friends ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []store.Friend
	for rows.Next() {
		var f store.Friend
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// RecentMessages returns the newest messages of a conversation in
// chronological order.
func (db *DB) RecentMessages(friendID string, limit int) ([]store.Message, error) {
	rows, err := db.Query(`
		SELECT msg_id, text, from_me, timestamp FROM (
			SELECT msg_id, text, from_me, timestamp
			FROM messages WHERE friend_id = ?
			ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`,
		friendID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var fromMe int
		if err := rows.Scan(&m.ID, &m.Text, &fromMe, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.FromMe = fromMe != 0
		m.State = store.StateConfirmed
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
