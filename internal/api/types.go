package api

import "time"

// User is a ProChat user record. Both the server record id (_id) and the
// opaque stable id (userId) identify the same user; either may appear as a
// sender reference depending on the source.
type User struct {
	ID     string `json:"_id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// HistoryMessage is one entry of a fetched conversation history.
type HistoryMessage struct {
	ID        string    `json:"_id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}
