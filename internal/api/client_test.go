package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCurrentUser(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/user" {
			t.Errorf("path = %q, want /session/user", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]string{"_id": "abc", "userId": "u-1", "name": "Alice"},
		})
	}))

	user, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "abc" || user.UserID != "u-1" || user.Name != "Alice" {
		t.Errorf("user = %+v", user)
	}
}

func TestCurrentUserUnauthenticated(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.CurrentUser(context.Background())
	if !errors.Is(err, ErrAuthRequired) {
		t.Errorf("err = %v, want ErrAuthRequired", err)
	}
}

func TestRemoteErrorSurfacedVerbatim(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "user not found"})
	}))

	_, err := c.AddFriend(context.Background(), "nope")
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if remote.Message != "user not found" {
		t.Errorf("message = %q, want 'user not found'", remote.Message)
	}
}

func TestSearchUsersSingleMatchShape(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "bob" {
			t.Errorf("query = %q, want bob", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]string{"_id": "b1", "userId": "u-b", "name": "Bob"},
		})
	}))

	users, err := c.SearchUsers(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Name != "Bob" {
		t.Errorf("users = %+v, want single Bob", users)
	}
}

func TestHistory(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/conversation/f1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"_id": "m1", "text": "hi", "sender": "f1", "createdAt": "2026-08-01T10:00:00Z", "read": true},
				{"_id": "m2", "text": "yo", "sender": "me1", "createdAt": "2026-08-01T10:01:00Z", "read": false},
			},
		})
	}))

	msgs, err := c.History(context.Background(), "f1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Sender != "f1" || !msgs[0].Read {
		t.Errorf("first = %+v", msgs[0])
	}
}

func TestSendTextBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["recipientId"] != "f1" || body["text"] != "hello" {
			t.Errorf("body = %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"_id": "srv-1", "text": "hello", "sender": "me1", "createdAt": "2026-08-01T10:02:00Z"},
		})
	}))

	msg, err := c.SendText(context.Background(), "f1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || msg.ID != "srv-1" {
		t.Errorf("msg = %+v, want server id srv-1", msg)
	}
}
