package api

import (
	"context"
	"net/http"
	"net/url"
)

// ListFriends returns the user's friend records in server order.
func (c *Client) ListFriends(ctx context.Context) ([]User, error) {
	var resp struct {
		Friends []User `json:"friends"`
	}
	if err := c.do(ctx, http.MethodGet, "/friends", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Friends, nil
}

// SearchUsers returns candidate users matching the query. The server may
// return either a list or a single match; both shapes are handled.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
		User  *User  `json:"user"`
	}
	q := url.Values{"query": {query}}
	if err := c.do(ctx, http.MethodGet, "/search", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Users == nil && resp.User != nil {
		return []User{*resp.User}, nil
	}
	return resp.Users, nil
}

// AddFriend adds the user identified by userId and returns the new friend record.
func (c *Client) AddFriend(ctx context.Context, userID string) (*User, error) {
	var resp struct {
		Friend User `json:"friend"`
	}
	body := map[string]string{"userId": userID}
	if err := c.do(ctx, http.MethodPost, "/friends/add", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Friend, nil
}

// RemoveFriend removes the user identified by userId.
func (c *Client) RemoveFriend(ctx context.Context, userID string) error {
	body := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, "/friends/remove", nil, body, nil)
}
