package api

import (
	"context"
	"net/http"
)

// CurrentUser returns the authenticated user, or ErrAuthRequired when the
// session is absent.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/session/user", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Logout terminates the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/session/logout", nil, nil, nil)
}
