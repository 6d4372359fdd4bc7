package api

import (
	"context"
	"net/http"
)

// History returns the full ordered message history for a conversation.
func (c *Client) History(ctx context.Context, friendID string) ([]HistoryMessage, error) {
	var resp struct {
		Messages []HistoryMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages/conversation/"+friendID, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendText sends a message over REST. Used when the push channel is
// unavailable; the push path is the primary send route.
func (c *Client) SendText(ctx context.Context, recipientID, text string) (*HistoryMessage, error) {
	var resp struct {
		Message *HistoryMessage `json:"message"`
	}
	body := map[string]string{"recipientId": recipientID, "text": text}
	if err := c.do(ctx, http.MethodPost, "/messages/send", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}
