package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dinehub/realtime/internal/model"
)

// History fetches one page of message history for a room. Page 0 is the
// newest page; messages within a page are ordered oldest-first.
func (c *Client) History(ctx context.Context, roomKey string, page, size int) (*HistoryPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	var resp HistoryPage
	if err := c.get(ctx, "/chat/"+url.PathEscape(roomKey), query, &resp); err != nil {
		return nil, fmt.Errorf("get history %s: %w", roomKey, err)
	}
	return &resp, nil
}

// SendMessage sends a chat message as the current actor. Guests go through
// the guest path with SenderType GUEST; authenticated users through the
// customer path. The server's saved message is returned.
func (c *Client) SendMessage(ctx context.Context, roomKey, content string) (model.Message, error) {
	sess, err := c.sessions.Resolve(ctx)
	if err != nil {
		return model.Message{}, fmt.Errorf("resolve session: %w", err)
	}

	req := sendRequest{
		RoomKey:  roomKey,
		Content:  content,
		ClientID: model.NewMessageID(),
	}

	path := "/chat/send"
	req.SenderType = model.SenderUser
	if sess.IsGuest() {
		path = "/guest/send"
		req.SenderType = model.SenderGuest
	}

	var saved model.Message
	if err := c.post(ctx, path, req, &saved, false); err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	return saved, nil
}

// SendAdminMessage sends a message into a room as the admin. The server
// forces SenderType ADMIN regardless of the request body.
func (c *Client) SendAdminMessage(ctx context.Context, roomKey, content string) (model.Message, error) {
	req := sendRequest{
		RoomKey:    roomKey,
		Content:    content,
		SenderType: model.SenderAdmin,
		ClientID:   model.NewMessageID(),
	}

	var saved model.Message
	if err := c.post(ctx, "/admin/chat/send", req, &saved, true); err != nil {
		return model.Message{}, fmt.Errorf("send admin message: %w", err)
	}
	return saved, nil
}
