package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dinehub/realtime/internal/model"
)

// ListRooms fetches all known support rooms, including resolved ones.
func (c *Client) ListRooms(ctx context.Context) ([]model.Room, error) {
	var resp roomsResponse
	if err := c.get(ctx, "/admin/chat/rooms", nil, &resp); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return resp.Rooms, nil
}

// JoinRoom assigns the current admin to a room. Re-joining a room already
// assigned to the same admin succeeds; a room owned by a different admin
// yields ErrRoomOwned.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	err := c.post(ctx, "/admin/chat/join/"+url.PathEscape(roomID), nil, nil, true)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrRoomOwned, apiErr.Message)
	}
	return fmt.Errorf("join room %s: %w", roomID, err)
}

// ResolveRoom marks a room resolved. The room stays listable.
func (c *Client) ResolveRoom(ctx context.Context, roomID string) error {
	if err := c.put(ctx, "/admin/chat/resolve/"+url.PathEscape(roomID), true); err != nil {
		return fmt.Errorf("resolve room %s: %w", roomID, err)
	}
	return nil
}
