package api

import (
	"errors"

	"github.com/dinehub/realtime/internal/model"
)

// ErrRoomOwned is returned when joining a room already assigned to a
// different admin. Recoverable: the caller may pick another room or retry
// after the owner resolves it.
var ErrRoomOwned = errors.New("room is assigned to another admin")

// HistoryPage is one page of message history. Pages come newest-first;
// messages within a page come oldest-first (server contract).
type HistoryPage struct {
	Content       []model.Message `json:"content"`
	Number        int             `json:"number"`
	Size          int             `json:"size"`
	TotalPages    int             `json:"totalPages"`
	TotalElements int64           `json:"totalElements"`
	Last          bool            `json:"last"`
}

// sendRequest is the body of all three send paths.
type sendRequest struct {
	RoomKey    string           `json:"roomKey"`
	Content    string           `json:"content"`
	SenderType model.SenderType `json:"senderType"`
	ClientID   string           `json:"clientId,omitempty"`
}

// roomsResponse wraps the admin room listing.
type roomsResponse struct {
	Rooms []model.Room `json:"rooms"`
}
