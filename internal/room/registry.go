package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dinehub/realtime/internal/api"
	"github.com/dinehub/realtime/internal/model"
)

// API is the subset of the REST client the registry needs.
type API interface {
	ListRooms(ctx context.Context) ([]model.Room, error)
	JoinRoom(ctx context.Context, roomID string) error
	ResolveRoom(ctx context.Context, roomID string) error
}

// Registry tracks which support rooms exist, which are resolved, and which
// admin owns each. Rooms are never removed; resolving only deprioritizes.
type Registry struct {
	api     API
	adminID int64
	logger  *slog.Logger

	mu    sync.RWMutex
	rooms map[string]model.Room
}

// NewRegistry creates a registry for one admin.
func NewRegistry(apiClient API, adminID int64, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		api:     apiClient,
		adminID: adminID,
		logger:  logger,
		rooms:   make(map[string]model.Room),
	}
}

// Refresh reloads the room list from the server.
func (r *Registry) Refresh(ctx context.Context) error {
	rooms, err := r.api.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("refresh rooms: %w", err)
	}

	r.mu.Lock()
	r.rooms = make(map[string]model.Room, len(rooms))
	for _, room := range rooms {
		r.rooms[room.RoomID] = room
	}
	r.mu.Unlock()

	r.logger.Debug("room list refreshed", "count", len(rooms))
	return nil
}

// Rooms returns all known rooms, unresolved first, newest activity first
// within each group.
func (r *Registry) Rooms() []model.Room {
	r.mu.RLock()
	out := make([]model.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Resolved != out[j].Resolved {
			return !out[i].Resolved
		}
		ti, tj := lastActivity(out[i]), lastActivity(out[j])
		if ti != tj {
			return ti > tj
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

// Room returns one room by ID.
func (r *Registry) Room(roomID string) (model.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// Join assigns this admin to a room. Re-joining a room already assigned to
// the same admin is allowed. A room owned by a different admin yields
// api.ErrRoomOwned and leaves registry state untouched.
func (r *Registry) Join(ctx context.Context, roomID string) error {
	if err := r.api.JoinRoom(ctx, roomID); err != nil {
		if errors.Is(err, api.ErrRoomOwned) {
			r.logger.Warn("room join rejected",
				"room_id", roomID,
				"error", err,
			)
			return err
		}
		return fmt.Errorf("join room %s: %w", roomID, err)
	}

	r.mu.Lock()
	if room, ok := r.rooms[roomID]; ok {
		room.AssignedAdminID = r.adminID
		r.rooms[roomID] = room
	}
	r.mu.Unlock()

	r.logger.Info("joined room", "room_id", roomID, "admin_id", r.adminID)
	return nil
}

// Resolve marks a room resolved. The room stays listable, deprioritized.
func (r *Registry) Resolve(ctx context.Context, roomID string) error {
	if err := r.api.ResolveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("resolve room %s: %w", roomID, err)
	}

	r.mu.Lock()
	if room, ok := r.rooms[roomID]; ok {
		room.Resolved = true
		r.rooms[roomID] = room
	}
	r.mu.Unlock()

	r.logger.Info("room resolved", "room_id", roomID)
	return nil
}

// Observe updates a room's last message from live traffic. Unknown rooms
// are created on the fly; a customer's first message is what brings a room
// into existence.
func (r *Registry) Observe(msg model.Message) {
	if msg.Ephemeral {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[msg.RoomKey]
	if !ok {
		room = model.Room{RoomID: msg.RoomKey}
	}
	m := msg
	room.LastMessage = &m
	r.rooms[msg.RoomKey] = room
}

func lastActivity(room model.Room) int64 {
	if room.LastMessage == nil {
		return 0
	}
	return room.LastMessage.Timestamp.UnixMicro()
}
