package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Identity Types
// -----------------------------------------------------------------------------

// SenderType identifies who produced a chat message.
type SenderType string

const (
	SenderUser  SenderType = "USER"
	SenderAdmin SenderType = "ADMIN"
	SenderGuest SenderType = "GUEST"
	SenderAI    SenderType = "AI"
)

// IdentityKind distinguishes guest sessions from authenticated ones.
type IdentityKind string

const (
	IdentityGuest         IdentityKind = "guest"
	IdentityAuthenticated IdentityKind = "authenticated"
)

// Session is the resolved identity of the current actor. SessionKey is the
// room-routing key for guest chat and stays stable for the lifetime of one
// session store.
type Session struct {
	Kind       IdentityKind
	SessionKey string
	UserID     int64  // 0 for guests
	Token      string // empty for guests

	// TokenExpiresAt is the bearer token expiry, zero for guests or tokens
	// without an exp claim.
	TokenExpiresAt time.Time
}

// IsGuest reports whether the session has no authenticated identity.
func (s Session) IsGuest() bool {
	return s.Kind != IdentityAuthenticated || s.Token == ""
}

// TokenExpired reports whether the session carries a token that is past its
// expiry. Guests never expire.
func (s Session) TokenExpired() bool {
	if s.IsGuest() || s.TokenExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(s.TokenExpiresAt)
}

// -----------------------------------------------------------------------------
// Chat Types
// -----------------------------------------------------------------------------

// Message is a single chat message. Immutable once created; the global
// ordering key is (RoomKey, Timestamp, ID).
type Message struct {
	ID         string     `json:"id"`
	RoomKey    string     `json:"roomKey"`
	SenderType SenderType `json:"senderType"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`

	// Ephemeral marks transient placeholders (e.g. "assistant is responding").
	// Replaced by the next real message from the same sender on the room,
	// never persisted, never counted in pagination.
	Ephemeral bool `json:"ephemeral,omitempty"`
}

// NewMessageID returns a client-assigned message ID. The server may keep it
// or assign its own; dedup happens on (RoomKey, ID) either way.
func NewMessageID() string {
	return uuid.NewString()
}

// Before reports whether m sorts before other in the display sequence,
// following the (RoomKey, Timestamp, ID) ordering key. Messages from
// different rooms group by room instead of interleaving.
func (m Message) Before(other Message) bool {
	if m.RoomKey != other.RoomKey {
		return m.RoomKey < other.RoomKey
	}
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.ID < other.ID
}

// Notification is an inbound item on the private per-user queue.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// Room is a support conversation as seen by the admin side. Rooms are never
// physically deleted by the client; resolved rooms remain listable.
type Room struct {
	RoomID            string   `json:"roomId"`
	ParticipantUserID int64    `json:"participantUserId"`
	AssignedAdminID   int64    `json:"assignedAdminId,omitempty"` // 0 = unassigned
	Resolved          bool     `json:"resolved"`
	LastMessage       *Message `json:"lastMessage,omitempty"`
}
