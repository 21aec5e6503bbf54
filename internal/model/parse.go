package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// Topic names used by both backend endpoints. Room traffic is keyed by the
// room key (guest session key or customer user ID).
const (
	TopicUserNotifications = "user/queue/notifications"
	TopicBroadcast         = "topic/notifications"
	TopicAdminAlerts       = "user/queue/admin-alerts"
	TopicAdminBroadcast    = "topic/admin"

	roomTopicPrefix = "room/"
)

// RoomTopic returns the per-room topic for a room key.
func RoomTopic(roomKey string) string {
	return roomTopicPrefix + roomKey
}

// RoomKeyFromTopic extracts the room key from a per-room topic.
// Returns "" if the topic is not a room topic.
func RoomKeyFromTopic(topic string) string {
	if !strings.HasPrefix(topic, roomTopicPrefix) {
		return ""
	}
	return strings.TrimPrefix(topic, roomTopicPrefix)
}

// Event is one parsed inbound payload. Exactly one concrete type applies:
// MessageEvent, NotificationEvent, or MalformedEvent. Unknown or invalid
// shapes become MalformedEvent instead of crashing the router.
type Event interface {
	event()
}

// MessageEvent is a chat message delivered on a room topic.
type MessageEvent struct {
	Message Message
}

// NotificationEvent is a notification delivered on a notification or alert
// queue.
type NotificationEvent struct {
	Notification Notification
}

// MalformedEvent wraps a payload that failed validation at the parse
// boundary. The raw bytes are kept for logging.
type MalformedEvent struct {
	Topic string
	Raw   []byte
	Err   error
}

func (MessageEvent) event()      {}
func (NotificationEvent) event() {}
func (MalformedEvent) event()    {}

var (
	errEmptyMessage   = errors.New("message missing id and content")
	errEmptyTitle     = errors.New("notification missing id and title")
	errUnknownSender  = errors.New("unknown sender type")
	errUnmappedTopic  = errors.New("no payload shape registered for topic")
	errEmptyRoomKey   = errors.New("room message missing room key")
	errMissingPayload = errors.New("empty payload")
)

// ParsePayload validates an inbound payload against the shape its topic
// implies. Parse failures never propagate: the result is a MalformedEvent
// the caller can log and drop.
func ParsePayload(topic string, data []byte) Event {
	if len(data) == 0 {
		return MalformedEvent{Topic: topic, Raw: data, Err: errMissingPayload}
	}

	if roomKey := RoomKeyFromTopic(topic); roomKey != "" {
		return parseMessage(topic, roomKey, data)
	}

	switch topic {
	case TopicUserNotifications, TopicBroadcast, TopicAdminAlerts, TopicAdminBroadcast:
		return parseNotification(topic, data)
	}

	return MalformedEvent{Topic: topic, Raw: data, Err: errUnmappedTopic}
}

func parseMessage(topic, roomKey string, data []byte) Event {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return MalformedEvent{Topic: topic, Raw: data, Err: err}
	}

	if msg.ID == "" && msg.Content == "" {
		return MalformedEvent{Topic: topic, Raw: data, Err: errEmptyMessage}
	}

	switch msg.SenderType {
	case SenderUser, SenderAdmin, SenderGuest, SenderAI:
	default:
		return MalformedEvent{Topic: topic, Raw: data, Err: errUnknownSender}
	}

	// The topic is authoritative for routing; payloads without a room key
	// inherit it.
	if msg.RoomKey == "" {
		msg.RoomKey = roomKey
	}
	if msg.RoomKey == "" {
		return MalformedEvent{Topic: topic, Raw: data, Err: errEmptyRoomKey}
	}

	return MessageEvent{Message: msg}
}

func parseNotification(topic string, data []byte) Event {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return MalformedEvent{Topic: topic, Raw: data, Err: err}
	}

	if n.ID == 0 && n.Title == "" {
		return MalformedEvent{Topic: topic, Raw: data, Err: errEmptyTitle}
	}

	return NotificationEvent{Notification: n}
}
