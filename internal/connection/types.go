package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAuthRequired    = errors.New("endpoint requires an authenticated session")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

// EndpointID names one of the two backend messaging endpoints.
type EndpointID string

const (
	EndpointNotification EndpointID = "notification"
	EndpointChat         EndpointID = "chat"
)

// State is the observable connection state. Transport and protocol errors
// are never surfaced to callers directly; only state is.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
)

// Command is a client-to-server frame.
type Command struct {
	ID      int64           `json:"id"`
	Cmd     string          `json:"cmd"` // "subscribe", "unsubscribe", "publish"
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame is a server-to-client frame.
type Frame struct {
	Type    string          `json:"type"` // "message", "receipt", "error"
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorFrame is the payload of a "type":"error" frame.
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClientConfig configures a single reconnecting WebSocket client.
type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration

	// Reconnection: exponential backoff starting at ReconnectBaseDelay,
	// at most ReconnectAttempts dials per wave. An exhausted wave parks
	// the client in StateFailed instead of retrying forever.
	ReconnectBaseDelay time.Duration
	ReconnectAttempts  int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       5 * time.Second,
		PingInterval:       15 * time.Second,
		ReadTimeout:        45 * time.Second,
		ReconnectBaseDelay: time.Second,
		ReconnectAttempts:  8,
	}
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	NotificationURL string
	ChatURL         string
	Client          ClientConfig // shared transport tuning
}

// Status is a pure read of current endpoint states.
type Status struct {
	Notification bool
	Chat         bool
	AllConnected bool
}
