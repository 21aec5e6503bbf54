package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/gorilla/websocket"
)

// RawHandler receives the raw payload of a "message" frame for a topic.
// Handlers run on the read loop and must not block.
type RawHandler func(topic string, payload []byte)

// Client is a single logical duplex connection with automatic reconnection.
//
// State machine: Idle → Connecting → Connected → (Disconnected|Failed) →
// Connecting → … Transport and protocol errors are logged and folded into
// the state; they are never surfaced to handlers.
type Client interface {
	// Connect establishes the connection, retrying with exponential
	// backoff. Idempotent: calling while Connecting or Connected is a
	// no-op.
	Connect(ctx context.Context) error

	// Disconnect transitions to Idle, cancels pending retries, discards
	// all subscriptions, and closes the transport.
	Disconnect() error

	// Subscribe registers a handler for a topic. Valid while Connected or
	// Connecting (queued and replayed once the transport is up). The same
	// topic may be subscribed twice; both handlers fire.
	Subscribe(topic string, h RawHandler) (*Subscription, error)

	// Publish sends a payload to a destination topic. Valid only while
	// Connected; otherwise the payload is dropped and ErrNotConnected
	// returned. Delivery is not guaranteed either way.
	Publish(topic string, payload any) error

	// State returns the current connection state.
	State() State

	// Connected reports whether the transport is currently up.
	Connected() bool
}

// Subscription is the unsubscribe handle returned by Subscribe.
type Subscription struct {
	id    int64
	topic string
	c     *client
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Unsubscribe removes the handler. When the last handler for the topic is
// removed, an unsubscribe frame is sent to the server.
func (s *Subscription) Unsubscribe() {
	s.c.unsubscribe(s)
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	header http.Header
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	done    chan struct{} // closed when the current transport generation ends
	subs    map[string]map[int64]RawHandler
	nextSub int64
	ctx     context.Context // connect-time context, reused by reconnect waves

	writeMu sync.Mutex
	cmdID   int64 // atomic
}

// NewClient creates a client for one endpoint. The header carries auth and
// is resent on every (re)dial.
func NewClient(cfg ClientConfig, header http.Header, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &client{
		cfg:    cfg,
		header: header,
		logger: logger,
		state:  StateIdle,
		subs:   make(map[string]map[int64]RawHandler),
	}
}

// Connect establishes the connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected:
		// Re-entrancy guard: overlapping connects share one transport.
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.ctx = ctx
	c.mu.Unlock()

	return c.establish(ctx)
}

// establish runs one backoff wave of dial attempts. It leaves the client
// Connected on success, Failed when the wave is exhausted, and Idle when
// Disconnect interrupted it.
func (c *client) establish(ctx context.Context) error {
	err := retry.Do(
		func() error {
			c.mu.Lock()
			if c.state != StateConnecting {
				c.mu.Unlock()
				return retry.Unrecoverable(ErrAlreadyClosed)
			}
			c.mu.Unlock()
			return c.dial(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.ReconnectAttempts)),
		retry.Delay(c.cfg.ReconnectBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("connection attempt failed",
				"attempt", n+1,
				"url", c.cfg.URL,
				"error", err,
			)
		}),
	)
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateFailed
		}
		c.mu.Unlock()
		return fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}
	return nil
}

// dial performs a single connection attempt.
func (c *client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, c.header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect won the race; drop the fresh transport.
		c.mu.Unlock()
		conn.Close()
		return retry.Unrecoverable(ErrAlreadyClosed)
	}
	c.conn = conn
	c.state = StateConnected
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	go c.readLoop(conn, done)
	go c.heartbeat(conn, done)

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	c.replaySubscriptions()
	return nil
}

// Disconnect closes the transport and discards all subscriptions.
func (c *client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = StateIdle
	conn := c.conn
	c.conn = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	// Handlers registered on this connection never fire again.
	c.subs = make(map[string]map[int64]RawHandler)
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}

// Subscribe registers a handler for a topic.
func (c *client) Subscribe(topic string, h RawHandler) (*Subscription, error) {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting, StateDisconnected:
	default:
		c.mu.Unlock()
		return nil, ErrNotConnected
	}

	c.nextSub++
	id := c.nextSub
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[int64]RawHandler)
	}
	c.subs[topic][id] = h
	first := len(c.subs[topic]) == 1
	connected := c.state == StateConnected
	c.mu.Unlock()

	// Only the first handler for a topic needs a server-side subscribe;
	// later ones fan out locally. While Connecting the frame is queued
	// implicitly and sent by replaySubscriptions.
	if connected && first {
		if err := c.sendCommand("subscribe", topic, nil); err != nil {
			c.logger.Warn("subscribe send failed, will replay on reconnect",
				"topic", topic,
				"error", err,
			)
		}
	}

	return &Subscription{id: id, topic: topic, c: c}, nil
}

func (c *client) unsubscribe(s *Subscription) {
	c.mu.Lock()
	handlers, ok := c.subs[s.topic]
	if !ok {
		c.mu.Unlock()
		return
	}
	if _, ok := handlers[s.id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(handlers, s.id)
	last := len(handlers) == 0
	if last {
		delete(c.subs, s.topic)
	}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if last && connected {
		if err := c.sendCommand("unsubscribe", s.topic, nil); err != nil {
			c.logger.Warn("unsubscribe send failed",
				"topic", s.topic,
				"error", err,
			)
		}
	}
}

// Publish sends a payload to a destination.
func (c *client) Publish(topic string, payload any) error {
	c.mu.Lock()
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		c.logger.Warn("publish while not connected, payload dropped",
			"topic", topic,
		)
		return ErrNotConnected
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.sendCommand("publish", topic, raw)
}

// State returns the current connection state.
func (c *client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the transport is up.
func (c *client) Connected() bool {
	return c.State() == StateConnected
}

// readLoop reads frames until the transport drops or Disconnect is called.
func (c *client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}

			c.mu.Lock()
			if c.state != StateConnected || c.conn != conn {
				c.mu.Unlock()
				return
			}
			c.state = StateDisconnected
			c.conn = nil
			if c.done != nil {
				close(c.done)
				c.done = nil
			}
			c.mu.Unlock()

			c.logger.Warn("connection lost, reconnecting",
				"url", c.cfg.URL,
				"error", err,
			)
			go c.reconnect()
			return
		}

		c.dispatch(data)
	}
}

// reconnect starts a new backoff wave after an unexpected drop and replays
// subscriptions once the transport is back.
func (c *client) reconnect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	ctx := c.ctx
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.establish(ctx); err != nil {
		c.logger.Error("reconnection failed, giving up",
			"url", c.cfg.URL,
			"error", err,
		)
		return
	}
	c.logger.Info("reconnected", "url", c.cfg.URL)
}

// dispatch parses one inbound frame and fans it out to topic handlers.
// Malformed frames are logged and dropped; the loop keeps running.
func (c *client) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn("malformed frame dropped", "error", err)
		return
	}

	switch frame.Type {
	case "message":
		c.mu.Lock()
		handlers := make([]RawHandler, 0, len(c.subs[frame.Topic]))
		for _, h := range c.subs[frame.Topic] {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()

		for _, h := range handlers {
			h(frame.Topic, frame.Payload)
		}

	case "receipt":
		c.logger.Debug("receipt", "topic", frame.Topic)

	case "error":
		var ef ErrorFrame
		json.Unmarshal(frame.Payload, &ef)
		c.logger.Warn("protocol error frame",
			"code", ef.Code,
			"message", ef.Message,
		)

	default:
		c.logger.Debug("skipping frame type", "type", frame.Type)
	}
}

// heartbeat keeps the transport alive with periodic pings.
func (c *client) heartbeat(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// replaySubscriptions resends subscribe frames for every registered topic.
func (c *client) replaySubscriptions() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		if err := c.sendCommand("subscribe", topic, nil); err != nil {
			c.logger.Warn("subscription replay failed",
				"topic", topic,
				"error", err,
			)
		}
	}
}

// sendCommand writes one command frame to the transport.
func (c *client) sendCommand(cmd, topic string, payload json.RawMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(Command{
		ID:      atomic.AddInt64(&c.cmdID, 1),
		Cmd:     cmd,
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(payload)
	}
}
