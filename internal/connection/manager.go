package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/dinehub/realtime/internal/model"
	"github.com/dinehub/realtime/internal/session"
)

// SessionSource supplies the current session for auth headers.
type SessionSource interface {
	Resolve(ctx context.Context) (model.Session, error)
}

// Handle pairs an endpoint with its client. At most one handle exists per
// endpoint; it is owned exclusively by the Manager.
type Handle struct {
	Endpoint EndpointID
	Client   Client
}

// Manager owns one reconnecting client per backend endpoint and enforces
// the single-live-connection-per-endpoint invariant. It is created once at
// startup and passed explicitly to consumers; its per-endpoint registry is
// mutated only through Connect and Disconnect.
type Manager struct {
	cfg      ManagerConfig
	sessions SessionSource
	logger   *slog.Logger

	mu      sync.Mutex
	handles map[EndpointID]*Handle
	locks   map[EndpointID]*sync.Mutex
	hooks   []func(EndpointID)

	// newClient is a seam for tests.
	newClient func(ClientConfig, http.Header, *slog.Logger) Client
}

// NewManager creates a connection manager.
func NewManager(cfg ManagerConfig, sessions SessionSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		sessions:  sessions,
		logger:    logger,
		handles:   make(map[EndpointID]*Handle),
		locks:     make(map[EndpointID]*sync.Mutex),
		newClient: NewClient,
	}
}

// Connect dials an endpoint with the current session's credentials. A no-op
// when the endpoint is already connected or connecting; overlapping calls
// never create a second transport. The session is re-resolved on every call:
// an expired token refuses the attempt before any dial, and a parked client
// is rebuilt so it picks up rotated credentials.
func (m *Manager) Connect(ctx context.Context, id EndpointID) error {
	// Connects to the same endpoint are serialized; endpoints stay
	// independent of each other.
	lock := m.endpointLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.sessions.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if sess.TokenExpired() {
		// Fatal for this attempt only; the caller must re-authenticate
		// and call Connect again.
		return session.ErrTokenExpired
	}

	m.mu.Lock()
	h, ok := m.handles[id]
	hooks := make([]func(EndpointID), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	if ok {
		switch h.Client.State() {
		case StateConnecting, StateConnected:
			// Live transport; Connect is idempotent on it.
			return h.Client.Connect(ctx)
		}

		// Parked client (idle, disconnected, or a failed wave): tear it
		// down and rebuild below so the dial carries current credentials.
		h.Client.Disconnect()
		m.mu.Lock()
		delete(m.handles, id)
		m.mu.Unlock()
		for _, hook := range hooks {
			hook(id)
		}
	}

	cfg, header, err := m.endpointConfig(id, sess)
	if err != nil {
		return err
	}

	h = &Handle{
		Endpoint: id,
		Client:   m.newClient(cfg, header, m.logger.With("endpoint", string(id))),
	}
	m.mu.Lock()
	m.handles[id] = h
	m.mu.Unlock()

	return h.Client.Connect(ctx)
}

func (m *Manager) endpointLock(id EndpointID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Disconnect tears down an endpoint's handle. Registered disconnect hooks
// run afterwards so routers can invalidate their subscriptions.
func (m *Manager) Disconnect(id EndpointID) error {
	m.mu.Lock()
	h, ok := m.handles[id]
	if ok {
		delete(m.handles, id)
	}
	hooks := make([]func(EndpointID), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	err := h.Client.Disconnect()
	for _, hook := range hooks {
		hook(id)
	}
	m.logger.Info("endpoint disconnected", "endpoint", string(id))
	return err
}

// DisconnectAll tears down every handle.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	ids := make([]EndpointID, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Disconnect(id)
	}
}

// Client returns the live client for an endpoint, if any.
func (m *Manager) Client(id EndpointID) (Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handles[id]
	if !ok {
		return nil, false
	}
	return h.Client, true
}

// OnDisconnect registers a hook invoked after an endpoint is torn down.
func (m *Manager) OnDisconnect(fn func(EndpointID)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Status is a pure read of current handle states.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st Status
	if h, ok := m.handles[EndpointNotification]; ok {
		st.Notification = h.Client.Connected()
	}
	if h, ok := m.handles[EndpointChat]; ok {
		st.Chat = h.Client.Connected()
	}
	st.AllConnected = st.Notification && st.Chat
	return st
}

// endpointConfig builds the client config and auth headers for an endpoint.
// The notification endpoint authenticates via a token query parameter and
// refuses guests; the chat endpoint takes headers and serves both.
func (m *Manager) endpointConfig(id EndpointID, sess model.Session) (ClientConfig, http.Header, error) {
	cfg := m.cfg.Client
	header := http.Header{}

	switch id {
	case EndpointNotification:
		if sess.IsGuest() {
			return ClientConfig{}, nil, ErrAuthRequired
		}
		cfg.URL = m.cfg.NotificationURL + "?token=" + url.QueryEscape(sess.Token)

	case EndpointChat:
		cfg.URL = m.cfg.ChatURL
		if !sess.IsGuest() {
			header.Set("Authorization", "Bearer "+sess.Token)
			header.Set("X-User-Id", strconv.FormatInt(sess.UserID, 10))
		}

	default:
		return ClientConfig{}, nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, id)
	}

	return cfg, header, nil
}
