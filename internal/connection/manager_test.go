package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinehub/realtime/internal/model"
	"github.com/dinehub/realtime/internal/session"
)

type staticSessions struct {
	sess model.Session
	err  error
}

func (s staticSessions) Resolve(context.Context) (model.Session, error) {
	return s.sess, s.err
}

// stubClient satisfies Client without a transport.
type stubClient struct {
	cfg    ClientConfig
	header http.Header

	mu        sync.Mutex
	state     State
	connects  int
	subscribe int
}

func (c *stubClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	c.state = StateConnected
	return nil
}

func (c *stubClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	return nil
}

func (c *stubClient) Subscribe(string, RawHandler) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribe++
	return &Subscription{}, nil
}

func (c *stubClient) Publish(string, any) error { return nil }

func (c *stubClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *stubClient) Connected() bool { return c.State() == StateConnected }

func (c *stubClient) park(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// switchSessions is a SessionSource whose session can change mid-test.
type switchSessions struct {
	mu   sync.Mutex
	sess model.Session
}

func (s *switchSessions) Resolve(context.Context) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, nil
}

func (s *switchSessions) set(sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
}

func stubManager(sessions SessionSource) (*Manager, *atomic.Int32) {
	m := NewManager(ManagerConfig{
		NotificationURL: "wss://notify.test/ws",
		ChatURL:         "wss://chat.test/ws",
		Client:          DefaultClientConfig(),
	}, sessions, slog.Default())

	var created atomic.Int32
	m.newClient = func(cfg ClientConfig, header http.Header, _ *slog.Logger) Client {
		created.Add(1)
		return &stubClient{cfg: cfg, header: header}
	}
	return m, &created
}

func authSession() model.Session {
	return model.Session{
		Kind:       model.IdentityAuthenticated,
		SessionKey: "42",
		UserID:     42,
		Token:      "tok-42",
	}
}

func TestManagerOneClientPerEndpoint(t *testing.T) {
	m, created := stubManager(staticSessions{sess: authSession()})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Connect(ctx, EndpointChat))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load(), "concurrent connects must share one client")

	require.NoError(t, m.Connect(ctx, EndpointNotification))
	assert.Equal(t, int32(2), created.Load())

	st := m.Status()
	assert.True(t, st.Chat)
	assert.True(t, st.Notification)
	assert.True(t, st.AllConnected)
}

func TestManagerGuestRefusedOnNotification(t *testing.T) {
	guest := model.Session{Kind: model.IdentityGuest, SessionKey: "guest-abc"}
	m, created := stubManager(staticSessions{sess: guest})

	err := m.Connect(context.Background(), EndpointNotification)
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, int32(0), created.Load())

	// The chat endpoint serves guests.
	assert.NoError(t, m.Connect(context.Background(), EndpointChat))
}

func TestManagerExpiredTokenRefused(t *testing.T) {
	sess := authSession()
	sess.TokenExpiresAt = time.Now().Add(-time.Minute)
	m, created := stubManager(staticSessions{sess: sess})

	err := m.Connect(context.Background(), EndpointChat)
	assert.ErrorIs(t, err, session.ErrTokenExpired)
	assert.Equal(t, int32(0), created.Load())
}

func TestManagerExpiredTokenRefusedOnReconnect(t *testing.T) {
	src := &switchSessions{sess: authSession()}
	m, created := stubManager(src)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, EndpointChat))
	c, ok := m.Client(EndpointChat)
	require.True(t, ok)
	stub := c.(*stubClient)
	require.Equal(t, 1, stub.connects)

	expired := authSession()
	expired.TokenExpiresAt = time.Now().Add(-time.Minute)
	src.set(expired)

	// Expiry refuses the attempt whether the client is live or parked.
	assert.ErrorIs(t, m.Connect(ctx, EndpointChat), session.ErrTokenExpired)

	stub.park(StateFailed)
	assert.ErrorIs(t, m.Connect(ctx, EndpointChat), session.ErrTokenExpired)

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 1, stub.connects, "no dial may happen with expired credentials")
}

func TestManagerRebuildsParkedClientWithFreshCredentials(t *testing.T) {
	src := &switchSessions{sess: authSession()}
	m, created := stubManager(src)
	ctx := context.Background()

	var torn []EndpointID
	m.OnDisconnect(func(id EndpointID) { torn = append(torn, id) })

	require.NoError(t, m.Connect(ctx, EndpointChat))
	c, _ := m.Client(EndpointChat)
	old := c.(*stubClient)
	assert.Equal(t, "Bearer tok-42", old.header.Get("Authorization"))

	// An exhausted backoff wave parks the client; the token is rotated
	// before the caller reconnects.
	old.park(StateFailed)
	rotated := authSession()
	rotated.Token = "tok-43"
	src.set(rotated)

	require.NoError(t, m.Connect(ctx, EndpointChat))

	assert.Equal(t, int32(2), created.Load())
	c, _ = m.Client(EndpointChat)
	fresh := c.(*stubClient)
	assert.Equal(t, "Bearer tok-43", fresh.header.Get("Authorization"),
		"rebuilt client must carry the rotated token")
	assert.Equal(t, StateIdle, old.State(), "parked client is torn down on rebuild")
	assert.Equal(t, []EndpointID{EndpointChat}, torn, "rebuild invalidates routes like a disconnect")
}

func TestManagerConnectReusesLiveClient(t *testing.T) {
	src := &switchSessions{sess: authSession()}
	m, created := stubManager(src)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, EndpointChat))
	require.NoError(t, m.Connect(ctx, EndpointChat))

	assert.Equal(t, int32(1), created.Load(), "a connected client is never rebuilt")
}

func TestManagerUnknownEndpoint(t *testing.T) {
	m, _ := stubManager(staticSessions{sess: authSession()})
	err := m.Connect(context.Background(), EndpointID("metrics"))
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
}

func TestManagerDisconnectRunsHooks(t *testing.T) {
	m, _ := stubManager(staticSessions{sess: authSession()})
	ctx := context.Background()

	var torn []EndpointID
	m.OnDisconnect(func(id EndpointID) { torn = append(torn, id) })

	require.NoError(t, m.Connect(ctx, EndpointChat))
	require.NoError(t, m.Disconnect(EndpointChat))

	assert.Equal(t, []EndpointID{EndpointChat}, torn)
	_, ok := m.Client(EndpointChat)
	assert.False(t, ok, "handle must be removed on disconnect")
	assert.False(t, m.Status().Chat)

	// Disconnecting an unknown endpoint is a no-op without hook calls.
	require.NoError(t, m.Disconnect(EndpointChat))
	assert.Len(t, torn, 1)
}

func TestManagerDisconnectAll(t *testing.T) {
	m, _ := stubManager(staticSessions{sess: authSession()})
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, EndpointChat))
	require.NoError(t, m.Connect(ctx, EndpointNotification))

	m.DisconnectAll()

	_, chatOK := m.Client(EndpointChat)
	_, notifyOK := m.Client(EndpointNotification)
	assert.False(t, chatOK)
	assert.False(t, notifyOK)
}

func TestManagerEndpointAuth(t *testing.T) {
	sess := authSession()
	sess.Token = "tok/with=special chars"
	m, _ := stubManager(staticSessions{sess: sess})
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, EndpointNotification))
	require.NoError(t, m.Connect(ctx, EndpointChat))

	notify, _ := m.Client(EndpointNotification)
	stub := notify.(*stubClient)
	assert.Equal(t, "wss://notify.test/ws?token=tok%2Fwith%3Dspecial+chars", stub.cfg.URL)

	chat, _ := m.Client(EndpointChat)
	stub = chat.(*stubClient)
	assert.Equal(t, "wss://chat.test/ws", stub.cfg.URL)
	assert.Equal(t, "Bearer tok/with=special chars", stub.header.Get("Authorization"))
	assert.Equal(t, "42", stub.header.Get("X-User-Id"))
}

func TestManagerGuestChatHasNoAuthHeaders(t *testing.T) {
	guest := model.Session{Kind: model.IdentityGuest, SessionKey: "guest-abc"}
	m, _ := stubManager(staticSessions{sess: guest})

	require.NoError(t, m.Connect(context.Background(), EndpointChat))

	chat, _ := m.Client(EndpointChat)
	stub := chat.(*stubClient)
	assert.Empty(t, stub.header.Get("Authorization"))
	assert.Empty(t, stub.header.Get("X-User-Id"))
}
