package connection

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// mockServer is an in-process WebSocket endpoint that records inbound
// command frames and lets tests push server frames to connected clients.
type mockServer struct {
	t      *testing.T
	server *httptest.Server
	url    string

	mu         sync.Mutex
	conns      map[*websocket.Conn]bool
	totalDials int
	commands   []Command
	onCommand  func(conn *websocket.Conn, cmd Command)
	reject     bool
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{t: t, conns: make(map[*websocket.Conn]bool)}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	m.url = "ws" + strings.TrimPrefix(m.server.URL, "http")
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockServer) URL() string { return m.url }

func (m *mockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	reject := m.reject
	m.mu.Unlock()
	if reject {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.conns[conn] = true
	m.totalDials++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}

		m.mu.Lock()
		m.commands = append(m.commands, cmd)
		handler := m.onCommand
		m.mu.Unlock()

		if handler != nil {
			handler(conn, cmd)
		}
	}
}

// push sends a frame to every connected client.
func (m *mockServer) push(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		m.t.Fatalf("marshal frame: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.conns {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}

// send writes a frame to one specific connection.
func (m *mockServer) send(conn *websocket.Conn, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		m.t.Fatalf("marshal frame: %v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	conn.WriteMessage(websocket.TextMessage, data)
}

// dropAll closes every live connection server-side.
func (m *mockServer) dropAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.conns {
		conn.Close()
	}
}

func (m *mockServer) setReject(reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject = reject
}

func (m *mockServer) connectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *mockServer) dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalDials
}

// commandsOf returns all recorded commands of one kind.
func (m *mockServer) commandsOf(cmd string) []Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Command
	for _, c := range m.commands {
		if c.Cmd == cmd {
			out = append(out, c)
		}
	}
	return out
}
