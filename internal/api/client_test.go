package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinehub/realtime/internal/model"
)

type fixedSessions struct {
	sess model.Session
}

func (f fixedSessions) Resolve(context.Context) (model.Session, error) {
	return f.sess, nil
}

func guestSessions() fixedSessions {
	return fixedSessions{sess: model.Session{Kind: model.IdentityGuest, SessionKey: "guest-abc"}}
}

func userSessions() fixedSessions {
	return fixedSessions{sess: model.Session{
		Kind:       model.IdentityAuthenticated,
		SessionKey: "42",
		UserID:     42,
		Token:      "tok-42",
	}}
}

func testClient(t *testing.T, handler http.HandlerFunc, sessions SessionSource) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, sessions,
		WithRateLimit(0),
		WithRetries(2, 5*time.Millisecond),
	)
}

func TestHistory(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/guest-abc", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("size"))
		assert.Empty(t, r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(HistoryPage{
			Content: []model.Message{{ID: "m1", RoomKey: "guest-abc", Content: "hi"}},
			Number:  1,
			Last:    true,
		})
	}, guestSessions())

	page, err := client.History(context.Background(), "guest-abc", 1, 20)
	require.NoError(t, err)
	assert.True(t, page.Last)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "m1", page.Content[0].ID)
}

func TestSendMessagePicksPathBySession(t *testing.T) {
	tests := []struct {
		name       string
		sessions   fixedSessions
		wantPath   string
		wantSender model.SenderType
		wantAuth   string
	}{
		{"guest", guestSessions(), "/guest/send", model.SenderGuest, ""},
		{"authenticated", userSessions(), "/chat/send", model.SenderUser, "Bearer tok-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.Path)
				assert.Equal(t, tt.wantAuth, r.Header.Get("Authorization"))

				var req sendRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, tt.wantSender, req.SenderType)
				assert.NotEmpty(t, req.ClientID)

				json.NewEncoder(w).Encode(model.Message{
					ID:         req.ClientID,
					RoomKey:    req.RoomKey,
					SenderType: req.SenderType,
					Content:    req.Content,
					Timestamp:  time.Now(),
				})
			}, tt.sessions)

			saved, err := client.SendMessage(context.Background(), "room-1", "hello")
			require.NoError(t, err)
			assert.Equal(t, "hello", saved.Content)
			assert.Equal(t, tt.wantSender, saved.SenderType)
		})
	}
}

func TestSendAdminMessage(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/chat/send", r.URL.Path)
		assert.Equal(t, "Bearer tok-42", r.Header.Get("Authorization"))
		assert.Equal(t, "42", r.Header.Get("X-User-Id"))

		json.NewEncoder(w).Encode(model.Message{ID: "m1", SenderType: model.SenderAdmin})
	}, userSessions())

	saved, err := client.SendAdminMessage(context.Background(), "room-1", "how can I help")
	require.NoError(t, err)
	assert.Equal(t, model.SenderAdmin, saved.SenderType)
}

func TestListRooms(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/chat/rooms", r.URL.Path)
		json.NewEncoder(w).Encode(roomsResponse{Rooms: []model.Room{
			{RoomID: "room-1", Resolved: false},
			{RoomID: "room-2", Resolved: true},
		}})
	}, userSessions())

	rooms, err := client.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}

func TestJoinRoomConflict(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "room assigned to admin 7"})
	}, userSessions())

	err := client.JoinRoom(context.Background(), "room-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoomOwned)
	assert.Contains(t, err.Error(), "admin 7")
}

func TestResolveRoom(t *testing.T) {
	var gotMethod, gotPath string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
	}, userSessions())

	require.NoError(t, client.ResolveRoom(context.Background(), "room-1"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/admin/chat/resolve/room-1", gotPath)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(roomsResponse{})
	}, userSessions())

	_, err := client.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, userSessions())

	_, err := client.History(context.Background(), "room-1", 0, 20)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.IsRetryable())
}

func TestSendsAreNeverRetried(t *testing.T) {
	var attempts atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, userSessions())

	_, err := client.SendMessage(context.Background(), "room-1", "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "message sends own their re-attempt semantics")
}

func TestErrorBodyMessagePreferred(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "content too long"})
	}, guestSessions())

	_, err := client.SendMessage(context.Background(), "room-1", "hello")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "content too long", apiErr.Message)
}
