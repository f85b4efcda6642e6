package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netchat/internal/identity"
	myMiddleware "netchat/internal/middleware"
)

type tokenTable map[string]identity.Identity

func (tt tokenTable) VerifyToken(_ context.Context, token string) (identity.Identity, error) {
	id, ok := tt[token]
	if !ok {
		return identity.Identity{}, fmt.Errorf("%w: unknown token", identity.ErrAuth)
	}
	return id, nil
}

func newTestServer(t *testing.T, origins []string) *httptest.Server {
	t.Helper()
	h, _ := startHub(t, Options{MaxMessageSize: 4096, SendBuffer: 64, RateBurst: 100, RateInterval: time.Second})
	handler := NewHandler(h, NewOriginPolicy(origins, discardLogger), discardLogger)
	auth := myMiddleware.NewAuthMiddleware(tokenTable{
		"tok-a": {UserID: "1", Username: "alice"},
		"tok-b": {UserID: "2", Username: "bob"},
	}, discardLogger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Get("/ws", handler.ServeWs)
		r.Get("/api/rooms", handler.GetRooms)
		r.Get("/api/rooms/{name}/messages", handler.GetRoomMessages)
		r.Get("/api/online", handler.GetOnline)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == event {
			return f
		}
	}
}

func TestServeWs_RejectsWithoutToken(t *testing.T) {
	srv := newTestServer(t, []string{"*"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bad"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWs_RejectsDisallowedOrigin(t *testing.T) {
	srv := newTestServer(t, []string{"https://chat.example.com"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=tok-a"

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://CHAT.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestServeWs_RoomConversation(t *testing.T) {
	srv := newTestServer(t, []string{"*"})
	alice := dial(t, srv, "tok-a")
	readUntil(t, alice, EventUsersUpdate)
	bob := dial(t, srv, "tok-b")
	readUntil(t, bob, EventUsersUpdate)

	require.NoError(t, alice.WriteJSON(map[string]any{"event": EventJoin, "data": map[string]string{"roomName": "general"}}))
	readUntil(t, alice, EventRoomInfo)
	require.NoError(t, bob.WriteJSON(map[string]any{"event": EventJoin, "data": map[string]string{"roomName": "general"}}))

	f := readUntil(t, alice, EventRoomInfo)
	var info RoomInfo
	require.NoError(t, json.Unmarshal(f.Data, &info))
	assert.Equal(t, []string{"alice", "bob"}, info.Users)

	require.NoError(t, alice.WriteJSON(map[string]any{"event": EventSend, "data": map[string]string{"message": "hi", "room": "general"}}))
	f = readUntil(t, bob, EventMessageNew)
	var msg Message
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	if msg.Kind == KindSystem {
		f = readUntil(t, bob, EventMessageNew)
		require.NoError(t, json.Unmarshal(f.Data, &msg))
	}
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, KindUser, msg.Kind)
	assert.NotEmpty(t, msg.ID)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/rooms/general/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok-b")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hist RoomMessages
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hist))
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "hi", hist.Messages[0].Body)
}

func TestServeWs_MalformedFrame(t *testing.T) {
	srv := newTestServer(t, []string{"*"})
	alice := dial(t, srv, "tok-a")
	readUntil(t, alice, EventUsersUpdate)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := readUntil(t, alice, EventError)
	assert.JSONEq(t, `{"message":"invalid payload"}`, string(f.Data))
}

func TestRESTRooms(t *testing.T) {
	srv := newTestServer(t, []string{"*"})

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/rooms/missing/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok-a")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok-a")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list RoomList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Empty(t, list.Rooms)
}
