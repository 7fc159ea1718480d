package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/advent-arcade/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(NewHandler(hub, []string{"*"}, logger))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestValidChannel(t *testing.T) {
	assert.True(t, ValidChannel("global"))
	assert.True(t, ValidChannel(GameChannel("puzzle")))
	assert.False(t, ValidChannel("game:"))
	assert.False(t, ValidChannel("lobby"))
}

func TestHub_ConnectTimeSubscription(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?channel=global")

	assert.Equal(t, MessageTypeConnected, readMessage(t, conn).Type)
	assert.Equal(t, 1, hub.Subscribers(GlobalChannel))

	hub.BroadcastGlobalUpdate([]domain.GlobalLeaderboardRow{{Rank: 1, Username: "ann", FirstPlaces: 2}})

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeGlobalUpdate, msg.Type)
	assert.Equal(t, GlobalChannel, msg.Channel)
	assert.Contains(t, string(mustJSON(t, msg.Data)), `"username":"ann"`)
}

func TestHub_SubscribeMessageAndChannelIsolation(t *testing.T) {
	hub, srv := startHub(t)
	puzzle := dial(t, srv, "")
	memory := dial(t, srv, "?channel=game:memory")
	readMessage(t, puzzle)
	readMessage(t, memory)

	require.NoError(t, puzzle.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Channel: GameChannel("puzzle")}))
	ack := readMessage(t, puzzle)
	assert.Equal(t, MessageTypeSubscribed, ack.Type)
	assert.Equal(t, "game:puzzle", ack.Channel)

	hub.BroadcastGameUpdate("puzzle", domain.SubmitResult{Rank: 1}, nil)
	hub.BroadcastGameUpdate("memory", domain.SubmitResult{Rank: 2}, nil)

	assert.Equal(t, "game:puzzle", readMessage(t, puzzle).Channel)
	assert.Equal(t, "game:memory", readMessage(t, memory).Channel)

	stats := hub.Stats()
	assert.Equal(t, 2, stats.Connections)
	assert.Equal(t, map[string]int{"game:puzzle": 1, "game:memory": 1}, stats.Channels)
}

func TestHub_PingAndBadChannel(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Channel: "lobby"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?channel=global")
	readMessage(t, conn)
	require.Equal(t, 1, hub.Stats().Connections)

	conn.Close()

	assert.Eventually(t, func() bool {
		return hub.Stats().Connections == 0 && !hub.HasSubscribers(GlobalChannel)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RejectsUnknownChannel(t *testing.T) {
	_, srv := startHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?channel=lobby"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
