package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-service/internal/logging"
)

func testHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(logging.New(logging.Config{Level: "error"}))

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server := <-serverConns
	t.Cleanup(func() { server.Close() })
	hub.Add(1, server)
	return hub, client
}

func TestSendToUserDeliversOverWebSocket(t *testing.T) {
	hub, client := testHub(t)

	sent := hub.SendToUser(1, map[string]string{"type": "emergency_alert", "message": "help"})
	assert.Equal(t, 1, sent)

	client.SetReadDeadline(time.Now().Add(time.Second))
	var payload map[string]string
	require.NoError(t, client.ReadJSON(&payload))
	assert.Equal(t, "emergency_alert", payload["type"])
	assert.Equal(t, "help", payload["message"])
}

func TestSendToUnknownUserIsZero(t *testing.T) {
	hub := NewHub(logging.New(logging.Config{Level: "error"}))
	assert.Equal(t, 0, hub.SendToUser(42, "anything"))
}

func TestNotifyUserIsBestEffort(t *testing.T) {
	hub := NewHub(logging.New(logging.Config{Level: "error"}))
	// No open connections is not an error.
	assert.NoError(t, hub.NotifyUser(context.Background(), 42, "someone responded"))
}

func TestAddEnforcesPerUserCap(t *testing.T) {
	hub := NewHub(logging.New(logging.Config{Level: "error"}))

	for i := 0; i < maxConnsPerUser; i++ {
		assert.True(t, hub.Add(1, &websocket.Conn{}))
	}
	// The connection past the cap is refused, not silently dropped.
	assert.False(t, hub.Add(1, &websocket.Conn{}))

	// Another user is unaffected.
	assert.True(t, hub.Add(2, &websocket.Conn{}))
}

func TestRemoveDropsConnection(t *testing.T) {
	hub, client := testHub(t)
	_ = client

	hub.mutex.Lock()
	conns := hub.connections[1]
	hub.mutex.Unlock()
	require.Len(t, conns, 1)
	for conn := range conns {
		hub.Remove(1, conn)
	}

	assert.Equal(t, 0, hub.SendToUser(1, "gone"))
}
