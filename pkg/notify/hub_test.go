package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	a := dial(t, server)
	defer a.Close()
	b := dial(t, server)
	defer b.Close()
	waitForClients(t, hub, 2)

	require.NoError(t, hub.Notify(context.Background(), Notification{ID: "n1", Title: "UAL1 overhead"}))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, "notification", env.Type)
		assert.Equal(t, "n1", env.Notification.ID)
	}

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())
	assert.ErrorIs(t, hub.Notify(context.Background(), Notification{}), ErrHubClosed)
}

func TestHubClientDisconnect(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dial(t, server)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
