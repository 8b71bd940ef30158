package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"warranty-service/workflow"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *NotificationHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func dialHub(t *testing.T, hub *NotificationHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Registration happens after the handshake; wait for it.
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestNotificationHub_Broadcast(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewNotificationHub(logger)
	conn := dialHub(t, hub)

	hub.Notify("Warranty verified", "Volt EJ-7 2023 is under warranty", workflow.SeverityInfo)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var note Notification
	require.NoError(t, conn.ReadJSON(&note))
	assert.Equal(t, "Warranty verified", note.Title)
	assert.Equal(t, workflow.SeverityInfo, note.Severity)
}

func TestNotificationHub_ConcurrentNotify(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewNotificationHub(logger)
	conn := dialHub(t, hub)

	const broadcasts = 20
	var wg sync.WaitGroup
	for i := 0; i < broadcasts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Notify("Step complete", fmt.Sprintf("Moved to step %d", i), workflow.SeverityInfo)
		}(i)
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < broadcasts; i++ {
		var note Notification
		require.NoError(t, conn.ReadJSON(&note))
		assert.Equal(t, "Step complete", note.Title)
	}
	wg.Wait()

	assert.Equal(t, 1, hub.clientCount(), "a healthy client is never dropped by the broadcast path")
}
