package handlers

import (
	"net/http"
	"sync"

	"log/slog"

	"github.com/gorilla/websocket"
)

// Notification is the payload broadcast to websocket subscribers at each
// wizard step transition and on errors. Delivery is fire-and-forget.
type Notification struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// NotificationHub fans notifications out to connected websocket clients.
// It implements workflow.Notifier.
type NotificationHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewNotificationHub creates a new NotificationHub
func NewNotificationHub(logger *slog.Logger) *NotificationHub {
	return &NotificationHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the connection and registers the client until it
// disconnects.
func (h *NotificationHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", "error", err, "app", "warranty-service")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Websocket client connected", "clients", count, "app", "warranty-service")

	// Drain reads to detect disconnects; inbound messages are ignored.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *NotificationHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Notify broadcasts a notification to all connected clients. The hub lock is
// held for the duration of the broadcast: gorilla/websocket permits at most
// one concurrent writer per connection, and Notify may be called from any
// number of request goroutines. Write failures drop the client; they are
// never surfaced to the wizard.
func (h *NotificationHub) Notify(title, message, severity string) {
	payload := Notification{Title: title, Message: message, Severity: severity}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(payload); err != nil {
			h.logger.Warn("Dropping websocket client", "error", err, "app", "warranty-service")
			delete(h.clients, conn)
			conn.Close()
		}
	}
}
