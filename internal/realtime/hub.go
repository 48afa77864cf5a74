package realtime

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"emergency-service/internal/logging"
)

const maxConnsPerUser = 10

// Hub tracks open WebSocket connections per user and pushes alert updates to
// them. Delivery is best-effort: a user with no open connection simply misses
// the live push.
type Hub struct {
	connections map[int64]map[*websocket.Conn]bool
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[int64]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// Add registers a connection for a user. Returns false when the user is at
// the connection cap; the caller must close the socket so the client does not
// sit on a connection that will never receive pushes.
func (h *Hub) Add(userID int64, conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[userID]; !exists {
		h.connections[userID] = make(map[*websocket.Conn]bool)
	}
	if len(h.connections[userID]) >= maxConnsPerUser {
		h.logger.Warnf("Max connections reached for user %d, refusing new connection", userID)
		return false
	}
	h.connections[userID][conn] = true
	h.logger.Infof("Added WebSocket connection for user %d (total: %d)", userID, len(h.connections[userID]))
	return true
}

// Remove drops a connection for a user.
func (h *Hub) Remove(userID int64, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, exists := h.connections[userID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, userID)
		}
	}
}

// SendToUser pushes a JSON payload to every open connection of a user and
// returns how many received it. Dead connections are evicted on write failure.
func (h *Hub) SendToUser(userID int64, payload interface{}) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	conns, exists := h.connections[userID]
	if !exists {
		return 0
	}
	sent := 0
	for conn := range conns {
		if err := conn.WriteJSON(payload); err != nil {
			h.logger.Errorf("WebSocket push to user %d failed: %v", userID, err)
			delete(conns, conn)
			continue
		}
		sent++
	}
	if len(conns) == 0 {
		delete(h.connections, userID)
	}
	return sent
}

// NotifyUser implements the courtesy-notification side effect over the hub.
func (h *Hub) NotifyUser(_ context.Context, userID int64, message string) error {
	sent := h.SendToUser(userID, map[string]string{
		"type":    "emergency_response",
		"message": message,
	})
	if sent == 0 {
		h.logger.Debugf("User %d has no open connections, notification dropped", userID)
	}
	return nil
}
