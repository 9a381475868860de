// Package live serves practice views over WebSocket connections.
package live

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the live view connection of every (user, tab session).
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user and session.
func (m *SessionManager) GetActive(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of registered connections.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register adds a connection for a user/session. A previous connection for the
// same tab is closed so only one view per tab stays mounted.
func (m *SessionManager) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "view replaced")
	}

	m.active[userID][sessionID] = conn
	slog.Info("Practice view registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a connection unless it was already replaced.
func (m *SessionManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Practice view unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseAll closes every registered connection. Used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]map[string]*websocket.Conn)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for userID, sessions := range active {
		userID := userID
		for sid, conn := range sessions {
			sid, conn := sid, conn
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				slog.Info("Practice view closed", "user_id", userID, "session_id", sid)
			}()
		}
	}
	wg.Wait()
}
