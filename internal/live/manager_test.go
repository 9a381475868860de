package live

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

func TestSessionManager_Register(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}

	sm.Register("user123", "tab-1", conn)

	if active := sm.GetActive("user123", "tab-1"); active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
	if sm.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", sm.Count())
	}
}

func TestSessionManager_Unregister(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}

	sm.Register("user123", "tab-1", conn)
	sm.Unregister("user123", "tab-1", conn)

	if active := sm.GetActive("user123", "tab-1"); active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
	if sm.Count() != 0 {
		t.Errorf("Expected 0 connections, got %d", sm.Count())
	}
}

func TestSessionManager_UnregisterStale(t *testing.T) {
	sm := NewSessionManager()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	sm.Register("user123", "tab-1", conn1)
	sm.Register("user123", "tab-2", conn2)

	sm.Unregister("user123", "tab-1", conn1)
	// Unregistering a connection that is not the current one is ignored.
	sm.Unregister("user123", "tab-2", conn1)

	if active := sm.GetActive("user123", "tab-2"); active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	sm := NewSessionManager()
	userID := "concurrentUser"

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.Register(userID, "tab-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.GetActive(userID, "tab-"+strconv.Itoa(i))
		}
	}()
	wg.Wait()

	if sm.Count() != 1000 {
		t.Errorf("Expected 1000 connections, got %d", sm.Count())
	}
}
