package session

import (
	"log"
	"sync"
	"time"
)

// Conn is the server-to-device push side of a live connection. Send must be
// safe for concurrent use and return an error once the peer is gone.
type Conn interface {
	Send(event any) error
	Close() error
}

// Session is one live device connection for an account. An account may hold
// several sessions at once, one per connected device or tab.
type Session struct {
	AccountID string
	DeviceID  string
	LastSeen  time.Time

	conn Conn
}

// Registry tracks every live device connection per account and fans events
// out to them. Delivery is best-effort: a session whose send fails is
// dropped silently, and the device is expected to resynchronize through the
// status read path when it reconnects.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // accountID -> deviceID -> session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Session),
	}
}

// Register adds a device connection. A second connection from the same
// device replaces the first, which is closed.
func (r *Registry) Register(accountID, deviceID string, conn Conn) {
	r.mu.Lock()
	devices, ok := r.sessions[accountID]
	if !ok {
		devices = make(map[string]*Session)
		r.sessions[accountID] = devices
	}
	old := devices[deviceID]
	devices[deviceID] = &Session{
		AccountID: accountID,
		DeviceID:  deviceID,
		LastSeen:  time.Now(),
		conn:      conn,
	}
	r.mu.Unlock()

	if old != nil {
		old.conn.Close()
	}
}

// Unregister removes a device connection if it is still the registered one.
func (r *Registry) Unregister(accountID, deviceID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, ok := r.sessions[accountID]
	if !ok {
		return
	}
	if s, ok := devices[deviceID]; ok && s.conn == conn {
		delete(devices, deviceID)
		if len(devices) == 0 {
			delete(r.sessions, accountID)
		}
	}
}

// Broadcast delivers the event to every registered connection for the
// account, including the one that caused the change. Dead connections are
// removed on the first failed send.
func (r *Registry) Broadcast(accountID string, event any) {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions[accountID]))
	for _, s := range r.sessions[accountID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if err := s.conn.Send(event); err != nil {
			log.Printf("dropping dead session account=%s device=%s: %v", s.AccountID, s.DeviceID, err)
			r.Unregister(s.AccountID, s.DeviceID, s.conn)
			s.conn.Close()
		}
	}
}

// Count returns the number of live sessions for an account.
func (r *Registry) Count(accountID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[accountID])
}
