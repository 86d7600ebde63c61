package websocket

import (
	"log"
	"sync"

	"codepair/pkg/types"
)

// Registry tracks live connections by participant and by session/role.
// Connection tracking only; session semantics live in the store.
type Registry struct {
	mu                  sync.RWMutex
	globalConnections   map[string]*Connection
	sessionInterviewers map[string]map[string]*Connection
	sessionCandidates   map[string]map[string]*Connection
}

// NewRegistry creates a new connection registry.
func NewRegistry() *Registry {
	return &Registry{
		globalConnections:   make(map[string]*Connection),
		sessionInterviewers: make(map[string]map[string]*Connection),
		sessionCandidates:   make(map[string]map[string]*Connection),
	}
}

// RegisterConnection adds a connection to all maps atomically. A reconnect
// for the same participant replaces the previous connection; the old one is
// closed asynchronously to avoid holding the lock across Close.
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	participantID := conn.GetParticipantID()
	role := conn.GetRole()
	sessionKey := conn.GetSessionKey()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.globalConnections[participantID]; exists {
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close replaced connection: %v", err)
			}
		}()
	}

	r.globalConnections[participantID] = conn

	switch role {
	case types.RoleInterviewer:
		if r.sessionInterviewers[sessionKey] == nil {
			r.sessionInterviewers[sessionKey] = make(map[string]*Connection)
		}
		r.sessionInterviewers[sessionKey][participantID] = conn
	case types.RoleCandidate:
		if r.sessionCandidates[sessionKey] == nil {
			r.sessionCandidates[sessionKey] = make(map[string]*Connection)
		}
		r.sessionCandidates[sessionKey][participantID] = conn
	}

	return nil
}

// UnregisterConnection removes a connection. Idempotent, and a stale
// connection never removes the newer one registered under the same
// participant.
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	participantID := conn.GetParticipantID()
	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.globalConnections[participantID]
	if !exists || registered != conn {
		return
	}

	role := conn.GetRole()
	sessionKey := conn.GetSessionKey()

	delete(r.globalConnections, participantID)

	switch role {
	case types.RoleInterviewer:
		if interviewers, ok := r.sessionInterviewers[sessionKey]; ok {
			delete(interviewers, participantID)
			if len(interviewers) == 0 {
				delete(r.sessionInterviewers, sessionKey)
			}
		}
	case types.RoleCandidate:
		if candidates, ok := r.sessionCandidates[sessionKey]; ok {
			delete(candidates, participantID)
			if len(candidates) == 0 {
				delete(r.sessionCandidates, sessionKey)
			}
		}
	}
}

// GetParticipantConnection returns the current connection for a participant.
func (r *Registry) GetParticipantConnection(participantID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.globalConnections[participantID]
	return conn, exists
}

// GetSessionConnections returns every connection joined to a session.
func (r *Registry) GetSessionConnections(sessionKey string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	for _, conn := range r.sessionInterviewers[sessionKey] {
		connections = append(connections, conn)
	}
	for _, conn := range r.sessionCandidates[sessionKey] {
		connections = append(connections, conn)
	}
	return connections
}

// GetStats returns registry statistics for monitoring.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uniqueSessions := make(map[string]bool)
	for sessionKey := range r.sessionInterviewers {
		uniqueSessions[sessionKey] = true
	}
	for sessionKey := range r.sessionCandidates {
		uniqueSessions[sessionKey] = true
	}

	return map[string]int{
		"total_connections": len(r.globalConnections),
		"active_sessions":   len(uniqueSessions),
	}
}
