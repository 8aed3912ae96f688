package agent

import "sync"

// Store tracks the sessions of active calls so tool invocations arriving
// over HTTP can be routed to the right call.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Put registers a session under its call SID, replacing any previous
// session for the same call.
func (s *Store) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.CallSID()] = session
}

// GetByCallSID returns the session for a call, or nil if none is active.
func (s *Store) GetByCallSID(callSID string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[callSID]
}

// GetByConversationID returns the session whose voice-engine
// conversation handle matches, or nil.
func (s *Store) GetByConversationID(conversationID string) *Session {
	if conversationID == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.ConversationID() == conversationID {
			return session
		}
	}
	return nil
}

// Remove drops the session for a call. Removing an unknown call is a
// no-op.
func (s *Store) Remove(callSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, callSID)
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
