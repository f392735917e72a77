// Package session holds the identity assigned by the authority and the
// handshake state machine that obtains it.
package session

import (
	"sync"

	"github.com/dkeye/VoiceMux/internal/domain"
)

// Session ids are written once, by the first accepted handshake response.
type Session struct {
	name string

	mu        sync.RWMutex
	assigned  bool
	sessionID uint32
	localID   domain.PeerID
}

func New(name string) *Session {
	return &Session{name: name}
}

func (s *Session) LocalName() string { return s.name }

// SessionID is zero until assigned.
func (s *Session) SessionID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *Session) LocalID() (domain.PeerID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localID, s.assigned
}

func (s *Session) assign(sessionID uint32, localID domain.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assigned {
		return false
	}
	s.sessionID = sessionID
	s.localID = localID
	s.assigned = true
	return true
}
