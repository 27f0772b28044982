package connection

import (
	"sync"
	"time"
)

// Session holds the state shared by the heartbeat and receive loops.
// Only the Manager mutates it.
type Session struct {
	mu sync.RWMutex

	sessionID string
	hasID     bool
	running   bool

	heartbeatSeq int64
	lastPingAt   time.Time
	lastPongAt   time.Time
	awaitingAt   time.Time // oldest ping sent since the last pong
}

// SessionID returns the current session identifier, if any.
func (s *Session) SessionID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID, s.hasID
}

// Running reports whether the lifecycle should keep going.
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// HeartbeatSeq returns the id of the last ping sent on this connection.
func (s *Session) HeartbeatSeq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heartbeatSeq
}

func (s *Session) start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
}

// stop clears running and reports whether this call did it.
func (s *Session) stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.running
	s.running = false
	return was
}

// reset prepares the session for a new connection attempt.
func (s *Session) reset() {
	s.mu.Lock()
	s.sessionID, s.hasID = "", false
	s.heartbeatSeq = 0
	s.lastPingAt, s.lastPongAt = time.Time{}, time.Time{}
	s.awaitingAt = time.Time{}
	s.mu.Unlock()
}

func (s *Session) setSessionID(id string) {
	s.mu.Lock()
	s.sessionID, s.hasID = id, true
	s.mu.Unlock()
}

func (s *Session) clearSessionID() {
	s.mu.Lock()
	s.sessionID, s.hasID = "", false
	s.mu.Unlock()
}

// nextHeartbeat bumps the ping counter and returns the new value.
func (s *Session) nextHeartbeat(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeatSeq++
	s.lastPingAt = now
	if s.awaitingAt.IsZero() {
		s.awaitingAt = now
	}
	return s.heartbeatSeq
}

// recordPong notes a pong. A pong received after the oldest outstanding
// ping answers it, along with every ping sent since.
func (s *Session) recordPong(now time.Time) {
	s.mu.Lock()
	s.lastPongAt = now
	if !s.awaitingAt.IsZero() && !now.Before(s.awaitingAt) {
		s.awaitingAt = time.Time{}
	}
	s.mu.Unlock()
}

// pongOverdue reports whether a ping has gone unanswered for longer than
// timeout. The clock starts at the oldest unanswered ping, so later pings
// do not push the deadline back.
func (s *Session) pongOverdue(now time.Time, timeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.awaitingAt.IsZero() {
		return false
	}
	return now.Sub(s.awaitingAt) > timeout
}
