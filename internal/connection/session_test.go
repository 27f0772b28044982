package connection

import (
	"testing"
	"time"
)

func TestSession_Lifecycle(t *testing.T) {
	var s Session

	if s.Running() {
		t.Error("zero Session should not be running")
	}
	if _, ok := s.SessionID(); ok {
		t.Error("zero Session should have no id")
	}

	s.start()
	if !s.Running() {
		t.Error("expected running after start")
	}

	s.setSessionID("S1")
	if id, ok := s.SessionID(); !ok || id != "S1" {
		t.Errorf("SessionID() = %q, %v, want S1, true", id, ok)
	}

	s.clearSessionID()
	if _, ok := s.SessionID(); ok {
		t.Error("expected no id after clear")
	}

	if !s.stop() {
		t.Error("first stop should report it cleared running")
	}
	if s.stop() {
		t.Error("second stop should be a no-op")
	}
}

func TestSession_Heartbeat(t *testing.T) {
	var s Session
	now := time.Now()

	for want := int64(1); want <= 3; want++ {
		if got := s.nextHeartbeat(now); got != want {
			t.Errorf("nextHeartbeat() = %d, want %d", got, want)
		}
	}
	if s.HeartbeatSeq() != 3 {
		t.Errorf("HeartbeatSeq() = %d, want 3", s.HeartbeatSeq())
	}

	s.setSessionID("S1")
	s.reset()
	if s.HeartbeatSeq() != 0 {
		t.Errorf("HeartbeatSeq() after reset = %d, want 0", s.HeartbeatSeq())
	}
	if _, ok := s.SessionID(); ok {
		t.Error("reset should clear the session id")
	}
}

func TestSession_PongOverdue(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	timeout := 5 * time.Second

	tests := []struct {
		name    string
		ping    time.Time
		pong    time.Time
		now     time.Time
		overdue bool
	}{
		{name: "no ping yet", now: base.Add(time.Minute)},
		{name: "within timeout", ping: base, now: base.Add(timeout)},
		{name: "past timeout", ping: base, now: base.Add(timeout + time.Millisecond), overdue: true},
		{name: "answered", ping: base, pong: base.Add(time.Second), now: base.Add(time.Minute)},
		{name: "stale answer", ping: base, pong: base.Add(-time.Second), now: base.Add(time.Minute), overdue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Session
			if !tt.ping.IsZero() {
				s.nextHeartbeat(tt.ping)
			}
			if !tt.pong.IsZero() {
				s.recordPong(tt.pong)
			}
			if got := s.pongOverdue(tt.now, timeout); got != tt.overdue {
				t.Errorf("pongOverdue() = %v, want %v", got, tt.overdue)
			}
		})
	}
}

func TestSession_PongOverdueAcrossPings(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	timeout := 5 * time.Second

	var s Session
	s.nextHeartbeat(base)
	s.nextHeartbeat(base.Add(3 * time.Second))

	// Measured from the first unanswered ping, not the latest one.
	if !s.pongOverdue(base.Add(6*time.Second), timeout) {
		t.Error("pongOverdue() = false after a second unanswered ping, want true")
	}

	s.recordPong(base.Add(6 * time.Second))
	if s.pongOverdue(base.Add(7*time.Second), timeout) {
		t.Error("pongOverdue() = true after pong, want false")
	}

	// The next unanswered ping starts a fresh deadline.
	s.nextHeartbeat(base.Add(8 * time.Second))
	if s.pongOverdue(base.Add(12*time.Second), timeout) {
		t.Error("pongOverdue() = true within timeout of the new ping, want false")
	}
	if !s.pongOverdue(base.Add(14*time.Second), timeout) {
		t.Error("pongOverdue() = false past timeout of the new ping, want true")
	}

	s.reset()
	if s.pongOverdue(base.Add(time.Hour), timeout) {
		t.Error("pongOverdue() = true after reset, want false")
	}
}
