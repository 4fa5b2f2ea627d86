package qbit

import (
	"sync"
	"time"
)

// SessionTTL is how long a login cookie is trusted before a fresh login.
const SessionTTL = 25 * time.Minute

// Session caches the SID cookie of one qBittorrent instance. It is owned by
// the Client it is handed to and safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	cookie string
	expiry time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewSession() *Session {
	return &Session{ttl: SessionTTL, now: time.Now}
}

// Cookie returns the cached cookie while it is still valid.
func (s *Session) Cookie() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cookie == "" || !s.now().Before(s.expiry) {
		return "", false
	}
	return s.cookie, true
}

func (s *Session) store(cookie string) {
	s.mu.Lock()
	s.cookie = cookie
	s.expiry = s.now().Add(s.ttl)
	s.mu.Unlock()
}

// Invalidate drops the cached cookie so the next call logs in again.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.cookie = ""
	s.expiry = time.Time{}
	s.mu.Unlock()
}
