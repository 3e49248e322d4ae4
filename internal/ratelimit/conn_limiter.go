package ratelimit

import "sync"

// ConnLimiter caps the number of concurrent signaling connections.
//
// Per-connection message rates are enforced separately (golang.org/x/time/rate
// inside the signaling read loop); this limiter only guards the accept path so
// a connection flood cannot exhaust the process.
type ConnLimiter struct {
	mu      sync.Mutex
	max     int
	current int
}

// NewConnLimiter returns a limiter allowing up to max concurrent connections.
// max <= 0 means unlimited.
func NewConnLimiter(max int) *ConnLimiter {
	return &ConnLimiter{max: max}
}

// Acquire reserves a connection slot. It reports false when the cap is
// reached; the caller must not call Release in that case.
func (l *ConnLimiter) Acquire() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max > 0 && l.current >= l.max {
		return false
	}
	l.current++
	return true
}

// Release returns a previously acquired slot.
func (l *ConnLimiter) Release() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current reports the number of held slots.
func (l *ConnLimiter) Current() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
