package metrics

import "sync"

// Event names incremented by the signaling service.
const (
	EventConnectionsAccepted = "connections_accepted"
	EventConnectionsRefused  = "connections_refused"
	EventLogins              = "logins"
	EventLoginTakeovers      = "login_takeovers"
	EventDisconnects         = "disconnects"
	EventMessagesRelayed     = "messages_relayed"
	EventRoutingMisses       = "routing_misses"
	EventBroadcasts          = "broadcasts"
	EventMalformedMessages   = "malformed_messages"
	EventSendQueueDrops      = "send_queue_drops"
	EventRateLimitCloses     = "rate_limit_closes"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay is expected to be scraped via the Prometheus text handler; this
// type keeps the dispatch logic testable without a real metrics backend.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters at call time.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		snap[k] = v
	}
	return snap
}
