package signaling

import "sync"

// sender is the slice of a connection the registry needs: a non-blocking,
// best-effort emit. It reports false when the frame was dropped.
type sender interface {
	send(msg signalMessage) bool
}

// registry is the process-wide mapping from participant id to live
// connection. It is the only mutable state shared between connections.
//
// Every operation is individually atomic under one mutex; no caller spans
// multiple operations in a transaction, so no further ordering protocol is
// needed. There is no expiry: liveness of an entry is tied 1:1 to the
// connection's read loop, which removes it on the way out.
type registry struct {
	mu    sync.Mutex
	peers map[string]sender
}

func newRegistry() *registry {
	return &registry{
		peers: make(map[string]sender),
	}
}

// register inserts or overwrites the mapping for id. Always succeeds.
// Overwriting is the last-writer-wins rule: the displaced connection stays
// open but unroutable until it disconnects.
func (r *registry) register(id string, s sender) {
	r.mu.Lock()
	r.peers[id] = s
	r.mu.Unlock()
}

// unregister removes the mapping for id; no-op when absent.
func (r *registry) unregister(id string) {
	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()
}

// unregisterIf removes the mapping only while it still points at s, and
// reports whether it did. A connection whose id was since claimed by a newer
// connection must not evict its successor on the way out.
func (r *registry) unregisterIf(id string, s sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.peers[id]; ok && cur == s {
		delete(r.peers, id)
		return true
	}
	return false
}

// lookup resolves id to its current connection. Pure query.
func (r *registry) lookup(id string) (sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.peers[id]
	return s, ok
}

// ids returns an unordered snapshot of the registered ids. The snapshot may
// be stale by the time the caller acts on it; that race is acceptable.
func (r *registry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}

// sendTo emits msg to the connection registered under id. It reports false
// on a lookup miss or a dropped frame; both are normal conditions.
func (r *registry) sendTo(id string, msg signalMessage) bool {
	s, ok := r.lookup(id)
	if !ok {
		return false
	}
	return s.send(msg)
}

// broadcast emits msg to every registered connection except the one given
// (nil means no exclusion). Sends happen outside the lock against a snapshot;
// a peer registered concurrently may or may not receive the message.
func (r *registry) broadcast(msg signalMessage, except sender) {
	r.mu.Lock()
	targets := make([]sender, 0, len(r.peers))
	for _, s := range r.peers {
		if s == except {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		s.send(msg)
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
