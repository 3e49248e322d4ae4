package signaling

import (
	"testing"
	"time"
)

func TestSignal_ServerPingsKeepSilentClientAlive(t *testing.T) {
	s, ts := newSignalTestServer(t, Config{
		IdleTimeout:  500 * time.Millisecond,
		PingInterval: 100 * time.Millisecond,
	})

	a := dialSignal(t, ts)
	expectPeers(t, a)
	loginAs(t, a, "alice")
	expectPeers(t, a, "alice")

	// The client sends nothing further. Its read loop answers the server's
	// pings with pongs (gorilla's default ping handler), each of which
	// refreshes the server-side idle deadline.
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg signalMessage
			if err := a.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
		}
	}()

	select {
	case err := <-readErr:
		t.Fatalf("connection died during idle period: %v", err)
	case <-time.After(3 * s.idleTimeout):
	}

	if got := s.PeerCount(); got != 1 {
		t.Fatalf("peer count = %d, want silent-but-ponging client kept", got)
	}
}

func TestSignal_UnresponsiveClientIsReaped(t *testing.T) {
	s, ts := newSignalTestServer(t, Config{
		IdleTimeout:  300 * time.Millisecond,
		PingInterval: 100 * time.Millisecond,
	})

	a := dialSignal(t, ts)
	expectPeers(t, a)
	loginAs(t, a, "alice")
	expectPeers(t, a, "alice")

	// Swallow pings so no pongs go back, then stop reading entirely would
	// also work; either way the server sees no frames within the deadline.
	a.SetPingHandler(func(string) error { return nil })
	go func() {
		for {
			var msg signalMessage
			if err := a.ReadJSON(&msg); err != nil {
				return
			}
		}
	}()

	waitFor(t, "idle connection reaped", func() bool {
		return s.PeerCount() == 0
	})
}
