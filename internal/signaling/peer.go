package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 1 * time.Second

// peer is the relay-side handle for one live WebSocket connection.
//
// A single writer goroutine drains a bounded queue so emits from other
// connections' read loops never block. When the queue is full the frame is
// dropped; the relay adds no buffering beyond this queue and leaves delivery
// guarantees to the transport.
type peer struct {
	log  *slog.Logger
	conn *websocket.Conn

	// id is the registered identity, empty while unannounced. Written only by
	// this connection's read loop.
	id string

	sendCh chan signalMessage

	done      chan struct{}
	closeOnce sync.Once

	pingInterval time.Duration
	onQueueDrop  func()
}

func newPeer(log *slog.Logger, conn *websocket.Conn, queueDepth int, pingInterval time.Duration, onQueueDrop func()) *peer {
	return &peer{
		log:          log,
		conn:         conn,
		sendCh:       make(chan signalMessage, queueDepth),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		onQueueDrop:  onQueueDrop,
	}
}

// send queues msg for delivery. It never blocks: a closed connection or a
// full queue drops the frame and reports false.
func (p *peer) send(msg signalMessage) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.sendCh <- msg:
		return true
	case <-p.done:
		return false
	default:
		if p.onQueueDrop != nil {
			p.onQueueDrop()
		}
		p.log.Debug("send queue full, dropping frame", "msg_type", msg.Type)
		return false
	}
}

// writeLoop is the connection's only writer. It also owns keepalive pings;
// a failed write closes the underlying connection, which unblocks the read
// loop and triggers cleanup there.
func (p *peer) writeLoop() {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-p.sendCh:
			_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				p.log.Debug("write failed", "err", err)
				_ = p.conn.Close()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				p.log.Debug("ping failed", "err", err)
				_ = p.conn.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// close marks the peer dead and stops the writer. Safe to call repeatedly.
func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}
