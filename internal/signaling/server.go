package signaling

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/shek-hrd/datehere/internal/config"
	"github.com/shek-hrd/datehere/internal/metrics"
	"github.com/shek-hrd/datehere/internal/ratelimit"
)

// Config wires together the runtime dependencies for the signaling service.
// Zero values fall back to the defaults in internal/config.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// PresenceMode selects the announcement emitted on login: the full id set
	// to everyone, or a discrete join notice to everyone else.
	PresenceMode config.PresenceMode

	// IdleTimeout closes connections that produce no frame (including pongs)
	// for this long. PingInterval must be shorter so healthy-but-quiet
	// clients keep refreshing the deadline.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueDepth       int

	// MaxConnections caps concurrent signaling connections; 0 is unlimited.
	MaxConnections int
}

// Server implements the relay's WebSocket signaling surface.
//
// One handleSignal invocation is the dispatcher for one connection: it owns
// the protocol state machine (unannounced -> announced -> closed), mutates
// the shared registry, and routes envelopes to the connection they name.
type Server struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	presenceMode config.PresenceMode

	idleTimeout  time.Duration
	pingInterval time.Duration

	maxMessageBytes      int64
	maxMessagesPerSecond int
	sendQueueDepth       int

	connLimiter *ratelimit.ConnLimiter

	reg      *registry
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.PresenceMode == "" {
		cfg.PresenceMode = config.DefaultPresenceMode
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.DefaultSignalingWSIdleTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = config.DefaultSignalingWSPingInterval
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = config.DefaultMaxSignalingMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = config.DefaultMaxSignalingMessagesPerSecond
	}
	if cfg.SendQueueDepth <= 0 {
		cfg.SendQueueDepth = config.DefaultSendQueueDepth
	}

	return &Server{
		log:                  cfg.Logger,
		metrics:              cfg.Metrics,
		presenceMode:         cfg.PresenceMode,
		idleTimeout:          cfg.IdleTimeout,
		pingInterval:         cfg.PingInterval,
		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		sendQueueDepth:       cfg.SendQueueDepth,
		connLimiter:          ratelimit.NewConnLimiter(cfg.MaxConnections),
		reg:                  newRegistry(),
		upgrader: websocket.Upgrader{
			// The relay is deployed behind a reverse proxy that owns origin
			// policy; signaling itself accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /signal", s.handleSignal)
}

// Metrics returns the counter registry the server reports into.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// PeerCount reports how many participants are currently registered.
func (s *Server) PeerCount() int {
	return s.reg.len()
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if !s.connLimiter.Acquire() {
		s.metrics.Inc(metrics.EventConnectionsRefused)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer s.connLimiter.Release()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.Inc(metrics.EventConnectionsAccepted)

	log := s.log.With("conn_id", uuid.NewString())
	p := newPeer(log, conn, s.sendQueueDepth, s.pingInterval, func() {
		s.metrics.Inc(metrics.EventSendQueueDrops)
	})
	go p.writeLoop()

	defer func() {
		p.close()
		if p.id != "" && s.reg.unregisterIf(p.id, p) {
			s.reg.broadcast(leaveMessage(p.id), nil)
			s.metrics.Inc(metrics.EventBroadcasts)
			log.Info("peer left", "id", p.id)
		}
		s.metrics.Inc(metrics.EventDisconnects)
	}()

	// Discovery handshake: tell the new connection who is already here so it
	// can start negotiating without waiting for the next presence broadcast.
	// The connection is unannounced, so the snapshot cannot include it.
	p.send(peersMessage(s.reg.ids()))

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(s.maxMessagesPerSecond), s.maxMessagesPerSecond)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		msgType, msgReader, err := conn.NextReader()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		if !limiter.Allow() {
			s.metrics.Inc(metrics.EventRateLimitCloses)
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		data, err := readLimited(msgReader, s.maxMessageBytes)
		if err != nil {
			if errors.Is(err, errMessageTooLarge) {
				writeClose(conn, websocket.CloseMessageTooBig, "message too large")
			}
			return
		}

		msg, err := parseSignalMessage(data)
		if err != nil {
			// Malformed frames are dropped, not fatal: a best-effort relay
			// degrades by ignoring what it cannot route.
			s.metrics.Inc(metrics.EventMalformedMessages)
			log.Debug("dropping malformed message", "err", err)
			continue
		}

		switch msg.Type {
		case messageTypeLogin:
			s.handleLogin(log, p, msg)
		case messageTypeOffer, messageTypeAnswer, messageTypeCandidate, messageTypeChat:
			s.handleRoute(log, p, msg)
		}
	}
}

// handleLogin registers the caller-supplied identity and announces it.
// An empty id is ignored and the connection stays unannounced and unroutable.
func (s *Server) handleLogin(log *slog.Logger, p *peer, msg signalMessage) {
	if msg.ID == "" {
		log.Debug("ignoring login with empty id")
		return
	}

	if p.id != "" && p.id != msg.ID {
		// Identity change on a live connection: retire the old registration
		// first so the stale id does not linger as routable.
		if s.reg.unregisterIf(p.id, p) {
			s.reg.broadcast(leaveMessage(p.id), p)
			s.metrics.Inc(metrics.EventBroadcasts)
		}
	}

	if cur, ok := s.reg.lookup(msg.ID); ok && cur != sender(p) {
		// Last writer wins: the previous holder becomes a ghost, still
		// connected but unreachable by id until it disconnects.
		s.metrics.Inc(metrics.EventLoginTakeovers)
		log.Warn("identity re-announced by a different connection", "id", msg.ID)
	}

	s.reg.register(msg.ID, p)
	p.id = msg.ID
	s.metrics.Inc(metrics.EventLogins)
	log.Info("peer logged in", "id", msg.ID)

	switch s.presenceMode {
	case config.PresenceModeEvent:
		s.reg.broadcast(joinMessage(msg.ID), p)
	default:
		s.reg.broadcast(peersMessage(s.reg.ids()), nil)
	}
	s.metrics.Inc(metrics.EventBroadcasts)
}

// handleRoute forwards a routed envelope to its target. The stamped sender
// identity is always the server-recorded one; a miss is a normal condition
// (target disconnected mid-flight) and is dropped without telling the sender.
func (s *Server) handleRoute(log *slog.Logger, p *peer, msg signalMessage) {
	if p.id == "" {
		log.Debug("dropping routed message from unannounced connection", "msg_type", msg.Type)
		return
	}

	if s.reg.sendTo(msg.Target, msg.forwarded(p.id)) {
		s.metrics.Inc(metrics.EventMessagesRelayed)
		return
	}
	s.metrics.Inc(metrics.EventRoutingMisses)
	log.Debug("routing miss", "msg_type", msg.Type, "target", msg.Target)
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

var errMessageTooLarge = errors.New("message too large")

func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return nil, errMessageTooLarge
	}
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, errMessageTooLarge
	}
	return b, nil
}
