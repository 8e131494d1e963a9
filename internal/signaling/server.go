// Package signaling implements the WebSocket signaling surface: connection
// lifecycle, the inbound event dispatcher, and the room relay fan-out.
package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/watchparty/signaling-relay/internal/metrics"
	"github.com/watchparty/signaling-relay/internal/origin"
	"github.com/watchparty/signaling-relay/internal/ratelimit"
	"github.com/watchparty/signaling-relay/internal/room"
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	State   *room.State
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// AllowedOrigins is the browser Origin allowlist for the WebSocket
	// upgrade. Empty means same-host only; "*" allows everything.
	AllowedOrigins []string

	// Inbound hardening knobs. Zero values select conservative defaults.
	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// Clock drives the per-connection message rate limiter. Nil uses the
	// wall clock.
	Clock ratelimit.Clock
}

// Server handles GET /ws. One instance serves all connections; it owns the
// peer registry and is the only caller of the room state container.
type Server struct {
	state   *room.State
	metrics *metrics.Metrics
	log     *slog.Logger

	allowedOrigins       []string
	idleTimeout          time.Duration
	pingInterval         time.Duration
	maxMessageBytes      int64
	maxMessagesPerSecond int
	clock                ratelimit.Clock

	mu    sync.Mutex
	peers map[room.ConnID]*peer
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Server{
		state:   cfg.State,
		metrics: cfg.Metrics,
		log:     cfg.Logger,

		allowedOrigins:       cfg.AllowedOrigins,
		idleTimeout:          cfg.IdleTimeout,
		pingInterval:         cfg.PingInterval,
		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		clock:                cfg.Clock,

		peers: make(map[room.ConnID]*peer),
	}
}

func (s *Server) idleTimeoutOrDefault() time.Duration {
	if s.idleTimeout <= 0 {
		return 60 * time.Second
	}
	return s.idleTimeout
}

func (s *Server) pingIntervalOrDefault() time.Duration {
	if s.pingInterval <= 0 {
		return 20 * time.Second
	}
	return s.pingInterval
}

func (s *Server) maxMessageBytesOrDefault() int64 {
	if s.maxMessageBytes <= 0 {
		return 64 * 1024
	}
	return s.maxMessageBytes
}

func (s *Server) maxMessagesPerSecondOrDefault() int {
	if s.maxMessagesPerSecond <= 0 {
		return 50
	}
	return s.maxMessagesPerSecond
}

func (s *Server) checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		// Non-browser clients (tests, CLIs) send no Origin.
		return true
	}
	normalized, host, ok := origin.Normalize(header)
	if !ok {
		return false
	}
	return origin.Allowed(normalized, host, r.Host, s.allowedOrigins)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	connID, err := newConnID()
	if err != nil {
		s.log.Error("failed to generate connection id", "err", err)
		_ = conn.Close()
		return
	}

	p := newPeer(connID, conn)
	s.mu.Lock()
	s.peers[connID] = p
	s.mu.Unlock()

	go p.writeLoop(s.pingIntervalOrDefault())

	userID := s.state.Connect(connID)
	s.metrics.ConnectionsTotal.Inc()
	s.syncGauges()
	s.log.Info("connected", "conn_id", connID, "user_id", userID)

	// Identity is pushed before any other traffic; the out queue is FIFO
	// with a single writer, so ordering holds.
	s.emit(p, EventUserID, userIDPayload{UserID: userID})

	s.readLoop(p)
	s.disconnect(p)
}

func (s *Server) readLoop(p *peer) {
	idle := s.idleTimeoutOrDefault()
	p.conn.SetReadLimit(s.maxMessageBytesOrDefault())
	_ = p.conn.SetReadDeadline(time.Now().Add(idle))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(idle))
	})

	rate := int64(s.maxMessagesPerSecondOrDefault())
	limiter := ratelimit.NewTokenBucket(s.clock, rate, rate)

	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(idle))

		if !limiter.Allow(1) {
			s.metrics.RateLimitedTotal.Inc()
			s.closeWith(p, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			s.closeWith(p, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			// Tolerate malformed frames; the protocol is permissive.
			s.log.Debug("ignoring unparseable message", "conn_id", p.id)
			continue
		}
		s.dispatch(p, env)
	}
}

// disconnect tears down a connection: registry entry, room membership, and
// departure notices to the remaining members of the affected room. It is
// safe to call for an already-removed connection.
func (s *Server) disconnect(p *peer) {
	s.mu.Lock()
	delete(s.peers, p.id)
	s.mu.Unlock()

	userID, dep := s.state.Disconnect(p.id)
	if dep != nil && len(dep.Remaining) > 0 {
		s.broadcast(dep.Remaining, EventUserDisconnected, userDisconnectedPayload{UserID: dep.UserID})
	}
	if dep != nil && len(dep.Remaining) == 0 {
		s.log.Info("room deleted", "room_id", dep.RoomID)
	}
	s.syncGauges()
	s.log.Info("disconnected", "conn_id", p.id, "user_id", userID)

	p.close()
}

// emit sends one event to one connection, fire-and-forget.
func (s *Server) emit(p *peer, event string, payload any) {
	frame, err := marshalEnvelope(event, payload)
	if err != nil {
		s.log.Error("failed to encode event", "event", event, "err", err)
		return
	}
	if !p.enqueue(frame) {
		s.metrics.DroppedEmitsTotal.Inc()
		s.log.Warn("dropped emit", "event", event, "conn_id", p.id)
	}
}

// broadcast fans one event out to a snapshot of target connections. The
// frame is marshaled once; failure to deliver to one target never affects
// the rest.
func (s *Server) broadcast(targets []room.ConnID, event string, payload any) {
	if len(targets) == 0 {
		return
	}
	frame, err := marshalEnvelope(event, payload)
	if err != nil {
		s.log.Error("failed to encode event", "event", event, "err", err)
		return
	}

	s.mu.Lock()
	peers := make([]*peer, 0, len(targets))
	for _, id := range targets {
		if p, ok := s.peers[id]; ok {
			peers = append(peers, p)
		}
	}
	s.mu.Unlock()

	for _, p := range peers {
		if !p.enqueue(frame) {
			s.metrics.DroppedEmitsTotal.Inc()
			s.log.Warn("dropped emit", "event", event, "conn_id", p.id)
		}
	}
}

func marshalEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: event, Data: data})
}

func (s *Server) closeWith(p *peer, code int, reason string) {
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func (s *Server) syncGauges() {
	rooms, conns := s.state.Counts()
	s.metrics.RoomsActive.Set(float64(rooms))
	s.metrics.ConnectionsOpen.Set(float64(conns))
}

// Close drops all live connections. Used on shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}
