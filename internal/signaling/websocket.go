package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/pairline/internal/config"
	"github.com/ashureev/pairline/internal/domain"
	"github.com/ashureev/pairline/internal/identity"
	"github.com/ashureev/pairline/internal/presence"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// WaitingLeaver removes identities from the waiting list.
type WaitingLeaver interface {
	LeaveWaiting(identity string)
}

// WebSocketHandler serves the signaling websocket.
type WebSocketHandler struct {
	registry      *presence.Registry
	waiting       WaitingLeaver
	relay         *Relay
	cfg           config.SignalingConfig
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(registry *presence.Registry, waiting WaitingLeaver, relay *Relay, cfg config.SignalingConfig, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		registry:      registry,
		waiting:       waiting,
		relay:         relay,
		cfg:           cfg,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// session is the per-connection state owned by the read loop.
type session struct {
	conn     *wsConn
	identity string
	limiter  *rate.Limiter
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", identity.IPFromRequest(r))
		return
	}
	if h.cfg.ReadLimitBytes > 0 {
		ws.SetReadLimit(h.cfg.ReadLimitBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := newWSConn(uuid.NewString(), func(ctx context.Context, frame []byte) error {
		return ws.Write(ctx, websocket.MessageText, frame)
	}, h.cfg.SendQueueSize)
	conn.start(ctx, cancel)

	s := &session{conn: conn, limiter: h.newLimiter()}
	slog.Info("Signaling connection opened", "conn", conn.ID(), "ip", identity.IPFromRequest(r))

	if id := identity.FromRequest(r); id != "" {
		h.register(s, id)
	}

	h.readLoop(ctx, ws, s)

	cancel()
	conn.close()
	h.disconnect(s)
	if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
		slog.Debug("Failed to close websocket", "error", closeErr, "conn", conn.ID())
	}
	slog.Info("Signaling connection closed", "conn", conn.ID(), "user_id", s.identity)
}

func (h *WebSocketHandler) newLimiter() *rate.Limiter {
	if h.cfg.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.MessageBurst)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, s *session) {
	for {
		_, frame, err := ws.Read(ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) != -1:
				slog.Debug("WebSocket closed by client", "conn", s.conn.ID(), "status", websocket.CloseStatus(err))
			case ctx.Err() != nil:
				slog.Debug("WebSocket context done", "conn", s.conn.ID())
			default:
				slog.Warn("WebSocket read error", "error", err, "conn", s.conn.ID())
			}
			return
		}

		if !s.limiter.Allow() {
			slog.Warn("Signaling rate limit exceeded, dropping message", "conn", s.conn.ID(), "user_id", s.identity)
			continue
		}

		env, err := DecodeEnvelope(frame)
		if err != nil {
			slog.Warn("Ignoring malformed signaling message", "conn", s.conn.ID(), "error", err)
			continue
		}
		h.handle(ctx, s, env)
	}
}

func (h *WebSocketHandler) handle(ctx context.Context, s *session, env Envelope) {
	switch env.Event {
	case EventRegister:
		id, err := decodeRegister(env.Data)
		if err != nil {
			slog.Warn("Ignoring malformed register", "conn", s.conn.ID(), "error", err)
			return
		}
		h.register(s, id)
		return

	case EventLeaveWaiting:
		h.leaveWaiting(s, env)
		return
	}

	if s.identity == "" {
		slog.Debug("Ignoring event before register", "conn", s.conn.ID(), "event", env.Event)
		return
	}
	if !h.registry.Owns(s.identity, s.conn) {
		slog.Debug("Ignoring event from orphaned connection", "conn", s.conn.ID(), "user_id", s.identity, "event", env.Event)
		return
	}

	err := h.relay.Dispatch(ctx, s.identity, s.conn, env)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTargetUnreachable):
		slog.Info("Signaling target unreachable", "user_id", s.identity, "event", env.Event, "error", err)
	case errors.Is(err, domain.ErrDuplicateAcceptance):
		slog.Info("Duplicate acceptance suppressed", "user_id", s.identity)
	default:
		slog.Warn("Signaling event dropped", "user_id", s.identity, "event", env.Event, "error", err)
	}
}

func (h *WebSocketHandler) register(s *session, raw string) {
	id, err := identity.Normalize(raw)
	if err != nil {
		slog.Warn("Rejected register", "conn", s.conn.ID(), "error", err)
		return
	}

	if s.identity != "" && s.identity != id {
		h.release(s.identity, s.conn)
	}
	if err := h.registry.Register(id, s.conn); err != nil {
		slog.Warn("Rejected register", "conn", s.conn.ID(), "error", err)
		return
	}
	s.identity = id
}

func (h *WebSocketHandler) leaveWaiting(s *session, env Envelope) {
	id := s.identity
	if len(env.Data) > 0 {
		p, err := decode[leaveWaitingIn](env.Data)
		if err != nil {
			slog.Warn("Ignoring malformed leaveWaiting", "conn", s.conn.ID(), "error", err)
			return
		}
		if p.UserID != "" {
			if s.identity != "" && p.UserID != s.identity {
				slog.Warn("Ignoring leaveWaiting for another identity", "conn", s.conn.ID(), "user_id", s.identity, "requested", p.UserID)
				return
			}
			id = p.UserID
		}
	}
	if id == "" {
		return
	}
	h.waiting.LeaveWaiting(id)
}

func (h *WebSocketHandler) disconnect(s *session) {
	if s.identity == "" {
		return
	}
	h.release(s.identity, s.conn)
}

// release drops identity only while conn still owns it, so a replaced
// connection cannot evict the live one.
func (h *WebSocketHandler) release(id string, conn presence.Conn) {
	if h.registry.Unregister(id, conn) {
		h.waiting.LeaveWaiting(id)
	}
}
