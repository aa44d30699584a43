package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/wricardo/scenehost/scene/session"

var (
	ErrUnsupportedProtocol = errors.New("no transport for protocol")
	ErrUserNotFound        = errors.New("user not found")
	ErrNotRunning          = errors.New("server not running")
)

// Options configures a Server
type Options struct {
	// Transports available to Start, keyed by their Protocol().
	Transports []transport.Transport

	// Reactor serializes transport callbacks. When nil, callbacks are
	// handled on whatever goroutine the transport uses.
	Reactor *transport.Reactor

	Logger *slog.Logger

	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
}

// Server is the session context for one listening server
type Server struct {
	transports map[string]transport.Transport
	reactor    *transport.Reactor
	registry   *Registry
	hooks      hooks
	logger     *slog.Logger
	tracer     trace.Tracer

	running   bool
	active    transport.Transport
	port      int
	protocol  string
	sessionID string

	// epoch invalidates callbacks queued by a previous run
	epoch uint64

	lastUserID   uint32
	actionSender uint32
}

// NewServer creates a stopped server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	s := &Server{
		transports: make(map[string]transport.Transport),
		reactor:    opts.Reactor,
		registry:   NewRegistry(),
		logger:     logger.With("component", "session"),
		tracer:     tracer,
	}
	for _, t := range opts.Transports {
		s.transports[t.Protocol()] = t
	}
	return s
}

// Start begins listening. Starting a running server succeeds without side
// effects. An empty or unknown protocol falls back to the default protocol.
func (s *Server) Start(port int, protocol string) error {
	if s.running {
		s.logger.Debug("trying to start server but it's already running")
		return nil
	}

	resolved, ok := transport.ParseProtocol(protocol)
	if !ok && protocol != "" {
		s.logger.Error("invalid server protocol specified, using default",
			"protocol", protocol, "default", resolved)
	}

	t, ok := s.transports[resolved]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProtocol, resolved)
	}

	s.epoch++
	var h transport.Handler = &epochHandler{server: s, epoch: s.epoch}
	if s.reactor != nil {
		h = s.reactor.Wrap(h)
	}

	s.sessionID = NewSessionID()
	s.active = t
	s.port = port
	s.protocol = resolved
	s.running = true

	if err := t.Listen(port, h); err != nil {
		s.running = false
		s.epoch++
		s.active = nil
		s.port = 0
		s.protocol = ""
		s.logger.Error("failed to start server", "port", port, "protocol", resolved, "error", err)
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	s.logger.Info("server started", "port", port, "protocol", resolved, "session_id", s.sessionID)
	for _, h := range s.hooks.lifecycle {
		h.ServerStarted(s)
	}
	return nil
}

// Stop closes the transport and clears all connection state. Events still
// queued from this run are dropped. Stopping a stopped server is a no-op.
func (s *Server) Stop() {
	if !s.running {
		return
	}

	if err := s.active.Close(); err != nil {
		s.logger.Warn("transport close failed", "protocol", s.protocol, "error", err)
	}

	cleared := s.registry.Len()
	s.registry.Clear()
	s.running = false
	s.epoch++
	s.active = nil
	s.port = 0
	s.protocol = ""
	s.actionSender = 0

	s.logger.Info("server stopped", "cleared_connections", cleared)
	for _, h := range s.hooks.lifecycle {
		h.ServerStopped(s)
	}
}

// IsRunning reports whether Start has succeeded and Stop has not been called
func (s *Server) IsRunning() bool { return s.running }

// Port returns the listening port, or 0 when stopped
func (s *Server) Port() int { return s.port }

// Protocol returns "tcp" or "udp", or "" when stopped
func (s *Server) Protocol() string { return s.protocol }

// SessionID returns the identifier of the current run
func (s *Server) SessionID() string { return s.sessionID }

// ConnectionCount returns the number of registered connections,
// authenticated or not
func (s *Server) ConnectionCount() int { return s.registry.Len() }

// AuthenticatedUsers returns authenticated users in join order
func (s *Server) AuthenticatedUsers() []*UserConnection {
	return s.registry.AuthenticatedUsers()
}

// UserConnectionByID returns the authenticated user with the given id
func (s *Server) UserConnectionByID(id uint32) (*UserConnection, bool) {
	if id == 0 {
		return nil, false
	}
	for _, user := range s.registry.AuthenticatedUsers() {
		if user.userID == id {
			return user, true
		}
	}
	return nil, false
}

// UserConnectionByConn returns the record for conn, authenticated or not
func (s *Server) UserConnectionByConn(conn transport.Conn) (*UserConnection, bool) {
	return s.registry.Lookup(conn)
}

// SetActionSender designates user as the action sender. A nil user clears
// the designation. The user must be authenticated.
func (s *Server) SetActionSender(user *UserConnection) error {
	if user == nil {
		s.actionSender = 0
		return nil
	}
	if _, ok := s.UserConnectionByID(user.userID); !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, user)
	}
	s.actionSender = user.userID
	s.logger.Debug("action sender set", "user_id", user.userID)
	return nil
}

// ActionSender resolves the designated action sender, if still connected
func (s *Server) ActionSender() (*UserConnection, bool) {
	return s.UserConnectionByID(s.actionSender)
}

func (s *Server) send(conn transport.Conn, msg protocol.Message) {
	payload, err := msg.MarshalBinary()
	if err != nil {
		s.logger.Error("failed to encode message", "message", msg.MessageID(), "error", err)
		return
	}
	s.sendPayload(conn, msg.MessageID(), payload)
}

func (s *Server) sendPayload(conn transport.Conn, id protocol.MessageID, payload []byte) {
	if err := conn.Send(id, payload); err != nil {
		s.logger.Warn("failed to send message",
			"message", id, "connection", conn.ID(), "error", err)
	}
}

func (s *Server) clientConnected(conn transport.Conn) {
	if _, err := s.registry.Register(conn); err != nil {
		s.logger.Error("failed to register connection", "remote_addr", conn.RemoteAddr(), "error", err)
		return
	}
	s.logger.Debug("connection registered", "connection", conn.ID(), "remote_addr", conn.RemoteAddr())
}

// epochHandler delivers transport callbacks to the run that installed it
type epochHandler struct {
	server *Server
	epoch  uint64
}

func (h *epochHandler) current() bool {
	return h.server.running && h.server.epoch == h.epoch
}

func (h *epochHandler) ClientConnected(c transport.Conn) {
	if !h.current() {
		return
	}
	h.server.clientConnected(c)
}

func (h *epochHandler) ClientDisconnected(c transport.Conn) {
	if !h.current() {
		return
	}
	h.server.HandleDisconnect(c)
}

func (h *epochHandler) MessageReceived(c transport.Conn, packetID uint32, messageID protocol.MessageID, data []byte) {
	if !h.current() {
		h.server.logger.Debug("dropping message from a stopped server run", "message", messageID)
		return
	}
	h.server.Dispatch(c, packetID, messageID, data)
}
