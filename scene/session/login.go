package session

import (
	"context"
	"time"

	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Rejection reasons produced by the handshake itself
const (
	ReasonAlreadyAuthenticated = "already authenticated"
	ReasonLoginAttempted       = "login already attempted"
)

// replyRoot is the root element of login reply documents
const replyRoot = "response"

// HandleLogin runs the login handshake for conn. A connection gets exactly one
// login attempt; later Login messages are answered with a failure and leave
// the connection's state untouched.
func (s *Server) HandleLogin(conn transport.Conn, payload []byte) {
	user, ok := s.registry.Lookup(conn)
	if !ok {
		s.logger.Warn("login message from unknown connection", "remote_addr", conn.RemoteAddr())
		return
	}

	_, span := s.tracer.Start(context.Background(), "session.login",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int64("scene.connection_id", int64(conn.ID())),
			attribute.String("scene.remote_addr", conn.RemoteAddr()),
		),
	)
	defer span.End()

	switch user.state {
	case StateAuthenticated:
		s.logger.Warn("login attempt on authenticated connection", "user_id", user.userID)
		s.replyFailure(user, ReasonAlreadyAuthenticated)
		span.SetStatus(codes.Error, ReasonAlreadyAuthenticated)
		return
	case StateRejected:
		s.logger.Warn("repeated login attempt on rejected connection", "connection", conn.ID())
		s.replyFailure(user, ReasonLoginAttempted)
		span.SetStatus(codes.Error, ReasonLoginAttempted)
		return
	}

	var msg protocol.Login
	parsed := protocol.NewProperties()
	if err := msg.UnmarshalBinary(payload); err != nil {
		// handled as a login without data; the document is not parsed
		s.logger.Warn("received truncated login message", "connection", conn.ID(), "error", err)
		msg.LoginData = nil
	} else {
		var err error
		if parsed, err = protocol.ParseKeyValues(msg.LoginData); err != nil {
			s.logger.Warn("received malformed login data", "connection", conn.ID(), "error", err)
		}
	}
	user.loginData = msg.LoginData
	user.properties.Merge(parsed)
	user.setAuthenticated()

	pendingID := s.lastUserID + 1
	for _, h := range s.hooks.aboutToConnect {
		h.UserAboutToConnect(pendingID, user)
	}

	if !user.Authenticated() {
		user.state = StateRejected
		s.logger.Info("user was denied access", "connection", conn.ID(), "reason", user.Reason())
		s.replyFailure(user, user.Reason())
		for _, h := range s.hooks.rejected {
			h.UserRejected(user)
		}
		span.SetAttributes(attribute.String("scene.login_result", "rejected"))
		span.SetStatus(codes.Error, user.Reason())
		return
	}

	s.lastUserID = pendingID
	user.userID = pendingID
	user.state = StateAuthenticated
	user.loginAt = time.Now()
	s.registry.Promote(conn)

	s.logger.Info("user logged in", "user_id", user.userID, "remote_addr", conn.RemoteAddr())

	s.broadcastJoin(user)

	for _, sync := range s.hooks.sync {
		sync.NewUserConnected(user)
	}

	response := protocol.NewProperties()
	for _, h := range s.hooks.connected {
		h.UserConnected(user.userID, user, response)
	}

	var replyData []byte
	if response.Len() > 0 {
		var err error
		replyData, err = protocol.MarshalKeyValues(replyRoot, response)
		if err != nil {
			s.logger.Error("failed to encode login response data", "user_id", user.userID, "error", err)
			replyData = nil
		}
	}

	s.send(conn, &protocol.LoginReply{
		Success:   true,
		UserID:    user.userID,
		SessionID: s.sessionID,
		ReplyData: replyData,
	})

	span.SetAttributes(
		attribute.String("scene.login_result", "accepted"),
		attribute.Int64("scene.user_id", int64(user.userID)),
	)
	span.SetStatus(codes.Ok, "")
}

func (s *Server) replyFailure(user *UserConnection, reason string) {
	s.send(user.conn, &protocol.LoginReply{
		Success:   false,
		ReplyData: []byte(reason),
	})
}
