package session

import (
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
)

// broadcastJoin announces user to every authenticated user, itself included,
// then replays the existing roster to user alone. The order matters: peers
// must never hear about a user before that user has been announced.
func (s *Server) broadcastJoin(user *UserConnection) {
	users := s.registry.AuthenticatedUsers()

	joined, err := (&protocol.ClientJoined{UserID: user.userID}).MarshalBinary()
	if err != nil {
		s.logger.Error("failed to encode join notification", "user_id", user.userID, "error", err)
		return
	}
	for _, u := range users {
		s.sendPayload(u.conn, protocol.MsgClientJoined, joined)
	}

	for _, u := range users {
		if u == user {
			continue
		}
		s.send(user.conn, &protocol.ClientJoined{UserID: u.userID})
	}
}

// HandleDisconnect processes the transport's disconnect signal for conn.
// Authenticated users are announced to the remaining peers before removal.
func (s *Server) HandleDisconnect(conn transport.Conn) {
	user, ok := s.registry.Lookup(conn)
	if !ok {
		s.logger.Debug("disconnect for unknown connection", "remote_addr", conn.RemoteAddr())
		return
	}

	if !user.Authenticated() {
		s.registry.Remove(conn)
		s.logger.Debug("unauthenticated connection closed", "connection", conn.ID())
		return
	}

	left, err := (&protocol.ClientLeft{UserID: user.userID}).MarshalBinary()
	if err == nil {
		for _, u := range s.registry.AuthenticatedUsers() {
			if u == user {
				continue
			}
			s.sendPayload(u.conn, protocol.MsgClientLeft, left)
		}
	} else {
		s.logger.Error("failed to encode leave notification", "user_id", user.userID, "error", err)
	}

	s.registry.Remove(conn)

	for _, sync := range s.hooks.sync {
		sync.UserDeparted(user)
	}
	for _, h := range s.hooks.disconnected {
		h.UserDisconnected(user.userID, user)
	}

	if s.actionSender == user.userID {
		s.actionSender = 0
		s.logger.Info("action sender disconnected, designation cleared", "user_id", user.userID)
	}

	s.logger.Info("user disconnected", "user_id", user.userID)
}
