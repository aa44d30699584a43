package session

import (
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
)

// Dispatch routes one inbound message. Login messages go to the handshake;
// anything else is forwarded to MessageHooks only if the sender is
// authenticated.
func (s *Server) Dispatch(conn transport.Conn, packetID uint32, messageID protocol.MessageID, data []byte) {
	user, ok := s.registry.Lookup(conn)
	if !ok {
		s.logger.Warn("dropping message from unknown connection",
			"message", messageID, "remote_addr", conn.RemoteAddr())
		s.dropped(conn, messageID, DropUnknownConnection)
		return
	}

	if messageID == protocol.MsgLogin {
		s.HandleLogin(conn, data)
		return
	}

	if !user.Authenticated() {
		s.logger.Warn("dropping message from unauthenticated user",
			"message", messageID, "connection", conn.ID())
		s.dropped(conn, messageID, DropUnauthenticated)
		return
	}

	for _, h := range s.hooks.message {
		h.MessageReceived(user, packetID, messageID, data)
	}
}

func (s *Server) dropped(conn transport.Conn, messageID protocol.MessageID, reason DropReason) {
	for _, h := range s.hooks.dropped {
		h.MessageDropped(conn, messageID, reason)
	}
}
