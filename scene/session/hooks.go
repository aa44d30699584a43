package session

import (
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
)

// AboutToConnectHook runs after the login data is merged and the user is
// provisionally authenticated. userID is the id the user receives if the
// login is accepted. Calling user.Reject vetoes the login.
type AboutToConnectHook interface {
	UserAboutToConnect(userID uint32, user *UserConnection)
}

// ConnectedHook runs after a login is accepted and join notifications have
// been sent. Pairs written to response are returned to the client in the
// login reply.
type ConnectedHook interface {
	UserConnected(userID uint32, user *UserConnection, response *protocol.Properties)
}

// RejectedHook runs after a login was vetoed and the failure reply was sent
type RejectedHook interface {
	UserRejected(user *UserConnection)
}

// DisconnectedHook runs after an authenticated user left and peers were told
type DisconnectedHook interface {
	UserDisconnected(userID uint32, user *UserConnection)
}

// MessageHook receives every non-login message from authenticated users
type MessageHook interface {
	MessageReceived(user *UserConnection, packetID uint32, messageID protocol.MessageID, data []byte)
}

// DropReason classifies dropped inbound messages
type DropReason string

const (
	DropUnknownConnection DropReason = "unknown_connection"
	DropUnauthenticated   DropReason = "unauthenticated"
)

// DropHook is told about every inbound message the router refused
type DropHook interface {
	MessageDropped(conn transport.Conn, messageID protocol.MessageID, reason DropReason)
}

// LifecycleHook observes server start and stop
type LifecycleHook interface {
	ServerStarted(s *Server)
	ServerStopped(s *Server)
}

// SceneSync is the scene replication collaborator. It is told when a user
// becomes able to receive scene state and when that user is gone.
type SceneSync interface {
	NewUserConnected(user *UserConnection)
	UserDeparted(user *UserConnection)
}

type hooks struct {
	aboutToConnect []AboutToConnectHook
	connected      []ConnectedHook
	rejected       []RejectedHook
	disconnected   []DisconnectedHook
	message        []MessageHook
	dropped        []DropHook
	lifecycle      []LifecycleHook
	sync           []SceneSync
}

// Observe registers v for every hook interface it implements and returns how
// many interfaces matched.
func (s *Server) Observe(v any) int {
	n := 0
	if h, ok := v.(AboutToConnectHook); ok {
		s.hooks.aboutToConnect = append(s.hooks.aboutToConnect, h)
		n++
	}
	if h, ok := v.(ConnectedHook); ok {
		s.hooks.connected = append(s.hooks.connected, h)
		n++
	}
	if h, ok := v.(RejectedHook); ok {
		s.hooks.rejected = append(s.hooks.rejected, h)
		n++
	}
	if h, ok := v.(DisconnectedHook); ok {
		s.hooks.disconnected = append(s.hooks.disconnected, h)
		n++
	}
	if h, ok := v.(MessageHook); ok {
		s.hooks.message = append(s.hooks.message, h)
		n++
	}
	if h, ok := v.(DropHook); ok {
		s.hooks.dropped = append(s.hooks.dropped, h)
		n++
	}
	if h, ok := v.(LifecycleHook); ok {
		s.hooks.lifecycle = append(s.hooks.lifecycle, h)
		n++
	}
	if h, ok := v.(SceneSync); ok {
		s.hooks.sync = append(s.hooks.sync, h)
		n++
	}
	if n == 0 {
		s.logger.Warn("observer implements no hook interface", "type", typeName(v))
	}
	return n
}
