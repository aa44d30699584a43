package transport

import (
	"errors"
	"strings"

	"github.com/wricardo/scenehost/scene/protocol"
)

var (
	ErrClosed        = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// Conn is one client connection owned by a transport
type Conn interface {
	// ID is unique among the connections of one transport instance.
	ID() uint64
	RemoteAddr() string
	// Send queues a message for delivery without blocking on the network.
	Send(id protocol.MessageID, payload []byte) error
}

// Handler receives connection lifecycle events and inbound messages
type Handler interface {
	ClientConnected(c Conn)
	ClientDisconnected(c Conn)
	MessageReceived(c Conn, packetID uint32, messageID protocol.MessageID, data []byte)
}

// Transport listens on a port and reports events to a Handler
type Transport interface {
	// Protocol returns "tcp" or "udp".
	Protocol() string
	Listen(port int, h Handler) error
	Close() error
}

// Protocol names accepted by Start and the --protocol flag
const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"

	DefaultProtocol = ProtocolUDP
)

// ParseProtocol normalizes a protocol name. The boolean is false when name is
// neither "tcp" nor "udp" (case-insensitive); DefaultProtocol is returned then.
func ParseProtocol(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProtocolTCP:
		return ProtocolTCP, true
	case ProtocolUDP:
		return ProtocolUDP, true
	default:
		return DefaultProtocol, false
	}
}
