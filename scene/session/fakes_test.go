package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
)

type sent struct {
	id      protocol.MessageID
	payload []byte
}

type fakeConn struct {
	id uint64

	mu   sync.Mutex
	sent []sent
}

func (c *fakeConn) ID() uint64         { return c.id }
func (c *fakeConn) RemoteAddr() string { return fmt.Sprintf("10.0.0.%d:5000", c.id) }

func (c *fakeConn) Send(id protocol.MessageID, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{id: id, payload: append([]byte(nil), payload...)})
	return nil
}

func (c *fakeConn) messages() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sent, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// joined returns the user ids of every ClientJoined received, in order
func (c *fakeConn) joined() []uint32 {
	var ids []uint32
	for _, m := range c.messages() {
		if m.id != protocol.MsgClientJoined {
			continue
		}
		var msg protocol.ClientJoined
		if err := msg.UnmarshalBinary(m.payload); err == nil {
			ids = append(ids, msg.UserID)
		}
	}
	return ids
}

func (c *fakeConn) left() []uint32 {
	var ids []uint32
	for _, m := range c.messages() {
		if m.id != protocol.MsgClientLeft {
			continue
		}
		var msg protocol.ClientLeft
		if err := msg.UnmarshalBinary(m.payload); err == nil {
			ids = append(ids, msg.UserID)
		}
	}
	return ids
}

func (c *fakeConn) lastReply() (protocol.LoginReply, bool) {
	msgs := c.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].id != protocol.MsgLoginReply {
			continue
		}
		var reply protocol.LoginReply
		if err := reply.UnmarshalBinary(msgs[i].payload); err != nil {
			return protocol.LoginReply{}, false
		}
		return reply, true
	}
	return protocol.LoginReply{}, false
}

type fakeTransport struct {
	protocol  string
	listenErr error

	handler transport.Handler
	port    int
	closed  int
	nextID  uint64
}

func (t *fakeTransport) Protocol() string { return t.protocol }

func (t *fakeTransport) Listen(port int, h transport.Handler) error {
	if t.listenErr != nil {
		return t.listenErr
	}
	t.handler = h
	t.port = port
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed++
	t.handler = nil
	return nil
}

func (t *fakeTransport) connect() *fakeConn {
	t.nextID++
	c := &fakeConn{id: t.nextID}
	t.handler.ClientConnected(c)
	return c
}

func (t *fakeTransport) login(c *fakeConn, doc string) {
	payload, err := (&protocol.Login{LoginData: []byte(doc)}).MarshalBinary()
	if err != nil {
		panic(err)
	}
	t.handler.MessageReceived(c, 1, protocol.MsgLogin, payload)
}

var errListen = errors.New("address already in use")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer() (*Server, *fakeTransport, *fakeTransport) {
	udp := &fakeTransport{protocol: transport.ProtocolUDP}
	tcp := &fakeTransport{protocol: transport.ProtocolTCP}
	s := NewServer(Options{
		Transports: []transport.Transport{udp, tcp},
		Logger:     quietLogger(),
	})
	return s, udp, tcp
}

// recorder implements every hook and records the calls in order
type recorder struct {
	events []string

	veto      func(userID uint32, user *UserConnection)
	respond   func(response *protocol.Properties)
	aboutIDs  []uint32
	connected []uint32
	messages  []protocol.MessageID
	drops     []DropReason
}

func (r *recorder) UserAboutToConnect(userID uint32, user *UserConnection) {
	r.events = append(r.events, "about")
	r.aboutIDs = append(r.aboutIDs, userID)
	if r.veto != nil {
		r.veto(userID, user)
	}
}

func (r *recorder) UserConnected(userID uint32, user *UserConnection, response *protocol.Properties) {
	r.events = append(r.events, "connected")
	r.connected = append(r.connected, userID)
	if r.respond != nil {
		r.respond(response)
	}
}

func (r *recorder) UserRejected(user *UserConnection) {
	r.events = append(r.events, "rejected")
}

func (r *recorder) UserDisconnected(userID uint32, user *UserConnection) {
	r.events = append(r.events, fmt.Sprintf("disconnected:%d", userID))
}

func (r *recorder) MessageReceived(user *UserConnection, packetID uint32, id protocol.MessageID, data []byte) {
	r.events = append(r.events, "message")
	r.messages = append(r.messages, id)
}

func (r *recorder) MessageDropped(conn transport.Conn, id protocol.MessageID, reason DropReason) {
	r.drops = append(r.drops, reason)
}

func (r *recorder) ServerStarted(s *Server) { r.events = append(r.events, "started") }
func (r *recorder) ServerStopped(s *Server) { r.events = append(r.events, "stopped") }

type syncRecorder struct {
	added   []uint32
	removed []uint32
}

func (s *syncRecorder) NewUserConnected(user *UserConnection) {
	s.added = append(s.added, user.UserID())
}

func (s *syncRecorder) UserDeparted(user *UserConnection) {
	s.removed = append(s.removed, user.UserID())
}
