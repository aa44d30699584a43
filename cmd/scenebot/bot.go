package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
	"github.com/wricardo/scenehost/transport/udp"
)

var ErrLoginRejected = errors.New("login rejected")

// link moves whole frames between a bot and the server
type link interface {
	write(frame []byte) error
	read() ([]byte, error)
	close() error
}

type wsLink struct {
	conn *websocket.Conn
}

func (l *wsLink) write(frame []byte) error {
	return l.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (l *wsLink) read() ([]byte, error) {
	_, data, err := l.conn.ReadMessage()
	return data, err
}

func (l *wsLink) close() error {
	l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return l.conn.Close()
}

type udpLink struct {
	conn *net.UDPConn
	buf  []byte
}

func (l *udpLink) write(frame []byte) error {
	_, err := l.conn.Write(frame)
	return err
}

func (l *udpLink) read() ([]byte, error) {
	n, err := l.conn.Read(l.buf)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), l.buf[:n]...), nil
}

func (l *udpLink) close() error {
	l.write(protocol.EncodeFrame(protocol.Frame{MessageID: udp.MsgDisconnect}))
	return l.conn.Close()
}

// Event is a join or leave notification seen by a bot
type Event struct {
	MessageID protocol.MessageID
	UserID    uint32
}

// Bot is a scripted scene client
type Bot struct {
	Name      string
	Protocol  string
	UserID    uint32
	SessionID string

	// Roster holds the users announced before the login reply, the bot
	// itself included.
	Roster []uint32

	link     link
	packetID atomic.Uint32
	frames   chan protocol.Frame
	readErr  error
	logger   *slog.Logger
}

// Dial connects a bot to addr ("host:port") over protocol
func Dial(ctx context.Context, name, proto, addr string, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolved, ok := transport.ParseProtocol(proto)
	if !ok {
		return nil, fmt.Errorf("unknown protocol %q", proto)
	}

	b := &Bot{
		Name:     name,
		Protocol: resolved,
		logger:   logger.With("bot", name),
	}

	switch resolved {
	case transport.ProtocolTCP:
		u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u.String(), err)
		}
		b.link = &wsLink{conn: conn}
	default:
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, err
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		b.link = &udpLink{conn: conn, buf: make([]byte, 65535)}
	}

	b.frames = make(chan protocol.Frame, 64)
	go b.readLoop()
	return b, nil
}

// readLoop feeds frames until the link fails. readErr is set before frames
// is closed.
func (b *Bot) readLoop() {
	defer close(b.frames)
	for {
		data, err := b.link.read()
		if err != nil {
			b.readErr = err
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			b.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		b.frames <- frame
	}
}

func (b *Bot) send(msg protocol.Message) error {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	return b.link.write(protocol.EncodeFrame(protocol.Frame{
		PacketID:  b.packetID.Add(1),
		MessageID: msg.MessageID(),
		Payload:   payload,
	}))
}

func (b *Bot) readFrame(ctx context.Context) (protocol.Frame, error) {
	select {
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	case frame, ok := <-b.frames:
		if !ok {
			return protocol.Frame{}, fmt.Errorf("connection lost: %w", b.readErr)
		}
		return frame, nil
	}
}

// Login sends props and waits for the reply. Join notifications that arrive
// first are collected into Roster.
func (b *Bot) Login(ctx context.Context, props *protocol.Properties) (*protocol.LoginReply, error) {
	doc, err := protocol.MarshalKeyValues("login", props)
	if err != nil {
		return nil, err
	}
	if err := b.send(&protocol.Login{LoginData: doc}); err != nil {
		return nil, fmt.Errorf("send login: %w", err)
	}

	for {
		frame, err := b.readFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("waiting for login reply: %w", err)
		}

		switch frame.MessageID {
		case protocol.MsgClientJoined:
			var joined protocol.ClientJoined
			if err := joined.UnmarshalBinary(frame.Payload); err == nil {
				b.Roster = append(b.Roster, joined.UserID)
			}
		case protocol.MsgLoginReply:
			var reply protocol.LoginReply
			if err := reply.UnmarshalBinary(frame.Payload); err != nil {
				return nil, err
			}
			if !reply.Success {
				return &reply, fmt.Errorf("%w: %s", ErrLoginRejected, reply.ReplyData)
			}
			b.UserID = reply.UserID
			b.SessionID = reply.SessionID
			b.logger.Info("logged in", "user_id", reply.UserID, "session_id", reply.SessionID, "roster", len(b.Roster))
			return &reply, nil
		default:
			b.logger.Debug("ignoring message before login reply", "message", frame.MessageID)
		}
	}
}

// Listen reports join and leave notifications until ctx is done. UDP bots
// send a keepalive every interval so the server does not reap them.
func (b *Bot) Listen(ctx context.Context, interval time.Duration, fn func(Event)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if b.Protocol != transport.ProtocolUDP {
				continue
			}
			if err := b.link.write(protocol.EncodeFrame(protocol.Frame{MessageID: udp.MsgKeepAlive})); err != nil {
				return err
			}
		case frame, ok := <-b.frames:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("connection lost: %w", b.readErr)
			}
			if done := b.handle(frame, fn); done {
				return nil
			}
		}
	}
}

// handle reports frame to fn and returns true once the server ends the session
func (b *Bot) handle(frame protocol.Frame, fn func(Event)) bool {
	switch frame.MessageID {
	case protocol.MsgClientJoined:
		var m protocol.ClientJoined
		if m.UnmarshalBinary(frame.Payload) == nil {
			fn(Event{MessageID: frame.MessageID, UserID: m.UserID})
		}
	case protocol.MsgClientLeft:
		var m protocol.ClientLeft
		if m.UnmarshalBinary(frame.Payload) == nil {
			fn(Event{MessageID: frame.MessageID, UserID: m.UserID})
		}
	case udp.MsgDisconnect:
		b.logger.Info("server closed the session")
		return true
	}
	return false
}

// Close disconnects the bot
func (b *Bot) Close() error {
	return b.link.close()
}
