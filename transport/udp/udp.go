// Package udp provides the "udp" transport of the scene host.
//
// Every datagram carries exactly one protocol frame. A peer is identified by
// its remote address and comes into existence with its first datagram. Two
// message ids are reserved for the transport itself: MsgKeepAlive refreshes
// the peer without being delivered, and MsgDisconnect ends the peer. Peers
// that stay silent for longer than the idle timeout are reaped and reported
// as disconnected.
package udp

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
)

// Reserved transport control messages
const (
	MsgKeepAlive  protocol.MessageID = 0xFFF0
	MsgDisconnect protocol.MessageID = 0xFFF1
)

// DefaultIdleTimeout is how long a silent peer is kept
const DefaultIdleTimeout = 30 * time.Second

const maxDatagramSize = 65507

// Peer is one remote address talking to the transport. It implements
// transport.Conn.
type Peer struct {
	id       uint64
	addr     *net.UDPAddr
	conn     *net.UDPConn
	packetID atomic.Uint32
	lastSeen atomic.Int64
	closed   atomic.Bool
}

func (p *Peer) ID() uint64 { return p.id }

func (p *Peer) RemoteAddr() string { return p.addr.String() }

// Send writes one frame to the peer
func (p *Peer) Send(id protocol.MessageID, payload []byte) error {
	if p.closed.Load() {
		return transport.ErrClosed
	}
	frame := protocol.EncodeFrame(protocol.Frame{
		PacketID:  p.packetID.Add(1),
		MessageID: id,
		Payload:   payload,
	})
	_, err := p.conn.WriteToUDP(frame, p.addr)
	return err
}

func (p *Peer) touch(now time.Time) {
	p.lastSeen.Store(now.UnixNano())
}

func (p *Peer) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, p.lastSeen.Load()))
}

// Options configures a Transport
type Options struct {
	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Transport serves scene frames over UDP datagrams
type Transport struct {
	idleTimeout time.Duration
	logger      *slog.Logger
	nextID      atomic.Uint64

	mu      sync.Mutex
	conn    *net.UDPConn
	handler transport.Handler
	peers   map[string]*Peer
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped transport
func New(opts Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Transport{
		idleTimeout: idle,
		logger:      logger.With("component", "udp"),
	}
}

func (t *Transport) Protocol() string { return transport.ProtocolUDP }

// Listen binds port and starts reading datagrams. Port 0 picks a free port.
// h must be safe for concurrent use; wrap it with a transport.Reactor.
func (t *Transport) Listen(port int, h transport.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return errors.New("udp transport already listening")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return err
	}

	t.conn = conn
	t.handler = h
	t.peers = make(map[string]*Peer)
	t.done = make(chan struct{})

	t.wg.Add(2)
	go t.readLoop(conn, t.done)
	go t.reapLoop(t.done)

	t.logger.Info("udp transport listening", "addr", conn.LocalAddr().String())
	return nil
}

// Addr returns the bound address, or nil when closed
func (t *Transport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// PeerCount returns the number of live peers
func (t *Transport) PeerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// Close tells every peer it is disconnected, then releases the socket.
// Disconnects are not reported to the handler.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return nil
	}
	peers := t.peers
	t.conn = nil
	t.peers = nil
	t.handler = nil
	close(t.done)
	t.mu.Unlock()

	for _, p := range peers {
		_ = p.Send(MsgDisconnect, nil)
		p.closed.Store(true)
	}

	err := conn.Close()
	t.wg.Wait()
	return err
}

func (t *Transport) readLoop(conn *net.UDPConn, done chan struct{}) {
	defer t.wg.Done()
	buf := make([]byte, maxDatagramSize)

	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warn("udp read failed", "error", err)
			continue
		}

		frame, err := protocol.DecodeFrame(buf[:n])
		if err != nil {
			t.logger.Debug("dropping malformed datagram", "remote_addr", addr.String(), "error", err)
			continue
		}
		payload := append([]byte(nil), frame.Payload...)
		t.deliver(conn, addr, frame.PacketID, frame.MessageID, payload)
	}
}

func (t *Transport) deliver(conn *net.UDPConn, addr *net.UDPAddr, packetID uint32, id protocol.MessageID, payload []byte) {
	key := addr.String()
	now := time.Now()

	t.mu.Lock()
	if t.peers == nil {
		t.mu.Unlock()
		return
	}
	h := t.handler
	peer, known := t.peers[key]

	if id == MsgDisconnect {
		if known {
			delete(t.peers, key)
			peer.closed.Store(true)
		}
		t.mu.Unlock()
		if known {
			t.logger.Debug("peer disconnected", "remote_addr", key)
			h.ClientDisconnected(peer)
		}
		return
	}

	if !known {
		peer = &Peer{id: t.nextID.Add(1), addr: addr, conn: conn}
		t.peers[key] = peer
	}
	peer.touch(now)
	t.mu.Unlock()

	if !known {
		t.logger.Debug("peer connected", "remote_addr", key)
		h.ClientConnected(peer)
	}
	if id == MsgKeepAlive {
		return
	}
	h.MessageReceived(peer, packetID, id, payload)
}

func (t *Transport) reapLoop(done chan struct{}) {
	defer t.wg.Done()
	interval := t.idleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			t.reap(now)
		}
	}
}

func (t *Transport) reap(now time.Time) {
	t.mu.Lock()
	if t.peers == nil {
		t.mu.Unlock()
		return
	}
	h := t.handler
	var idle []*Peer
	for key, p := range t.peers {
		if p.idleSince(now) > t.idleTimeout {
			idle = append(idle, p)
			delete(t.peers, key)
		}
	}
	t.mu.Unlock()

	for _, p := range idle {
		t.logger.Info("reaping idle peer", "remote_addr", p.RemoteAddr(), "idle", p.idleSince(now).Round(time.Millisecond))
		_ = p.Send(MsgDisconnect, nil)
		p.closed.Store(true)
		h.ClientDisconnected(p)
	}
}
