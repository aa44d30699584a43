package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer: one frame with a full payload.
	maxMessageSize = protocol.FrameHeaderSize + 2 + 65535

	// Outbound frames buffered per client before it is dropped.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// scene clients are native applications, not browsers
		return true
	},
}

// Client is one websocket connection. It implements transport.Conn.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	addr string

	mu     sync.Mutex
	send   chan []byte
	closed bool

	packetID atomic.Uint32
}

func (c *Client) ID() uint64 { return c.id }

func (c *Client) RemoteAddr() string { return c.addr }

// Send queues one frame. A client whose buffer is full is disconnected.
func (c *Client) Send(id protocol.MessageID, payload []byte) error {
	frame := protocol.EncodeFrame(protocol.Frame{
		PacketID:  c.packetID.Add(1),
		MessageID: id,
		Payload:   payload,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.hub.logger.Warn("client send buffer full, closing", "connection", c.id, "remote_addr", c.addr)
		c.conn.Close()
		return transport.ErrSendQueueFull
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub maintains the set of active clients for one Listen call
type Hub struct {
	handler transport.Handler
	logger  *slog.Logger

	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	done    chan struct{}
	stopped chan struct{}
}

func newHub(h transport.Handler, logger *slog.Logger) *Hub {
	return &Hub{
		handler:    h,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// run is the hub's event loop. It owns the clients map.
func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client registered", "connection", client.id, "total_clients", len(h.clients))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.done:
			for client := range h.clients {
				client.closeSend()
				client.conn.Close()
			}
			h.clients = make(map[*Client]bool)
			return
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.closeSend()
	h.handler.ClientDisconnected(client)
	h.logger.Debug("client unregistered", "connection", client.id, "remaining_clients", len(h.clients))
}

func (h *Hub) stop() {
	close(h.done)
	<-h.stopped
}

// Transport serves scene frames over websocket connections. It is the "tcp"
// protocol of the scene host: the client dials ws://host:port/ and every
// binary message carries exactly one frame.
type Transport struct {
	logger *slog.Logger
	nextID atomic.Uint64

	mu       sync.Mutex
	hub      *Hub
	server   *http.Server
	listener net.Listener
}

// New creates a stopped transport
func New(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{logger: logger.With("component", "websocket")}
}

func (t *Transport) Protocol() string { return transport.ProtocolTCP }

// Listen starts accepting connections on port. Port 0 picks a free port.
// h must be safe for concurrent use; wrap it with a transport.Reactor.
func (t *Transport) Listen(port int, h transport.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		return errors.New("websocket transport already listening")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}

	hub := newHub(h, t.logger)
	go hub.run()

	server := &http.Server{
		Handler:           http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { t.serveWS(hub, w, r) }),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("websocket server stopped", "error", err)
		}
	}()

	t.hub = hub
	t.server = server
	t.listener = ln
	t.logger.Info("websocket transport listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or nil when closed
func (t *Transport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Close stops listening and drops every client without reporting disconnects
func (t *Transport) Close() error {
	t.mu.Lock()
	server, hub := t.server, t.hub
	t.server, t.hub, t.listener = nil, nil, nil
	t.mu.Unlock()

	if server == nil {
		return nil
	}
	err := server.Close()
	hub.stop()
	return err
}

// serveWS upgrades the request and starts the client pumps
func (t *Transport) serveWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := &Client{
		id:   t.nextID.Add(1),
		hub:  hub,
		conn: conn,
		addr: conn.RemoteAddr().String(),
		send: make(chan []byte, sendBuffer),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	// reported before the read pump starts so no message can precede it
	hub.handler.ClientConnected(client)

	go client.writePump()
	go client.readPump()
}

// readPump pumps frames from the websocket connection to the handler
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", "connection", c.id, "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			c.hub.logger.Warn("ignoring non-binary websocket message", "connection", c.id)
			continue
		}

		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			c.hub.logger.Warn("dropping malformed frame", "connection", c.id, "error", err)
			continue
		}
		c.hub.handler.MessageReceived(c, frame.PacketID, frame.MessageID, frame.Payload)
	}
}

// writePump pumps frames from the send buffer to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
