package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eapache/queue"
	"github.com/wricardo/scenehost/scene/protocol"
)

// Reactor executes queued work on a single goroutine, in submission order
type Reactor struct {
	mu      sync.Mutex
	pending *queue.Queue
	wake    chan struct{}
	logger  *slog.Logger
}

// NewReactor creates a reactor. Work is only executed once Run is called.
func NewReactor(logger *slog.Logger) *Reactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
		logger:  logger.With("component", "reactor"),
	}
}

// Post appends fn to the queue without waiting for it to run
func (r *Reactor) Post(fn func()) {
	r.mu.Lock()
	r.pending.Add(fn)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the reactor goroutine and waits for it to return.
// It must not be called from the reactor goroutine itself.
func (r *Reactor) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	r.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued items
func (r *Reactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Length()
}

// Run executes queued work until ctx is cancelled. Work still queued at
// cancellation is dropped.
func (r *Reactor) Run(ctx context.Context) {
	r.logger.Debug("reactor started")
	for {
		fn, ok := r.next()
		if !ok {
			select {
			case <-ctx.Done():
				r.drop()
				return
			case <-r.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			r.drop()
			return
		default:
		}
		r.run(fn)
	}
}

func (r *Reactor) next() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending.Length() == 0 {
		return nil, false
	}
	return r.pending.Remove().(func()), true
}

func (r *Reactor) run(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reactor task panicked", "panic", rec)
		}
	}()
	fn()
}

func (r *Reactor) drop() {
	r.mu.Lock()
	n := r.pending.Length()
	r.pending = queue.New()
	r.mu.Unlock()

	if n > 0 {
		r.logger.Debug("reactor stopped, dropped pending work", "count", n)
	}
}

// Wrap returns a Handler that forwards every callback to h through the queue
func (r *Reactor) Wrap(h Handler) Handler {
	return &queuedHandler{reactor: r, target: h}
}

type queuedHandler struct {
	reactor *Reactor
	target  Handler
}

func (q *queuedHandler) ClientConnected(c Conn) {
	q.reactor.Post(func() { q.target.ClientConnected(c) })
}

func (q *queuedHandler) ClientDisconnected(c Conn) {
	q.reactor.Post(func() { q.target.ClientDisconnected(c) })
}

func (q *queuedHandler) MessageReceived(c Conn, packetID uint32, messageID protocol.MessageID, data []byte) {
	q.reactor.Post(func() { q.target.MessageReceived(c, packetID, messageID, data) })
}
