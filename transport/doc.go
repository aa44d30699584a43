// Package transport defines the contract between network transports and the
// session core, and the reactor that serializes transport callbacks.
//
// Transports (see the websocket and udp subpackages) accept connections and
// report three events to a Handler: a client connected, a client disconnected,
// and a framed message arrived. Transports invoke the Handler from their own
// goroutines, so the session core is never handed to a transport directly.
// Instead the Reactor wraps it:
//
//	r := transport.NewReactor(logger)
//	go r.Run(ctx)
//
//	tr := websocket.NewTransport(logger)
//	tr.Listen(2345, r.Wrap(server))
//
// Every callback is appended to a single queue and executed in order by the
// goroutine running Run, giving the core a single logical thread of control.
// Code outside the reactor that needs to read or mutate core state submits a
// closure with Do and waits for it to complete.
package transport
