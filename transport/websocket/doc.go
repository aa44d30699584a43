// Package websocket provides the "tcp" transport of the scene host.
//
// The websocket package implements:
//   - An HTTP listener that upgrades every request to a websocket
//   - One binary websocket message per protocol frame, in both directions
//   - Ping/pong keep-alive with read and write deadlines
//   - Per-client send buffers; a client that cannot keep up is dropped
//
// Architecture:
//
// A Hub is created for every Listen call and owns the set of clients. Each
// client has a read pump, which decodes frames and hands them to the
// transport.Handler, and a write pump, which drains the client's send buffer
// and sends pings. Unregistering a client from the hub reports the
// disconnect exactly once.
//
// Usage:
//
//	t := websocket.New(logger)
//	if err := t.Listen(2345, reactor.Wrap(handler)); err != nil {
//		return err
//	}
//	defer t.Close()
//
// Concurrency:
//
// Handler callbacks arrive from the hub and from every read pump, so the
// handler must be safe for concurrent use. The scene host always wraps it
// with a transport.Reactor.
package websocket
