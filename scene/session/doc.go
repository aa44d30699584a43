// Package session implements the authoritative multi-user session core of the
// scene server.
//
// The session package implements:
//   - The connection registry, the single source of truth for who is online
//     and who is authenticated
//   - The single-shot login handshake with pluggable accept/veto hooks
//   - Message routing that only forwards traffic from authenticated users
//   - Join and leave notifications, including roster replay for new users
//   - The server session context: port, protocol, session id and the
//     designated action sender
//
// Core Types:
//
// Server owns all session state for one server run. UserConnection is the
// record kept per transport connection; it is owned by the Registry and must
// not be retained past its removal.
//
// Concurrency:
//
// Server is not safe for concurrent use. All of its methods, and every hook it
// invokes, run on a single logical thread. When Options.Reactor is set,
// transport callbacks are funnelled through it; other goroutines reach the
// server with Reactor.Do. Hooks run synchronously on that thread and must not
// block.
//
// Hooks:
//
// Observe registers any value implementing one or more hook interfaces
// (AboutToConnectHook, ConnectedHook, RejectedHook, DisconnectedHook,
// MessageHook, DropHook, LifecycleHook, SceneSync). Hooks of the same kind are
// invoked in registration order.
//
// Usage:
//
//	srv := session.NewServer(session.Options{
//		Transports: []transport.Transport{websocket.NewTransport(logger), udp.NewTransport(logger)},
//		Reactor:    reactor,
//		Logger:     logger,
//	})
//	srv.Observe(policy)
//	if err := srv.Start(2345, "udp"); err != nil {
//		log.Fatal(err)
//	}
package session
