// Package service provides the control surface of the scene host.
//
// The service package implements:
//   - Starting and stopping the session server
//   - Listing authenticated users and looking them up by id
//   - Designating and clearing the action sender
//   - Reading and reloading the login policy
//
// Architecture:
//
// The session server is owned by a single reactor goroutine. SessionService
// runs every operation on that goroutine through an Executor and returns
// snapshots (StatusInfo, UserInfo) that are safe to hand to other
// goroutines, so the admin API and MCP tools never touch a live
// UserConnection.
//
// Usage:
//
//	reactor := transport.NewReactor(logger)
//	server := session.NewServer(session.Options{Reactor: reactor, ...})
//	svc := service.NewSessionService(server, reactor, service.Options{})
//
//	go reactor.Run(ctx)
//
//	status, err := svc.Start(ctx, 2345, "udp")
package service
