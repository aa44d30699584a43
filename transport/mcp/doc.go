// Package mcp provides the Model Context Protocol interface of the scene host.
//
// The mcp package implements:
//   - An MCP server whose tools proxy the admin REST API
//   - A JSON-RPC over HTTP handler for the /mcp endpoint
//
// MCP Tools:
//
// The package exposes the following tools:
//   - server_status: Running state, port, protocol and user counts
//   - start_server: Start listening with optional port and protocol
//   - stop_server: Stop and drop every connection
//   - list_users: Authenticated users in join order
//   - get_user: Details of one user
//   - set_action_sender: Designate the action sender
//   - clear_action_sender: Remove the designation
//   - get_policy: Login policy in effect
//   - reload_policy: Re-read the policy file
//
// Transport Modes:
//
// The server supports two transport modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer()) for local MCP clients
//   - HTTP: the Client itself is an http.Handler for one message per POST
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//
//	// Stdio mode
//	server.ServeStdio(client.GetMCPServer())
//
//	// HTTP mode
//	mux.Handle("/mcp", client)
//
// The client never touches the session server directly: every tool is a
// REST call, so the MCP surface and the admin API cannot drift apart.
package mcp
