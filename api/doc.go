// Package api provides the admin HTTP REST API of the scene host.
//
// The api package implements:
//   - Starting, stopping and inspecting the session server
//   - Listing authenticated users and looking them up by id
//   - Designating and clearing the action sender
//   - Reading and reloading the login policy
//   - Prometheus metrics exposition
//
// Endpoints:
//
// Server:
//   - GET /api/server - Current status
//   - POST /api/server/start - Start listening, body {"port": 2345, "protocol": "udp"} (both optional)
//   - POST /api/server/stop - Stop and drop every connection
//
// Users:
//   - GET /api/users - Authenticated users in join order
//   - GET /api/users/{id} - One user
//
// Action Sender:
//   - GET /api/action-sender - The designated user
//   - PUT /api/action-sender - Designate a user, body {"user_id": 1}
//   - DELETE /api/action-sender - Clear the designation
//
// Policy:
//   - GET /api/policy - Policy in effect, password masked
//   - POST /api/policy/reload - Re-read the policy file
//
// Other:
//   - GET /health - Liveness
//   - GET /metrics - Prometheus exposition
//
// Usage:
//
//	server := api.NewServer(sessionService, api.Options{Gatherer: registry})
//	http.ListenAndServe("localhost:8080", server)
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate status code:
//
//	{
//	  "error": "user not found: 7"
//	}
//
// Unknown users, a missing action sender and a missing policy file map to
// 404; operations that need a running server map to 409.
package api
