package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/scene/service"
)

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (string, bool) {
	t.Helper()
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}

	result, err := handler(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text, result.IsError
}

type recordedRequest struct {
	method string
	path   string
	body   map[string]interface{}
}

// fakeAPI serves canned JSON responses keyed by "METHOD path"
func fakeAPI(t *testing.T, responses map[string]interface{}) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&rec.body)
		}
		requests = append(requests, rec)

		resp, ok := responses[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "user not found: 9"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.GetMCPServer())
}

func TestClient_apiCall_Error(t *testing.T) {
	server, _ := fakeAPI(t, nil)
	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api/users/9", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "user not found: 9", err.Error())

	client = NewClient("http://127.0.0.1:1")
	assert.Error(t, client.apiCall(context.Background(), "GET", "/api/server", nil, nil))
}

func TestHandleServerStatus(t *testing.T) {
	server, _ := fakeAPI(t, map[string]interface{}{
		"GET /api/server": service.StatusInfo{
			Running: true, Port: 2345, Protocol: "udp", SessionID: "beef",
			Connections: 3, AuthenticatedUsers: 2, ActionSender: 1,
		},
	})
	client := NewClient(server.URL)

	text, isErr := callTool(t, client.handleServerStatus, nil)
	assert.False(t, isErr)
	for _, want := range []string{"running", "Port: 2345", "Protocol: udp", "Session: beef", "authenticated: 2", "Action sender: 1"} {
		assert.Contains(t, text, want)
	}
}

func TestHandleServerStatus_Stopped(t *testing.T) {
	server, _ := fakeAPI(t, map[string]interface{}{
		"GET /api/server": service.StatusInfo{},
	})
	text, _ := callTool(t, NewClient(server.URL).handleServerStatus, nil)
	assert.Contains(t, text, "stopped")
}

func TestHandleStartServer(t *testing.T) {
	server, requests := fakeAPI(t, map[string]interface{}{
		"POST /api/server/start": service.StatusInfo{Running: true, Port: 7000, Protocol: "tcp"},
	})
	client := NewClient(server.URL)

	text, isErr := callTool(t, client.handleStartServer, map[string]interface{}{
		"port":     float64(7000),
		"protocol": "tcp",
	})
	assert.False(t, isErr)
	assert.Contains(t, text, "Server started")
	assert.Contains(t, text, "Port: 7000")

	require.Len(t, *requests, 1)
	assert.Equal(t, float64(7000), (*requests)[0].body["port"])
	assert.Equal(t, "tcp", (*requests)[0].body["protocol"])

	_, isErr = callTool(t, client.handleStartServer, map[string]interface{}{"port": "seven"})
	assert.True(t, isErr)
	assert.Len(t, *requests, 1)

	// no arguments: the server picks its defaults
	_, isErr = callTool(t, client.handleStartServer, nil)
	assert.False(t, isErr)
	require.Len(t, *requests, 2)
	assert.Empty(t, (*requests)[1].body)
}

func TestHandleStopServer(t *testing.T) {
	server, requests := fakeAPI(t, map[string]interface{}{
		"POST /api/server/stop": service.StatusInfo{},
	})

	text, isErr := callTool(t, NewClient(server.URL).handleStopServer, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "Server stopped")
	assert.Equal(t, "POST", (*requests)[0].method)
}

func TestHandleListUsers(t *testing.T) {
	login := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	server, _ := fakeAPI(t, map[string]interface{}{
		"GET /api/users": map[string]interface{}{
			"count": 2,
			"users": []service.UserInfo{
				{ID: 1, RemoteAddr: "10.0.0.1:5000", Properties: map[string]string{"username": "alice"}, LoginAt: login, ActionSender: true},
				{ID: 2, RemoteAddr: "10.0.0.2:5000", LoginAt: login},
			},
		},
	})

	text, isErr := callTool(t, NewClient(server.URL).handleListUsers, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "Authenticated Users (2)")
	assert.Contains(t, text, "- 1 alice (10.0.0.1:5000, since 15:04:05) [action sender]")
	assert.Contains(t, text, "- 2 (anonymous)")
}

func TestHandleGetUser(t *testing.T) {
	server, requests := fakeAPI(t, map[string]interface{}{
		"GET /api/users/3": service.UserInfo{
			ID: 3, RemoteAddr: "10.0.0.3:5000",
			Properties: map[string]string{"username": "carol", "avatar": "fox"},
		},
	})
	client := NewClient(server.URL)

	text, isErr := callTool(t, client.handleGetUser, map[string]interface{}{"user_id": float64(3)})
	assert.False(t, isErr)
	assert.Contains(t, text, "User 3: carol")
	assert.Contains(t, text, "avatar = fox")
	assert.Equal(t, "/api/users/3", (*requests)[0].path)

	text, isErr = callTool(t, client.handleGetUser, map[string]interface{}{"user_id": float64(9)})
	assert.True(t, isErr)
	assert.Contains(t, text, "user not found")

	for _, bad := range []interface{}{nil, "3", float64(0), float64(-1), float64(1.5)} {
		_, isErr = callTool(t, client.handleGetUser, map[string]interface{}{"user_id": bad})
		assert.True(t, isErr, "user_id %v", bad)
	}
}

func TestHandleActionSenderTools(t *testing.T) {
	server, requests := fakeAPI(t, map[string]interface{}{
		"PUT /api/action-sender":    service.UserInfo{ID: 4, ActionSender: true},
		"DELETE /api/action-sender": map[string]string{"message": "Action sender cleared"},
	})
	client := NewClient(server.URL)

	text, isErr := callTool(t, client.handleSetActionSender, map[string]interface{}{"user_id": float64(4)})
	assert.False(t, isErr)
	assert.Contains(t, text, "User 4 is now the action sender")
	assert.Equal(t, float64(4), (*requests)[0].body["user_id"])

	text, isErr = callTool(t, client.handleClearActionSender, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "cleared")
	assert.Equal(t, "DELETE", (*requests)[1].method)
}

func TestHandlePolicyTools(t *testing.T) {
	server, _ := fakeAPI(t, map[string]interface{}{
		"GET /api/policy": config.Policy{
			MaxUsers:     8,
			Password:     "********",
			RequiredKeys: []string{"username"},
		},
		"POST /api/policy/reload": config.Policy{},
	})
	client := NewClient(server.URL)

	text, isErr := callTool(t, client.handleGetPolicy, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "Max users: 8")
	assert.Contains(t, text, "Password required: true")
	assert.Contains(t, text, "Required keys: username")
	assert.Contains(t, text, "Banned users: none")

	text, isErr = callTool(t, client.handleReloadPolicy, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "Policy reloaded")
	assert.Contains(t, text, "Max users: unlimited")
}

func TestServeHTTP(t *testing.T) {
	api, _ := fakeAPI(t, map[string]interface{}{
		"GET /api/server": service.StatusInfo{Running: true, Port: 2345, Protocol: "udp"},
	})
	client := NewClient(api.URL)

	rec := httptest.NewRecorder()
	client.ServeHTTP(rec, httptest.NewRequest("GET", "/mcp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	initialize := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	rec = httptest.NewRecorder()
	client.ServeHTTP(rec, httptest.NewRequest("POST", "/mcp", strings.NewReader(initialize)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Scene Host")

	list := `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	rec = httptest.NewRecorder()
	client.ServeHTTP(rec, httptest.NewRequest("POST", "/mcp", strings.NewReader(list)))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, tool := range []string{"server_status", "start_server", "stop_server", "list_users", "get_user", "set_action_sender", "clear_action_sender", "get_policy", "reload_policy"} {
		assert.Contains(t, rec.Body.String(), tool)
	}

	call := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"server_status","arguments":{}}}`
	rec = httptest.NewRecorder()
	client.ServeHTTP(rec, httptest.NewRequest("POST", "/mcp", strings.NewReader(call)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Port: 2345")
}
