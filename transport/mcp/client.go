package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/scene/service"
)

// Client is a thin MCP client that proxies to the admin REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Scene Host",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Scene Host - MCP Interface

This is a thin client that proxies all requests to the admin REST API of a
multi-user scene session server.

CONCEPTS:
- The server listens on one port with one protocol ("udp" or "tcp").
- Clients log in; accepted clients receive increasing user ids (never reused).
- At most one authenticated user is the "action sender", allowed to issue
  authoritative scene actions.

AVAILABLE TOOLS:
- server_status: Running state, port, protocol, session id, user counts
- start_server: Start listening (port and protocol optional)
- stop_server: Stop and drop every connection
- list_users: Authenticated users in join order
- get_user: Details of one user
- set_action_sender: Designate the action sender
- clear_action_sender: Remove the designation
- get_policy: Login policy in effect
- reload_policy: Re-read the policy file`),
	)

	// Register all tools
	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Server lifecycle
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_status",
		Description: "Get the status of the scene session server",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerStatus)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_server",
		Description: "Start the scene session server. Starting a running server changes nothing.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"port": map[string]interface{}{
					"type":        "integer",
					"description": "Port to listen on (optional, defaults to the configured port)",
				},
				"protocol": map[string]interface{}{
					"type":        "string",
					"description": "Transport protocol (optional, defaults to the configured protocol)",
					"enum":        []string{"udp", "tcp"},
				},
			},
		},
	}, c.handleStartServer)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "stop_server",
		Description: "Stop the scene session server and drop every connection",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleStopServer)

	// Users
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_users",
		Description: "List authenticated users in join order",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListUsers)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_user",
		Description: "Get details of one authenticated user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "integer",
					"description": "User id assigned at login",
				},
			},
			Required: []string{"user_id"},
		},
	}, c.handleGetUser)

	// Action sender
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "set_action_sender",
		Description: "Designate an authenticated user as the action sender",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "integer",
					"description": "User id to designate",
				},
			},
			Required: []string{"user_id"},
		},
	}, c.handleSetActionSender)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "clear_action_sender",
		Description: "Remove the action sender designation",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleClearActionSender)

	// Policy
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_policy",
		Description: "Show the login policy in effect",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGetPolicy)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reload_policy",
		Description: "Re-read the login policy file",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleReloadPolicy)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// intArg reads a JSON number argument
func intArg(args map[string]interface{}, name string) (int, bool) {
	switch v := args[name].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func userIDArg(args map[string]interface{}) (uint32, error) {
	id, ok := intArg(args, "user_id")
	if !ok || id <= 0 || int64(id) > int64(^uint32(0)) {
		return 0, fmt.Errorf("user_id must be a positive integer")
	}
	return uint32(id), nil
}

// Tool handlers

func (c *Client) handleServerStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status service.StatusInfo
	if err := c.apiCall(ctx, "GET", "/api/server", nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatStatus(&status)), nil
}

func (c *Client) handleStartServer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	body := map[string]interface{}{}
	if _, present := args["port"]; present {
		port, ok := intArg(args, "port")
		if !ok {
			return mcp.NewToolResultError("port must be an integer"), nil
		}
		body["port"] = port
	}
	if protocol, _ := args["protocol"].(string); protocol != "" {
		body["protocol"] = protocol
	}

	var status service.StatusInfo
	if err := c.apiCall(ctx, "POST", "/api/server/start", body, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Server started.\n\n" + formatStatus(&status)), nil
}

func (c *Client) handleStopServer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status service.StatusInfo
	if err := c.apiCall(ctx, "POST", "/api/server/stop", nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Server stopped.\n\n" + formatStatus(&status)), nil
}

func (c *Client) handleListUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int                `json:"count"`
		Users []service.UserInfo `json:"users"`
	}

	if err := c.apiCall(ctx, "GET", "/api/users", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Authenticated Users (%d):\n\n", response.Count)
	for _, u := range response.Users {
		marker := ""
		if u.ActionSender {
			marker = " [action sender]"
		}
		fmt.Fprintf(&result, "- %d %s (%s, since %s)%s\n",
			u.ID, displayName(&u), u.RemoteAddr, u.LoginAt.Format("15:04:05"), marker)
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGetUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := userIDArg(arguments(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var user service.UserInfo
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/users/%d", id), nil, &user); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatUser(&user)), nil
}

func (c *Client) handleSetActionSender(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := userIDArg(arguments(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var user service.UserInfo
	body := map[string]interface{}{"user_id": id}
	if err := c.apiCall(ctx, "PUT", "/api/action-sender", body, &user); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("User %d is now the action sender.", user.ID)), nil
}

func (c *Client) handleClearActionSender(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := c.apiCall(ctx, "DELETE", "/api/action-sender", nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Action sender cleared."), nil
}

func (c *Client) handleGetPolicy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var policy config.Policy
	if err := c.apiCall(ctx, "GET", "/api/policy", nil, &policy); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatPolicy(&policy)), nil
}

func (c *Client) handleReloadPolicy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var policy config.Policy
	if err := c.apiCall(ctx, "POST", "/api/policy/reload", nil, &policy); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Policy reloaded.\n\n" + formatPolicy(&policy)), nil
}

// Formatting helpers

func formatStatus(status *service.StatusInfo) string {
	if !status.Running {
		return fmt.Sprintf("Status: stopped\nConnections: %d\n", status.Connections)
	}

	var result strings.Builder
	result.WriteString("Status: running\n")
	fmt.Fprintf(&result, "Port: %d\n", status.Port)
	fmt.Fprintf(&result, "Protocol: %s\n", status.Protocol)
	fmt.Fprintf(&result, "Session: %s\n", status.SessionID)
	fmt.Fprintf(&result, "Connections: %d (authenticated: %d)\n", status.Connections, status.AuthenticatedUsers)
	if status.ActionSender != 0 {
		fmt.Fprintf(&result, "Action sender: %d\n", status.ActionSender)
	} else {
		result.WriteString("Action sender: none\n")
	}
	return result.String()
}

func displayName(user *service.UserInfo) string {
	if name := user.Properties["username"]; name != "" {
		return name
	}
	return "(anonymous)"
}

func formatUser(user *service.UserInfo) string {
	var result strings.Builder
	fmt.Fprintf(&result, "User %d: %s\n", user.ID, displayName(user))
	fmt.Fprintf(&result, "Address: %s\n", user.RemoteAddr)
	fmt.Fprintf(&result, "Connected: %s\n", user.ConnectedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&result, "Logged in: %s\n", user.LoginAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&result, "Action sender: %t\n", user.ActionSender)

	if len(user.Properties) > 0 {
		keys := make([]string, 0, len(user.Properties))
		for k := range user.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		result.WriteString("\nProperties:\n")
		for _, k := range keys {
			fmt.Fprintf(&result, "  %s = %s\n", k, user.Properties[k])
		}
	}
	return result.String()
}

func formatPolicy(policy *config.Policy) string {
	var result strings.Builder
	if policy.MaxUsers > 0 {
		fmt.Fprintf(&result, "Max users: %d\n", policy.MaxUsers)
	} else {
		result.WriteString("Max users: unlimited\n")
	}
	fmt.Fprintf(&result, "Password required: %t\n", policy.Password != "")
	fmt.Fprintf(&result, "Required keys: %s\n", listOrNone(policy.RequiredKeys))
	fmt.Fprintf(&result, "Banned users: %s\n", listOrNone(policy.BannedUsers))
	fmt.Fprintf(&result, "Banned addresses: %s\n", listOrNone(policy.BannedAddresses))
	return result.String()
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
