package service

import "time"

// StatusInfo describes the session server
type StatusInfo struct {
	Running            bool   `json:"running"`
	Port               int    `json:"port,omitempty"`
	Protocol           string `json:"protocol,omitempty"`
	SessionID          string `json:"session_id,omitempty"`
	Connections        int    `json:"connections"`
	AuthenticatedUsers int    `json:"authenticated_users"`
	ActionSender       uint32 `json:"action_sender,omitempty"`
}

// UserInfo is a snapshot of one authenticated user
type UserInfo struct {
	ID           uint32            `json:"id"`
	RemoteAddr   string            `json:"remote_addr"`
	Properties   map[string]string `json:"properties"`
	ConnectedAt  time.Time         `json:"connected_at"`
	LoginAt      time.Time         `json:"login_at"`
	ActionSender bool              `json:"action_sender"`
}
