package session

import (
	"fmt"
	"time"

	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
)

// Property keys assigned by the server
const (
	PropAuthenticated = "authenticated"
	PropReason        = "reason"
)

// HandshakeState tracks the login handshake of one connection
type HandshakeState int

const (
	StateAwaitingLogin HandshakeState = iota
	StateAuthenticated
	StateRejected
)

func (s HandshakeState) String() string {
	switch s {
	case StateAwaitingLogin:
		return "awaiting_login"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// UserConnection is the record kept for one transport connection
type UserConnection struct {
	userID      uint32
	conn        transport.Conn
	properties  *protocol.Properties
	loginData   []byte
	state       HandshakeState
	connectedAt time.Time
	loginAt     time.Time
}

func newUserConnection(conn transport.Conn) *UserConnection {
	return &UserConnection{
		conn:        conn,
		properties:  protocol.NewProperties(),
		state:       StateAwaitingLogin,
		connectedAt: time.Now(),
	}
}

// UserID returns the assigned user id, or 0 before authentication
func (u *UserConnection) UserID() uint32 { return u.userID }

// Conn returns the underlying transport connection
func (u *UserConnection) Conn() transport.Conn { return u.conn }

// Properties returns the live property set. Hooks may read it freely but
// should only change the keys documented for their hook.
func (u *UserConnection) Properties() *protocol.Properties { return u.properties }

// LoginData returns the raw login document as received
func (u *UserConnection) LoginData() []byte { return u.loginData }

// State returns the handshake state
func (u *UserConnection) State() HandshakeState { return u.state }

// ConnectedAt returns when the transport reported the connection
func (u *UserConnection) ConnectedAt() time.Time { return u.connectedAt }

// LoginAt returns when the login was accepted, or the zero time
func (u *UserConnection) LoginAt() time.Time { return u.loginAt }

// Authenticated reports whether the authenticated property is exactly "true"
func (u *UserConnection) Authenticated() bool {
	v, _ := u.properties.Get(PropAuthenticated)
	return v == "true"
}

// Reject clears the authenticated flag and records reason. Called from an
// AboutToConnectHook it vetoes the login in progress.
func (u *UserConnection) Reject(reason string) {
	u.properties.Delete(PropAuthenticated)
	u.properties.Set(PropReason, reason)
}

// Reason returns the rejection reason, if any
func (u *UserConnection) Reason() string {
	return u.properties.String(PropReason, "")
}

func (u *UserConnection) setAuthenticated() {
	u.properties.Set(PropAuthenticated, "true")
}

func (u *UserConnection) String() string {
	if u.userID == 0 {
		return fmt.Sprintf("connection %d (%s)", u.conn.ID(), u.conn.RemoteAddr())
	}
	return fmt.Sprintf("user %d (%s)", u.userID, u.conn.RemoteAddr())
}
