package policy

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"strings"

	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/scene/session"
)

// Login data keys read by the gate
const (
	KeyUsername = "username"
	KeyPassword = "password"
)

// Rejection reasons sent back to the client
const (
	ReasonBanned          = "banned"
	ReasonInvalidPassword = "invalid password"
	ReasonServerFull      = "server full"
)

// Source provides the policy in effect. config.PolicyStore implements it.
type Source interface {
	Current() *config.Policy
}

// Roster reports who is logged in. session.Server implements it.
type Roster interface {
	AuthenticatedUsers() []*session.UserConnection
}

// Static serves a fixed policy
type Static struct {
	Policy *config.Policy
}

func (s Static) Current() *config.Policy { return s.Policy }

// Gate is an AboutToConnectHook enforcing a login policy
type Gate struct {
	source Source
	roster Roster
	logger *slog.Logger
}

// NewGate creates a gate. roster is used for the capacity check.
func NewGate(source Source, roster Roster, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		source: source,
		roster: roster,
		logger: logger.With("component", "policy"),
	}
}

// UserAboutToConnect rejects user if the current policy forbids the login
func (g *Gate) UserAboutToConnect(userID uint32, user *session.UserConnection) {
	policy := g.source.Current()
	if policy == nil {
		return
	}

	if reason := g.check(policy, user); reason != "" {
		g.logger.Info("login refused by policy",
			"pending_user_id", userID,
			"remote_addr", user.Conn().RemoteAddr(),
			"reason", reason)
		user.Reject(reason)
	}
}

func (g *Gate) check(policy *config.Policy, user *session.UserConnection) string {
	props := user.Properties()

	for _, key := range policy.RequiredKeys {
		if !props.Has(key) {
			return "missing " + key
		}
	}

	host := hostOf(user.Conn().RemoteAddr())
	for _, banned := range policy.BannedAddresses {
		if sameIP(host, banned) {
			return ReasonBanned
		}
	}

	username := props.String(KeyUsername, "")
	for _, banned := range policy.BannedUsers {
		if username != "" && strings.EqualFold(username, banned) {
			return ReasonBanned
		}
	}

	if policy.Password != "" {
		given := props.String(KeyPassword, "")
		if subtle.ConstantTimeCompare([]byte(given), []byte(policy.Password)) != 1 {
			return ReasonInvalidPassword
		}
	}

	if policy.MaxUsers > 0 && g.othersOnline(user) >= policy.MaxUsers {
		return ReasonServerFull
	}

	return ""
}

// othersOnline counts authenticated users except user, which is already
// marked authenticated while its login is pending
func (g *Gate) othersOnline(user *session.UserConnection) int {
	if g.roster == nil {
		return 0
	}
	n := 0
	for _, u := range g.roster.AuthenticatedUsers() {
		if u != user {
			n++
		}
	}
	return n
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func sameIP(a, b string) bool {
	ipA := net.ParseIP(strings.TrimSpace(a))
	ipB := net.ParseIP(strings.TrimSpace(b))
	if ipA == nil || ipB == nil {
		return false
	}
	return ipA.Equal(ipB)
}
