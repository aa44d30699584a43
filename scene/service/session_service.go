package service

import (
	"context"
	"errors"

	"github.com/wricardo/scenehost/scene/config"
)

var (
	ErrNoActionSender = errors.New("no action sender designated")
	ErrNoPolicy       = errors.New("no policy file configured")
)

// SessionService defines the operations available to administrative clients
type SessionService interface {
	// Server lifecycle
	Status(ctx context.Context) (*StatusInfo, error)
	Start(ctx context.Context, port int, protocol string) (*StatusInfo, error)
	Stop(ctx context.Context) (*StatusInfo, error)

	// Users
	ListUsers(ctx context.Context) ([]*UserInfo, error)
	GetUser(ctx context.Context, userID uint32) (*UserInfo, error)

	// Action sender
	ActionSender(ctx context.Context) (*UserInfo, error)
	SetActionSender(ctx context.Context, userID uint32) (*UserInfo, error)
	ClearActionSender(ctx context.Context) error

	// Login policy
	Policy(ctx context.Context) (*config.Policy, error)
	ReloadPolicy(ctx context.Context) (*config.Policy, error)
}

// Executor runs fn on the goroutine that owns the session server.
// transport.Reactor implements it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// PolicySource is the subset of config.PolicyStore the service needs
type PolicySource interface {
	Current() *config.Policy
	Reload() error
}
