package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/scene/policy"
	"github.com/wricardo/scenehost/scene/session"
)

// redactedProperties are never included in a UserInfo
var redactedProperties = []string{policy.KeyPassword}

// Options configures a SessionService
type Options struct {
	// Defaults supplies the port and protocol used when Start is called
	// without them.
	Defaults config.Settings

	// Policy is optional; without it the policy operations return ErrNoPolicy.
	Policy PolicySource

	Logger *slog.Logger
}

// sessionServiceImpl implements the SessionService interface
type sessionServiceImpl struct {
	server   *session.Server
	executor Executor
	defaults config.Settings
	policy   PolicySource
	logger   *slog.Logger
}

// NewSessionService creates a service over server. Every call touching server
// is run through executor.
func NewSessionService(server *session.Server, executor Executor, opts Options) SessionService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := opts.Defaults
	if defaults.Port == 0 {
		defaults.Port = config.DefaultPort
	}
	return &sessionServiceImpl{
		server:   server,
		executor: executor,
		defaults: defaults,
		policy:   opts.Policy,
		logger:   logger.With("component", "service"),
	}
}

// Status returns the current server status
func (s *sessionServiceImpl) Status(ctx context.Context) (*StatusInfo, error) {
	var status *StatusInfo
	err := s.executor.Do(ctx, func() {
		status = s.status()
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Start starts the server. A zero port or empty protocol uses the defaults.
func (s *sessionServiceImpl) Start(ctx context.Context, port int, protocol string) (*StatusInfo, error) {
	settings := config.Settings{Port: port, Protocol: protocol}
	if settings.Port == 0 {
		settings.Port = s.defaults.Port
	}
	if settings.Protocol == "" {
		settings.Protocol = s.defaults.Protocol
	}
	settings = settings.Normalize(s.logger)

	var status *StatusInfo
	var startErr error
	err := s.executor.Do(ctx, func() {
		startErr = s.server.Start(settings.Port, settings.Protocol)
		status = s.status()
	})
	if err != nil {
		return nil, err
	}
	if startErr != nil {
		return nil, fmt.Errorf("failed to start server: %w", startErr)
	}
	return status, nil
}

// Stop stops the server. Stopping a stopped server is not an error.
func (s *sessionServiceImpl) Stop(ctx context.Context) (*StatusInfo, error) {
	var status *StatusInfo
	err := s.executor.Do(ctx, func() {
		s.server.Stop()
		status = s.status()
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ListUsers returns the authenticated users in join order
func (s *sessionServiceImpl) ListUsers(ctx context.Context) ([]*UserInfo, error) {
	var users []*UserInfo
	err := s.executor.Do(ctx, func() {
		sender, _ := s.server.ActionSender()
		connected := s.server.AuthenticatedUsers()
		users = make([]*UserInfo, 0, len(connected))
		for _, user := range connected {
			users = append(users, newUserInfo(user, sender))
		}
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns the authenticated user with the given id
func (s *sessionServiceImpl) GetUser(ctx context.Context, userID uint32) (*UserInfo, error) {
	var info *UserInfo
	err := s.executor.Do(ctx, func() {
		user, ok := s.server.UserConnectionByID(userID)
		if !ok {
			return
		}
		sender, _ := s.server.ActionSender()
		info = newUserInfo(user, sender)
	})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %d", session.ErrUserNotFound, userID)
	}
	return info, nil
}

// ActionSender returns the designated action sender
func (s *sessionServiceImpl) ActionSender(ctx context.Context) (*UserInfo, error) {
	var info *UserInfo
	err := s.executor.Do(ctx, func() {
		if sender, ok := s.server.ActionSender(); ok {
			info = newUserInfo(sender, sender)
		}
	})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNoActionSender
	}
	return info, nil
}

// SetActionSender designates the user with the given id
func (s *sessionServiceImpl) SetActionSender(ctx context.Context, userID uint32) (*UserInfo, error) {
	var info *UserInfo
	var setErr error
	err := s.executor.Do(ctx, func() {
		if !s.server.IsRunning() {
			setErr = session.ErrNotRunning
			return
		}
		user, ok := s.server.UserConnectionByID(userID)
		if !ok {
			setErr = fmt.Errorf("%w: %d", session.ErrUserNotFound, userID)
			return
		}
		if setErr = s.server.SetActionSender(user); setErr == nil {
			info = newUserInfo(user, user)
		}
	})
	if err != nil {
		return nil, err
	}
	if setErr != nil {
		return nil, setErr
	}
	s.logger.Info("action sender designated", "user_id", userID)
	return info, nil
}

// ClearActionSender removes the designation, if any
func (s *sessionServiceImpl) ClearActionSender(ctx context.Context) error {
	return s.executor.Do(ctx, func() {
		_ = s.server.SetActionSender(nil)
	})
}

// Policy returns the login policy in effect
func (s *sessionServiceImpl) Policy(ctx context.Context) (*config.Policy, error) {
	if s.policy == nil {
		return nil, ErrNoPolicy
	}
	return s.policy.Current(), nil
}

// ReloadPolicy re-reads the policy file
func (s *sessionServiceImpl) ReloadPolicy(ctx context.Context) (*config.Policy, error) {
	if s.policy == nil {
		return nil, ErrNoPolicy
	}
	if err := s.policy.Reload(); err != nil {
		return nil, err
	}
	return s.policy.Current(), nil
}

func (s *sessionServiceImpl) status() *StatusInfo {
	status := &StatusInfo{
		Running:            s.server.IsRunning(),
		Port:               s.server.Port(),
		Protocol:           s.server.Protocol(),
		Connections:        s.server.ConnectionCount(),
		AuthenticatedUsers: len(s.server.AuthenticatedUsers()),
	}
	if status.Running {
		status.SessionID = s.server.SessionID()
	}
	if sender, ok := s.server.ActionSender(); ok {
		status.ActionSender = sender.UserID()
	}
	return status
}

func newUserInfo(user, sender *session.UserConnection) *UserInfo {
	props := user.Properties().Map()
	delete(props, session.PropAuthenticated)
	for _, key := range redactedProperties {
		delete(props, key)
	}

	return &UserInfo{
		ID:           user.UserID(),
		RemoteAddr:   user.Conn().RemoteAddr(),
		Properties:   props,
		ConnectedAt:  user.ConnectedAt(),
		LoginAt:      user.LoginAt(),
		ActionSender: sender != nil && sender == user,
	}
}
