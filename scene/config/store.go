package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PolicyStore serves the current policy and reloads it when the file changes
type PolicyStore struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	current  *Policy
	onReload []func(*Policy)
}

// NewPolicyStore loads the policy at path. The file must exist and be valid.
func NewPolicyStore(path string, logger *slog.Logger) (*PolicyStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy path: %w", err)
	}

	policy, err := LoadPolicy(abs)
	if err != nil {
		return nil, err
	}

	return &PolicyStore{
		path:    abs,
		logger:  logger.With("component", "policy", "path", abs),
		current: policy,
	}, nil
}

// Path returns the absolute path of the policy file
func (s *PolicyStore) Path() string {
	return s.path
}

// Current returns the active policy. Callers must not modify it.
func (s *PolicyStore) Current() *Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnReload registers fn to be called after every successful reload
func (s *PolicyStore) OnReload(fn func(*Policy)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Reload reads the file again. On failure the previous policy stays active.
func (s *PolicyStore) Reload() error {
	policy, err := LoadPolicy(s.path)
	if err != nil {
		s.logger.Error("failed to reload policy, keeping previous", "error", err)
		return err
	}

	s.mu.Lock()
	s.current = policy
	callbacks := make([]func(*Policy), len(s.onReload))
	copy(callbacks, s.onReload)
	s.mu.Unlock()

	s.logger.Info("policy reloaded",
		"max_users", policy.MaxUsers,
		"required_keys", len(policy.RequiredKeys),
		"banned_users", len(policy.BannedUsers),
		"banned_addresses", len(policy.BannedAddresses))

	for _, fn := range callbacks {
		fn(policy)
	}
	return nil
}

// Watch reloads the policy whenever the file is written or replaced. The
// parent directory is watched so editors that rename over the file are seen.
// Watch blocks until ctx is cancelled or Close is called.
func (s *PolicyStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()
	defer watcher.Close()

	s.logger.Debug("watching policy file")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				_ = s.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("policy watcher error", "error", err)
		}
	}
}

// Close stops a running Watch
func (s *PolicyStore) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if watcher == nil {
		return nil
	}
	return watcher.Close()
}
