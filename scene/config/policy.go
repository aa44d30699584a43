package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	ErrPolicyNotFound = errors.New("policy file not found")
	ErrInvalidPolicy  = errors.New("invalid policy")
)

// Policy controls which logins are accepted
type Policy struct {
	MaxUsers        int      `json:"max_users,omitempty"`
	Password        string   `json:"password,omitempty"`
	RequiredKeys    []string `json:"required_keys,omitempty"`
	BannedUsers     []string `json:"banned_users,omitempty"`
	BannedAddresses []string `json:"banned_addresses,omitempty"`
}

// Validate checks the policy for values that can never be satisfied
func (p *Policy) Validate() error {
	if p.MaxUsers < 0 {
		return fmt.Errorf("%w: max_users must not be negative, got %d", ErrInvalidPolicy, p.MaxUsers)
	}

	seen := make(map[string]bool)
	for i, key := range p.RequiredKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("%w: required_keys[%d] is empty", ErrInvalidPolicy, i)
		}
		if seen[key] {
			return fmt.Errorf("%w: required key %q listed twice", ErrInvalidPolicy, key)
		}
		seen[key] = true
	}

	for i, user := range p.BannedUsers {
		if strings.TrimSpace(user) == "" {
			return fmt.Errorf("%w: banned_users[%d] is empty", ErrInvalidPolicy, i)
		}
	}

	for i, addr := range p.BannedAddresses {
		if net.ParseIP(strings.TrimSpace(addr)) == nil {
			return fmt.Errorf("%w: banned_addresses[%d] %q is not an IP address", ErrInvalidPolicy, i, addr)
		}
	}

	return nil
}

// ParsePolicy decodes and validates a policy document. Unknown fields are
// rejected so that typos do not silently disable a check.
func ParsePolicy(data []byte) (*Policy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p Policy
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPolicy reads and validates the policy file at path
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, path)
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// SavePolicy validates p and writes it to path
func SavePolicy(path string, p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	return nil
}

// Redacted returns a copy of p that is safe to show to operators
func (p *Policy) Redacted() *Policy {
	out := *p
	if out.Password != "" {
		out.Password = "********"
	}
	return &out
}
