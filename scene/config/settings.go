package config

import (
	"log/slog"

	"github.com/wricardo/scenehost/transport"
)

// DefaultPort is used when no valid port is configured
const DefaultPort = 2345

// Settings holds the process level server settings
type Settings struct {
	Port       int
	Protocol   string
	AutoStart  bool
	PolicyFile string
}

// Normalize returns a copy of s with an invalid port or protocol replaced by
// its default. Invalid values are logged; an empty protocol is not.
func (s Settings) Normalize(logger *slog.Logger) Settings {
	if logger == nil {
		logger = slog.Default()
	}

	if s.Port < 1 || s.Port > 65535 {
		logger.Error("invalid server port specified, using default",
			"port", s.Port, "default", DefaultPort)
		s.Port = DefaultPort
	}

	protocol, ok := transport.ParseProtocol(s.Protocol)
	if !ok && s.Protocol != "" {
		logger.Error("invalid server protocol specified, using default",
			"protocol", s.Protocol, "default", protocol)
	}
	s.Protocol = protocol

	return s
}
