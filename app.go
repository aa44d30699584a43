package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wricardo/scenehost/api"
	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/scene/metrics"
	"github.com/wricardo/scenehost/scene/policy"
	"github.com/wricardo/scenehost/scene/service"
	"github.com/wricardo/scenehost/scene/session"
	"github.com/wricardo/scenehost/transport"
	"github.com/wricardo/scenehost/transport/mcp"
	"github.com/wricardo/scenehost/transport/udp"
	"github.com/wricardo/scenehost/transport/websocket"
)

// app holds the wired components of one process
type app struct {
	settings config.Settings
	logger   *slog.Logger

	reactor  *transport.Reactor
	server   *session.Server
	policy   *config.PolicyStore
	registry *prometheus.Registry
	service  service.SessionService
	api      *api.Server
}

// newLogger returns the process logger. Debug lowers the level and adds
// source locations.
func newLogger(debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newApp wires transports, the session server, metrics, the login policy and
// the admin API. Nothing is started.
func newApp(settings config.Settings, logger *slog.Logger) (*app, error) {
	settings = settings.Normalize(logger)

	reactor := transport.NewReactor(logger)
	server := session.NewServer(session.Options{
		Transports: []transport.Transport{
			websocket.New(logger),
			udp.New(udp.Options{Logger: logger}),
		},
		Reactor: reactor,
		Logger:  logger,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	server.Observe(metrics.New(metrics.WithRegistry(registry)))

	a := &app{
		settings: settings,
		logger:   logger,
		reactor:  reactor,
		server:   server,
		registry: registry,
	}

	opts := service.Options{Defaults: settings, Logger: logger}
	if settings.PolicyFile != "" {
		store, err := config.NewPolicyStore(settings.PolicyFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
		store.OnReload(func(p *config.Policy) {
			logger.Info("login policy updated",
				"max_users", p.MaxUsers,
				"required_keys", len(p.RequiredKeys),
				"banned_users", len(p.BannedUsers),
				"banned_addresses", len(p.BannedAddresses))
		})
		server.Observe(policy.NewGate(store, server, logger))
		a.policy = store
		opts.Policy = store
	}

	a.service = service.NewSessionService(server, reactor, opts)
	a.api = api.NewServer(a.service, api.Options{Gatherer: registry, Logger: logger})
	return a, nil
}

// handler mounts the admin API and the MCP endpoint that targets baseURL
func (a *app) handler(baseURL string) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", a.api)
	mainRouter.Handle("/mcp", mcp.NewClient(baseURL))
	return mainRouter
}
