// Command scenehost runs a multi-user scene session server.
//
// It supports two modes:
//  1. "server" (default) runs the admin HTTP server exposing the REST API,
//     /metrics and an /mcp HTTP endpoint, optionally auto-starting the
//     session server
//  2. "stdio-mcp" runs an MCP stdio server and spins up an internal admin
//     API if none is reachable
//
// Flags control the session port and protocol, the login policy file, the
// admin address, debug logging and optional ngrok tunneling of the admin API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/transport"
	"github.com/wricardo/scenehost/transport/mcp"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Scene Host"
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Flags are shared by every subcommand.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "scenehost",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   config.DefaultPort,
				Usage:   "session server port",
				Sources: cli.EnvVars("SCENE_PORT"),
			},
			&cli.StringFlag{
				Name:    "protocol",
				Value:   transport.DefaultProtocol,
				Usage:   "session server protocol (udp or tcp)",
				Sources: cli.EnvVars("SCENE_PROTOCOL"),
			},
			&cli.BoolFlag{
				Name:    "server",
				Usage:   "start the session server immediately",
				Sources: cli.EnvVars("SCENE_SERVER"),
			},
			&cli.StringFlag{
				Name:    "policy-file",
				Usage:   "JSON login policy, reloaded when it changes",
				Sources: cli.EnvVars("SCENE_POLICY_FILE"),
			},
			&cli.StringFlag{
				Name:    "admin-host",
				Value:   "localhost",
				Usage:   "admin HTTP server host",
				Sources: cli.EnvVars("SCENE_ADMIN_HOST"),
			},
			&cli.IntFlag{
				Name:    "admin-port",
				Value:   8080,
				Usage:   "admin HTTP server port",
				Sources: cli.EnvVars("SCENE_ADMIN_PORT"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("SCENE_DEBUG"),
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "expose the admin server through an ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "run the admin HTTP server with API, metrics and MCP endpoint (default)",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "run an MCP stdio server with an internal admin API",
				Action:  runStdioMCP,
			},
		},
	}
}

func settingsFrom(cmd *cli.Command) config.Settings {
	return config.Settings{
		Port:       cmd.Int("port"),
		Protocol:   cmd.String("protocol"),
		AutoStart:  cmd.Bool("server"),
		PolicyFile: cmd.String("policy-file"),
	}
}

// start runs the reactor and the policy watcher in g and auto-starts the
// session server when configured.
func (a *app) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		a.reactor.Run(ctx)
		return nil
	})

	if a.policy != nil {
		g.Go(func() error {
			return a.policy.Watch(ctx)
		})
	}

	if a.settings.AutoStart {
		if _, err := a.service.Start(ctx, 0, ""); err != nil {
			a.logger.Error("failed to start session server", "error", err)
		}
	}
}

// shutdown stops the session server once the reactor has exited
func (a *app) shutdown() {
	a.server.Stop()
	if a.policy != nil {
		a.policy.Close()
	}
}

// runServer starts the admin HTTP server with REST API, metrics and an /mcp
// endpoint. If ngrok is enabled it also provisions a public tunnel.
func runServer(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("debug"))
	logger.Info("starting", "app", AppName, "version", Version, "mode", "server")

	a, err := newApp(settingsFrom(cmd), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cmd.String("admin-host"), cmd.Int("admin-port"))
	handler := a.handler("http://" + addr)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g)

	g.Go(func() error {
		logger.Info("admin server listening", "addr", addr)
		logger.Info("REST API", "url", "http://"+addr+"/api")
		logger.Info("MCP endpoint", "url", "http://"+addr+"/mcp")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown error", "error", err)
		}
		return nil
	})

	if cmd.Bool("ngrok") {
		g.Go(func() error {
			runTunnel(gctx, logger, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), handler)
			return nil
		})
	}

	err = g.Wait()
	a.shutdown()
	logger.Info("server stopped")
	return err
}

// runTunnel serves handler through ngrok until ctx is cancelled. Tunnel
// failures are logged and never stop the admin server.
func runTunnel(ctx context.Context, logger *slog.Logger, authToken, domain string, handler http.Handler) {
	logger = logger.With("component", "ngrok")
	if authToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		logger.Info("using custom ngrok domain", "domain", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", "error", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Error("failed to close ngrok tunnel", "error", err)
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established", "url", url)
	logger.Info("REST API (ngrok)", "url", url+"/api")
	logger.Info("MCP endpoint (ngrok)", "url", url+"/mcp")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error("ngrok server error", "error", err)
	}
	logger.Info("ngrok tunnel closed")
}

// apiAvailable reports whether an admin API answers at baseURL
func apiAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// runStdioMCP runs an MCP stdio server. It reuses an admin API already
// listening on the admin address; otherwise it starts the session server's
// admin API on a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("debug"))
	logger.Info("starting", "app", AppName, "version", Version, "mode", "stdio-mcp")

	externalURL := fmt.Sprintf("http://%s:%d", cmd.String("admin-host"), cmd.Int("admin-port"))
	logger.Info("checking for external admin API", "url", externalURL)

	if apiAvailable(externalURL) {
		logger.Info("MCP stdio server ready (using external admin API)", "url", externalURL)
		return server.ServeStdio(mcp.NewClient(externalURL).GetMCPServer())
	}

	logger.Info("no external admin API found, starting internal one")
	a, err := newApp(settingsFrom(cmd), logger)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to get available port: %w", err)
	}
	baseURL := "http://" + listener.Addr().String()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g)

	httpServer := &http.Server{Handler: a.api}
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("internal admin server failed: %w", err)
		}
		return nil
	})

	logger.Info("MCP stdio server ready (using internal admin API)", "url", baseURL)
	serveErr := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer())

	cancel()
	httpServer.Close()
	if err := g.Wait(); err != nil {
		logger.Error("internal admin server error", "error", err)
	}
	a.shutdown()
	return serveErr
}
