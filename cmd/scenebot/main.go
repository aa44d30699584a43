// Command scenebot connects scripted clients to a running scene host. Each bot
// logs in with a username (and the password, when given), prints the roster
// it receives and then reports join and leave notifications until it is
// interrupted or the hold time elapses.
//
// Usage:
//
//	scenebot --addr localhost:2345 --protocol udp --bots 3 --hold 30s
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/scene/policy"
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/transport"
	"golang.org/x/sync/errgroup"
)

func main() {
	cmd := &cli.Command{
		Name:  "scenebot",
		Usage: "connect scripted clients to a scene host",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: fmt.Sprintf("localhost:%d", config.DefaultPort),
				Usage: "scene host address",
			},
			&cli.StringFlag{
				Name:  "protocol",
				Value: transport.DefaultProtocol,
				Usage: "udp or tcp",
			},
			&cli.IntFlag{
				Name:  "bots",
				Value: 1,
				Usage: "number of clients",
			},
			&cli.StringFlag{
				Name:  "name",
				Value: "bot",
				Usage: "username prefix",
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "login password",
				Sources: cli.EnvVars("SCENE_PASSWORD"),
			},
			&cli.DurationFlag{
				Name:  "hold",
				Usage: "disconnect after this long (0 waits for a signal)",
			},
			&cli.DurationFlag{
				Name:  "keepalive",
				Value: 10 * time.Second,
				Usage: "udp keepalive interval",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	level := slog.LevelInfo
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if hold := cmd.Duration("hold"); hold > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hold)
		defer cancel()
	}

	opts := runOptions{
		addr:      cmd.String("addr"),
		protocol:  cmd.String("protocol"),
		password:  cmd.String("password"),
		keepAlive: cmd.Duration("keepalive"),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= cmd.Int("bots"); i++ {
		name := fmt.Sprintf("%s-%d", cmd.String("name"), i)
		g.Go(func() error {
			return runBot(gctx, name, opts, logger)
		})
	}
	return g.Wait()
}

type runOptions struct {
	addr      string
	protocol  string
	password  string
	keepAlive time.Duration
}

// loginProperties builds the login document for one bot
func loginProperties(name, password string) *protocol.Properties {
	props := protocol.NewProperties()
	props.Set(policy.KeyUsername, name)
	if password != "" {
		props.Set(policy.KeyPassword, password)
	}
	return props
}

func runBot(ctx context.Context, name string, opts runOptions, logger *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bot, err := Dial(dialCtx, name, opts.protocol, opts.addr, logger)
	if err != nil {
		return err
	}
	defer bot.Close()

	if _, err := bot.Login(dialCtx, loginProperties(name, opts.password)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	log := logger.With("bot", name, "user_id", bot.UserID)
	log.Info("roster", "users", bot.Roster)
	return bot.Listen(ctx, opts.keepAlive, func(e Event) {
		log.Info("notification", "message", e.MessageID, "subject", e.UserID)
	})
}
