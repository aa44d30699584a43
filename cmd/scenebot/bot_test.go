package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/scene/policy"
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/scene/session"
	"github.com/wricardo/scenehost/transport"
	"github.com/wricardo/scenehost/transport/udp"
	"github.com/wricardo/scenehost/transport/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type addresser interface {
	transport.Transport
	Addr() net.Addr
}

// startHost runs a session server on a free port and returns its address
func startHost(t *testing.T, proto string, pol *config.Policy) string {
	t.Helper()
	logger := quietLogger()

	var tr addresser
	if proto == transport.ProtocolTCP {
		tr = websocket.New(logger)
	} else {
		tr = udp.New(udp.Options{Logger: logger})
	}

	reactor := transport.NewReactor(logger)
	server := session.NewServer(session.Options{
		Transports: []transport.Transport{tr},
		Reactor:    reactor,
		Logger:     logger,
	})
	if pol != nil {
		server.Observe(policy.NewGate(policy.Static{Policy: pol}, server, logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reactor.Run(ctx)
		close(done)
	}()

	var startErr error
	require.NoError(t, reactor.Do(ctx, func() {
		startErr = server.Start(0, proto)
	}))
	require.NoError(t, startErr)
	t.Cleanup(func() {
		reactor.Do(ctx, server.Stop)
		cancel()
		<-done
	})
	_, port, err := net.SplitHostPort(tr.Addr().String())
	require.NoError(t, err)
	return net.JoinHostPort("127.0.0.1", port)
}

func dialAndLogin(t *testing.T, ctx context.Context, name, proto, addr, password string) *Bot {
	t.Helper()
	bot, err := Dial(ctx, name, proto, addr, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { bot.Close() })

	reply, err := bot.Login(ctx, loginProperties(name, password))
	require.NoError(t, err)
	require.True(t, reply.Success)
	return bot
}

func TestBot_LoginAndNotifications(t *testing.T) {
	for _, proto := range []string{transport.ProtocolTCP, transport.ProtocolUDP} {
		t.Run(proto, func(t *testing.T) {
			addr := startHost(t, proto, nil)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			first := dialAndLogin(t, ctx, "bot-1", proto, addr, "")
			assert.Equal(t, uint32(1), first.UserID)
			assert.Len(t, first.SessionID, protocol.SessionIDSize)
			assert.Equal(t, []uint32{1}, first.Roster)

			events := make(chan Event, 8)
			listenCtx, stopListening := context.WithCancel(ctx)
			listened := make(chan error, 1)
			go func() {
				listened <- first.Listen(listenCtx, 50*time.Millisecond, func(e Event) { events <- e })
			}()

			second := dialAndLogin(t, ctx, "bot-2", proto, addr, "")
			assert.Equal(t, uint32(2), second.UserID)
			assert.Equal(t, first.SessionID, second.SessionID)
			// own join, then the replay of everyone already present
			assert.Equal(t, []uint32{2, 1}, second.Roster)

			select {
			case e := <-events:
				assert.Equal(t, Event{MessageID: protocol.MsgClientJoined, UserID: 2}, e)
			case <-ctx.Done():
				t.Fatal("first bot never saw the second join")
			}

			require.NoError(t, second.Close())
			select {
			case e := <-events:
				assert.Equal(t, Event{MessageID: protocol.MsgClientLeft, UserID: 2}, e)
			case <-ctx.Done():
				t.Fatal("first bot never saw the second leave")
			}

			stopListening()
			assert.NoError(t, <-listened)
		})
	}
}

func TestBot_LoginRejected(t *testing.T) {
	addr := startHost(t, transport.ProtocolTCP, &config.Policy{Password: "sesame"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bot, err := Dial(ctx, "bot-1", "tcp", addr, quietLogger())
	require.NoError(t, err)
	defer bot.Close()

	reply, err := bot.Login(ctx, loginProperties("bot-1", "wrong"))
	require.ErrorIs(t, err, ErrLoginRejected)
	require.NotNil(t, reply)
	assert.False(t, reply.Success)
	assert.Equal(t, policy.ReasonInvalidPassword, string(reply.ReplyData))
	assert.Empty(t, bot.Roster)

	dialAndLogin(t, ctx, "bot-2", "tcp", addr, "sesame")
}

func TestDial_UnknownProtocol(t *testing.T) {
	_, err := Dial(context.Background(), "bot", "sctp", "localhost:1", nil)
	assert.Error(t, err)
}

func TestLoginProperties(t *testing.T) {
	props := loginProperties("alice", "")
	assert.Equal(t, "alice", props.String(policy.KeyUsername, ""))
	assert.False(t, props.Has(policy.KeyPassword))

	props = loginProperties("alice", "pw")
	assert.Equal(t, "pw", props.String(policy.KeyPassword, ""))
}
