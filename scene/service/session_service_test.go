package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/scenehost/scene/config"
	"github.com/wricardo/scenehost/scene/protocol"
	"github.com/wricardo/scenehost/scene/session"
	"github.com/wricardo/scenehost/transport"
)

type nopConn struct{ id uint64 }

func (c *nopConn) ID() uint64                            { return c.id }
func (c *nopConn) RemoteAddr() string                    { return fmt.Sprintf("10.0.0.%d:7000", c.id) }
func (c *nopConn) Send(protocol.MessageID, []byte) error { return nil }

type memTransport struct {
	protocol string
	handler  transport.Handler
	port     int
}

func (m *memTransport) Protocol() string { return m.protocol }
func (m *memTransport) Listen(port int, h transport.Handler) error {
	if port == 1 {
		return errors.New("permission denied")
	}
	m.handler = h
	m.port = port
	return nil
}
func (m *memTransport) Close() error { return nil }

type fixture struct {
	svc     SessionService
	reactor *transport.Reactor
	udp     *memTransport
	tcp     *memTransport
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	reactor := transport.NewReactor(quietLogger())
	udp := &memTransport{protocol: transport.ProtocolUDP}
	tcp := &memTransport{protocol: transport.ProtocolTCP}
	server := session.NewServer(session.Options{
		Transports: []transport.Transport{udp, tcp},
		Reactor:    reactor,
		Logger:     quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go reactor.Run(ctx)

	opts.Logger = quietLogger()
	return &fixture{
		svc:     NewSessionService(server, reactor, opts),
		reactor: reactor,
		udp:     udp,
		tcp:     tcp,
	}
}

// login connects and logs in a client, then waits for the reactor to process it
func (f *fixture) login(t *testing.T, m *memTransport, id uint64, doc string) {
	t.Helper()
	c := &nopConn{id: id}
	m.handler.ClientConnected(c)
	payload, err := (&protocol.Login{LoginData: []byte(doc)}).MarshalBinary()
	require.NoError(t, err)
	m.handler.MessageReceived(c, 1, protocol.MsgLogin, payload)
	require.NoError(t, f.reactor.Do(context.Background(), func() {}))
}

func TestSessionService_StartStop(t *testing.T) {
	f := newFixture(t, Options{Defaults: config.Settings{Port: 4000, Protocol: "tcp"}})
	ctx := context.Background()

	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)

	status, err = f.svc.Start(ctx, 0, "")
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 4000, status.Port)
	assert.Equal(t, "tcp", status.Protocol)
	assert.Len(t, status.SessionID, 4)
	assert.Equal(t, 4000, f.tcp.port)

	status, err = f.svc.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Empty(t, status.SessionID)
}

func TestSessionService_StartFallsBackOnInvalidProtocol(t *testing.T) {
	f := newFixture(t, Options{})

	status, err := f.svc.Start(context.Background(), 2345, "carrier-pigeon")
	require.NoError(t, err)
	assert.Equal(t, "udp", status.Protocol)
	assert.Equal(t, 2345, status.Port)
}

func TestSessionService_StartListenError(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Start(context.Background(), 1, "udp")
	require.Error(t, err)

	status, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestSessionService_Users(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.Start(ctx, 2345, "udp")
	require.NoError(t, err)

	f.login(t, f.udp, 1, `<login><username value="alice"/><password value="pw"/></login>`)
	f.login(t, f.udp, 2, `<login><username value="bob"/></login>`)

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, uint32(1), users[0].ID)
	assert.Equal(t, "alice", users[0].Properties["username"])
	assert.NotContains(t, users[0].Properties, "password")
	assert.NotContains(t, users[0].Properties, session.PropAuthenticated)
	assert.Equal(t, "10.0.0.1:7000", users[0].RemoteAddr)
	assert.False(t, users[0].LoginAt.IsZero())

	user, err := f.svc.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Properties["username"])

	_, err = f.svc.GetUser(ctx, 42)
	assert.ErrorIs(t, err, session.ErrUserNotFound)

	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.AuthenticatedUsers)
	assert.Equal(t, 2, status.Connections)
}

func TestSessionService_ActionSender(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.SetActionSender(ctx, 1)
	assert.ErrorIs(t, err, session.ErrNotRunning)

	_, err = f.svc.Start(ctx, 2345, "udp")
	require.NoError(t, err)
	f.login(t, f.udp, 1, `<login/>`)

	_, err = f.svc.ActionSender(ctx)
	assert.ErrorIs(t, err, ErrNoActionSender)

	_, err = f.svc.SetActionSender(ctx, 7)
	assert.ErrorIs(t, err, session.ErrUserNotFound)

	info, err := f.svc.SetActionSender(ctx, 1)
	require.NoError(t, err)
	assert.True(t, info.ActionSender)

	info, err = f.svc.ActionSender(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.ID)

	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), status.ActionSender)

	require.NoError(t, f.svc.ClearActionSender(ctx))
	_, err = f.svc.ActionSender(ctx)
	assert.ErrorIs(t, err, ErrNoActionSender)
}

func TestSessionService_ContextCancelled(t *testing.T) {
	// reactor is never run, so Do can only return through the context
	reactor := transport.NewReactor(quietLogger())
	server := session.NewServer(session.Options{Logger: quietLogger()})
	svc := NewSessionService(server, reactor, Options{Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Status(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionService_Policy(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Policy(context.Background())
	assert.ErrorIs(t, err, ErrNoPolicy)
	_, err = f.svc.ReloadPolicy(context.Background())
	assert.ErrorIs(t, err, ErrNoPolicy)

	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_users": 3}`), 0644))
	store, err := config.NewPolicyStore(path, quietLogger())
	require.NoError(t, err)

	f = newFixture(t, Options{Policy: store})
	p, err := f.svc.Policy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, p.MaxUsers)

	require.NoError(t, os.WriteFile(path, []byte(`{"max_users": 6}`), 0644))
	p, err = f.svc.ReloadPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, p.MaxUsers)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err = f.svc.ReloadPolicy(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidPolicy)
}
