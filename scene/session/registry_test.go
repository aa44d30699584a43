package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterTwice(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: 1}

	_, err := r.Register(c)
	require.NoError(t, err)

	_, err = r.Register(c)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_AuthenticatedUsersFollowJoinOrder(t *testing.T) {
	r := NewRegistry()
	a, b, c := &fakeConn{id: 1}, &fakeConn{id: 2}, &fakeConn{id: 3}
	ua, _ := r.Register(a)
	ub, _ := r.Register(b)
	uc, _ := r.Register(c)

	// c logs in first even though it connected last
	for _, u := range []*UserConnection{uc, ua, ub} {
		u.setAuthenticated()
		r.Promote(u.conn)
	}

	got := r.AuthenticatedUsers()
	require.Len(t, got, 3)
	assert.Same(t, uc, got[0])
	assert.Same(t, ua, got[1])
	assert.Same(t, ub, got[2])
}

func TestRegistry_FiltersUnauthenticated(t *testing.T) {
	r := NewRegistry()
	ua, _ := r.Register(&fakeConn{id: 1})
	_, _ = r.Register(&fakeConn{id: 2})
	ua.setAuthenticated()

	assert.Len(t, r.All(), 2)
	assert.Equal(t, []*UserConnection{ua}, r.AuthenticatedUsers())
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: 1}
	_, _ = r.Register(c)

	assert.True(t, r.Remove(c))
	assert.False(t, r.Remove(c))
	_, ok := r.Lookup(c)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register(&fakeConn{id: 1})
	_, _ = r.Register(&fakeConn{id: 2})

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.All())
}

func TestUserConnection_Reject(t *testing.T) {
	u := newUserConnection(&fakeConn{id: 1})
	u.setAuthenticated()
	require.True(t, u.Authenticated())

	u.Reject("banned")
	assert.False(t, u.Authenticated())
	assert.Equal(t, "banned", u.Reason())
}

func TestUserConnection_AuthenticatedRequiresExactTrue(t *testing.T) {
	u := newUserConnection(&fakeConn{id: 1})
	u.Properties().Set(PropAuthenticated, "TRUE")
	assert.False(t, u.Authenticated())

	u.Properties().Set(PropAuthenticated, "true")
	assert.True(t, u.Authenticated())
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	assert.Len(t, id, 4)
	assert.Regexp(t, "^[0-9a-f]{4}$", id)
}
