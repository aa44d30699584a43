package session

import (
	"errors"
	"fmt"

	"github.com/wricardo/scenehost/transport"
)

var ErrAlreadyRegistered = errors.New("connection already registered")

// Registry maps transport connections to their UserConnection records.
// Iteration order is insertion order; Promote moves a record to the end.
type Registry struct {
	users map[transport.Conn]*UserConnection
	order []*UserConnection
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[transport.Conn]*UserConnection),
	}
}

// Register creates an unauthenticated record for conn
func (r *Registry) Register(conn transport.Conn) (*UserConnection, error) {
	if _, exists := r.users[conn]; exists {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyRegistered, conn.ID())
	}

	user := newUserConnection(conn)
	r.users[conn] = user
	r.order = append(r.order, user)
	return user, nil
}

// Lookup returns the record for conn
func (r *Registry) Lookup(conn transport.Conn) (*UserConnection, bool) {
	user, ok := r.users[conn]
	return user, ok
}

// AuthenticatedUsers returns authenticated records in join order
func (r *Registry) AuthenticatedUsers() []*UserConnection {
	result := make([]*UserConnection, 0, len(r.order))
	for _, user := range r.order {
		if user.Authenticated() {
			result = append(result, user)
		}
	}
	return result
}

// All returns every record in insertion order
func (r *Registry) All() []*UserConnection {
	result := make([]*UserConnection, len(r.order))
	copy(result, r.order)
	return result
}

// Promote moves the record for conn to the end of the iteration order
func (r *Registry) Promote(conn transport.Conn) {
	user, ok := r.users[conn]
	if !ok {
		return
	}
	r.unlink(user)
	r.order = append(r.order, user)
}

// Remove deletes the record for conn. It is a no-op if conn is unknown.
func (r *Registry) Remove(conn transport.Conn) bool {
	user, ok := r.users[conn]
	if !ok {
		return false
	}
	delete(r.users, conn)
	r.unlink(user)
	return true
}

// Len returns the number of records
func (r *Registry) Len() int {
	return len(r.order)
}

// Clear drops every record
func (r *Registry) Clear() {
	r.users = make(map[transport.Conn]*UserConnection)
	r.order = nil
}

func (r *Registry) unlink(user *UserConnection) {
	for i, u := range r.order {
		if u == user {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
