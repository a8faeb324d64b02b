// internal/session/registry.go
package session

import (
	"context"
	"sync"

	"github.com/avkotov/railways/internal/protocol"
)

// Transport is the outbound half of one live client connection. The WebSocket
// handler implements it for real connections; tests substitute fakes.
type Transport interface {
	// Send delivers one response frame. An error means the connection is dead
	// and the registry entry should be dropped.
	Send(resp protocol.Response) error
	// Ping checks liveness. Used to decide whether a reconnecting client may
	// displace the connection currently holding its seat.
	Ping(ctx context.Context) error
	// Close tears the connection down with a reason shown to the client.
	Close(reason string)
}

// Registry tracks the live connections of one game: at most one per player
// name, plus any number of observers. It holds no game state; seats live in
// the state snapshot, the registry only knows who is reachable right now.
type Registry struct {
	mu        sync.Mutex
	players   map[string]Transport
	observers map[Transport]struct{}
}

// NewRegistry initializes an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		players:   make(map[string]Transport),
		observers: make(map[Transport]struct{}),
	}
}

// SetPlayer binds the player's seat to a connection, replacing any previous one.
func (r *Registry) SetPlayer(name string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[name] = t
}

// RemovePlayer unbinds the player's connection, but only if it is still the
// given one. A reconnect may have already replaced it.
func (r *Registry) RemovePlayer(name string, t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.players[name]; ok && (t == nil || current == t) {
		delete(r.players, name)
		return true
	}
	return false
}

// PlayerTransport returns the connection currently holding the player's seat, or nil.
func (r *Registry) PlayerTransport(name string) Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players[name]
}

// IsAway reports whether the player has no live connection.
func (r *Registry) IsAway(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[name]
	return !ok
}

// AddObserver registers an observer connection.
func (r *Registry) AddObserver(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[t] = struct{}{}
}

// RemoveObserver unregisters an observer connection.
func (r *Registry) RemoveObserver(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, t)
}

// ParticipantCount is the number of live connections, players and observers both.
func (r *Registry) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) + len(r.observers)
}

// ForEachPlayer calls fn for every live player connection. The snapshot is
// taken under the lock, the calls happen outside it.
func (r *Registry) ForEachPlayer(fn func(name string, t Transport)) {
	r.mu.Lock()
	snapshot := make(map[string]Transport, len(r.players))
	for name, t := range r.players {
		snapshot[name] = t
	}
	r.mu.Unlock()
	for name, t := range snapshot {
		fn(name, t)
	}
}

// ForEachObserver calls fn for every observer connection.
func (r *Registry) ForEachObserver(fn func(t Transport)) {
	r.mu.Lock()
	snapshot := make([]Transport, 0, len(r.observers))
	for t := range r.observers {
		snapshot = append(snapshot, t)
	}
	r.mu.Unlock()
	for _, t := range snapshot {
		fn(t)
	}
}
