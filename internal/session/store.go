// internal/session/store.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avkotov/railways/internal/cache"
	"github.com/avkotov/railways/internal/game"
)

// Store errors surfaced to the connection handshake.
var (
	ErrNoSuchGame  = errors.New("session: no such game")
	ErrGameIDTaken = errors.New("session: game id already taken")
	ErrNoSuchMap   = errors.New("session: no such map")
)

// Store manages the active game sessions in memory. Unknown game ids are
// transparently restored from storage, so a server restart only loses games
// that were never saved.
type Store struct {
	mu       sync.Mutex
	sessions map[game.GameID]*Session
	storage  *cache.Storage
	logger   *logrus.Logger

	// grace is the zero-participant window before a session is evicted.
	// Shortened in tests.
	grace time.Duration
}

// NewStore initializes an empty session store. storage may be nil, which
// disables persistence and restore.
func NewStore(storage *cache.Storage, logger *logrus.Logger) *Store {
	return &Store{
		sessions: make(map[game.GameID]*Session),
		storage:  storage,
		logger:   logger,
		grace:    evictionGrace,
	}
}

// StartGame creates a fresh game session on the named built-in map and
// returns it. The game id is generated; the starting player still has to join
// through the session like everyone else.
func (st *Store) StartGame(ctx context.Context, startedBy, mapName string, carsCount int, scoreLive bool) (*Session, error) {
	m, ok := game.BuiltInMap(mapName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchMap, mapName)
	}
	id, err := st.newGameID(ctx)
	if err != nil {
		return nil, err
	}
	engine := game.NewEngine(m)
	state := engine.InitialState(id, startedBy, carsCount, scoreLive)

	if err := st.storage.SaveMap(ctx, id, m); err != nil {
		st.logger.WithField("game", id).Warnf("failed to save game map: %v", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.sessions[id]; exists {
		return nil, ErrGameIDTaken
	}
	s := newSession(id, engine, state, st.storage, st.logger, st.grace, st.evict)
	st.sessions[id] = s
	st.logger.WithFields(logrus.Fields{
		"game": id,
		"map":  m.Name,
	}).Info("started new game")
	return s, nil
}

// Resolve finds the session for a game id: in memory first, then by restoring
// a saved game from storage. Returns ErrNoSuchGame when neither knows the id.
func (st *Store) Resolve(ctx context.Context, id game.GameID) (*Session, error) {
	st.mu.Lock()
	if s, ok := st.sessions[id]; ok {
		st.mu.Unlock()
		return s, nil
	}
	st.mu.Unlock()

	state, m, err := st.storage.LoadGame(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNoSuchGame
	}
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	// Another connection may have restored it while we were loading.
	if s, ok := st.sessions[id]; ok {
		return s, nil
	}
	s := newSession(id, game.NewEngine(m), state, st.storage, st.logger, st.grace, st.evict)
	st.sessions[id] = s
	st.logger.WithField("game", id).Info("restored game session from storage")
	return s, nil
}

// HasGame reports whether the id names a known game, live or saved. Serves
// the pre-join HTTP lookup.
func (st *Store) HasGame(ctx context.Context, id game.GameID) bool {
	st.mu.Lock()
	_, ok := st.sessions[id]
	st.mu.Unlock()
	if ok {
		return true
	}
	saved, err := st.storage.HasGame(ctx, id)
	if err != nil {
		st.logger.Warnf("failed to check storage for game %s: %v", id, err)
		return false
	}
	return saved
}

// Close shuts every session down.
func (st *Store) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, s := range st.sessions {
		s.Close()
		delete(st.sessions, id)
	}
}

// evict drops a session that stayed empty past the grace period.
func (st *Store) evict(id game.GameID) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	st.mu.Unlock()
	if ok {
		s.Close()
	}
}

// newGameID generates an id that collides neither with a live session nor
// with a saved game.
func (st *Store) newGameID(ctx context.Context) (game.GameID, error) {
	for i := 0; i < 5; i++ {
		id := game.GameID(uuid.NewString()[:8])
		st.mu.Lock()
		_, live := st.sessions[id]
		st.mu.Unlock()
		if live {
			continue
		}
		saved, err := st.storage.HasGame(ctx, id)
		if err != nil {
			return "", err
		}
		if !saved {
			return id, nil
		}
	}
	return "", ErrGameIDTaken
}
