// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avkotov/railways/internal/game"
)

// stateTTL is how long a saved game survives in Redis without being touched.
// Every save refreshes it, so only abandoned games expire.
const stateTTL = time.Hour

// ErrNotFound is returned when no saved game exists under the requested id.
var ErrNotFound = errors.New("cache: game not found")

// Storage persists game snapshots in Redis so that sessions survive a process
// restart. A nil *Storage is valid and disables persistence.
type Storage struct {
	rdb *redis.Client
}

// ConnectRedis builds a Storage from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis(ctx context.Context) (*Storage, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Storage{rdb: rdb}, nil
}

// NewStorage wraps an existing client, for tests.
func NewStorage(rdb *redis.Client) *Storage {
	return &Storage{rdb: rdb}
}

// SaveGame writes the state snapshot under the game id and refreshes the TTL
// of both the state and its map.
func (s *Storage) SaveGame(ctx context.Context, state game.State) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal game %s: %w", state.ID, err)
	}
	if err := s.rdb.Set(ctx, string(state.ID), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save game %s: %w", state.ID, err)
	}
	// Keep the map alive as long as the state.
	s.rdb.Expire(ctx, mapKey(state.ID), stateTTL)
	return nil
}

// SaveMap writes the game map under its own key. Called once per game, when
// the game starts.
func (s *Storage) SaveMap(ctx context.Context, id game.GameID, m *game.Map) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal map of game %s: %w", id, err)
	}
	if err := s.rdb.Set(ctx, mapKey(id), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save map of game %s: %w", id, err)
	}
	return nil
}

// LoadGame reads back the state and map of a saved game. It returns
// ErrNotFound when either key is missing or expired.
func (s *Storage) LoadGame(ctx context.Context, id game.GameID) (game.State, *game.Map, error) {
	if s == nil {
		return game.State{}, nil, ErrNotFound
	}
	stateData, err := s.rdb.Get(ctx, string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return game.State{}, nil, ErrNotFound
	}
	if err != nil {
		return game.State{}, nil, fmt.Errorf("failed to load game %s: %w", id, err)
	}
	mapData, err := s.rdb.Get(ctx, mapKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return game.State{}, nil, ErrNotFound
	}
	if err != nil {
		return game.State{}, nil, fmt.Errorf("failed to load map of game %s: %w", id, err)
	}

	var state game.State
	if err := json.Unmarshal(stateData, &state); err != nil {
		return game.State{}, nil, fmt.Errorf("corrupt state of game %s: %w", id, err)
	}
	var m game.Map
	if err := json.Unmarshal(mapData, &m); err != nil {
		return game.State{}, nil, fmt.Errorf("corrupt map of game %s: %w", id, err)
	}
	return state, m.Build(), nil
}

// HasGame reports whether a saved game exists under the id.
func (s *Storage) HasGame(ctx context.Context, id game.GameID) (bool, error) {
	if s == nil {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, string(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check game %s: %w", id, err)
	}
	return n > 0, nil
}

func mapKey(id game.GameID) string {
	return string(id) + "-map"
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
