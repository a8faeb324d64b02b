// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/avkotov/railways/internal/game"
	"github.com/avkotov/railways/internal/middleware"
	"github.com/avkotov/railways/internal/session"
)

// NewServeMux assembles the HTTP surface of the server: the WebSocket game
// endpoint and the small JSON API used by clients before they connect.
func NewServeMux(logger *log.Logger, store *session.Store) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", GameWSHandler(logger, store))
	mux.HandleFunc("/api/game/", GameExistsHandler(store))
	mux.HandleFunc("/api/maps", MapsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return middleware.LogMiddleware(logger)(mux)
}

// GameExistsHandler answers the pre-join lookup: GET /api/game/{id} reports
// whether the id names a live or saved game. Clients use it to validate an id
// before opening a WebSocket.
func GameExistsHandler(store *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/game/")
		if id == "" || strings.Contains(id, "/") {
			http.Error(w, "missing game id (/api/game/{id})", http.StatusBadRequest)
			return
		}
		exists := store.HasGame(r.Context(), game.GameID(id))
		w.Header().Set("Content-Type", "application/json")
		if !exists {
			w.WriteHeader(http.StatusNotFound)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"gameId": id,
			"exists": exists,
		})
	}
}

// MapsHandler lists the built-in map names a game can be started on.
func MapsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"maps":    game.BuiltInMapNames(),
		"default": game.DefaultMapName,
	})
}
