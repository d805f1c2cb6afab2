// internal/handlers/http.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pitchside/pitchside/internal/engine"
	"github.com/pitchside/pitchside/internal/room"
)

// PingHandler is the liveness probe.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong")
}

// CreateRoomHandler creates a room over plain HTTP. The caller becomes host;
// a guest identity is minted if they arrive without a token.
func CreateRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		player, err := EnsureEphemeralPlayer(w, r)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		var cfg room.CreateConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "bad room request payload", http.StatusBadRequest)
			return
		}

		created, err := s.rooms.CreateRoom(player, cfg)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		created.Mu.Lock()
		snap := created.SnapshotUnsafe()
		created.Mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}
}

// ListRoomsHandler returns the current room list snapshot.
func ListRoomsHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.rooms.RoomListPayload())
	}
}

// writeEngineError maps an engine error class onto an HTTP status.
func writeEngineError(w http.ResponseWriter, err error) {
	class, ok := engine.ClassOf(err)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	status := http.StatusInternalServerError
	switch class {
	case engine.Validation:
		status = http.StatusBadRequest
	case engine.Authorization:
		status = http.StatusForbidden
	case engine.NotFound:
		status = http.StatusNotFound
	case engine.Conflict:
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
