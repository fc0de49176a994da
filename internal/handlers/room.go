// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/parlorkit/parlor/internal/gamekit"
)

type createRoomRequest struct {
	GameID   string           `json:"game_id"`
	Settings gamekit.Settings `json:"settings,omitempty"`
}

// CreateRoomHandler makes a new lobby for the requested game and returns it,
// join code included.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Kind: "bad_request", Message: "invalid payload"})
		return
	}

	rm, err := s.Rooms.CreateRoom(r.Context(), req.GameID, req.Settings)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"room": rm})
}

// GetRoomHandler returns the room with its seats and status.
func (s *Server) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"room": rm})
}

type joinRoomRequest struct {
	DisplayName string `json:"display_name"`
	ClientID    string `json:"client_id,omitempty"`
}

// JoinRoomHandler seats the caller. Rejoining with the same identity returns
// the existing seat rather than a new one.
func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.ensureIdentity(w, r)
	if err != nil {
		s.Logger.WithError(err).Error("identity resolution failed")
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal error"})
		return
	}

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Kind: "bad_request", Message: "invalid payload"})
		return
	}
	id.DisplayName = req.DisplayName
	if req.ClientID != "" {
		id.ClientID = req.ClientID
	}

	seat, err := s.Rooms.JoinRoom(r.Context(), r.PathValue("code"), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seat": seat})
}

type addAIRequest struct {
	Difficulty gamekit.Difficulty `json:"difficulty,omitempty"`
}

// AddAIHandler seats a bot in the lobby.
func (s *Server) AddAIHandler(w http.ResponseWriter, r *http.Request) {
	var req addAIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Difficulty = ""
	}

	seat, err := s.Rooms.AddAIPlayer(r.Context(), r.PathValue("code"), req.Difficulty)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seat": seat})
}

// LeaveRoomHandler vacates the caller's seat; the room is deleted once the
// last human leaves.
func (s *Server) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.ensureIdentity(w, r)
	if err != nil {
		s.Logger.WithError(err).Error("identity resolution failed")
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal error"})
		return
	}

	if err := s.Rooms.LeaveRoom(r.Context(), r.PathValue("code"), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StartGameHandler deals the first hand and flips the room to active.
func (s *Server) StartGameHandler(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.StartGame(r.Context(), r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"room": rm})
}
