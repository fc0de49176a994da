// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/room"
)

// viewerSeat resolves the caller to a seat position, or the spectator seat
// when the caller holds none.
func viewerSeat(rm *room.Room, id room.Identity) int {
	if s := rm.SeatFor(id); s != nil {
		return s.Position
	}
	return gamekit.SpectatorSeat
}

// GameStateHandler is the etag poll primitive. An unchanged etag returns
// {"changed": false} with no state body; otherwise the caller gets the
// redacted view for their seat.
func (s *Server) GameStateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.ensureIdentity(w, r)
	if err != nil {
		s.Logger.WithError(err).Error("identity resolution failed")
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal error"})
		return
	}

	rm, err := s.Rooms.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// Polling doubles as a liveness signal for seated players.
	if rm.SeatFor(id) != nil {
		if err := s.Rooms.TouchPlayer(r.Context(), rm.Code, id); err != nil {
			s.Logger.WithError(err).Warn("touch player failed")
		}
	}

	_, changed, err := s.Store.GetIfChanged(r.Context(), rm.ID, r.URL.Query().Get("etag"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !changed {
		writeJSON(w, http.StatusOK, map[string]interface{}{"changed": false})
		return
	}

	pub, err := s.Store.PublicState(r.Context(), rm.ID, viewerSeat(rm, id))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"changed": true, "state": pub})
}

type moveRequest struct {
	Action  string                 `json:"action"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Etag    string                 `json:"etag"`
}

// MoveHandler applies one move for the caller's seat against the etag they
// last saw.
func (s *Server) MoveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.ensureIdentity(w, r)
	if err != nil {
		s.Logger.WithError(err).Error("identity resolution failed")
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal error"})
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Kind: "bad_request", Message: "invalid payload"})
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, apiError{Kind: "bad_request", Message: "action is required"})
		return
	}

	rm, err := s.Rooms.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	seat := rm.SeatFor(id)
	if seat == nil {
		writeError(w, http.StatusForbidden, apiError{Kind: "not_in_room", Message: "you have no seat in this room"})
		return
	}

	mv := gamekit.Move{Action: req.Action, Payload: req.Payload}
	if _, err := s.Store.ApplyMove(r.Context(), rm.ID, seat.Position, mv, req.Etag); err != nil {
		writeEngineError(w, err)
		return
	}

	pub, err := s.Store.PublicState(r.Context(), rm.ID, seat.Position)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": pub})
}

// ForfeitHandler concedes on behalf of the caller's seat and ends the game.
func (s *Server) ForfeitHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.ensureIdentity(w, r)
	if err != nil {
		s.Logger.WithError(err).Error("identity resolution failed")
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal error"})
		return
	}

	rm, err := s.Rooms.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	seat := rm.SeatFor(id)
	if seat == nil {
		writeError(w, http.StatusForbidden, apiError{Kind: "not_in_room", Message: "you have no seat in this room"})
		return
	}

	if _, err := s.Store.Forfeit(r.Context(), rm.ID, seat.Position); err != nil {
		writeEngineError(w, err)
		return
	}

	pub, err := s.Store.PublicState(r.Context(), rm.ID, seat.Position)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": pub})
}

// AIStepHandler lets client pollers drive bot play: it performs one unit of
// AI work and reports whether more remains.
func (s *Server) AIStepHandler(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if _, err := s.Processor.ProcessAITurns(r.Context(), rm.ID); err != nil {
		writeEngineError(w, err)
		return
	}

	more, err := s.Processor.IsAITurn(r.Context(), rm.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	pub, err := s.Store.PublicState(r.Context(), rm.ID, gamekit.SpectatorSeat)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": pub, "more": more})
}
