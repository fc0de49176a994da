// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/parlorkit/parlor/internal/auth"
	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/room"
	"github.com/parlorkit/parlor/internal/state"
)

// apiError is the uniform error envelope: {"error": {"kind", "message"}}.
// Stale writes additionally carry the winning etag so clients can refetch.
type apiError struct {
	Kind        string `json:"kind"`
	Message     string `json:"message,omitempty"`
	CurrentEtag string `json:"current_etag,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, map[string]apiError{"error": e})
}

// writeEngineError maps engine errors onto the wire taxonomy. Rule
// rejections are 422 so clients can tell "your move was illegal" apart from
// lifecycle conflicts (409) and stale writes (409 + current_etag).
func writeEngineError(w http.ResponseWriter, err error) {
	var stale *state.StaleStateError
	if errors.As(err, &stale) {
		writeError(w, http.StatusConflict, apiError{
			Kind:        "stale_state",
			Message:     "state changed since your last fetch",
			CurrentEtag: stale.CurrentEtag,
		})
		return
	}
	var rule *gamekit.RuleError
	if errors.As(err, &rule) {
		writeError(w, http.StatusUnprocessableEntity, apiError{
			Kind:    string(rule.Kind),
			Message: rule.Message,
		})
		return
	}

	switch {
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, state.ErrRoomStateNotFound),
		errors.Is(err, room.ErrSeatNotFound):
		writeError(w, http.StatusNotFound, apiError{Kind: "not_found", Message: err.Error()})
	case errors.Is(err, gamekit.ErrGameNotFound):
		writeError(w, http.StatusNotFound, apiError{Kind: "game_not_found", Message: err.Error()})
	case errors.Is(err, room.ErrRoomFull):
		writeError(w, http.StatusConflict, apiError{Kind: "room_full", Message: err.Error()})
	case errors.Is(err, room.ErrGameStarted):
		writeError(w, http.StatusConflict, apiError{Kind: "game_started", Message: err.Error()})
	case errors.Is(err, room.ErrNotEnoughPlayers):
		writeError(w, http.StatusConflict, apiError{Kind: "not_enough_players", Message: err.Error()})
	case errors.Is(err, room.ErrAINotSupported):
		writeError(w, http.StatusConflict, apiError{Kind: "no_ai", Message: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal error"})
	}
}

// extractCookieToken extracts a named cookie value from the "Cookie" header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

func setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
}

// ensureIdentity resolves the caller to a room identity. A caller with no
// token, or an invalid one, is minted a guest on the spot and handed the
// token via cookie, so a first-time visitor can join a room in one request.
func (s *Server) ensureIdentity(w http.ResponseWriter, r *http.Request) (room.Identity, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}

	if token != "" {
		if p, err := auth.AuthenticateJWT(token); err == nil {
			return identityFromPrincipal(p, r)
		}
	}

	guestToken, err := auth.NewGuestToken()
	if err != nil {
		return room.Identity{}, err
	}
	jwtStr, err := auth.CreateJWT(auth.KindGuest, guestToken)
	if err != nil {
		return room.Identity{}, err
	}
	setAuthCookie(w, jwtStr)
	return room.Identity{GuestToken: guestToken, ClientID: r.Header.Get("X-Client-ID")}, nil
}

func identityFromPrincipal(p auth.Principal, r *http.Request) (room.Identity, error) {
	id := room.Identity{ClientID: r.Header.Get("X-Client-ID")}
	switch p.Kind {
	case auth.KindUser:
		uid, err := uuid.Parse(p.Subject)
		if err != nil {
			return room.Identity{}, errors.New("invalid user id in token")
		}
		id.UserID = uid
	case auth.KindGuest:
		id.GuestToken = p.Subject
	}
	return id, nil
}
