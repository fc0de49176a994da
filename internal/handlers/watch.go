// internal/handlers/watch.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/middleware"
	"github.com/parlorkit/parlor/internal/state"
)

// watchPollInterval is how often the watch feed checks for a new etag.
const watchPollInterval = 500 * time.Millisecond

// watchFrame is one push on the spectator feed.
type watchFrame struct {
	Type  string       `json:"type"`
	State state.Stored `json:"state"`
}

// WatchHandler streams redacted state over a websocket. The server polls the
// store's etag and pushes a frame only when it changes, so a spectator tab
// costs one cheap read per interval.
func (s *Server) WatchHandler(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"watch"},
		OriginPatterns: []string{"*"}, // Adjust for production security.
	})
	if err != nil {
		s.Logger.Warnf("WebSocket accept error for room %s: %v", rm.Code, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	err = s.streamState(r.Context(), c, rm.ID)
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
	c.Close(websocket.StatusNormalClosure, "")
}

// streamState pushes the spectator view whenever the etag moves. It returns
// when the client goes away or the room's state row is deleted.
func (s *Server) streamState(ctx context.Context, c *websocket.Conn, roomID uuid.UUID) error {
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	var lastEtag string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		_, changed, err := s.Store.GetIfChanged(ctx, roomID, lastEtag)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}

		pub, err := s.Store.PublicState(ctx, roomID, gamekit.SpectatorSeat)
		if err != nil {
			return err
		}
		lastEtag = pub.Etag

		if err := wsjson.Write(ctx, c, watchFrame{Type: "state", State: pub}); err != nil {
			return err
		}
		if pub.State.GameOver {
			return nil
		}
	}
}
