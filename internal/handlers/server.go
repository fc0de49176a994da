// internal/handlers/server.go
package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/parlorkit/parlor/internal/aiturn"
	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/middleware"
	"github.com/parlorkit/parlor/internal/room"
	"github.com/parlorkit/parlor/internal/state"
)

// Server holds the engine components the HTTP surface delegates to.
type Server struct {
	Rooms     *room.Manager
	Store     *state.Store
	Registry  *gamekit.Registry
	Processor *aiturn.Processor
	Logger    *logrus.Logger
}

// NewServer wires the handlers to the engine.
func NewServer(rooms *room.Manager, store *state.Store, registry *gamekit.Registry, processor *aiturn.Processor, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		Rooms:     rooms,
		Store:     store,
		Registry:  registry,
		Processor: processor,
		Logger:    logger,
	}
}

// Routes builds the request mux with logging middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("POST /user/create", s.CreateUserHandler)
	mux.HandleFunc("POST /user/login", s.LoginHandler)
	mux.HandleFunc("POST /user/guest", s.GuestHandler)

	// game catalog
	mux.HandleFunc("GET /games", s.ListGamesHandler)

	// room endpoints
	mux.HandleFunc("POST /room", s.CreateRoomHandler)
	mux.HandleFunc("GET /room/{code}", s.GetRoomHandler)
	mux.HandleFunc("POST /room/{code}/join", s.JoinRoomHandler)
	mux.HandleFunc("POST /room/{code}/ai", s.AddAIHandler)
	mux.HandleFunc("POST /room/{code}/leave", s.LeaveRoomHandler)
	mux.HandleFunc("POST /room/{code}/start", s.StartGameHandler)
	mux.HandleFunc("GET /room/{code}/watch", s.WatchHandler)

	// game endpoints
	mux.HandleFunc("GET /game/state/{code}", s.GameStateHandler)
	mux.HandleFunc("POST /game/move/{code}", s.MoveHandler)
	mux.HandleFunc("POST /game/forfeit/{code}", s.ForfeitHandler)
	mux.HandleFunc("POST /game/ai/{code}", s.AIStepHandler)

	return middleware.LogMiddleware(s.Logger)(mux)
}

// ListGamesHandler returns metadata for every registered game.
func (s *Server) ListGamesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"games": s.Registry.List()})
}
