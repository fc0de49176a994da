// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/parlorkit/parlor/internal/aiturn"
	"github.com/parlorkit/parlor/internal/auth"
	"github.com/parlorkit/parlor/internal/cache"
	"github.com/parlorkit/parlor/internal/database"
	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/games/diamonds"
	"github.com/parlorkit/parlor/internal/games/pig"
	"github.com/parlorkit/parlor/internal/games/spades"
	"github.com/parlorkit/parlor/internal/handlers"
	"github.com/parlorkit/parlor/internal/room"
	"github.com/parlorkit/parlor/internal/state"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := database.ConnectDB(); err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := cache.ConnectRedis(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	registry := gamekit.NewRegistry()
	registry.MustRegister(spades.New())
	registry.MustRegister(diamonds.New())
	registry.MustRegister(pig.New())

	// The completion hook closes over the manager variable because the
	// manager itself needs the store.
	var rooms *room.Manager
	store := state.NewStore(state.NewPostgresRepository(database.DB), registry,
		state.WithLogger(logger),
		state.WithRecorder(cache.Recorder()),
		state.WithCompletion(func(ctx context.Context, roomID uuid.UUID, winners []int, reason string) error {
			return rooms.CompleteRoom(ctx, roomID, winners, reason)
		}))
	rooms = room.NewManager(room.NewPostgresRepository(database.DB), registry, store,
		room.DefaultConfig(), room.WithLogger(logger))

	processor := aiturn.NewProcessor(rooms, store, registry, logger)
	server := handlers.NewServer(rooms, store, registry, processor, logger)

	go maintenanceLoop(logger, rooms)
	go aiLoop(logger, rooms, processor)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, server.Routes()); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// maintenanceLoop reaps abandoned seats and sweeps expired rooms.
func maintenanceLoop(logger *logrus.Logger, rooms *room.Manager) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		if n, err := rooms.CleanupDisconnectedPlayers(ctx); err != nil {
			logger.WithError(err).Warn("disconnect cleanup failed")
		} else if n > 0 {
			logger.WithField("seats", n).Info("reaped disconnected players")
		}
		if n, err := rooms.SweepExpired(ctx); err != nil {
			logger.WithError(err).Warn("expiry sweep failed")
		} else if n > 0 {
			logger.WithField("rooms", n).Info("swept expired rooms")
		}
		cancel()
	}
}

// aiLoop gives every active room one unit of AI work per tick, so bot play
// advances even when no client is polling the ai-step endpoint.
func aiLoop(logger *logrus.Logger, rooms *room.Manager, processor *aiturn.Processor) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		active, err := rooms.ListActive(ctx)
		if err != nil {
			logger.WithError(err).Warn("listing active rooms failed")
			cancel()
			continue
		}
		for _, rm := range active {
			due, err := processor.IsAITurn(ctx, rm.ID)
			if err != nil || !due {
				continue
			}
			if _, err := processor.ProcessAITurns(ctx, rm.ID); err != nil {
				logger.WithError(err).WithField("room_id", rm.ID).Warn("ai turn failed")
			}
		}
		cancel()
	}
}
