// internal/room/manager.go
package room

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/state"
)

// Config holds the room lifecycle timings.
type Config struct {
	// InactivityTimeout is the soft expiry refreshed on room activity.
	InactivityTimeout time.Duration
	// HardCap deletes a room this long after creation regardless of activity.
	HardCap time.Duration
	// DisconnectGrace is how long a dropped human seat survives before the
	// cleanup sweep vacates it.
	DisconnectGrace time.Duration
	// CompletedGrace keeps a finished room readable before deletion.
	CompletedGrace time.Duration
}

// DefaultConfig mirrors typical interactive-session timings.
func DefaultConfig() Config {
	return Config{
		InactivityTimeout: 2 * time.Hour,
		HardCap:           24 * time.Hour,
		DisconnectGrace:   2 * time.Minute,
		CompletedGrace:    15 * time.Minute,
	}
}

// Manager owns the room lifecycle: codes, seats, connection tracking, game
// start and expiry. Gameplay state itself is delegated to the state store.
type Manager struct {
	repo     Repository
	registry *gamekit.Registry
	store    *state.Store
	cfg      Config
	log      *logrus.Logger
	rng      *rand.Rand
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger overrides the default logrus logger.
func WithLogger(log *logrus.Logger) ManagerOption { return func(m *Manager) { m.log = log } }

// WithRand seeds code generation deterministically, for tests.
func WithRand(rng *rand.Rand) ManagerOption { return func(m *Manager) { m.rng = rng } }

// WithClock overrides wall-clock reads, for tests.
func WithClock(now func() time.Time) ManagerOption { return func(m *Manager) { m.now = now } }

// NewManager builds a Manager. The store may be nil in tests that never
// start a game.
func NewManager(repo Repository, registry *gamekit.Registry, store *state.Store, cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:     repo,
		registry: registry,
		store:    store,
		cfg:      cfg,
		log:      logrus.StandardLogger(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom validates the game and allocates a collision-free code.
func (m *Manager) CreateRoom(ctx context.Context, gameID string, settings gamekit.Settings) (*Room, error) {
	if _, err := m.registry.Get(gameID); err != nil {
		return nil, err
	}
	code, err := m.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	r := &Room{
		ID:        uuid.New(),
		Code:      code,
		GameID:    gameID,
		Status:    StatusLobby,
		Settings:  settings,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.InactivityTimeout),
	}
	if err := m.repo.Insert(ctx, r); err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"room_code": r.Code, "game_id": gameID}).Info("room created")
	return r, nil
}

func (m *Manager) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 32; attempt++ {
		code := generateCode(m.rng)
		inUse, err := m.repo.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// JoinRoom seats an identity at the lowest free position. Rejoining with the
// same identity refreshes the existing seat instead of consuming another.
func (m *Manager) JoinRoom(ctx context.Context, code string, id Identity) (*Seat, error) {
	r, err := m.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	now := m.now()

	// Idempotent rejoin works in any status so reconnects survive a started
	// game.
	if seat := r.SeatFor(id); seat != nil {
		touchSeat(seat, true, now)
		seat.ClientID = id.ClientID
		// A completed room keeps its short grace; activity must not revive it.
		if r.Status != StatusCompleted {
			r.ExpiresAt = now.Add(m.cfg.InactivityTimeout)
		}
		if err := m.repo.Update(ctx, r); err != nil {
			return nil, err
		}
		return seat, nil
	}

	if r.Status != StatusLobby {
		return nil, ErrGameStarted
	}
	mod, err := m.registry.Get(r.GameID)
	if err != nil {
		return nil, err
	}
	pos, ok := r.lowestFreePosition(mod.Metadata().MaxPlayers)
	if !ok {
		return nil, ErrRoomFull
	}
	seat := &Seat{
		Position:    pos,
		GuestToken:  id.GuestToken,
		ClientID:    id.ClientID,
		DisplayName: id.DisplayName,
		Connected:   true,
		LastSeen:    now,
	}
	if id.UserID != uuid.Nil {
		uid := id.UserID
		seat.UserID = &uid
	}
	r.Seats = append(r.Seats, seat)
	r.ExpiresAt = now.Add(m.cfg.InactivityTimeout)
	if err := m.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return seat, nil
}

// AddAIPlayer seats a bot with a sequential name. Lobby only.
func (m *Manager) AddAIPlayer(ctx context.Context, code string, difficulty gamekit.Difficulty) (*Seat, error) {
	r, err := m.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusLobby {
		return nil, ErrGameStarted
	}
	mod, err := m.registry.Get(r.GameID)
	if err != nil {
		return nil, err
	}
	if !mod.Metadata().AISupported {
		return nil, ErrAINotSupported
	}
	pos, ok := r.lowestFreePosition(mod.Metadata().MaxPlayers)
	if !ok {
		return nil, ErrRoomFull
	}
	botCount := 0
	for _, s := range r.Seats {
		if s.IsAI {
			botCount++
		}
	}
	if difficulty == "" {
		difficulty = gamekit.DifficultyMedium
	}
	now := m.now()
	seat := &Seat{
		Position:     pos,
		IsAI:         true,
		AIDifficulty: difficulty,
		DisplayName:  fmt.Sprintf("Bot %d", botCount+1),
		Connected:    true,
		LastSeen:     now,
	}
	r.Seats = append(r.Seats, seat)
	r.ExpiresAt = now.Add(m.cfg.InactivityTimeout)
	if err := m.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return seat, nil
}

// LeaveRoom vacates the identity's seat. The room is deleted once no human
// seat remains; otherwise its expiry is refreshed.
func (m *Manager) LeaveRoom(ctx context.Context, code string, id Identity) error {
	r, err := m.repo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	seat := r.SeatFor(id)
	if seat == nil {
		return ErrSeatNotFound
	}
	kept := r.Seats[:0]
	for _, s := range r.Seats {
		if s != seat {
			kept = append(kept, s)
		}
	}
	r.Seats = kept
	if r.HumanSeats() == 0 {
		m.log.WithField("room_code", r.Code).Info("room empty, deleting")
		return m.repo.Delete(ctx, r.ID)
	}
	r.ExpiresAt = m.now().Add(m.cfg.InactivityTimeout)
	return m.repo.Update(ctx, r)
}

// StartGame initializes the game through the state store and flips the room
// to Active.
func (m *Manager) StartGame(ctx context.Context, code string) (*Room, error) {
	r, err := m.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusLobby {
		return nil, ErrGameStarted
	}
	mod, err := m.registry.Get(r.GameID)
	if err != nil {
		return nil, err
	}
	if len(r.Seats) < mod.Metadata().MinPlayers {
		return nil, ErrNotEnoughPlayers
	}
	seats := make([]gamekit.SeatInfo, len(r.Seats))
	for i, s := range r.Seats {
		seats[i] = gamekit.SeatInfo{Position: s.Position, DisplayName: s.DisplayName, IsAI: s.IsAI}
	}
	if _, err := m.store.Create(ctx, r.ID, r.GameID, seats, r.Settings); err != nil {
		return nil, err
	}
	r.Status = StatusActive
	r.ExpiresAt = m.now().Add(m.cfg.InactivityTimeout)
	if err := m.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"room_code": r.Code, "game_id": r.GameID}).Info("game started")
	return r, nil
}

// GetRoom returns the room by code.
func (m *Manager) GetRoom(ctx context.Context, code string) (*Room, error) {
	return m.repo.GetByCode(ctx, code)
}

// GetRoomByID returns the room by ID.
func (m *Manager) GetRoomByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	return m.repo.GetByID(ctx, id)
}

// ListActive returns every room with a running game, for the AI poll loop.
func (m *Manager) ListActive(ctx context.Context) ([]*Room, error) {
	all, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*Room, 0, len(all))
	for _, rm := range all {
		if rm.Status == StatusActive {
			active = append(active, rm)
		}
	}
	return active, nil
}

// TouchPlayer records activity for the identity's seat and refreshes the
// room's soft expiry.
func (m *Manager) TouchPlayer(ctx context.Context, code string, id Identity) error {
	return m.setConnection(ctx, code, id, true)
}

// MarkPlayerDisconnected flags the seat; the cleanup sweep vacates it only
// after the grace window.
func (m *Manager) MarkPlayerDisconnected(ctx context.Context, code string, id Identity) error {
	return m.setConnection(ctx, code, id, false)
}

func (m *Manager) setConnection(ctx context.Context, code string, id Identity, connected bool) error {
	r, err := m.repo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	seat := r.SeatFor(id)
	if seat == nil {
		return ErrSeatNotFound
	}
	now := m.now()
	touchSeat(seat, connected, now)
	// Polling a completed room must not outlive the completion grace.
	if connected && r.Status != StatusCompleted {
		r.ExpiresAt = now.Add(m.cfg.InactivityTimeout)
	}
	return m.repo.Update(ctx, r)
}

// CompleteRoom flips the room to Completed with a short readable grace. It
// satisfies the state store's completion hook.
func (m *Manager) CompleteRoom(ctx context.Context, roomID uuid.UUID, winners []int, reason string) error {
	r, err := m.repo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	r.Status = StatusCompleted
	r.ExpiresAt = m.now().Add(m.cfg.CompletedGrace)
	m.log.WithFields(logrus.Fields{"room_code": r.Code, "winners": winners, "reason": reason}).Info("room completed")
	return m.repo.Update(ctx, r)
}

// CleanupDisconnectedPlayers vacates human seats whose disconnect outlived
// the grace window. AI seats are exempt. Returns how many seats were
// removed.
func (m *Manager) CleanupDisconnectedPlayers(ctx context.Context) (int, error) {
	rooms, err := m.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now()
	removed := 0
	for _, r := range rooms {
		if r.Status == StatusCompleted {
			continue
		}
		kept := make([]*Seat, 0, len(r.Seats))
		reaped := make([]int, 0)
		for _, s := range r.Seats {
			if !s.IsAI && !s.Connected && now.Sub(s.LastSeen) > m.cfg.DisconnectGrace {
				removed++
				reaped = append(reaped, s.Position)
				continue
			}
			kept = append(kept, s)
		}
		if len(reaped) == 0 {
			continue
		}
		r.Seats = kept
		if r.HumanSeats() == 0 {
			if err := m.repo.Delete(ctx, r.ID); err != nil {
				return removed, err
			}
			continue
		}
		if err := m.repo.Update(ctx, r); err != nil {
			return removed, err
		}
		// A vacated seat in a running game forfeits, otherwise the game
		// would stall waiting on a seat that can never move again.
		if r.Status == StatusActive && m.store != nil {
			for _, pos := range reaped {
				if _, err := m.store.Forfeit(ctx, r.ID, pos); err != nil {
					m.log.WithError(err).WithFields(logrus.Fields{"room_code": r.Code, "seat": pos}).
						Warn("forfeit for vacated seat failed")
				}
			}
		}
	}
	return removed, nil
}

// SweepExpired deletes rooms past their soft expiry or the hard age cap,
// along with their game state. Returns how many rooms were deleted.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	rooms, err := m.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now()
	deleted := 0
	for _, r := range rooms {
		if now.Before(r.ExpiresAt) && now.Sub(r.CreatedAt) < m.cfg.HardCap {
			continue
		}
		if err := m.repo.Delete(ctx, r.ID); err != nil {
			return deleted, err
		}
		if m.store != nil {
			if err := m.store.Delete(ctx, r.ID); err != nil {
				m.log.WithError(err).WithField("room_code", r.Code).Warn("state cleanup failed")
			}
		}
		deleted++
		m.log.WithFields(logrus.Fields{"room_code": r.Code, "status": r.Status}).Info("room expired")
	}
	return deleted, nil
}
