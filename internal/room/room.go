// internal/room/room.go
package room

import (
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/parlorkit/parlor/internal/gamekit"
)

// Status is the room lifecycle: Lobby accepts joins, Active has a running
// game, Completed keeps the final state readable for a short grace period.
type Status string

const (
	StatusLobby     Status = "lobby"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Identity is who is joining: a registered user, or a guest keyed by token.
// ClientID distinguishes devices for the same identity.
type Identity struct {
	UserID      uuid.UUID `json:"user_id,omitempty"`
	GuestToken  string    `json:"guest_token,omitempty"`
	ClientID    string    `json:"client_id,omitempty"`
	DisplayName string    `json:"display_name"`
}

// Matches reports whether the identity owns the given seat.
func (id Identity) Matches(s *Seat) bool {
	if id.UserID != uuid.Nil && s.UserID != nil && *s.UserID == id.UserID {
		return true
	}
	return id.GuestToken != "" && s.GuestToken == id.GuestToken
}

// Seat is one occupied position in a room.
type Seat struct {
	Position     int                `json:"position"`
	UserID       *uuid.UUID         `json:"user_id,omitempty"`
	GuestToken   string             `json:"guest_token,omitempty"`
	ClientID     string             `json:"client_id,omitempty"`
	IsAI         bool               `json:"is_ai"`
	AIDifficulty gamekit.Difficulty `json:"ai_difficulty,omitempty"`
	DisplayName  string             `json:"display_name"`
	Connected    bool               `json:"connected"`
	LastSeen     time.Time          `json:"last_seen"`
}

// Room is the seat-holding lifecycle record. Gameplay state lives in the
// state store under the same room ID.
type Room struct {
	ID        uuid.UUID        `json:"id"`
	Code      string           `json:"code"`
	GameID    string           `json:"game_id"`
	Status    Status           `json:"status"`
	Settings  gamekit.Settings `json:"settings,omitempty"`
	Seats     []*Seat          `json:"seats"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// SeatFor returns the seat owned by the identity, or nil.
func (r *Room) SeatFor(id Identity) *Seat {
	for _, s := range r.Seats {
		if !s.IsAI && id.Matches(s) {
			return s
		}
	}
	return nil
}

// HumanSeats counts non-AI seats.
func (r *Room) HumanSeats() int {
	n := 0
	for _, s := range r.Seats {
		if !s.IsAI {
			n++
		}
	}
	return n
}

// lowestFreePosition returns the smallest unused seat position below max.
func (r *Room) lowestFreePosition(max int) (int, bool) {
	used := make(map[int]bool, len(r.Seats))
	for _, s := range r.Seats {
		used[s.Position] = true
	}
	for pos := 0; pos < max; pos++ {
		if !used[pos] {
			return pos, true
		}
	}
	return 0, false
}

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrGameStarted        = errors.New("game already started")
	ErrNotEnoughPlayers   = errors.New("not enough players")
	ErrAINotSupported     = errors.New("game does not support ai players")
	ErrSeatNotFound       = errors.New("seat not found")
	ErrCodeSpaceExhausted = errors.New("could not generate a unique room code")
)

// codeAlphabet drops the lookalikes 0/O, 1/I/L so codes survive being read
// aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

func generateCode(rng *rand.Rand) string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rng.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
