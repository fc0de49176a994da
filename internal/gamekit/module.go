// internal/gamekit/module.go
package gamekit

import (
	"encoding/json"
	"math/rand"
)

// Difficulty selects how hard an AI seat plays.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Metadata describes a registered game for lobby listings and room creation.
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"` // "card", "board", "dice"
	MinPlayers  int    `json:"min_players"`
	MaxPlayers  int    `json:"max_players"`
	HasTeams    bool   `json:"has_teams"`
	AISupported bool   `json:"ai_supported"`
	Description string `json:"description,omitempty"`
	Rules       string `json:"rules,omitempty"`
}

// SeatInfo is the engine's view of one occupied seat, passed to InitState.
type SeatInfo struct {
	Position    int    `json:"position"`
	DisplayName string `json:"display_name"`
	IsAI        bool   `json:"is_ai"`
}

// Settings carries per-room options chosen at creation (target score, etc.).
// Modules read the keys they understand and ignore the rest.
type Settings map[string]interface{}

// Int reads an integer setting with a default. JSON decoding produces
// float64, so both are accepted.
func (s Settings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// Move is a single submitted action: a verb plus a module-defined payload.
type Move struct {
	Action  string                 `json:"action"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// PayloadString reads a string payload field, empty if absent.
func (m Move) PayloadString(key string) string {
	v, _ := m.Payload[key].(string)
	return v
}

// PayloadInt reads an integer payload field; ok is false if absent or not a
// number.
func (m Move) PayloadInt(key string) (int, bool) {
	switch v := m.Payload[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// State is one immutable value of a room's game. The engine only interprets
// the header fields; Data is the module's own document and is never inspected
// outside the owning module.
type State struct {
	Turn      Turn            `json:"turn"`
	Phase     string          `json:"phase"`
	GameOver  bool            `json:"game_over"`
	Winners   []int           `json:"winners,omitempty"`
	EndReason string          `json:"end_reason,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// WithData returns a copy of the state carrying the given encoded document.
func (s State) WithData(doc interface{}) (State, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return s, err
	}
	s.Data = raw
	return s, nil
}

// EndCheck is the result of a module's end-condition inspection. Round end
// and game end are distinct: a round end triggers scoring, a game end
// completes the room.
type EndCheck struct {
	RoundOver bool
	GameOver  bool
	Reason    string
	Winners   []int
}

// Module is the uniform contract every game implements. All operations are
// pure functions over an explicit State value: no I/O, no hidden mutation,
// no wall-clock reads. Randomness enters only through the *rand.Rand handed
// to DealOrSetup so deals are reproducible under test.
type Module interface {
	// Metadata returns the static description of the game.
	Metadata() Metadata

	// InitState seeds phase, seat mapping and score containers. It does not
	// deal cards or set up the board.
	InitState(seats []SeatInfo, settings Settings) (State, error)

	// DealOrSetup produces shuffled/dealt hands or the initial board. Called
	// once per round; modules re-invoke their own dealing logic at round
	// boundaries (dealer rotates, round number increments).
	DealOrSetup(st State, rng *rand.Rand) (State, error)

	// ValidateMove is a pure predicate. It must reject moves from a seat
	// other than the current turn (except in simultaneous phases and for
	// gate-continuation actions), structurally invalid payloads, and moves
	// breaking per-game legality.
	ValidateMove(st State, seat int, mv Move) error

	// ApplyMove assumes the move already validated and is the only path that
	// mutates hands/board/scores. Side-effect free beyond the returned state.
	ApplyMove(st State, seat int, mv Move) (State, error)

	// AdvanceTurn applies the game's turn-order policy. When the turn is
	// Resolution it doubles as the resolution step: it resolves the pending
	// trick/round and assigns the next turn.
	AdvanceTurn(st State) (State, error)

	// CheckEndCondition reports whether the round or the whole game is over.
	CheckEndCondition(st State) EndCheck

	// ScoreRound applies the game's scoring formula to a finished round.
	// Deterministic given the state.
	ScoreRound(st State) (State, error)

	// AIMove returns a legal move for the seat, or nil to signal "no legal
	// move" (consumed by an end-condition re-check, never an error).
	AIMove(st State, seat int, difficulty Difficulty) (*Move, error)

	// ValidMoves enumerates the seat's legal moves for UI hinting and AI
	// fallback. Every returned move must pass ValidateMove.
	ValidMoves(st State, seat int) []Move

	// PublicState redacts the state for a viewer seat (-1 for spectators):
	// other seats' private hands collapse to counts, shared zones stay
	// visible.
	PublicState(st State, viewerSeat int) (State, error)

	// PendingSeats lists seats that still owe a move in the current
	// simultaneous phase. An empty result means the phase is turn-based.
	// The completion predicate is the module's own (3 cards passed, dice
	// rolled, ...).
	PendingSeats(st State) []int

	// Forfeit ends the game with the forfeiting seat's opponents as winners.
	// Team games declare the opposing team; free-for-all games declare every
	// other seat.
	Forfeit(st State, seat int) (State, error)
}

// SpectatorSeat is the viewer value for PublicState callers with no seat.
const SpectatorSeat = -1

// PhaseDeal is the phase a module leaves behind when it needs cards dealt or
// dice replenished. Apply/advance operations are pure, so randomness only
// enters through DealOrSetup: whenever a persisted transition lands in
// PhaseDeal, the state store immediately runs DealOrSetup with its RNG before
// writing. Modules set this phase at round boundaries instead of dealing
// themselves.
const PhaseDeal = "dealing"
