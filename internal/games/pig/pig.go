// internal/games/pig/pig.go
package pig

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/parlorkit/parlor/internal/gamekit"
)

const (
	phasePlaying  = "playing"
	phaseGameOver = "game_over"

	minSeats      = 2
	maxSeats      = 6
	defaultTarget = 100
	queueSize     = 64

	actionRoll = "roll"
	actionHold = "hold"
	actionAck  = "continue"
)

// Module implements Pig, the jeopardy dice race: roll to grow a turn total,
// hold to bank it, bust the whole total on a 1. First seat to the target
// wins. Dice are drawn from a pre-rolled queue so apply stays pure; the
// queue is replenished through DealOrSetup whenever it runs dry.
type Module struct{}

// New returns the pig module.
func New() *Module { return &Module{} }

type seatState struct {
	Name  string `json:"name"`
	IsAI  bool   `json:"is_ai"`
	Score int    `json:"score"`
}

type doc struct {
	Phase     string      `json:"phase"`
	Seats     []seatState `json:"seats"`
	Current   int         `json:"current"`
	TurnTotal int         `json:"turn_total"`
	LastRoll  int         `json:"last_roll,omitempty"`
	PassTurn  bool        `json:"pass_turn,omitempty"`
	Target    int         `json:"target"`
	DiceQueue []int       `json:"dice_queue"`
	Winner    *int        `json:"winner,omitempty"`
	Seeded    bool        `json:"seeded"`
}

func decode(st gamekit.State) (*doc, error) {
	var d doc
	if err := json.Unmarshal(st.Data, &d); err != nil {
		return nil, fmt.Errorf("decode pig state: %w", err)
	}
	return &d, nil
}

// Metadata implements gamekit.Module.
func (m *Module) Metadata() gamekit.Metadata {
	return gamekit.Metadata{
		ID:          "pig",
		Name:        "Pig",
		Type:        "dice",
		MinPlayers:  minSeats,
		MaxPlayers:  maxSeats,
		AISupported: true,
		Description: "Push-your-luck dice race to 100.",
		Rules:       "Roll to add to your turn total, hold to bank it. Rolling a 1 loses the turn total and passes the die. First to the target wins.",
	}
}

// InitState seeds seats and the target score. The dice queue is filled by
// DealOrSetup.
func (m *Module) InitState(seats []gamekit.SeatInfo, settings gamekit.Settings) (gamekit.State, error) {
	if len(seats) < minSeats || len(seats) > maxSeats {
		return gamekit.State{}, gamekit.NewRuleError(gamekit.RuleInvalidMove, "pig needs %d to %d players, got %d", minSeats, maxSeats, len(seats))
	}
	d := &doc{
		Phase:  gamekit.PhaseDeal,
		Seats:  make([]seatState, len(seats)),
		Target: settings.Int("target_score", defaultTarget),
	}
	for i, s := range seats {
		d.Seats[i] = seatState{Name: s.DisplayName, IsAI: s.IsAI}
	}
	st := gamekit.State{Turn: gamekit.GateTurn(gamekit.GateStartGame), Phase: d.Phase}
	return st.WithData(d)
}

// DealOrSetup fills the dice queue. The first call parks behind the
// start_game gate; later calls are mid-game refills and also settle any
// turn handover pending from the roll that drained the queue.
func (m *Module) DealOrSetup(st gamekit.State, rng *rand.Rand) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	d.DiceQueue = make([]int, queueSize)
	for i := range d.DiceQueue {
		d.DiceQueue[i] = rng.Intn(6) + 1
	}
	d.Phase = phasePlaying
	st.Phase = d.Phase
	if !d.Seeded {
		d.Seeded = true
		st.Turn = gamekit.GateTurn(gamekit.GateStartGame)
	} else {
		advanceSeat(d, &st)
	}
	return st.WithData(d)
}

// ValidateMove accepts roll or hold from the seat holding the die.
func (m *Module) ValidateMove(st gamekit.State, seat int, mv gamekit.Move) error {
	d, err := decode(st)
	if err != nil {
		return err
	}
	if d.Phase == phaseGameOver {
		return gamekit.NewRuleError(gamekit.RuleGameOver, "the game is over")
	}
	if seat < 0 || seat >= len(d.Seats) {
		return gamekit.NewRuleError(gamekit.RuleInvalidMove, "invalid seat %d", seat)
	}
	if st.Turn.Kind == gamekit.TurnGate {
		if mv.Action != actionAck {
			return gamekit.NewRuleError(gamekit.RuleOutOfPhase, "waiting for %s acknowledgment", st.Turn.Gate)
		}
		return nil
	}
	if mv.Action == actionAck {
		return gamekit.NewRuleError(gamekit.RuleOutOfPhase, "no gate is open")
	}
	if !st.Turn.IsSeat(seat) {
		return gamekit.NewRuleError(gamekit.RuleNotYourTurn, "it is not seat %d's turn", seat)
	}
	switch mv.Action {
	case actionRoll, actionHold:
		return nil
	default:
		return gamekit.NewRuleError(gamekit.RuleInvalidMove, "unknown action %q", mv.Action)
	}
}

// ApplyMove assumes the move validated.
func (m *Module) ApplyMove(st gamekit.State, seat int, mv gamekit.Move) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	switch mv.Action {
	case actionAck:
		if st.Turn.Gate != gamekit.GateStartGame {
			return st, gamekit.NewRuleError(gamekit.RuleOutOfPhase, "unknown gate %q", st.Turn.Gate)
		}
		d.Current = 0
		st.Turn = gamekit.SeatTurn(0)
		return st.WithData(d)
	case actionRoll:
		d.Current = seat
		die := d.DiceQueue[0]
		d.DiceQueue = d.DiceQueue[1:]
		d.LastRoll = die
		if die == 1 {
			d.TurnTotal = 0
			d.PassTurn = true
		} else {
			d.TurnTotal += die
		}
		if len(d.DiceQueue) == 0 {
			// Refill before the next roll; the store deals on this phase.
			d.Phase = gamekit.PhaseDeal
			st.Phase = d.Phase
		}
		return st.WithData(d)
	case actionHold:
		d.Current = seat
		d.Seats[seat].Score += d.TurnTotal
		d.TurnTotal = 0
		d.PassTurn = true
		if d.Seats[seat].Score >= d.Target {
			d.Phase = phaseGameOver
			st.Phase = d.Phase
			d.Winner = &seat
		}
		return st.WithData(d)
	default:
		return st, gamekit.NewRuleError(gamekit.RuleInvalidMove, "unknown action %q", mv.Action)
	}
}

// advanceSeat settles whose turn it is from the recorded flags.
func advanceSeat(d *doc, st *gamekit.State) {
	if d.PassTurn {
		d.Current = (d.Current + 1) % len(d.Seats)
		d.PassTurn = false
		d.TurnTotal = 0
	}
	st.Turn = gamekit.SeatTurn(d.Current)
}

// AdvanceTurn keeps the die with the roller until a bust or hold passes it.
func (m *Module) AdvanceTurn(st gamekit.State) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	if d.Phase != phasePlaying {
		return st, nil
	}
	advanceSeat(d, &st)
	return st.WithData(d)
}

// CheckEndCondition: pig has no rounds, only a winner.
func (m *Module) CheckEndCondition(st gamekit.State) gamekit.EndCheck {
	d, err := decode(st)
	if err != nil {
		return gamekit.EndCheck{}
	}
	if d.Phase == phaseGameOver && d.Winner != nil {
		return gamekit.EndCheck{GameOver: true, Reason: "target_reached", Winners: []int{*d.Winner}}
	}
	return gamekit.EndCheck{}
}

// ScoreRound is a no-op: banking happens on hold.
func (m *Module) ScoreRound(st gamekit.State) (gamekit.State, error) { return st, nil }

// AIMove plays a hold-at-threshold strategy. Easy banks early, medium at the
// textbook 20, hard banks later when trailing and always holds out a win.
func (m *Module) AIMove(st gamekit.State, seat int, difficulty gamekit.Difficulty) (*gamekit.Move, error) {
	d, err := decode(st)
	if err != nil {
		return nil, err
	}
	if st.Turn.Kind != gamekit.TurnSeat || st.Turn.Seat != seat || d.Phase != phasePlaying {
		return nil, nil
	}
	if d.TurnTotal > 0 && d.Seats[seat].Score+d.TurnTotal >= d.Target {
		return &gamekit.Move{Action: actionHold}, nil
	}
	threshold := 20
	switch difficulty {
	case gamekit.DifficultyEasy:
		threshold = 10
	case gamekit.DifficultyHard:
		if lead := bestOpponent(d, seat) - d.Seats[seat].Score; lead > 20 {
			threshold = 25
		}
	}
	if d.TurnTotal >= threshold {
		return &gamekit.Move{Action: actionHold}, nil
	}
	return &gamekit.Move{Action: actionRoll}, nil
}

func bestOpponent(d *doc, seat int) int {
	best := 0
	for i, s := range d.Seats {
		if i != seat && s.Score > best {
			best = s.Score
		}
	}
	return best
}

// ValidMoves enumerates roll and hold for the current seat.
func (m *Module) ValidMoves(st gamekit.State, seat int) []gamekit.Move {
	d, err := decode(st)
	if err != nil {
		return nil
	}
	if st.Turn.Kind == gamekit.TurnGate {
		if seat >= 0 && seat < len(d.Seats) && !d.Seats[seat].IsAI {
			return []gamekit.Move{{Action: actionAck}}
		}
		return nil
	}
	if d.Phase != phasePlaying || !st.Turn.IsSeat(seat) {
		return nil
	}
	return []gamekit.Move{{Action: actionRoll}, {Action: actionHold}}
}

// PendingSeats: pig is strictly turn-based.
func (m *Module) PendingSeats(gamekit.State) []int { return nil }

// Forfeit: free-for-all, so every other seat wins.
func (m *Module) Forfeit(st gamekit.State, seat int) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	winners := make([]int, 0, len(d.Seats)-1)
	for i := range d.Seats {
		if i != seat {
			winners = append(winners, i)
		}
	}
	d.Phase = phaseGameOver
	st.Phase = d.Phase
	st.GameOver = true
	st.Winners = winners
	st.EndReason = "forfeit"
	st.Turn = gamekit.ResolutionTurn()
	return st.WithData(d)
}

// publicDoc drops the dice queue: future rolls are the game's only secret.
type publicDoc struct {
	Phase     string      `json:"phase"`
	Seats     []seatState `json:"seats"`
	Current   int         `json:"current"`
	TurnTotal int         `json:"turn_total"`
	LastRoll  int         `json:"last_roll,omitempty"`
	Target    int         `json:"target"`
	Winner    *int        `json:"winner,omitempty"`
}

// PublicState is identical for every viewer; only the queue is hidden.
func (m *Module) PublicState(st gamekit.State, viewerSeat int) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	pub := publicDoc{
		Phase:     d.Phase,
		Seats:     d.Seats,
		Current:   d.Current,
		TurnTotal: d.TurnTotal,
		LastRoll:  d.LastRoll,
		Target:    d.Target,
		Winner:    d.Winner,
	}
	return st.WithData(pub)
}
