// internal/gamekit/turn.go
package gamekit

import "fmt"

// TurnKind discriminates the three meanings a room's "current turn" can have.
// A nullable seat integer is not enough: between tricks the turn belongs to
// nobody (the engine owes a resolution step), and during a gate the turn is
// parked until a human acknowledges.
type TurnKind string

const (
	// TurnSeat means a specific seat must act.
	TurnSeat TurnKind = "seat"
	// TurnResolution means a trick/round is complete and the module's
	// resolution step (AdvanceTurn) must run before anyone may act.
	TurnResolution TurnKind = "resolution"
	// TurnGate means play is paused until a human submits the gate's
	// continuation action. No AI move may happen while a gate is open.
	TurnGate TurnKind = "gate"
)

// GateKind names the acknowledgment a gate is waiting for.
type GateKind string

const (
	GateStartGame    GateKind = "start_game"
	GateNextTurn     GateKind = "next_turn"
	GateResolveRound GateKind = "resolve_round"
)

// Turn is a tagged value: Seat(n) | Resolution | Gate(kind).
type Turn struct {
	Kind TurnKind `json:"kind"`
	Seat int      `json:"seat,omitempty"`
	Gate GateKind `json:"gate,omitempty"`
}

// SeatTurn returns a Turn assigning play to the given seat.
func SeatTurn(seat int) Turn {
	return Turn{Kind: TurnSeat, Seat: seat}
}

// ResolutionTurn returns a Turn indicating a pending resolution step.
func ResolutionTurn() Turn {
	return Turn{Kind: TurnResolution}
}

// GateTurn returns a Turn parked behind the given gate.
func GateTurn(kind GateKind) Turn {
	return Turn{Kind: TurnGate, Gate: kind}
}

// IsSeat reports whether the turn belongs to the given seat.
func (t Turn) IsSeat(seat int) bool {
	return t.Kind == TurnSeat && t.Seat == seat
}

// SeatOrNil returns the seat as a pointer for persistence: Resolution and
// Gate turns map to a true NULL column, never a default seat.
func (t Turn) SeatOrNil() *int {
	if t.Kind != TurnSeat {
		return nil
	}
	seat := t.Seat
	return &seat
}

func (t Turn) String() string {
	switch t.Kind {
	case TurnSeat:
		return fmt.Sprintf("seat(%d)", t.Seat)
	case TurnResolution:
		return "resolution"
	case TurnGate:
		return fmt.Sprintf("gate(%s)", t.Gate)
	default:
		return "unknown"
	}
}
