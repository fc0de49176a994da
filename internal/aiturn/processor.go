// internal/aiturn/processor.go

// Package aiturn decides whether a room needs AI work and performs exactly
// one unit of it per invocation, so clients can observe every intermediate
// state. It never acts for a human seat and never acts across an open gate.
package aiturn

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/room"
	"github.com/parlorkit/parlor/internal/state"
)

// Processor drives AI seats through the same apply-move path humans use.
type Processor struct {
	rooms    *room.Manager
	store    *state.Store
	registry *gamekit.Registry
	log      *logrus.Logger
}

// NewProcessor builds a Processor.
func NewProcessor(rooms *room.Manager, store *state.Store, registry *gamekit.Registry, log *logrus.Logger) *Processor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{rooms: rooms, store: store, registry: registry, log: log}
}

// IsAITurn reports whether a ProcessAITurns call would do work: false when
// the game is over or a gate is open; true when a resolution step is owed,
// when any AI seat still owes a simultaneous move, or when the current turn
// belongs to an AI seat.
func (p *Processor) IsAITurn(ctx context.Context, roomID uuid.UUID) (bool, error) {
	rm, err := p.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	if rm.Status != room.StatusActive {
		return false, nil
	}
	rec, err := p.store.Get(ctx, roomID)
	if err != nil {
		return false, err
	}
	if rec.State.GameOver || rec.State.Turn.Kind == gamekit.TurnGate {
		return false, nil
	}
	mod, err := p.registry.Get(rec.GameID)
	if err != nil {
		return false, err
	}
	if pending := mod.PendingSeats(rec.State); len(pending) > 0 {
		for _, seat := range pending {
			if s := seatAt(rm, seat); s != nil && s.IsAI {
				return true, nil
			}
		}
		return false, nil
	}
	if rec.State.Turn.Kind == gamekit.TurnResolution {
		// A resolution step is owed; the processor is what performs it.
		return true, nil
	}
	s := seatAt(rm, rec.State.Turn.Seat)
	return s != nil && s.IsAI, nil
}

// ProcessAITurns performs one unit of AI work:
//  1. game over or gate open: nothing.
//  2. resolution owed: run it once, then fall through so the first AI reply
//     can chain onto the resolved state.
//  3. simultaneous phase: batch every AI seat that still owes its move,
//     since no human is blocked between the sub-moves.
//  4. otherwise: one move from the AI holding the turn. A nil move re-runs
//     the end check so a dead-ended game terminates instead of deadlocking.
func (p *Processor) ProcessAITurns(ctx context.Context, roomID uuid.UUID) (state.Stored, error) {
	rm, err := p.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return state.Stored{}, err
	}
	rec, err := p.store.Get(ctx, roomID)
	if err != nil {
		return state.Stored{}, err
	}
	if rec.State.GameOver || rec.State.Turn.Kind == gamekit.TurnGate {
		return rec, nil
	}
	mod, err := p.registry.Get(rec.GameID)
	if err != nil {
		return state.Stored{}, err
	}

	if rec.State.Turn.Kind == gamekit.TurnResolution && len(mod.PendingSeats(rec.State)) == 0 {
		if rec, err = p.store.Advance(ctx, roomID); err != nil {
			return state.Stored{}, err
		}
		if rec.State.GameOver || rec.State.Turn.Kind == gamekit.TurnGate {
			return rec, nil
		}
	}

	if pending := mod.PendingSeats(rec.State); len(pending) > 0 {
		return p.batchSimultaneous(ctx, roomID, rm, mod, rec, pending)
	}

	if rec.State.Turn.Kind != gamekit.TurnSeat {
		return rec, nil
	}
	seat := seatAt(rm, rec.State.Turn.Seat)
	if seat == nil || !seat.IsAI {
		return rec, nil
	}
	mv, err := mod.AIMove(rec.State, seat.Position, difficultyOf(seat))
	if err != nil {
		return state.Stored{}, err
	}
	if mv == nil {
		return p.resolveDeadEnd(ctx, roomID, mod, rec)
	}
	next, err := p.store.ApplyMove(ctx, roomID, seat.Position, *mv, rec.Etag)
	if state.IsStale(err) {
		// A human move won the race; their progress stands.
		return p.store.Get(ctx, roomID)
	}
	if err != nil {
		return state.Stored{}, err
	}
	return next, nil
}

// batchSimultaneous applies one move for every AI seat still pending.
func (p *Processor) batchSimultaneous(ctx context.Context, roomID uuid.UUID, rm *room.Room, mod gamekit.Module, rec state.Stored, pending []int) (state.Stored, error) {
	for _, pos := range pending {
		seat := seatAt(rm, pos)
		if seat == nil || !seat.IsAI {
			continue
		}
		mv, err := mod.AIMove(rec.State, pos, difficultyOf(seat))
		if err != nil {
			return state.Stored{}, err
		}
		if mv == nil {
			continue
		}
		next, err := p.store.ApplyMove(ctx, roomID, pos, *mv, rec.Etag)
		if state.IsStale(err) {
			if next, err = p.store.Get(ctx, roomID); err != nil {
				return state.Stored{}, err
			}
			rec = next
			continue
		}
		if err != nil {
			return state.Stored{}, err
		}
		rec = next
	}
	return rec, nil
}

// resolveDeadEnd terminates a game whose AI seat has no legal move.
func (p *Processor) resolveDeadEnd(ctx context.Context, roomID uuid.UUID, mod gamekit.Module, rec state.Stored) (state.Stored, error) {
	end := mod.CheckEndCondition(rec.State)
	if !end.GameOver && !end.RoundOver {
		p.log.WithFields(logrus.Fields{"room_id": roomID, "seat": rec.State.Turn.Seat}).
			Warn("ai seat has no legal move and no end condition")
		return rec, nil
	}
	st := rec.State
	st.GameOver = true
	st.Winners = end.Winners
	st.EndReason = end.Reason
	if st.EndReason == "" {
		st.EndReason = "no_legal_moves"
	}
	next, err := p.store.Update(ctx, roomID, st, rec.Etag)
	if state.IsStale(err) {
		return p.store.Get(ctx, roomID)
	}
	if err != nil {
		return state.Stored{}, err
	}
	return next, nil
}

func seatAt(rm *room.Room, pos int) *room.Seat {
	for _, s := range rm.Seats {
		if s.Position == pos {
			return s
		}
	}
	return nil
}

func difficultyOf(s *room.Seat) gamekit.Difficulty {
	if s.AIDifficulty == "" {
		return gamekit.DifficultyMedium
	}
	return s.AIDifficulty
}
