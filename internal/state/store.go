// internal/state/store.go
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorkit/parlor/internal/gamekit"
)

// StaleStateError rejects a write whose expected etag no longer matches. The
// caller is expected to refetch and retry or drop the stale intent; nothing
// is merged.
type StaleStateError struct {
	CurrentEtag string
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale state: current etag is %s", e.CurrentEtag)
}

// IsStale reports whether err is a stale-state rejection.
func IsStale(err error) bool {
	var se *StaleStateError
	return errors.As(err, &se)
}

// MoveRecord is the per-move feed entry consumed by the historian.
type MoveRecord struct {
	RoomID    uuid.UUID              `json:"room_id"`
	GameID    string                 `json:"game_id"`
	Version   int64                  `json:"state_version"`
	Seat      int                    `json:"seat"`
	Action    string                 `json:"action"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// RecordFunc receives every successfully applied move. Failures are logged,
// never surfaced to the mover.
type RecordFunc func(ctx context.Context, rec MoveRecord) error

// CompleteFunc is invoked once when a room's game reaches game over, so the
// owning room can flip to completed.
type CompleteFunc func(ctx context.Context, roomID uuid.UUID, winners []int, reason string) error

// Store owns all mutation of game state rows. Every write recomputes the
// etag and bumps the version; the version is the storage-layer CAS token and
// the etag is the client-facing one.
type Store struct {
	repo     Repository
	registry *gamekit.Registry
	log      *logrus.Logger
	record   RecordFunc
	complete CompleteFunc

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the default logrus logger.
func WithLogger(log *logrus.Logger) Option { return func(s *Store) { s.log = log } }

// WithRand seeds dealing deterministically, for tests.
func WithRand(rng *rand.Rand) Option { return func(s *Store) { s.rng = rng } }

// WithRecorder wires the per-move historian feed.
func WithRecorder(fn RecordFunc) Option { return func(s *Store) { s.record = fn } }

// WithCompletion wires the room-completion hook.
func WithCompletion(fn CompleteFunc) Option { return func(s *Store) { s.complete = fn } }

// NewStore builds a Store over the given repository and game registry.
func NewStore(repo Repository, registry *gamekit.Registry, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		registry: registry,
		log:      logrus.StandardLogger(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func computeEtag(st gamekit.State, version int64, ts time.Time) string {
	payload, _ := json.Marshal(st)
	h := sha256.New()
	h.Write(payload)
	fmt.Fprintf(h, "|%d|%d", version, ts.UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:20]
}

// deal runs the module's dealing step under the store's RNG.
func (s *Store) deal(mod gamekit.Module, st gamekit.State) (gamekit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mod.DealOrSetup(st, s.rng)
}

// Create initializes and persists version 1 for a room. If initialization
// leaves the module wanting a deal, the deal runs before the first write so
// no client ever observes an undealt state.
func (s *Store) Create(ctx context.Context, roomID uuid.UUID, gameID string, seats []gamekit.SeatInfo, settings gamekit.Settings) (Stored, error) {
	mod, err := s.registry.Get(gameID)
	if err != nil {
		return Stored{}, err
	}
	st, err := mod.InitState(seats, settings)
	if err != nil {
		return Stored{}, err
	}
	if st.Phase == gamekit.PhaseDeal {
		if st, err = s.deal(mod, st); err != nil {
			return Stored{}, err
		}
	}
	now := time.Now().UTC()
	rec := Stored{
		RoomID:    roomID,
		GameID:    gameID,
		State:     st,
		Version:   1,
		Etag:      computeEtag(st, 1, now),
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return Stored{}, err
	}
	s.log.WithFields(logrus.Fields{"room_id": roomID, "game_id": gameID}).Info("game state created")
	return rec, nil
}

// Get returns the current stored state.
func (s *Store) Get(ctx context.Context, roomID uuid.UUID) (Stored, error) {
	return s.repo.Get(ctx, roomID)
}

// GetIfChanged is the poll primitive: returns (zero, false, nil) when the
// caller's etag still matches.
func (s *Store) GetIfChanged(ctx context.Context, roomID uuid.UUID, knownEtag string) (Stored, bool, error) {
	rec, err := s.repo.Get(ctx, roomID)
	if err != nil {
		return Stored{}, false, err
	}
	if knownEtag != "" && rec.Etag == knownEtag {
		return Stored{}, false, nil
	}
	return rec, true, nil
}

// persist writes st as the successor of cur. A version conflict is reported
// as StaleStateError with the etag that won.
func (s *Store) persist(ctx context.Context, cur Stored, st gamekit.State) (Stored, error) {
	now := time.Now().UTC()
	next := cur
	next.State = st
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	next.Etag = computeEtag(st, next.Version, now)

	err := s.repo.CompareAndSwap(ctx, next, cur.Version)
	if errors.Is(err, ErrVersionConflict) {
		latest, gerr := s.repo.Get(ctx, cur.RoomID)
		if gerr != nil {
			return Stored{}, gerr
		}
		return Stored{}, &StaleStateError{CurrentEtag: latest.Etag}
	}
	if err != nil {
		return Stored{}, err
	}
	return next, nil
}

// Update is the raw write path for state produced outside ApplyMove. The
// expected etag, when supplied, is the sole concurrency guard.
func (s *Store) Update(ctx context.Context, roomID uuid.UUID, st gamekit.State, expectedEtag string) (Stored, error) {
	cur, err := s.repo.Get(ctx, roomID)
	if err != nil {
		return Stored{}, err
	}
	if expectedEtag != "" && expectedEtag != cur.Etag {
		return Stored{}, &StaleStateError{CurrentEtag: cur.Etag}
	}
	rec, err := s.persist(ctx, cur, st)
	if err != nil {
		return Stored{}, err
	}
	s.maybeComplete(ctx, rec)
	return rec, nil
}

func markOver(st *gamekit.State, end gamekit.EndCheck) {
	st.GameOver = true
	st.Winners = end.Winners
	st.EndReason = end.Reason
}

// settle runs the post-apply pipeline: deal if the module asked for one,
// otherwise score or finish the game if the round/game ended, otherwise
// advance the turn (which may itself request a deal, e.g. after a
// simultaneous phase completes).
func (s *Store) settle(mod gamekit.Module, st gamekit.State) (gamekit.State, error) {
	if st.Phase == gamekit.PhaseDeal {
		return s.deal(mod, st)
	}
	end := mod.CheckEndCondition(st)
	switch {
	case end.GameOver:
		markOver(&st, end)
		return st, nil
	case end.RoundOver:
		st, err := mod.ScoreRound(st)
		if err != nil {
			return st, err
		}
		if again := mod.CheckEndCondition(st); again.GameOver {
			markOver(&st, again)
		}
		return st, nil
	default:
		st, err := mod.AdvanceTurn(st)
		if err != nil {
			return st, err
		}
		if st.Phase == gamekit.PhaseDeal {
			return s.deal(mod, st)
		}
		return st, nil
	}
}

// ApplyMove orchestrates one move as a single logical unit: validate, apply,
// settle, compare-and-swap. Rule rejections and stale etags leave the stored
// state untouched.
func (s *Store) ApplyMove(ctx context.Context, roomID uuid.UUID, seat int, mv gamekit.Move, expectedEtag string) (Stored, error) {
	cur, err := s.repo.Get(ctx, roomID)
	if err != nil {
		return Stored{}, err
	}
	if expectedEtag != "" && expectedEtag != cur.Etag {
		return Stored{}, &StaleStateError{CurrentEtag: cur.Etag}
	}
	if cur.State.GameOver {
		return Stored{}, gamekit.NewRuleError(gamekit.RuleGameOver, "the game is over")
	}
	mod, err := s.registry.Get(cur.GameID)
	if err != nil {
		return Stored{}, err
	}
	if err := mod.ValidateMove(cur.State, seat, mv); err != nil {
		return Stored{}, err
	}
	st, err := mod.ApplyMove(cur.State, seat, mv)
	if err != nil {
		return Stored{}, err
	}
	if st, err = s.settle(mod, st); err != nil {
		return Stored{}, err
	}

	rec, err := s.persist(ctx, cur, st)
	if err != nil {
		return Stored{}, err
	}
	s.recordMove(ctx, rec, seat, mv)
	s.maybeComplete(ctx, rec)
	return rec, nil
}

// Advance performs one resolution step when the turn is parked on
// Resolution: finishing a trick, scoring a finished round, or completing the
// game. It is a no-op on any other turn.
func (s *Store) Advance(ctx context.Context, roomID uuid.UUID) (Stored, error) {
	cur, err := s.repo.Get(ctx, roomID)
	if err != nil {
		return Stored{}, err
	}
	if cur.State.GameOver || cur.State.Turn.Kind != gamekit.TurnResolution {
		return cur, nil
	}
	mod, err := s.registry.Get(cur.GameID)
	if err != nil {
		return Stored{}, err
	}
	st, err := s.settle(mod, cur.State)
	if err != nil {
		return Stored{}, err
	}
	rec, err := s.persist(ctx, cur, st)
	if err != nil {
		return Stored{}, err
	}
	s.maybeComplete(ctx, rec)
	return rec, nil
}

// Forfeit ends the room's game in favor of the forfeiting seat's opponents.
func (s *Store) Forfeit(ctx context.Context, roomID uuid.UUID, seat int) (Stored, error) {
	cur, err := s.repo.Get(ctx, roomID)
	if err != nil {
		return Stored{}, err
	}
	if cur.State.GameOver {
		return cur, nil
	}
	mod, err := s.registry.Get(cur.GameID)
	if err != nil {
		return Stored{}, err
	}
	st, err := mod.Forfeit(cur.State, seat)
	if err != nil {
		return Stored{}, err
	}
	rec, err := s.persist(ctx, cur, st)
	if err != nil {
		return Stored{}, err
	}
	s.maybeComplete(ctx, rec)
	return rec, nil
}

// PublicState returns the stored record with the state redacted for the
// viewer. The etag and version are those of the underlying state so polling
// keys stay consistent across viewers.
func (s *Store) PublicState(ctx context.Context, roomID uuid.UUID, viewerSeat int) (Stored, error) {
	rec, err := s.repo.Get(ctx, roomID)
	if err != nil {
		return Stored{}, err
	}
	mod, err := s.registry.Get(rec.GameID)
	if err != nil {
		return Stored{}, err
	}
	redacted, err := mod.PublicState(rec.State, viewerSeat)
	if err != nil {
		return Stored{}, err
	}
	rec.State = redacted
	return rec, nil
}

// Delete removes the room's state row.
func (s *Store) Delete(ctx context.Context, roomID uuid.UUID) error {
	return s.repo.Delete(ctx, roomID)
}

func (s *Store) recordMove(ctx context.Context, rec Stored, seat int, mv gamekit.Move) {
	if s.record == nil {
		return
	}
	err := s.record(ctx, MoveRecord{
		RoomID:    rec.RoomID,
		GameID:    rec.GameID,
		Version:   rec.Version,
		Seat:      seat,
		Action:    mv.Action,
		Payload:   mv.Payload,
		Timestamp: rec.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		s.log.WithError(err).WithField("room_id", rec.RoomID).Warn("move record publish failed")
	}
}

func (s *Store) maybeComplete(ctx context.Context, rec Stored) {
	if !rec.State.GameOver {
		return
	}
	s.log.WithFields(logrus.Fields{
		"room_id": rec.RoomID,
		"winners": rec.State.Winners,
		"reason":  rec.State.EndReason,
	}).Info("game over")
	if s.complete == nil {
		return
	}
	if err := s.complete(ctx, rec.RoomID, rec.State.Winners, rec.State.EndReason); err != nil {
		s.log.WithError(err).WithField("room_id", rec.RoomID).Warn("room completion hook failed")
	}
}
