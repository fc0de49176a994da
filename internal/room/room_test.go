// internal/room/room_test.go
package room

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/games/pig"
	"github.com/parlorkit/parlor/internal/games/spades"
	"github.com/parlorkit/parlor/internal/state"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time             { return c.t }
func (c *fakeClock) Advance(d time.Duration)    { c.t = c.t.Add(d) }

func testRegistry(t *testing.T) *gamekit.Registry {
	t.Helper()
	r := gamekit.NewRegistry()
	require.NoError(t, r.Register(spades.New()))
	require.NoError(t, r.Register(pig.New()))
	return r
}

func newManager(t *testing.T) (*Manager, *fakeClock, *state.Store) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := testRegistry(t)
	store := state.NewStore(state.NewMemoryRepository(), reg, state.WithRand(rand.New(rand.NewSource(23))))
	m := NewManager(NewMemoryRepository(), reg, store, DefaultConfig(),
		WithRand(rand.New(rand.NewSource(23))),
		WithClock(clock.Now))
	return m, clock, store
}

func guest(name, token string) Identity {
	return Identity{GuestToken: token, DisplayName: name, ClientID: "c-" + token}
}

func TestCreateRoomGeneratesCode(t *testing.T) {
	m, _, _ := newManager(t)
	r, err := m.CreateRoom(context.Background(), "pig", gamekit.Settings{"target_score": 50})
	require.NoError(t, err)

	assert.Len(t, r.Code, codeLength)
	for _, c := range r.Code {
		assert.Contains(t, codeAlphabet, string(c))
	}
	assert.Equal(t, StatusLobby, r.Status)
	assert.True(t, r.ExpiresAt.After(r.CreatedAt))

	_, err = m.CreateRoom(context.Background(), "chess", nil)
	assert.ErrorIs(t, err, gamekit.ErrGameNotFound)
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "pig", nil)
	require.NoError(t, err)

	s1, err := m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)
	assert.Equal(t, 0, s1.Position)

	// The same guest joining again gets the same seat, not a second one.
	s2, err := m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)
	assert.Equal(t, s1.Position, s2.Position)

	got, err := m.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	assert.Len(t, got.Seats, 1)
}

func TestJoinAssignsLowestFreeSeat(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "pig", nil)
	require.NoError(t, err)

	_, err = m.JoinRoom(ctx, r.Code, guest("a", "t0"))
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, r.Code, guest("b", "t1"))
	require.NoError(t, err)

	// Seat 0 leaves; the next joiner fills the gap.
	require.NoError(t, m.LeaveRoom(ctx, r.Code, guest("a", "t0")))
	s, err := m.JoinRoom(ctx, r.Code, guest("c", "t2"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Position)
}

func TestJoinFullRoomRejected(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "spades", nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = m.JoinRoom(ctx, r.Code, guest("p", string(rune('a'+i))))
		require.NoError(t, err)
	}
	_, err = m.JoinRoom(ctx, r.Code, guest("late", "z"))
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestAddAIPlayerNamesSequentially(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "spades", nil)
	require.NoError(t, err)

	_, err = m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)

	b1, err := m.AddAIPlayer(ctx, r.Code, gamekit.DifficultyEasy)
	require.NoError(t, err)
	b2, err := m.AddAIPlayer(ctx, r.Code, "")
	require.NoError(t, err)

	assert.Equal(t, "Bot 1", b1.DisplayName)
	assert.Equal(t, "Bot 2", b2.DisplayName)
	assert.Equal(t, gamekit.DifficultyMedium, b2.AIDifficulty, "difficulty defaults to medium")
	assert.True(t, b1.IsAI)
}

func TestStartGameRequiresMinPlayers(t *testing.T) {
	m, _, store := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "spades", nil)
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)

	_, err = m.StartGame(ctx, r.Code)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	for i := 0; i < 3; i++ {
		_, err = m.AddAIPlayer(ctx, r.Code, gamekit.DifficultyMedium)
		require.NoError(t, err)
	}
	started, err := m.StartGame(ctx, r.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, started.Status)

	rec, err := store.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)

	// Starting twice, or joining fresh after start, fails.
	_, err = m.StartGame(ctx, r.Code)
	assert.ErrorIs(t, err, ErrGameStarted)
	_, err = m.JoinRoom(ctx, r.Code, guest("late", "z"))
	assert.ErrorIs(t, err, ErrGameStarted)

	// Rejoin for an existing seat still works after start.
	s, err := m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Position)
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "pig", nil)
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)
	_, err = m.AddAIPlayer(ctx, r.Code, gamekit.DifficultyEasy)
	require.NoError(t, err)

	// The last human leaving deletes the room even with a bot seated.
	require.NoError(t, m.LeaveRoom(ctx, r.Code, guest("alice", "tok-a")))
	_, err = m.GetRoom(ctx, r.Code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDisconnectGraceReapsOnlyAfterWindow(t *testing.T) {
	m, clock, _ := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "pig", nil)
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, r.Code, guest("bob", "tok-b"))
	require.NoError(t, err)

	require.NoError(t, m.MarkPlayerDisconnected(ctx, r.Code, guest("alice", "tok-a")))

	// Inside the grace window nothing is reaped.
	clock.Advance(30 * time.Second)
	removed, err := m.CleanupDisconnectedPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// A reconnect clears the flag entirely.
	require.NoError(t, m.TouchPlayer(ctx, r.Code, guest("alice", "tok-a")))
	clock.Advance(10 * time.Minute)
	removed, err = m.CleanupDisconnectedPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "connected seats are never reaped")

	// A real abandonment is.
	require.NoError(t, m.MarkPlayerDisconnected(ctx, r.Code, guest("bob", "tok-b")))
	clock.Advance(5 * time.Minute)
	removed, err = m.CleanupDisconnectedPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := m.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	assert.Len(t, got.Seats, 1)
}

func TestSweepExpiredDeletesRoomAndState(t *testing.T) {
	m, clock, store := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "spades", nil)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = m.JoinRoom(ctx, r.Code, guest("p", string(rune('a'+i))))
		require.NoError(t, err)
	}
	started, err := m.StartGame(ctx, r.Code)
	require.NoError(t, err)

	// Still fresh: nothing swept.
	deleted, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	clock.Advance(3 * time.Hour)
	deleted, err = m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = m.GetRoom(ctx, r.Code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = store.Get(ctx, started.ID)
	assert.ErrorIs(t, err, state.ErrRoomStateNotFound)
}

func TestCompleteRoomShortensExpiry(t *testing.T) {
	m, clock, _ := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "pig", nil)
	require.NoError(t, err)

	require.NoError(t, m.CompleteRoom(ctx, r.ID, []int{0}, "target_reached"))
	got, err := m.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	// Completed rooms stay readable through the grace period, then sweep.
	clock.Advance(5 * time.Minute)
	deleted, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	clock.Advance(30 * time.Minute)
	deleted, err = m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestTouchAfterCompleteKeepsGrace(t *testing.T) {
	m, clock, _ := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "pig", nil)
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)

	require.NoError(t, m.CompleteRoom(ctx, r.ID, []int{0}, "target_reached"))

	// Polling and rejoining keep the seat fresh but must not push the
	// expiry past the completion grace.
	clock.Advance(10 * time.Minute)
	require.NoError(t, m.TouchPlayer(ctx, r.Code, guest("alice", "tok-a")))
	_, err = m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	deleted, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted, "activity on a completed room must not revive it")
}

func TestReapedSeatForfeitsActiveGame(t *testing.T) {
	m, clock, store := newManager(t)
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "pig", nil)
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, r.Code, guest("alice", "tok-a"))
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, r.Code, guest("bob", "tok-b"))
	require.NoError(t, err)
	started, err := m.StartGame(ctx, r.Code)
	require.NoError(t, err)

	require.NoError(t, m.MarkPlayerDisconnected(ctx, r.Code, guest("alice", "tok-a")))
	clock.Advance(5 * time.Minute)
	removed, err := m.CleanupDisconnectedPlayers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	// The vacated seat concedes so the remaining player is not stuck
	// waiting on a turn that can never come.
	rec, err := store.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.True(t, rec.State.GameOver)
	assert.Equal(t, "forfeit", rec.State.EndReason)
	assert.Equal(t, []int{1}, rec.State.Winners)
}

func TestIdentityMatching(t *testing.T) {
	uid := uuid.New()
	seatUser := &Seat{UserID: &uid}
	seatGuest := &Seat{GuestToken: "tok"}

	assert.True(t, Identity{UserID: uid}.Matches(seatUser))
	assert.False(t, Identity{UserID: uuid.New()}.Matches(seatUser))
	assert.True(t, Identity{GuestToken: "tok"}.Matches(seatGuest))
	assert.False(t, Identity{}.Matches(seatGuest), "empty identity matches nothing")
}
