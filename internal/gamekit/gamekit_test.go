// internal/gamekit/gamekit_test.go
package gamekit

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModule is a minimal Module for registry tests.
type stubModule struct {
	meta Metadata
}

func (s *stubModule) Metadata() Metadata { return s.meta }
func (s *stubModule) InitState([]SeatInfo, Settings) (State, error) {
	return State{}, nil
}
func (s *stubModule) DealOrSetup(st State, _ *rand.Rand) (State, error) { return st, nil }
func (s *stubModule) ValidateMove(State, int, Move) error               { return nil }
func (s *stubModule) ApplyMove(st State, _ int, _ Move) (State, error)  { return st, nil }
func (s *stubModule) AdvanceTurn(st State) (State, error)               { return st, nil }
func (s *stubModule) CheckEndCondition(State) EndCheck                  { return EndCheck{} }
func (s *stubModule) ScoreRound(st State) (State, error)                { return st, nil }
func (s *stubModule) AIMove(State, int, Difficulty) (*Move, error)      { return nil, nil }
func (s *stubModule) ValidMoves(State, int) []Move                      { return nil }
func (s *stubModule) PublicState(st State, _ int) (State, error)        { return st, nil }
func (s *stubModule) PendingSeats(State) []int                          { return nil }
func (s *stubModule) Forfeit(st State, _ int) (State, error)            { return st, nil }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	mod := &stubModule{meta: Metadata{ID: "war", Name: "War", MinPlayers: 2, MaxPlayers: 2}}
	require.NoError(t, r.Register(mod))

	got, err := r.Get("war")
	require.NoError(t, err)
	assert.Equal(t, "war", got.Metadata().ID)

	_, err = r.Get("chess")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	mod := &stubModule{meta: Metadata{ID: "war", MinPlayers: 2, MaxPlayers: 2}}
	require.NoError(t, r.Register(mod))
	err := r.Register(&stubModule{meta: Metadata{ID: "war", MinPlayers: 2, MaxPlayers: 2}})
	assert.ErrorIs(t, err, ErrGameAlreadyRegistered)
}

func TestRegistryRejectsBadMetadata(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&stubModule{meta: Metadata{ID: ""}}))
	assert.Error(t, r.Register(&stubModule{meta: Metadata{ID: "x", MinPlayers: 4, MaxPlayers: 2}}))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubModule{meta: Metadata{ID: "spades", MinPlayers: 4, MaxPlayers: 4}}))
	require.NoError(t, r.Register(&stubModule{meta: Metadata{ID: "pig", MinPlayers: 2, MaxPlayers: 6}}))

	metas := r.List()
	require.Len(t, metas, 2)
	assert.Equal(t, "pig", metas[0].ID)
	assert.Equal(t, "spades", metas[1].ID)
}

func TestDeckConservation(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, 52)

	rng := rand.New(rand.NewSource(42))
	Shuffle(deck, rng)

	hands, rest := Deal(deck, 4, 13)
	total := len(rest)
	seen := map[Card]bool{}
	for _, h := range hands {
		assert.Len(t, h, 13)
		total += len(h)
		for _, c := range h {
			assert.False(t, seen[c], "card dealt twice: %v", c)
			seen[c] = true
		}
	}
	assert.Equal(t, 52, total, "hands + remainder must conserve the deck")
	assert.Empty(t, rest)
}

func TestDealShortDeck(t *testing.T) {
	deck := NewDeck()[:10]
	hands, rest := Deal(deck, 3, 4)
	assert.Len(t, hands[0], 4)
	assert.Len(t, hands[1], 4)
	assert.Len(t, hands[2], 2)
	assert.Empty(t, rest)
}

func TestTurnSeatOrNil(t *testing.T) {
	seat := SeatTurn(2).SeatOrNil()
	require.NotNil(t, seat)
	assert.Equal(t, 2, *seat)

	assert.Nil(t, ResolutionTurn().SeatOrNil(), "resolution must persist as a true null")
	assert.Nil(t, GateTurn(GateResolveRound).SeatOrNil(), "gates must persist as a true null")
}

func TestParseCardRoundTrip(t *testing.T) {
	c, err := ParseCard("Q:spades")
	require.NoError(t, err)
	assert.Equal(t, Card{Suit: Spades, Rank: "Q"}, c)
	assert.Equal(t, "Q:spades", EncodeCard(c))

	_, err = ParseCard("11:spades")
	assert.Error(t, err)
	_, err = ParseCard("Q:stars")
	assert.Error(t, err)
	_, err = ParseCard("queen")
	assert.Error(t, err)
}

func TestRemoveCard(t *testing.T) {
	hand := []Card{{Spades, "A"}, {Hearts, "2"}, {Spades, "A"}}
	out, ok := RemoveCard(hand, Card{Spades, "A"})
	require.True(t, ok)
	assert.Len(t, out, 2)

	_, ok = RemoveCard(out, Card{Clubs, "9"})
	assert.False(t, ok)
}

func TestRuleErrorKinds(t *testing.T) {
	err := NewRuleError(RuleMustFollow, "must follow %s", Hearts)
	assert.True(t, IsRule(err, RuleMustFollow))
	assert.False(t, IsRule(err, RuleNotYourTurn))
	assert.Contains(t, err.Error(), "must_follow")
}
