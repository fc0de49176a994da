// internal/games/spades/spades_test.go
package spades

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorkit/parlor/internal/gamekit"
)

func testSeats() []gamekit.SeatInfo {
	return []gamekit.SeatInfo{
		{Position: 0, DisplayName: "alice"},
		{Position: 1, DisplayName: "bot 1", IsAI: true},
		{Position: 2, DisplayName: "bob"},
		{Position: 3, DisplayName: "bot 2", IsAI: true},
	}
}

// newDealtGame initializes and deals a game with a fixed seed.
func newDealtGame(t *testing.T) gamekit.State {
	t.Helper()
	m := New()
	st, err := m.InitState(testSeats(), gamekit.Settings{})
	require.NoError(t, err)
	st, err = m.DealOrSetup(st, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	return st
}

// mustState re-encodes a doc into the state.
func mustState(t *testing.T, st gamekit.State, d *doc) gamekit.State {
	t.Helper()
	out, err := st.WithData(d)
	require.NoError(t, err)
	return out
}

func TestInitRequiresFourSeats(t *testing.T) {
	m := New()
	_, err := m.InitState(testSeats()[:2], gamekit.Settings{})
	assert.Error(t, err)
}

func TestDealConservation(t *testing.T) {
	st := newDealtGame(t)
	d, err := decode(st)
	require.NoError(t, err)

	total := 0
	seen := map[gamekit.Card]bool{}
	for _, s := range d.Seats {
		total += len(s.Hand)
		assert.Len(t, s.Hand, handSize)
		for _, c := range s.Hand {
			assert.False(t, seen[c])
			seen[c] = true
		}
	}
	assert.Equal(t, 52, total)
	assert.Equal(t, gamekit.GateStartGame, st.Turn.Gate, "first round parks behind the start gate")
}

func TestStartGateBlocksBids(t *testing.T) {
	m := New()
	st := newDealtGame(t)

	err := m.ValidateMove(st, 0, gamekit.Move{Action: actionBid, Payload: map[string]interface{}{"bid": 4}})
	assert.True(t, gamekit.IsRule(err, gamekit.RuleOutOfPhase))

	// Acknowledging opens bidding for the seat left of the dealer.
	require.NoError(t, m.ValidateMove(st, 0, gamekit.Move{Action: actionAck}))
	st, err = m.ApplyMove(st, 0, gamekit.Move{Action: actionAck})
	require.NoError(t, err)
	st, err = m.AdvanceTurn(st)
	require.NoError(t, err)
	assert.True(t, st.Turn.IsSeat(0))
}

// bidAll runs the whole bidding phase with the given bids.
func bidAll(t *testing.T, m *Module, st gamekit.State, bids [4]int) gamekit.State {
	t.Helper()
	var err error
	st, err = m.ApplyMove(st, 0, gamekit.Move{Action: actionAck})
	require.NoError(t, err)
	st, err = m.AdvanceTurn(st)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		seat := st.Turn.Seat
		mv := gamekit.Move{Action: actionBid, Payload: map[string]interface{}{"bid": bids[seat]}}
		require.NoError(t, m.ValidateMove(st, seat, mv))
		st, err = m.ApplyMove(st, seat, mv)
		require.NoError(t, err)
		st, err = m.AdvanceTurn(st)
		require.NoError(t, err)
	}
	return st
}

func TestBiddingRotatesAndOpensPlay(t *testing.T) {
	m := New()
	st := bidAll(t, m, newDealtGame(t), [4]int{3, 4, 2, 3})

	d, err := decode(st)
	require.NoError(t, err)
	assert.Equal(t, phasePlaying, d.Phase)
	assert.True(t, st.Turn.IsSeat(d.TrickLeader))
	for _, s := range d.Seats {
		require.NotNil(t, s.Bid)
	}
}

func TestBidOutOfTurnRejected(t *testing.T) {
	m := New()
	st := newDealtGame(t)
	var err error
	st, err = m.ApplyMove(st, 0, gamekit.Move{Action: actionAck})
	require.NoError(t, err)
	st, err = m.AdvanceTurn(st)
	require.NoError(t, err)

	wrongSeat := (st.Turn.Seat + 1) % 4
	err = m.ValidateMove(st, wrongSeat, gamekit.Move{Action: actionBid, Payload: map[string]interface{}{"bid": 3}})
	assert.True(t, gamekit.IsRule(err, gamekit.RuleNotYourTurn))
}

func TestBidRangeValidation(t *testing.T) {
	m := New()
	st := newDealtGame(t)
	var err error
	st, err = m.ApplyMove(st, 0, gamekit.Move{Action: actionAck})
	require.NoError(t, err)
	st, err = m.AdvanceTurn(st)
	require.NoError(t, err)

	seat := st.Turn.Seat
	err = m.ValidateMove(st, seat, gamekit.Move{Action: actionBid, Payload: map[string]interface{}{"bid": 14}})
	assert.True(t, gamekit.IsRule(err, gamekit.RuleInvalidBid))
	err = m.ValidateMove(st, seat, gamekit.Move{Action: actionBid, Payload: map[string]interface{}{"bid": -1}})
	assert.True(t, gamekit.IsRule(err, gamekit.RuleInvalidBid))
	err = m.ValidateMove(st, seat, gamekit.Move{Action: actionBid})
	assert.True(t, gamekit.IsRule(err, gamekit.RuleInvalidBid))
}

// fixedPlayingState builds a playing-phase state with known hands.
func fixedPlayingState(t *testing.T, hands [4][]gamekit.Card, leader int) gamekit.State {
	t.Helper()
	bid := 3
	d := &doc{
		Phase:       phasePlaying,
		Seats:       make([]seatState, numSeats),
		Dealer:      3,
		RoundNumber: 1,
		TargetScore: defaultGoal,
		TrickLeader: leader,
	}
	for i := range d.Seats {
		d.Seats[i] = seatState{Name: "p", Hand: hands[i], Bid: &bid}
	}
	st := gamekit.State{Turn: gamekit.SeatTurn(leader), Phase: phasePlaying}
	return mustState(t, st, d)
}

func TestMustFollowSuit(t *testing.T) {
	m := New()
	st := fixedPlayingState(t, [4][]gamekit.Card{
		{{Suit: gamekit.Hearts, Rank: "A"}},
		{{Suit: gamekit.Hearts, Rank: "2"}, {Suit: gamekit.Clubs, Rank: "9"}},
		{{Suit: gamekit.Clubs, Rank: "2"}},
		{{Suit: gamekit.Diamonds, Rank: "5"}},
	}, 0)

	var err error
	st, err = m.ApplyMove(st, 0, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": "A:hearts"}})
	require.NoError(t, err)
	st, err = m.AdvanceTurn(st)
	require.NoError(t, err)
	require.True(t, st.Turn.IsSeat(1))

	// Seat 1 holds a heart, so the club is illegal.
	err = m.ValidateMove(st, 1, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": "9:clubs"}})
	assert.True(t, gamekit.IsRule(err, gamekit.RuleMustFollow))
	assert.NoError(t, m.ValidateMove(st, 1, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": "2:hearts"}}))

	// Seat 2 is void in hearts and may discard.
	st, err = m.ApplyMove(st, 1, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": "2:hearts"}})
	require.NoError(t, err)
	st, err = m.AdvanceTurn(st)
	require.NoError(t, err)
	assert.NoError(t, m.ValidateMove(st, 2, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": "2:clubs"}}))
}

func TestSpadesMayNotLeadUntilBroken(t *testing.T) {
	m := New()
	st := fixedPlayingState(t, [4][]gamekit.Card{
		{{Suit: gamekit.Spades, Rank: "A"}, {Suit: gamekit.Hearts, Rank: "3"}},
		{{Suit: gamekit.Hearts, Rank: "2"}},
		{{Suit: gamekit.Clubs, Rank: "2"}},
		{{Suit: gamekit.Diamonds, Rank: "5"}},
	}, 0)

	err := m.ValidateMove(st, 0, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": "A:spades"}})
	assert.True(t, gamekit.IsRule(err, gamekit.RuleSpadesNotBroken))
	assert.NoError(t, m.ValidateMove(st, 0, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": "3:hearts"}}))
}

func TestAllSpadesHandMayLead(t *testing.T) {
	m := New()
	st := fixedPlayingState(t, [4][]gamekit.Card{
		{{Suit: gamekit.Spades, Rank: "A"}, {Suit: gamekit.Spades, Rank: "3"}},
		{{Suit: gamekit.Hearts, Rank: "2"}},
		{{Suit: gamekit.Clubs, Rank: "2"}},
		{{Suit: gamekit.Diamonds, Rank: "5"}},
	}, 0)
	assert.NoError(t, m.ValidateMove(st, 0, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": "3:spades"}}))
}

func TestTrickResolutionTrumpWins(t *testing.T) {
	m := New()
	st := fixedPlayingState(t, [4][]gamekit.Card{
		{{Suit: gamekit.Hearts, Rank: "A"}, {Suit: gamekit.Hearts, Rank: "4"}},
		{{Suit: gamekit.Hearts, Rank: "2"}, {Suit: gamekit.Hearts, Rank: "5"}},
		{{Suit: gamekit.Spades, Rank: "2"}, {Suit: gamekit.Clubs, Rank: "6"}},
		{{Suit: gamekit.Hearts, Rank: "K"}, {Suit: gamekit.Hearts, Rank: "7"}},
	}, 0)

	plays := []string{"A:hearts", "2:hearts", "2:spades", "K:hearts"}
	var err error
	for i, cardStr := range plays {
		mv := gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": cardStr}}
		require.NoError(t, m.ValidateMove(st, i, mv))
		st, err = m.ApplyMove(st, i, mv)
		require.NoError(t, err)
		st, err = m.AdvanceTurn(st)
		require.NoError(t, err)
	}
	require.Equal(t, gamekit.TurnResolution, st.Turn.Kind, "full trick holds for resolution")

	st, err = m.AdvanceTurn(st)
	require.NoError(t, err)
	d, err := decode(st)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Seats[2].Tricks, "the low spade trumps the trick")
	assert.Equal(t, 2, d.TrickLeader)
	assert.True(t, st.Turn.IsSeat(2))
	assert.Empty(t, d.Trick)
	assert.True(t, d.SpadesBroken)
}

// scoredState builds a finished round with the given per-seat bids/tricks.
func scoredState(t *testing.T, bids, tricks [4]int, teams [2]teamState) gamekit.State {
	t.Helper()
	d := &doc{
		Phase:        phasePlaying,
		Seats:        make([]seatState, numSeats),
		Teams:        teams,
		RoundNumber:  1,
		TargetScore:  defaultGoal,
		TricksPlayed: handSize,
	}
	for i := range d.Seats {
		b := bids[i]
		d.Seats[i] = seatState{Bid: &b, Tricks: tricks[i]}
	}
	st := gamekit.State{Turn: gamekit.ResolutionTurn(), Phase: phasePlaying}
	return mustState(t, st, d)
}

func TestScoreRoundBagPenaltyScenario(t *testing.T) {
	m := New()
	// Team 0 bids 5 (2+3) and takes 8 tricks: 50 + 3 bags = 53.
	st := scoredState(t, [4]int{2, 3, 3, 2}, [4]int{4, 2, 4, 3}, [2]teamState{})

	end := m.CheckEndCondition(st)
	require.True(t, end.RoundOver)

	st, err := m.ScoreRound(st)
	require.NoError(t, err)
	d, err := decode(st)
	require.NoError(t, err)
	assert.Equal(t, 53, d.Teams[0].Score)
	assert.Equal(t, 3, d.Teams[0].Bags)
	// Team 1 bid 5, took 5: exactly made.
	assert.Equal(t, 50, d.Teams[1].Score)
	assert.Equal(t, 0, d.Teams[1].Bags)
	assert.Equal(t, gamekit.GateResolveRound, st.Turn.Gate)
}

func TestScoreRoundBagWrap(t *testing.T) {
	m := New()
	// Team 0 enters with 8 bags and takes 3 more: -100 and the counter
	// wraps to 1.
	st := scoredState(t, [4]int{2, 3, 3, 2}, [4]int{4, 2, 4, 3}, [2]teamState{{Score: 100, Bags: 8}, {}})

	st, err := m.ScoreRound(st)
	require.NoError(t, err)
	d, err := decode(st)
	require.NoError(t, err)
	assert.Equal(t, 100+53-bagPenalty, d.Teams[0].Score)
	assert.Equal(t, 1, d.Teams[0].Bags)
}

func TestScoreRoundFailedBid(t *testing.T) {
	m := New()
	st := scoredState(t, [4]int{4, 2, 4, 2}, [4]int{2, 4, 3, 4}, [2]teamState{})

	st, err := m.ScoreRound(st)
	require.NoError(t, err)
	d, err := decode(st)
	require.NoError(t, err)
	assert.Equal(t, -80, d.Teams[0].Score, "failed 8-bid loses 80")
	assert.Equal(t, 44, d.Teams[1].Score, "combined bid 4 with 8 tricks scores 40 plus 4 bags")
	assert.Equal(t, 4, d.Teams[1].Bags)
}

func TestScoreRoundNilBids(t *testing.T) {
	m := New()
	// Seat 0 bids nil and stays clean; seat 2 carries the team bid.
	st := scoredState(t, [4]int{0, 3, 4, 3}, [4]int{0, 3, 4, 3}, [2]teamState{})

	st, err := m.ScoreRound(st)
	require.NoError(t, err)
	d, err := decode(st)
	require.NoError(t, err)
	assert.Equal(t, nilBonus+40, d.Teams[0].Score)

	// Broken nil loses the bonus instead.
	st2 := scoredState(t, [4]int{0, 3, 4, 3}, [4]int{1, 3, 3, 3}, [2]teamState{})
	st2, err = m.ScoreRound(st2)
	require.NoError(t, err)
	d2, err := decode(st2)
	require.NoError(t, err)
	assert.Equal(t, -nilBonus+40, d2.Teams[0].Score)
}

func TestScoreRoundEndsGameAtTarget(t *testing.T) {
	m := New()
	st := scoredState(t, [4]int{3, 2, 3, 2}, [4]int{4, 2, 4, 3}, [2]teamState{{Score: 480}, {Score: 100}})

	st, err := m.ScoreRound(st)
	require.NoError(t, err)
	end := m.CheckEndCondition(st)
	require.True(t, end.GameOver)
	assert.Equal(t, []int{0, 2}, end.Winners)
}

func TestValidMovesAgreeWithValidate(t *testing.T) {
	m := New()
	st := bidAll(t, m, newDealtGame(t), [4]int{3, 4, 2, 3})

	for seat := 0; seat < 4; seat++ {
		for _, mv := range m.ValidMoves(st, seat) {
			assert.NoError(t, m.ValidateMove(st, seat, mv), "seat %d move %+v", seat, mv)
		}
	}
}

func TestAIMoveIsAlwaysLegal(t *testing.T) {
	m := New()
	st := bidAll(t, m, newDealtGame(t), [4]int{3, 4, 2, 3})

	// Walk several tricks driven entirely by the AI across difficulties.
	diffs := []gamekit.Difficulty{gamekit.DifficultyEasy, gamekit.DifficultyMedium, gamekit.DifficultyHard}
	var err error
	for step := 0; step < 20; step++ {
		if st.Turn.Kind == gamekit.TurnResolution {
			st, err = m.AdvanceTurn(st)
			require.NoError(t, err)
			continue
		}
		if st.Turn.Kind != gamekit.TurnSeat {
			break
		}
		seat := st.Turn.Seat
		mv, err := m.AIMove(st, seat, diffs[step%len(diffs)])
		require.NoError(t, err)
		require.NotNil(t, mv)
		require.NoError(t, m.ValidateMove(st, seat, *mv), "AI produced an illegal move: %+v", mv)
		st, err = m.ApplyMove(st, seat, *mv)
		require.NoError(t, err)
		st, err = m.AdvanceTurn(st)
		require.NoError(t, err)
	}
}

func TestPublicStateRedactsOtherHands(t *testing.T) {
	m := New()
	st := bidAll(t, m, newDealtGame(t), [4]int{3, 4, 2, 3})

	pub, err := m.PublicState(st, 1)
	require.NoError(t, err)

	var view publicDoc
	require.NoError(t, json.Unmarshal(pub.Data, &view))
	assert.Len(t, view.Hand, handSize, "viewer sees own hand")
	for i, s := range view.Seats {
		assert.Equal(t, handSize, s.HandCount, "seat %d count visible", i)
	}

	spect, err := m.PublicState(st, gamekit.SpectatorSeat)
	require.NoError(t, err)
	var spectView publicDoc
	require.NoError(t, json.Unmarshal(spect.Data, &spectView))
	assert.Empty(t, spectView.Hand, "spectators see no hand")
}

func TestForfeitAwardsOpposingTeam(t *testing.T) {
	m := New()
	st := newDealtGame(t)

	st, err := m.Forfeit(st, 2)
	require.NoError(t, err)
	assert.True(t, st.GameOver)
	assert.Equal(t, "forfeit", st.EndReason)
	assert.ElementsMatch(t, []int{1, 3}, st.Winners)
}

func TestGateContinuationDealsNextRound(t *testing.T) {
	m := New()
	st := scoredState(t, [4]int{3, 2, 3, 2}, [4]int{4, 2, 4, 3}, [2]teamState{})
	st, err := m.ScoreRound(st)
	require.NoError(t, err)
	require.Equal(t, gamekit.GateResolveRound, st.Turn.Gate)

	require.NoError(t, m.ValidateMove(st, 0, gamekit.Move{Action: actionAck}))
	st, err = m.ApplyMove(st, 0, gamekit.Move{Action: actionAck})
	require.NoError(t, err)
	assert.Equal(t, gamekit.PhaseDeal, st.Phase, "round gate requests the next deal")

	st, err = m.DealOrSetup(st, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	d, err := decode(st)
	require.NoError(t, err)
	assert.Equal(t, phaseBidding, d.Phase)
	assert.True(t, st.Turn.Kind == gamekit.TurnSeat, "later rounds bid without a start gate")
}
