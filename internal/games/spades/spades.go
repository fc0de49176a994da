// internal/games/spades/spades.go
package spades

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/parlorkit/parlor/internal/gamekit"
)

const (
	phaseBidding  = "bidding"
	phasePlaying  = "playing"
	phaseRoundEnd = "round_end"
	phaseGameOver = "game_over"

	handSize    = 13
	numSeats    = 4
	bagLimit    = 10
	bagPenalty  = 100
	nilBonus    = 100
	defaultGoal = 500
	actionBid   = "bid"
	actionPlay  = "play"
	actionAck   = "continue"
)

// Module implements four-player partnership Spades: turn-based bidding with
// nil, trick play under follow-suit and spades-broken rules, bag penalties,
// and gates at the start of the game and between rounds.
type Module struct{}

// New returns the spades module.
func New() *Module { return &Module{} }

type playedCard struct {
	Seat int          `json:"seat"`
	Card gamekit.Card `json:"card"`
}

type seatState struct {
	Name   string         `json:"name"`
	IsAI   bool           `json:"is_ai"`
	Hand   []gamekit.Card `json:"hand"`
	Bid    *int           `json:"bid"`
	Tricks int            `json:"tricks"`
}

type teamState struct {
	Score int `json:"score"`
	Bags  int `json:"bags"`
}

// doc is the module-owned game document. Seats 0 and 2 form team 0, seats 1
// and 3 team 1.
type doc struct {
	Phase        string       `json:"phase"`
	Seats        []seatState  `json:"seats"`
	Teams        [2]teamState `json:"teams"`
	Dealer       int          `json:"dealer"`
	RoundNumber  int          `json:"round_number"`
	TargetScore  int          `json:"target_score"`
	Trick        []playedCard `json:"trick"`
	TrickLeader  int          `json:"trick_leader"`
	TricksPlayed int          `json:"tricks_played"`
	SpadesBroken bool         `json:"spades_broken"`
	RoundWinners []int        `json:"round_winners,omitempty"`
}

func decode(st gamekit.State) (*doc, error) {
	var d doc
	if err := json.Unmarshal(st.Data, &d); err != nil {
		return nil, fmt.Errorf("decode spades state: %w", err)
	}
	return &d, nil
}

func teamOf(seat int) int { return seat % 2 }

// Metadata implements gamekit.Module.
func (m *Module) Metadata() gamekit.Metadata {
	return gamekit.Metadata{
		ID:          "spades",
		Name:        "Spades",
		Type:        "card",
		MinPlayers:  numSeats,
		MaxPlayers:  numSeats,
		HasTeams:    true,
		AISupported: true,
		Description: "Partnership trick-taking with spades as permanent trump.",
		Rules:       "Bid your tricks (0 = nil). Follow suit when able; spades may not lead until broken. Making the bid scores 10x bid plus 1 per bag; ten bags cost 100.",
	}
}

// InitState seeds seats, teams and score containers. Hands are dealt by
// DealOrSetup.
func (m *Module) InitState(seats []gamekit.SeatInfo, settings gamekit.Settings) (gamekit.State, error) {
	if len(seats) != numSeats {
		return gamekit.State{}, gamekit.NewRuleError(gamekit.RuleInvalidMove, "spades needs exactly %d players, got %d", numSeats, len(seats))
	}
	d := &doc{
		Phase:       gamekit.PhaseDeal,
		Seats:       make([]seatState, numSeats),
		Dealer:      numSeats - 1, // seat 0 bids first
		RoundNumber: 0,
		TargetScore: settings.Int("target_score", defaultGoal),
	}
	for i, s := range seats {
		d.Seats[i] = seatState{Name: s.DisplayName, IsAI: s.IsAI}
	}
	st := gamekit.State{Turn: gamekit.GateTurn(gamekit.GateStartGame), Phase: d.Phase}
	return st.WithData(d)
}

// DealOrSetup shuffles and deals a fresh round: 13 cards each, dealer
// rotated, bids cleared. The first round parks behind the start_game gate;
// later rounds go straight to bidding.
func (m *Module) DealOrSetup(st gamekit.State, rng *rand.Rand) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	deck := gamekit.NewDeck()
	gamekit.Shuffle(deck, rng)
	hands, _ := gamekit.Deal(deck, numSeats, handSize)

	d.RoundNumber++
	if d.RoundNumber > 1 {
		d.Dealer = (d.Dealer + 1) % numSeats
	}
	for i := range d.Seats {
		d.Seats[i].Hand = hands[i]
		d.Seats[i].Bid = nil
		d.Seats[i].Tricks = 0
	}
	d.Trick = nil
	d.TricksPlayed = 0
	d.SpadesBroken = false
	d.TrickLeader = (d.Dealer + 1) % numSeats
	d.Phase = phaseBidding
	d.RoundWinners = nil

	st.Phase = d.Phase
	if d.RoundNumber == 1 {
		st.Turn = gamekit.GateTurn(gamekit.GateStartGame)
	} else {
		st.Turn = gamekit.SeatTurn(d.TrickLeader)
	}
	return st.WithData(d)
}

// ValidateMove implements the spades legality rules.
func (m *Module) ValidateMove(st gamekit.State, seat int, mv gamekit.Move) error {
	d, err := decode(st)
	if err != nil {
		return err
	}
	if d.Phase == phaseGameOver {
		return gamekit.NewRuleError(gamekit.RuleGameOver, "the game is over")
	}
	if seat < 0 || seat >= numSeats {
		return gamekit.NewRuleError(gamekit.RuleInvalidMove, "invalid seat %d", seat)
	}

	// Gate continuation is exempt from the turn check: any human may
	// acknowledge.
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

	switch d.Phase {
	case phaseBidding:
		if mv.Action != actionBid {
			return gamekit.NewRuleError(gamekit.RuleOutOfPhase, "expected a bid during bidding")
		}
		bid, ok := mv.PayloadInt("bid")
		if !ok || bid < 0 || bid > handSize {
			return gamekit.NewRuleError(gamekit.RuleInvalidBid, "bid must be between 0 and %d", handSize)
		}
		return nil
	case phasePlaying:
		if mv.Action != actionPlay {
			return gamekit.NewRuleError(gamekit.RuleOutOfPhase, "expected a card play")
		}
		card, err := gamekit.ParseCard(mv.PayloadString("card"))
		if err != nil {
			return gamekit.NewRuleError(gamekit.RuleInvalidMove, "bad card payload: %v", err)
		}
		return validatePlay(d, seat, card)
	default:
		return gamekit.NewRuleError(gamekit.RuleOutOfPhase, "no moves accepted in phase %s", d.Phase)
	}
}

func validatePlay(d *doc, seat int, card gamekit.Card) error {
	hand := d.Seats[seat].Hand
	owned := false
	for _, c := range hand {
		if c == card {
			owned = true
			break
		}
	}
	if !owned {
		return gamekit.NewRuleError(gamekit.RuleInvalidMove, "card %s is not in hand", card)
	}
	if len(d.Trick) == 0 {
		// Leading: spades may not lead until broken, unless the hand is all
		// spades.
		if card.Suit == gamekit.Spades && !d.SpadesBroken && !allSpades(hand) {
			return gamekit.NewRuleError(gamekit.RuleSpadesNotBroken, "spades have not been broken")
		}
		return nil
	}
	lead := d.Trick[0].Card.Suit
	if card.Suit != lead && gamekit.ContainsSuit(hand, lead) {
		return gamekit.NewRuleError(gamekit.RuleMustFollow, "must follow %s", lead)
	}
	return nil
}

func allSpades(hand []gamekit.Card) bool {
	for _, c := range hand {
		if c.Suit != gamekit.Spades {
			return false
		}
	}
	return true
}

// ApplyMove assumes the move validated.
func (m *Module) ApplyMove(st gamekit.State, seat int, mv gamekit.Move) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	switch mv.Action {
	case actionAck:
		return m.applyGate(st, d)
	case actionBid:
		bid, _ := mv.PayloadInt("bid")
		d.Seats[seat].Bid = &bid
		return st.WithData(d)
	case actionPlay:
		card, _ := gamekit.ParseCard(mv.PayloadString("card"))
		d.Seats[seat].Hand, _ = gamekit.RemoveCard(d.Seats[seat].Hand, card)
		d.Trick = append(d.Trick, playedCard{Seat: seat, Card: card})
		if card.Suit == gamekit.Spades {
			d.SpadesBroken = true
		}
		return st.WithData(d)
	default:
		return st, gamekit.NewRuleError(gamekit.RuleInvalidMove, "unknown action %q", mv.Action)
	}
}

// applyGate handles gate continuation. The start gate opens bidding; the
// round gate requests the next deal.
func (m *Module) applyGate(st gamekit.State, d *doc) (gamekit.State, error) {
	switch st.Turn.Gate {
	case gamekit.GateStartGame:
		st.Turn = gamekit.SeatTurn(d.TrickLeader)
		st.Phase = d.Phase
		return st.WithData(d)
	case gamekit.GateResolveRound:
		d.Phase = gamekit.PhaseDeal
		st.Phase = d.Phase
		st.Turn = gamekit.ResolutionTurn()
		return st.WithData(d)
	default:
		return st, gamekit.NewRuleError(gamekit.RuleOutOfPhase, "unknown gate %q", st.Turn.Gate)
	}
}

// AdvanceTurn assigns the next turn from the recorded state: the next unbid
// seat during bidding, the next seat around the trick during play, a hold on
// Resolution when the trick is full, and the actual trick resolution when
// the turn is already parked there.
func (m *Module) AdvanceTurn(st gamekit.State) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	switch d.Phase {
	case phaseBidding:
		for i := 0; i < numSeats; i++ {
			seat := (d.Dealer + 1 + i) % numSeats
			if d.Seats[seat].Bid == nil {
				st.Turn = gamekit.SeatTurn(seat)
				return st, nil
			}
		}
		d.Phase = phasePlaying
		st.Phase = d.Phase
		st.Turn = gamekit.SeatTurn(d.TrickLeader)
		return st.WithData(d)
	case phasePlaying:
		if st.Turn.Kind == gamekit.TurnResolution {
			return m.resolveTrick(st, d)
		}
		switch {
		case len(d.Trick) == numSeats:
			// Hold at the full trick so clients can see it before it clears.
			st.Turn = gamekit.ResolutionTurn()
		case len(d.Trick) > 0:
			st.Turn = gamekit.SeatTurn((d.Trick[len(d.Trick)-1].Seat + 1) % numSeats)
		default:
			st.Turn = gamekit.SeatTurn(d.TrickLeader)
		}
		return st, nil
	default:
		return st, nil
	}
}

// resolveTrick awards the completed trick and hands the lead to its winner.
func (m *Module) resolveTrick(st gamekit.State, d *doc) (gamekit.State, error) {
	if len(d.Trick) != numSeats {
		return st, nil
	}
	winner := trickWinner(d.Trick)
	d.Seats[winner].Tricks++
	d.Trick = nil
	d.TricksPlayed++
	d.TrickLeader = winner
	if d.TricksPlayed < handSize {
		st.Turn = gamekit.SeatTurn(winner)
	} else {
		// Round over; scoring decides what comes next.
		st.Turn = gamekit.ResolutionTurn()
	}
	return st.WithData(d)
}

func trickWinner(trick []playedCard) int {
	best := trick[0]
	for _, pc := range trick[1:] {
		if beats(pc.Card, best.Card) {
			best = pc
		}
	}
	return best.Seat
}

// beats reports whether challenger wins over current given the lead suit of
// current's trick position. Spades always trump.
func beats(challenger, current gamekit.Card) bool {
	if challenger.Suit == current.Suit {
		return gamekit.RankValue(challenger.Rank) > gamekit.RankValue(current.Rank)
	}
	return challenger.Suit == gamekit.Spades
}

// CheckEndCondition reports round completion after the 13th trick resolves
// and game completion once scoring crossed the target.
func (m *Module) CheckEndCondition(st gamekit.State) gamekit.EndCheck {
	d, err := decode(st)
	if err != nil {
		return gamekit.EndCheck{}
	}
	switch d.Phase {
	case phaseGameOver:
		return gamekit.EndCheck{GameOver: true, Reason: st.EndReason, Winners: d.RoundWinners}
	case phasePlaying:
		if d.TricksPlayed == handSize && len(d.Trick) == 0 {
			return gamekit.EndCheck{RoundOver: true}
		}
	}
	return gamekit.EndCheck{}
}

// ScoreRound applies the bid-versus-tricks formula with bags and nil
// bonuses, then either ends the game or gates the next round.
func (m *Module) ScoreRound(st gamekit.State) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	for team := 0; team < 2; team++ {
		bid, tricks := 0, 0
		for seat := team; seat < numSeats; seat += 2 {
			s := &d.Seats[seat]
			tricks += s.Tricks
			if s.Bid == nil {
				continue
			}
			if *s.Bid == 0 {
				// Nil is scored individually; its tricks still land in the
				// team's bag count via the combined total below.
				if s.Tricks == 0 {
					d.Teams[team].Score += nilBonus
				} else {
					d.Teams[team].Score -= nilBonus
				}
				continue
			}
			bid += *s.Bid
		}
		if bid > 0 {
			if tricks >= bid {
				bags := tricks - bid
				d.Teams[team].Score += bid*10 + bags
				d.Teams[team].Bags += bags
				if d.Teams[team].Bags >= bagLimit {
					d.Teams[team].Score -= bagPenalty
					d.Teams[team].Bags -= bagLimit
				}
			} else {
				d.Teams[team].Score -= bid * 10
			}
		}
	}

	if winners := gameWinners(d); winners != nil {
		d.Phase = phaseGameOver
		d.RoundWinners = winners
		st.Phase = d.Phase
		st.EndReason = "target_reached"
		st.Turn = gamekit.ResolutionTurn()
		return st.WithData(d)
	}

	d.Phase = phaseRoundEnd
	st.Phase = d.Phase
	st.Turn = gamekit.GateTurn(gamekit.GateResolveRound)
	return st.WithData(d)
}

// gameWinners returns the winning team's seats once a team crosses the
// target with a strict lead, else nil.
func gameWinners(d *doc) []int {
	a, b := d.Teams[0].Score, d.Teams[1].Score
	if a < d.TargetScore && b < d.TargetScore {
		return nil
	}
	if a == b {
		// Tied across the line: play another round.
		return nil
	}
	if a > b {
		return []int{0, 2}
	}
	return []int{1, 3}
}

// ValidMoves enumerates legal moves for the seat.
func (m *Module) ValidMoves(st gamekit.State, seat int) []gamekit.Move {
	d, err := decode(st)
	if err != nil {
		return nil
	}
	if st.Turn.Kind == gamekit.TurnGate {
		if seat >= 0 && seat < numSeats && !d.Seats[seat].IsAI {
			return []gamekit.Move{{Action: actionAck}}
		}
		return nil
	}
	if !st.Turn.IsSeat(seat) {
		return nil
	}
	switch d.Phase {
	case phaseBidding:
		moves := make([]gamekit.Move, 0, handSize+1)
		for b := 0; b <= handSize; b++ {
			moves = append(moves, gamekit.Move{Action: actionBid, Payload: map[string]interface{}{"bid": b}})
		}
		return moves
	case phasePlaying:
		var moves []gamekit.Move
		for _, c := range d.Seats[seat].Hand {
			if validatePlay(d, seat, c) == nil {
				moves = append(moves, gamekit.Move{Action: actionPlay, Payload: map[string]interface{}{"card": gamekit.EncodeCard(c)}})
			}
		}
		return moves
	default:
		return nil
	}
}

// PendingSeats: spades has no simultaneous phase.
func (m *Module) PendingSeats(gamekit.State) []int { return nil }

// Forfeit awards the game to the opposing team.
func (m *Module) Forfeit(st gamekit.State, seat int) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	opponents := []int{(seat + 1) % numSeats, (seat + 3) % numSeats}
	d.Phase = phaseGameOver
	d.RoundWinners = opponents
	st.Phase = d.Phase
	st.GameOver = true
	st.Winners = opponents
	st.EndReason = "forfeit"
	st.Turn = gamekit.ResolutionTurn()
	return st.WithData(d)
}

// publicSeat is seatState with the hand collapsed to a count.
type publicSeat struct {
	Name      string `json:"name"`
	IsAI      bool   `json:"is_ai"`
	HandCount int    `json:"hand_count"`
	Bid       *int   `json:"bid"`
	Tricks    int    `json:"tricks"`
}

type publicDoc struct {
	Phase        string         `json:"phase"`
	Seats        []publicSeat   `json:"seats"`
	Hand         []gamekit.Card `json:"hand,omitempty"`
	Teams        [2]teamState   `json:"teams"`
	Dealer       int            `json:"dealer"`
	RoundNumber  int            `json:"round_number"`
	TargetScore  int            `json:"target_score"`
	Trick        []playedCard   `json:"trick"`
	TrickLeader  int            `json:"trick_leader"`
	TricksPlayed int            `json:"tricks_played"`
	SpadesBroken bool           `json:"spades_broken"`
}

// PublicState hides every hand except the viewer's own.
func (m *Module) PublicState(st gamekit.State, viewerSeat int) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	pub := publicDoc{
		Phase:        d.Phase,
		Seats:        make([]publicSeat, numSeats),
		Teams:        d.Teams,
		Dealer:       d.Dealer,
		RoundNumber:  d.RoundNumber,
		TargetScore:  d.TargetScore,
		Trick:        d.Trick,
		TrickLeader:  d.TrickLeader,
		TricksPlayed: d.TricksPlayed,
		SpadesBroken: d.SpadesBroken,
	}
	for i := range d.Seats {
		pub.Seats[i] = publicSeat{
			Name:      d.Seats[i].Name,
			IsAI:      d.Seats[i].IsAI,
			HandCount: len(d.Seats[i].Hand),
			Bid:       d.Seats[i].Bid,
			Tricks:    d.Seats[i].Tricks,
		}
	}
	if viewerSeat >= 0 && viewerSeat < numSeats {
		pub.Hand = d.Seats[viewerSeat].Hand
	}
	return st.WithData(pub)
}
