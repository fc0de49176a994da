// internal/games/diamonds/diamonds.go
package diamonds

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/parlorkit/parlor/internal/gamekit"
)

const (
	phasePassing  = "passing"
	phasePlaying  = "playing"
	phaseRoundEnd = "round_end"
	phaseGameOver = "game_over"

	handSize    = 13
	numSeats    = 4
	passCount   = 3
	moonMark    = 10
	moonBonus   = 50
	defaultLose = -26

	actionPass = "pass"
	actionPlay = "play"
	actionAck  = "continue"
)

// Module implements four-player partnership Diamonds: a simultaneous 3-card
// passing phase, no-trump trick play under follow-suit, and penalty scoring
// where every captured diamond costs a point unless a team captures ten or
// more in one round, which scores +50 instead.
type Module struct{}

// New returns the diamonds module.
func New() *Module { return &Module{} }

type playedCard struct {
	Seat int          `json:"seat"`
	Card gamekit.Card `json:"card"`
}

type seatState struct {
	Name     string         `json:"name"`
	IsAI     bool           `json:"is_ai"`
	Hand     []gamekit.Card `json:"hand"`
	Pass     []gamekit.Card `json:"pass,omitempty"`
	Diamonds int            `json:"diamonds"`
}

// doc is the module-owned game document. Seats 0 and 2 form team 0, seats 1
// and 3 team 1.
type doc struct {
	Phase        string       `json:"phase"`
	Seats        []seatState  `json:"seats"`
	Scores       [2]int       `json:"scores"`
	Dealer       int          `json:"dealer"`
	RoundNumber  int          `json:"round_number"`
	LosingScore  int          `json:"losing_score"`
	Trick        []playedCard `json:"trick"`
	TrickLeader  int          `json:"trick_leader"`
	TricksPlayed int          `json:"tricks_played"`
	RoundWinners []int        `json:"round_winners,omitempty"`
}

func decode(st gamekit.State) (*doc, error) {
	var d doc
	if err := json.Unmarshal(st.Data, &d); err != nil {
		return nil, fmt.Errorf("decode diamonds state: %w", err)
	}
	return &d, nil
}

func teamOf(seat int) int { return seat % 2 }

// Metadata implements gamekit.Module.
func (m *Module) Metadata() gamekit.Metadata {
	return gamekit.Metadata{
		ID:          "diamonds",
		Name:        "Diamonds",
		Type:        "card",
		MinPlayers:  numSeats,
		MaxPlayers:  numSeats,
		HasTeams:    true,
		AISupported: true,
		Description: "Partnership trick avoidance where captured diamonds cost points.",
		Rules:       "Pass three cards left, then follow suit; no trump. Each diamond your team captures costs a point, but capturing ten or more in a round scores +50 instead. Lowest team to the losing score ends the game.",
	}
}

// InitState seeds seats and scores. Hands are dealt by DealOrSetup.
func (m *Module) InitState(seats []gamekit.SeatInfo, settings gamekit.Settings) (gamekit.State, error) {
	if len(seats) != numSeats {
		return gamekit.State{}, gamekit.NewRuleError(gamekit.RuleInvalidMove, "diamonds needs exactly %d players, got %d", numSeats, len(seats))
	}
	d := &doc{
		Phase:       gamekit.PhaseDeal,
		Seats:       make([]seatState, numSeats),
		Dealer:      numSeats - 1,
		RoundNumber: 0,
		LosingScore: settings.Int("losing_score", defaultLose),
	}
	for i, s := range seats {
		d.Seats[i] = seatState{Name: s.DisplayName, IsAI: s.IsAI}
	}
	st := gamekit.State{Turn: gamekit.GateTurn(gamekit.GateStartGame), Phase: d.Phase}
	return st.WithData(d)
}

// DealOrSetup shuffles and deals a fresh round, entering the simultaneous
// passing phase. The first round parks behind the start_game gate.
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
		d.Seats[i].Pass = nil
		d.Seats[i].Diamonds = 0
	}
	d.Trick = nil
	d.TricksPlayed = 0
	d.TrickLeader = (d.Dealer + 1) % numSeats
	d.Phase = phasePassing
	d.RoundWinners = nil

	st.Phase = d.Phase
	if d.RoundNumber == 1 {
		st.Turn = gamekit.GateTurn(gamekit.GateStartGame)
	} else {
		st.Turn = gamekit.ResolutionTurn()
	}
	return st.WithData(d)
}

// ValidateMove implements the diamonds legality rules. During the passing
// phase any seat that has not yet passed may move regardless of turn order.
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

	if st.Turn.Kind == gamekit.TurnGate {
		if mv.Action != actionAck {
			return gamekit.NewRuleError(gamekit.RuleOutOfPhase, "waiting for %s acknowledgment", st.Turn.Gate)
		}
		return nil
	}
	if mv.Action == actionAck {
		return gamekit.NewRuleError(gamekit.RuleOutOfPhase, "no gate is open")
	}

	switch d.Phase {
	case phasePassing:
		if mv.Action != actionPass {
			return gamekit.NewRuleError(gamekit.RuleOutOfPhase, "expected a pass during passing")
		}
		if len(d.Seats[seat].Pass) > 0 {
			return gamekit.NewRuleError(gamekit.RuleAlreadyMoved, "seat %d has already passed", seat)
		}
		cards, err := passPayload(mv)
		if err != nil {
			return err
		}
		hand := d.Seats[seat].Hand
		for _, c := range cards {
			rest, ok := gamekit.RemoveCard(hand, c)
			if !ok {
				return gamekit.NewRuleError(gamekit.RuleInvalidMove, "card %s is not in hand", c)
			}
			hand = rest
		}
		return nil
	case phasePlaying:
		if !st.Turn.IsSeat(seat) {
			return gamekit.NewRuleError(gamekit.RuleNotYourTurn, "it is not seat %d's turn", seat)
		}
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

// passPayload decodes the "cards" field: exactly three distinct cards.
func passPayload(mv gamekit.Move) ([]gamekit.Card, error) {
	raw, ok := mv.Payload["cards"].([]interface{})
	if !ok || len(raw) != passCount {
		return nil, gamekit.NewRuleError(gamekit.RuleInvalidMove, "pass requires exactly %d cards", passCount)
	}
	cards := make([]gamekit.Card, 0, passCount)
	for _, v := range raw {
		s, _ := v.(string)
		c, err := gamekit.ParseCard(s)
		if err != nil {
			return nil, gamekit.NewRuleError(gamekit.RuleInvalidMove, "bad card payload: %v", err)
		}
		for _, prev := range cards {
			if prev == c {
				return nil, gamekit.NewRuleError(gamekit.RuleInvalidMove, "duplicate card %s in pass", c)
			}
		}
		cards = append(cards, c)
	}
	return cards, nil
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
		return nil
	}
	lead := d.Trick[0].Card.Suit
	if card.Suit != lead && gamekit.ContainsSuit(hand, lead) {
		return gamekit.NewRuleError(gamekit.RuleMustFollow, "must follow %s", lead)
	}
	return nil
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
	case actionPass:
		cards, err := passPayload(mv)
		if err != nil {
			return st, err
		}
		for _, c := range cards {
			d.Seats[seat].Hand, _ = gamekit.RemoveCard(d.Seats[seat].Hand, c)
		}
		d.Seats[seat].Pass = cards
		return st.WithData(d)
	case actionPlay:
		card, _ := gamekit.ParseCard(mv.PayloadString("card"))
		d.Seats[seat].Hand, _ = gamekit.RemoveCard(d.Seats[seat].Hand, card)
		d.Trick = append(d.Trick, playedCard{Seat: seat, Card: card})
		return st.WithData(d)
	default:
		return st, gamekit.NewRuleError(gamekit.RuleInvalidMove, "unknown action %q", mv.Action)
	}
}

func (m *Module) applyGate(st gamekit.State, d *doc) (gamekit.State, error) {
	switch st.Turn.Gate {
	case gamekit.GateStartGame:
		st.Turn = gamekit.ResolutionTurn()
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

// AdvanceTurn completes the passing phase once every seat has submitted
// (each seat receives the buffer passed by the seat on its right), assigns
// the next player during tricks, and resolves a full trick when the turn is
// parked on Resolution.
func (m *Module) AdvanceTurn(st gamekit.State) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	switch d.Phase {
	case phasePassing:
		for i := range d.Seats {
			if len(d.Seats[i].Pass) == 0 {
				st.Turn = gamekit.ResolutionTurn()
				return st, nil
			}
		}
		// Everyone passed left: seat i receives from seat i-1.
		for i := range d.Seats {
			from := (i + numSeats - 1) % numSeats
			d.Seats[i].Hand = append(d.Seats[i].Hand, d.Seats[from].Pass...)
		}
		for i := range d.Seats {
			d.Seats[i].Pass = nil
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

// resolveTrick awards the trick to the highest card of the lead suit and
// banks its diamonds against the winner.
func (m *Module) resolveTrick(st gamekit.State, d *doc) (gamekit.State, error) {
	if len(d.Trick) != numSeats {
		return st, nil
	}
	winner := trickWinner(d.Trick)
	for _, pc := range d.Trick {
		if pc.Card.Suit == gamekit.Diamonds {
			d.Seats[winner].Diamonds++
		}
	}
	d.Trick = nil
	d.TricksPlayed++
	d.TrickLeader = winner
	if d.TricksPlayed < handSize {
		st.Turn = gamekit.SeatTurn(winner)
	} else {
		st.Turn = gamekit.ResolutionTurn()
	}
	return st.WithData(d)
}

// trickWinner: highest rank of the lead suit, no trump.
func trickWinner(trick []playedCard) int {
	best := trick[0]
	for _, pc := range trick[1:] {
		if pc.Card.Suit == best.Card.Suit && gamekit.RankValue(pc.Card.Rank) > gamekit.RankValue(best.Card.Rank) {
			best = pc
		}
	}
	return best.Seat
}

// CheckEndCondition reports round completion after the 13th trick resolves
// and game completion once a team fell to the losing score.
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

// ScoreRound charges each team a point per captured diamond, except that ten
// or more diamonds in one round score +50 with no penalty. The game ends when
// a team reaches the losing score; the higher score wins, and a tie sends
// every seat home a winner.
func (m *Module) ScoreRound(st gamekit.State) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	for team := 0; team < 2; team++ {
		captured := 0
		for seat := team; seat < numSeats; seat += 2 {
			captured += d.Seats[seat].Diamonds
		}
		if captured >= moonMark {
			d.Scores[team] += moonBonus
		} else {
			d.Scores[team] -= captured
		}
	}

	if d.Scores[0] <= d.LosingScore || d.Scores[1] <= d.LosingScore {
		d.Phase = phaseGameOver
		d.RoundWinners = gameWinners(d)
		st.Phase = d.Phase
		st.EndReason = "losing_score_reached"
		st.Turn = gamekit.ResolutionTurn()
		return st.WithData(d)
	}

	d.Phase = phaseRoundEnd
	st.Phase = d.Phase
	st.Turn = gamekit.GateTurn(gamekit.GateResolveRound)
	return st.WithData(d)
}

func gameWinners(d *doc) []int {
	switch {
	case d.Scores[0] > d.Scores[1]:
		return []int{0, 2}
	case d.Scores[1] > d.Scores[0]:
		return []int{1, 3}
	default:
		return []int{0, 1, 2, 3}
	}
}

// ValidMoves enumerates legal moves for the seat. Passing combinations are
// not enumerated; a single suggested pass is returned instead.
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
	switch d.Phase {
	case phasePassing:
		if seat < 0 || seat >= numSeats || len(d.Seats[seat].Pass) > 0 {
			return nil
		}
		if mv := suggestPass(d.Seats[seat].Hand); mv != nil {
			return []gamekit.Move{*mv}
		}
		return nil
	case phasePlaying:
		if !st.Turn.IsSeat(seat) {
			return nil
		}
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

// PendingSeats lists seats that have not yet submitted their pass.
func (m *Module) PendingSeats(st gamekit.State) []int {
	d, err := decode(st)
	if err != nil {
		return nil
	}
	if d.Phase != phasePassing || st.Turn.Kind == gamekit.TurnGate {
		return nil
	}
	var pending []int
	for i := range d.Seats {
		if len(d.Seats[i].Pass) == 0 {
			pending = append(pending, i)
		}
	}
	return pending
}

// Forfeit awards the game to the opposing team.
func (m *Module) Forfeit(st gamekit.State, seat int) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	opponents := make([]int, 0, 2)
	for s := 0; s < numSeats; s++ {
		if teamOf(s) != teamOf(seat) {
			opponents = append(opponents, s)
		}
	}
	d.Phase = phaseGameOver
	d.RoundWinners = opponents
	st.Phase = d.Phase
	st.GameOver = true
	st.Winners = opponents
	st.EndReason = "forfeit"
	st.Turn = gamekit.ResolutionTurn()
	return st.WithData(d)
}

// publicSeat is seatState with the hand collapsed to a count. Diamond
// counters stay visible to everyone.
type publicSeat struct {
	Name      string `json:"name"`
	IsAI      bool   `json:"is_ai"`
	HandCount int    `json:"hand_count"`
	HasPassed bool   `json:"has_passed"`
	Diamonds  int    `json:"diamonds"`
}

type publicDoc struct {
	Phase        string         `json:"phase"`
	Seats        []publicSeat   `json:"seats"`
	Hand         []gamekit.Card `json:"hand,omitempty"`
	Scores       [2]int         `json:"scores"`
	Dealer       int            `json:"dealer"`
	RoundNumber  int            `json:"round_number"`
	LosingScore  int            `json:"losing_score"`
	Trick        []playedCard   `json:"trick"`
	TrickLeader  int            `json:"trick_leader"`
	TricksPlayed int            `json:"tricks_played"`
}

// PublicState hides every hand and pending pass except the viewer's own.
func (m *Module) PublicState(st gamekit.State, viewerSeat int) (gamekit.State, error) {
	d, err := decode(st)
	if err != nil {
		return st, err
	}
	pub := publicDoc{
		Phase:        d.Phase,
		Seats:        make([]publicSeat, numSeats),
		Scores:       d.Scores,
		Dealer:       d.Dealer,
		RoundNumber:  d.RoundNumber,
		LosingScore:  d.LosingScore,
		Trick:        d.Trick,
		TrickLeader:  d.TrickLeader,
		TricksPlayed: d.TricksPlayed,
	}
	for i := range d.Seats {
		pub.Seats[i] = publicSeat{
			Name:      d.Seats[i].Name,
			IsAI:      d.Seats[i].IsAI,
			HandCount: len(d.Seats[i].Hand),
			HasPassed: len(d.Seats[i].Pass) > 0,
			Diamonds:  d.Seats[i].Diamonds,
		}
	}
	if viewerSeat >= 0 && viewerSeat < numSeats {
		pub.Hand = d.Seats[viewerSeat].Hand
	}
	return st.WithData(pub)
}
