// internal/games/spades/ai.go
package spades

import (
	"github.com/parlorkit/parlor/internal/gamekit"
)

// AIMove returns a legal bid or card play for the seat. Easy plays the first
// legal move, medium plays a greedy trick heuristic, hard adds bid shading
// and partner awareness. The returned move always passes ValidateMove; nil
// means the seat has no legal move.
func (m *Module) AIMove(st gamekit.State, seat int, difficulty gamekit.Difficulty) (*gamekit.Move, error) {
	d, err := decode(st)
	if err != nil {
		return nil, err
	}
	if st.Turn.Kind != gamekit.TurnSeat || st.Turn.Seat != seat {
		return nil, nil
	}
	switch d.Phase {
	case phaseBidding:
		bid := estimateBid(d.Seats[seat].Hand, difficulty)
		return &gamekit.Move{Action: actionBid, Payload: map[string]interface{}{"bid": bid}}, nil
	case phasePlaying:
		legal := m.ValidMoves(st, seat)
		if len(legal) == 0 {
			return nil, nil
		}
		if difficulty == gamekit.DifficultyEasy {
			mv := legal[0]
			return &mv, nil
		}
		mv := choosePlay(d, seat, legal, difficulty)
		return &mv, nil
	default:
		return nil, nil
	}
}

// estimateBid counts sure winners: aces and kings, plus length tricks in
// spades. Easy bids a flat floor.
func estimateBid(hand []gamekit.Card, difficulty gamekit.Difficulty) int {
	est := 0
	spadeCount := 0
	for _, c := range hand {
		if c.Suit == gamekit.Spades {
			spadeCount++
		}
		switch c.Rank {
		case "A":
			est++
		case "K":
			est++
		case "Q":
			if difficulty == gamekit.DifficultyHard {
				est++
			}
		}
	}
	if spadeCount > 3 {
		est += spadeCount - 3
	}
	if difficulty == gamekit.DifficultyEasy {
		est = est / 2
	}
	if est > handSize {
		est = handSize
	}
	if est < 1 {
		est = 1
	}
	return est
}

// choosePlay picks the cheapest winning card, or dumps the lowest card when
// the trick cannot (or should not) be won.
func choosePlay(d *doc, seat int, legal []gamekit.Move, difficulty gamekit.Difficulty) gamekit.Move {
	type candidate struct {
		mv   gamekit.Move
		card gamekit.Card
	}
	cands := make([]candidate, 0, len(legal))
	for _, mv := range legal {
		card, err := gamekit.ParseCard(mv.PayloadString("card"))
		if err != nil {
			continue
		}
		cands = append(cands, candidate{mv: mv, card: card})
	}
	if len(cands) == 0 {
		return legal[0]
	}

	lowest := cands[0]
	for _, c := range cands[1:] {
		if cardWeight(c.card) < cardWeight(lowest.card) {
			lowest = c
		}
	}

	if len(d.Trick) == 0 {
		// Leading: hard leads its strongest side suit, medium leads low.
		if difficulty == gamekit.DifficultyHard {
			best := cands[0]
			for _, c := range cands[1:] {
				if c.card.Suit != gamekit.Spades && cardWeight(c.card) > cardWeight(best.card) {
					best = c
				}
			}
			return best.mv
		}
		return lowest.mv
	}

	// Hard does not waste a winner over a partner who already holds the
	// trick.
	if difficulty == gamekit.DifficultyHard && teamOf(currentTrickWinner(d)) == teamOf(seat) {
		return lowest.mv
	}

	// Cheapest card that takes the trick, else the lowest dump.
	var cheapestWinner *candidate
	for i := range cands {
		if !winsTrick(d.Trick, cands[i].card) {
			continue
		}
		if cheapestWinner == nil || cardWeight(cands[i].card) < cardWeight(cheapestWinner.card) {
			cheapestWinner = &cands[i]
		}
	}
	if cheapestWinner != nil {
		return cheapestWinner.mv
	}
	return lowest.mv
}

// cardWeight orders cards for heuristics: rank first, spades above all.
func cardWeight(c gamekit.Card) int {
	w := gamekit.RankValue(c.Rank)
	if c.Suit == gamekit.Spades {
		w += 20
	}
	return w
}

func currentTrickWinner(d *doc) int {
	return trickWinner(d.Trick)
}

// winsTrick reports whether playing card on top of the current trick would
// win it as it stands.
func winsTrick(trick []playedCard, card gamekit.Card) bool {
	best := trick[0].Card
	for _, pc := range trick[1:] {
		if beats(pc.Card, best) {
			best = pc.Card
		}
	}
	if card.Suit == best.Suit {
		return gamekit.RankValue(card.Rank) > gamekit.RankValue(best.Rank)
	}
	return card.Suit == gamekit.Spades
}
