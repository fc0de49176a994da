// internal/games/diamonds/ai.go
package diamonds

import (
	"sort"

	"github.com/parlorkit/parlor/internal/gamekit"
)

// AIMove returns a legal pass or card play for the seat. Easy plays the first
// legal move; medium and hard duck under tricks carrying diamonds and shed
// high diamonds when void. During the passing phase the move is accepted for
// any seat that has not yet passed.
func (m *Module) AIMove(st gamekit.State, seat int, difficulty gamekit.Difficulty) (*gamekit.Move, error) {
	d, err := decode(st)
	if err != nil {
		return nil, err
	}
	switch d.Phase {
	case phasePassing:
		if seat < 0 || seat >= numSeats || len(d.Seats[seat].Pass) > 0 {
			return nil, nil
		}
		if difficulty == gamekit.DifficultyEasy {
			hand := d.Seats[seat].Hand
			if len(hand) < passCount {
				return nil, nil
			}
			return passMove(hand[:passCount]), nil
		}
		return suggestPass(d.Seats[seat].Hand), nil
	case phasePlaying:
		if st.Turn.Kind != gamekit.TurnSeat || st.Turn.Seat != seat {
			return nil, nil
		}
		legal := m.ValidMoves(st, seat)
		if len(legal) == 0 {
			return nil, nil
		}
		if difficulty == gamekit.DifficultyEasy {
			mv := legal[0]
			return &mv, nil
		}
		mv := choosePlay(d, legal, difficulty)
		return &mv, nil
	default:
		return nil, nil
	}
}

func passMove(cards []gamekit.Card) *gamekit.Move {
	encoded := make([]interface{}, len(cards))
	for i, c := range cards {
		encoded[i] = gamekit.EncodeCard(c)
	}
	return &gamekit.Move{Action: actionPass, Payload: map[string]interface{}{"cards": encoded}}
}

// suggestPass sheds the most dangerous cards: high diamonds first, then the
// highest of everything else.
func suggestPass(hand []gamekit.Card) *gamekit.Move {
	if len(hand) < passCount {
		return nil
	}
	sorted := make([]gamekit.Card, len(hand))
	copy(sorted, hand)
	sort.SliceStable(sorted, func(i, j int) bool {
		return dangerWeight(sorted[i]) > dangerWeight(sorted[j])
	})
	return passMove(sorted[:passCount])
}

// dangerWeight orders cards by how likely they are to capture diamonds.
func dangerWeight(c gamekit.Card) int {
	w := gamekit.RankValue(c.Rank)
	if c.Suit == gamekit.Diamonds {
		w += 20
	}
	return w
}

// choosePlay ducks under tricks that carry diamonds, sheds the worst card
// when void, and otherwise leads or wins cheaply.
func choosePlay(d *doc, legal []gamekit.Move, difficulty gamekit.Difficulty) gamekit.Move {
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
		if dangerWeight(c.card) < dangerWeight(lowest.card) {
			lowest = c
		}
	}

	if len(d.Trick) == 0 {
		// Lead low; hard avoids leading diamonds outright.
		if difficulty == gamekit.DifficultyHard {
			var best *candidate
			for i := range cands {
				if cands[i].card.Suit == gamekit.Diamonds {
					continue
				}
				if best == nil || gamekit.RankValue(cands[i].card.Rank) < gamekit.RankValue(best.card.Rank) {
					best = &cands[i]
				}
			}
			if best != nil {
				return best.mv
			}
		}
		return lowest.mv
	}

	lead := d.Trick[0].Card.Suit
	trickHasDiamonds := false
	bestRank := 0
	for _, pc := range d.Trick {
		if pc.Card.Suit == gamekit.Diamonds {
			trickHasDiamonds = true
		}
		if pc.Card.Suit == lead && gamekit.RankValue(pc.Card.Rank) > bestRank {
			bestRank = gamekit.RankValue(pc.Card.Rank)
		}
	}

	if cands[0].card.Suit != lead {
		// Void: dump the most dangerous card.
		worst := cands[0]
		for _, c := range cands[1:] {
			if dangerWeight(c.card) > dangerWeight(worst.card) {
				worst = c
			}
		}
		return worst.mv
	}

	if trickHasDiamonds || difficulty == gamekit.DifficultyHard {
		// Highest card that still loses the trick.
		var duck *candidate
		for i := range cands {
			r := gamekit.RankValue(cands[i].card.Rank)
			if r >= bestRank {
				continue
			}
			if duck == nil || r > gamekit.RankValue(duck.card.Rank) {
				duck = &cands[i]
			}
		}
		if duck != nil {
			return duck.mv
		}
	}
	return lowest.mv
}
