// internal/gamekit/deck.go
package gamekit

import (
	"fmt"
	"math/rand"
)

// Suit and Rank identify a standard playing card. Cards are plain values so
// game documents round-trip through JSON without identity bookkeeping.
type Suit string

const (
	Clubs    Suit = "clubs"
	Diamonds Suit = "diamonds"
	Hearts   Suit = "hearts"
	Spades   Suit = "spades"
)

// Suits lists the four suits in a stable order.
var Suits = []Suit{Clubs, Diamonds, Hearts, Spades}

// Rank is 2-10, J, Q, K, A.
type Rank string

// Ranks lists the thirteen ranks in ascending order.
var Ranks = []Rank{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}

// Card is one playing card.
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

func (c Card) String() string {
	return fmt.Sprintf("%s of %s", c.Rank, c.Suit)
}

// RankValue returns the trick-taking order of a rank: 2 lowest, ace highest.
func RankValue(r Rank) int {
	for i, rank := range Ranks {
		if rank == r {
			return i + 2
		}
	}
	return 0
}

// NewDeck returns a standard 52-card deck in suit/rank order.
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, suit := range Suits {
		for _, rank := range Ranks {
			deck = append(deck, Card{Suit: suit, Rank: rank})
		}
	}
	return deck
}

// Shuffle permutes the deck in place using the provided source.
func Shuffle(deck []Card, rng *rand.Rand) {
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}

// Deal splits the first hands*size cards of the deck into hands of the given
// size and returns the hands plus the undealt remainder. Card conservation:
// len(deck) == sum(len(hand)) + len(rest).
func Deal(deck []Card, hands, size int) ([][]Card, []Card) {
	out := make([][]Card, hands)
	idx := 0
	for h := 0; h < hands; h++ {
		out[h] = make([]Card, 0, size)
		for c := 0; c < size && idx < len(deck); c++ {
			out[h] = append(out[h], deck[idx])
			idx++
		}
	}
	rest := make([]Card, len(deck)-idx)
	copy(rest, deck[idx:])
	return out, rest
}

// RemoveCard deletes the first occurrence of card from hand, returning the
// new hand and whether the card was present.
func RemoveCard(hand []Card, card Card) ([]Card, bool) {
	for i, c := range hand {
		if c == card {
			out := make([]Card, 0, len(hand)-1)
			out = append(out, hand[:i]...)
			out = append(out, hand[i+1:]...)
			return out, true
		}
	}
	return hand, false
}

// ContainsSuit reports whether the hand holds at least one card of the suit.
func ContainsSuit(hand []Card, suit Suit) bool {
	for _, c := range hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}

// ParseCard decodes a "rank:suit" move payload value, e.g. "Q:spades".
func ParseCard(s string) (Card, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			rank := Rank(s[:i])
			suit := Suit(s[i+1:])
			if RankValue(rank) == 0 {
				return Card{}, fmt.Errorf("invalid rank %q", s[:i])
			}
			switch suit {
			case Clubs, Diamonds, Hearts, Spades:
				return Card{Suit: suit, Rank: rank}, nil
			}
			return Card{}, fmt.Errorf("invalid suit %q", s[i+1:])
		}
	}
	return Card{}, fmt.Errorf("invalid card %q", s)
}

// EncodeCard is the inverse of ParseCard.
func EncodeCard(c Card) string {
	return fmt.Sprintf("%s:%s", c.Rank, c.Suit)
}
