// Package card defines the playing-card domain: suits, ranks, stable card
// identity, and deterministic deck construction.
package card

import (
	"fmt"
	"math/rand"
)

// Suit identifies one of the four French suits.
type Suit string

const (
	SuitClubs    Suit = "clubs"
	SuitDiamonds Suit = "diamonds"
	SuitHearts   Suit = "hearts"
	SuitSpades   Suit = "spades"
)

// Suits lists all suits in canonical deck order.
var Suits = []Suit{SuitClubs, SuitDiamonds, SuitHearts, SuitSpades}

// Rank is the card rank, ace low (1) through king (13).
type Rank int

const (
	RankAce   Rank = 1
	RankTwo   Rank = 2
	RankThree Rank = 3
	RankFour  Rank = 4
	RankFive  Rank = 5
	RankSix   Rank = 6
	RankSeven Rank = 7
	RankEight Rank = 8
	RankNine  Rank = 9
	RankTen   Rank = 10
	RankJack  Rank = 11
	RankQueen Rank = 12
	RankKing  Rank = 13
)

var rankCodes = map[Rank]string{
	RankAce: "A", RankTwo: "2", RankThree: "3", RankFour: "4",
	RankFive: "5", RankSix: "6", RankSeven: "7", RankEight: "8",
	RankNine: "9", RankTen: "T", RankJack: "J", RankQueen: "Q",
	RankKing: "K",
}

var rankNames = map[Rank]string{
	RankAce: "ace", RankTwo: "two", RankThree: "three", RankFour: "four",
	RankFive: "five", RankSix: "six", RankSeven: "seven", RankEight: "eight",
	RankNine: "nine", RankTen: "ten", RankJack: "jack", RankQueen: "queen",
	RankKing: "king",
}

// Code returns the single-character rank code used in card ids.
func (r Rank) Code() string {
	return rankCodes[r]
}

// Name returns the lowercase english rank name.
func (r Rank) Name() string {
	return rankNames[r]
}

// Valid reports whether the rank is within ace..king.
func (r Rank) Valid() bool {
	return r >= RankAce && r <= RankKing
}

// Code returns the single-character suit code used in card ids.
func (s Suit) Code() string {
	switch s {
	case SuitClubs:
		return "C"
	case SuitDiamonds:
		return "D"
	case SuitHearts:
		return "H"
	case SuitSpades:
		return "S"
	}
	return "?"
}

// Valid reports whether the suit is one of the four French suits.
func (s Suit) Valid() bool {
	switch s {
	case SuitClubs, SuitDiamonds, SuitHearts, SuitSpades:
		return true
	}
	return false
}

// Card is an immutable playing card. ID is derived from rank and suit
// ("AS", "TH", ...) and is stable across every replay and snapshot cycle.
type Card struct {
	Suit Suit   `json:"suit"`
	Rank Rank   `json:"rank"`
	ID   string `json:"id"`
}

// New constructs a card with its stable id.
func New(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank, ID: rank.Code() + suit.Code()}
}

// Value returns the deadwood point value: ace 1, pip cards face value,
// ten and court cards 10.
func (c Card) Value() int {
	if c.Rank >= RankTen {
		return 10
	}
	return int(c.Rank)
}

// Label returns a human-readable name ("ace of spades") for history lines.
func (c Card) Label() string {
	return fmt.Sprintf("%s of %s", c.Rank.Name(), c.Suit)
}

// Deck returns the 52-card deck in canonical order.
func Deck() []Card {
	deck := make([]Card, 0, 52)
	for _, suit := range Suits {
		for rank := RankAce; rank <= RankKing; rank++ {
			deck = append(deck, New(suit, rank))
		}
	}
	return deck
}

// Shuffled returns a new deck shuffled deterministically from seed. Identical
// seeds always yield identical orderings, which keeps deals replayable.
func Shuffled(seed int64) []Card {
	deck := Deck()
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// Find returns the index of the card with the given id, or -1.
func Find(cards []Card, id string) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Remove returns a copy of cards with the element at index removed.
func Remove(cards []Card, index int) []Card {
	next := make([]Card, 0, len(cards)-1)
	next = append(next, cards[:index]...)
	next = append(next, cards[index+1:]...)
	return next
}
