// internal/models/card.go
package models

import "fmt"

// CardType is the scoring category of a card.
type CardType string

const (
	Kwang  CardType = "kwang"
	Animal CardType = "animal"
	Ribbon CardType = "ribbon"
	Pi     CardType = "pi"
)

// RainMonth is the month whose kwang weakens kwang sets.
const RainMonth = 12

// DeckSize is the number of cards in a full deck.
const DeckSize = 48

// Card is an immutable hwatu card. IDs are stable in [0, 48) and map to
// (month, variant) as id = (month-1)*4 + (variant-1).
type Card struct {
	ID      int      `json:"id"`
	Month   int      `json:"month"`
	Variant int      `json:"variant"`
	Type    CardType `json:"type"`
}

// cardTypes holds the fixed type assignment for each month, variants 1..4.
var cardTypes = [12][4]CardType{
	{Kwang, Ribbon, Pi, Pi},     // 1 pine
	{Animal, Ribbon, Pi, Pi},    // 2 plum
	{Kwang, Ribbon, Pi, Pi},     // 3 cherry
	{Animal, Ribbon, Pi, Pi},    // 4 wisteria
	{Animal, Ribbon, Pi, Pi},    // 5 iris
	{Animal, Ribbon, Pi, Pi},    // 6 peony
	{Animal, Ribbon, Pi, Pi},    // 7 bush clover
	{Kwang, Animal, Pi, Pi},     // 8 pampas
	{Animal, Ribbon, Pi, Pi},    // 9 chrysanthemum
	{Animal, Ribbon, Pi, Pi},    // 10 maple
	{Kwang, Pi, Pi, Pi},         // 11 paulownia
	{Kwang, Animal, Ribbon, Pi}, // 12 rain
}

// doublePi lists the cards worth two pi points.
var doublePi = map[[2]int]bool{
	{9, 4}:  true,
	{11, 4}: true,
	{12, 4}: true,
}

var allCards = buildCards()

func buildCards() [DeckSize]Card {
	var cards [DeckSize]Card
	for m := 1; m <= 12; m++ {
		for v := 1; v <= 4; v++ {
			id := (m-1)*4 + (v - 1)
			cards[id] = Card{ID: id, Month: m, Variant: v, Type: cardTypes[m-1][v-1]}
		}
	}
	return cards
}

// AllCards returns the 48 cards in id order.
func AllCards() []Card {
	out := make([]Card, DeckSize)
	copy(out, allCards[:])
	return out
}

// CardByID looks up a card by its stable id.
func CardByID(id int) (Card, bool) {
	if id < 0 || id >= DeckSize {
		return Card{}, false
	}
	return allCards[id], true
}

// CardAt returns the card for a month and variant. It panics on out-of-range input
// and is meant for fixtures and tables.
func CardAt(month, variant int) Card {
	if month < 1 || month > 12 || variant < 1 || variant > 4 {
		panic(fmt.Sprintf("card %d-%d out of range", month, variant))
	}
	return allCards[(month-1)*4+(variant-1)]
}

// PiValue is how many pi points the card contributes: 0 for non-pi cards.
func (c Card) PiValue() int {
	if c.Type != Pi {
		return 0
	}
	if doublePi[[2]int{c.Month, c.Variant}] {
		return 2
	}
	return 1
}

// IsDoublePi reports whether the card is one of the double-pi cards.
func (c Card) IsDoublePi() bool {
	return c.PiValue() == 2
}

// Valid reports whether the card matches the fixed table entry for its id.
func (c Card) Valid() bool {
	ref, ok := CardByID(c.ID)
	return ok && ref == c
}

func (c Card) String() string {
	return fmt.Sprintf("%d-%d(%s)", c.Month, c.Variant, c.Type)
}
