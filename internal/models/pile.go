// internal/models/pile.go
package models

import (
	"math/rand"
	"sort"
)

// Deck is the ordered draw pile. It only shrinks within a round.
type Deck struct {
	cards []Card
}

// NewDeck builds a deck from the given order. The slice is copied.
func NewDeck(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// NewShuffledDeck returns all 48 cards shuffled with r.
func NewShuffledDeck(r *rand.Rand) *Deck {
	cards := AllCards()
	r.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return &Deck{cards: cards}
}

// Draw removes and returns the top card. ok is false when the deck is empty.
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	c := d.cards[0]
	d.cards = d.cards[1:]
	return c, true
}

// Len is the number of cards remaining.
func (d *Deck) Len() int { return len(d.cards) }

// Cards returns a copy of the remaining cards, top first.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Field holds the face-up cards on the table grouped by month.
type Field struct {
	months [13][]Card // index 0 unused
}

// NewField returns an empty field.
func NewField() *Field { return &Field{} }

// Add places a card face-up on the table.
func (f *Field) Add(c Card) {
	f.months[c.Month] = append(f.months[c.Month], c)
}

// Month returns a copy of the cards lying on the table for month m.
func (f *Field) Month(m int) []Card {
	if m < 1 || m > 12 {
		return nil
	}
	out := make([]Card, len(f.months[m]))
	copy(out, f.months[m])
	return out
}

// Remove takes the card with the given id off the table.
func (f *Field) Remove(id int) (Card, bool) {
	c, ok := CardByID(id)
	if !ok {
		return Card{}, false
	}
	cards := f.months[c.Month]
	for i := range cards {
		if cards[i].ID == id {
			f.months[c.Month] = append(cards[:i:i], cards[i+1:]...)
			return c, true
		}
	}
	return Card{}, false
}

// TakeMonth removes and returns every card of month m.
func (f *Field) TakeMonth(m int) []Card {
	if m < 1 || m > 12 {
		return nil
	}
	out := f.months[m]
	f.months[m] = nil
	return out
}

// Cards lists every card on the table ordered by month then insertion.
func (f *Field) Cards() []Card {
	var out []Card
	for m := 1; m <= 12; m++ {
		out = append(out, f.months[m]...)
	}
	return out
}

// Len is the number of cards on the table.
func (f *Field) Len() int {
	n := 0
	for m := 1; m <= 12; m++ {
		n += len(f.months[m])
	}
	return n
}

// Hand is a player's held cards in deal order.
type Hand struct {
	cards []Card
}

// NewHand copies cards into a new hand.
func NewHand(cards []Card) *Hand {
	h := &Hand{cards: make([]Card, len(cards))}
	copy(h.cards, cards)
	return h
}

// Add appends a card to the hand.
func (h *Hand) Add(c Card) { h.cards = append(h.cards, c) }

// Remove takes the card with the given id out of the hand.
func (h *Hand) Remove(id int) (Card, bool) {
	for i, c := range h.cards {
		if c.ID == id {
			h.cards = append(h.cards[:i:i], h.cards[i+1:]...)
			return c, true
		}
	}
	return Card{}, false
}

// Contains reports whether the hand holds the card.
func (h *Hand) Contains(id int) bool {
	for _, c := range h.cards {
		if c.ID == id {
			return true
		}
	}
	return false
}

// MonthCounts counts held cards by month.
func (h *Hand) MonthCounts() map[int]int {
	counts := make(map[int]int)
	for _, c := range h.cards {
		counts[c.Month]++
	}
	return counts
}

// Len is the number of held cards.
func (h *Hand) Len() int { return len(h.cards) }

// Cards returns a copy of the held cards.
func (h *Hand) Cards() []Card {
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

// CollectedSet is the multiset of cards a player captured this round.
type CollectedSet struct {
	cards []Card
}

// NewCollectedSet returns a set seeded with cards.
func NewCollectedSet(cards ...Card) *CollectedSet {
	s := &CollectedSet{}
	s.Add(cards...)
	return s
}

// Add captures cards. The set never shrinks within a round.
func (s *CollectedSet) Add(cards ...Card) {
	s.cards = append(s.cards, cards...)
}

// Len is the number of captured cards.
func (s *CollectedSet) Len() int { return len(s.cards) }

// Cards returns a copy of the captured cards in capture order.
func (s *CollectedSet) Cards() []Card {
	out := make([]Card, len(s.cards))
	copy(out, s.cards)
	return out
}

// Grouped partitions the captured cards by type, each group sorted by id.
func (s *CollectedSet) Grouped() CollectedGroups {
	var g CollectedGroups
	for _, c := range s.cards {
		switch c.Type {
		case Kwang:
			g.Kwang = append(g.Kwang, c)
		case Animal:
			g.Animal = append(g.Animal, c)
		case Ribbon:
			g.Ribbon = append(g.Ribbon, c)
		case Pi:
			g.Pi = append(g.Pi, c)
		}
	}
	for _, group := range [][]Card{g.Kwang, g.Animal, g.Ribbon, g.Pi} {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	}
	return g
}

// CollectedGroups is the wire form of a collected set split by type.
type CollectedGroups struct {
	Kwang  []Card `json:"kwang"`
	Animal []Card `json:"animal"`
	Ribbon []Card `json:"ribbon"`
	Pi     []Card `json:"pi"`
}

// All flattens the groups back into one slice.
func (g CollectedGroups) All() []Card {
	out := make([]Card, 0, len(g.Kwang)+len(g.Animal)+len(g.Ribbon)+len(g.Pi))
	out = append(out, g.Kwang...)
	out = append(out, g.Animal...)
	out = append(out, g.Ribbon...)
	return append(out, g.Pi...)
}

// Counts returns the number of cards per type.
func (g CollectedGroups) Counts() map[CardType]int {
	return map[CardType]int{
		Kwang:  len(g.Kwang),
		Animal: len(g.Animal),
		Ribbon: len(g.Ribbon),
		Pi:     len(g.Pi),
	}
}
