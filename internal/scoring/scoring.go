// internal/scoring/scoring.go
//
// Package scoring turns a collected card multiset into a score breakdown and
// composes the end-of-round multipliers. Everything here is pure.
package scoring

import "github.com/jason-s-yu/gostop/internal/models"

// Thresholds below which a category scores nothing.
const (
	AnimalThreshold = 5
	RibbonThreshold = 5
	PiThreshold     = 10

	GodoriBonus = 5
	DanBonus    = 3 // hongdan, cheongdan, chodan each

	// MungDdaThreshold is the own animal count that triggers the mung-dda multiplier.
	MungDdaThreshold = 7
)

var (
	godoriMonths    = []int{2, 4, 8}
	hongdanMonths   = []int{1, 2, 3}
	cheongdanMonths = []int{6, 9, 10}
	chodanMonths    = []int{4, 5, 7}
)

// Flags are the set bonuses. Any combination may hold at once.
type Flags struct {
	Godori    bool `json:"godori"`
	Hongdan   bool `json:"hongdan"`
	Cheongdan bool `json:"cheongdan"`
	Chodan    bool `json:"chodan"`
}

// Multipliers holds each factor applied at a scoring checkpoint. A zero value
// means ApplyMultipliers has not run yet.
type Multipliers struct {
	Go       int `json:"go"`
	Shake    int `json:"shake"`
	Ppuk     int `json:"ppuk"`
	PiBak    int `json:"piBak"`
	GwangBak int `json:"gwangBak"`
	MungDda  int `json:"mungDda"`
	MungBak  int `json:"mungBak"`
	GoBak    int `json:"goBak"`
}

// Product multiplies every factor together.
func (m Multipliers) Product() int {
	return m.Go * m.Shake * m.Ppuk * m.PiBak * m.GwangBak * m.MungDda * m.MungBak * m.GoBak
}

// Breakdown is the score derived from one collected set.
type Breakdown struct {
	KwangPoints  int          `json:"kwangPoints"`
	KwangCount   int          `json:"kwangCount"`
	AnimalPoints int          `json:"animalPoints"`
	AnimalCount  int          `json:"animalCount"`
	RibbonPoints int          `json:"ribbonPoints"`
	RibbonCount  int          `json:"ribbonCount"`
	PiPoints     int          `json:"piPoints"`
	PiCount      int          `json:"piCount"`
	Flags        Flags        `json:"specialFlags"`
	Multipliers  *Multipliers `json:"multipliers,omitempty"`
	BaseTotal    int          `json:"baseTotal"`
	Total        int          `json:"total"`
}

// Calculate scores a collected set before multipliers. The result depends only on
// the multiset of cards, not their order.
func Calculate(cards []models.Card) Breakdown {
	var (
		b            Breakdown
		hasRain      bool
		animalMonths = make(map[int]bool)
		ribbonMonths = make(map[int]bool)
	)
	for _, c := range cards {
		switch c.Type {
		case models.Kwang:
			b.KwangCount++
			if c.Month == models.RainMonth {
				hasRain = true
			}
		case models.Animal:
			b.AnimalCount++
			animalMonths[c.Month] = true
		case models.Ribbon:
			b.RibbonCount++
			ribbonMonths[c.Month] = true
		case models.Pi:
			b.PiCount += c.PiValue()
		}
	}

	b.KwangPoints = kwangPoints(b.KwangCount, hasRain)
	b.AnimalPoints = overThreshold(b.AnimalCount, AnimalThreshold)
	b.RibbonPoints = overThreshold(b.RibbonCount, RibbonThreshold)
	b.PiPoints = overThreshold(b.PiCount, PiThreshold)

	b.Flags = Flags{
		Godori:    hasAll(animalMonths, godoriMonths),
		Hongdan:   hasAll(ribbonMonths, hongdanMonths),
		Cheongdan: hasAll(ribbonMonths, cheongdanMonths),
		Chodan:    hasAll(ribbonMonths, chodanMonths),
	}

	b.BaseTotal = b.KwangPoints + b.AnimalPoints + b.RibbonPoints + b.PiPoints
	if b.Flags.Godori {
		b.BaseTotal += GodoriBonus
	}
	for _, dan := range []bool{b.Flags.Hongdan, b.Flags.Cheongdan, b.Flags.Chodan} {
		if dan {
			b.BaseTotal += DanBonus
		}
	}
	b.Total = b.BaseTotal
	return b
}

func kwangPoints(count int, hasRain bool) int {
	switch {
	case count >= 5:
		return 15
	case count == 4 && hasRain:
		return 3
	case count == 4:
		return 4
	case count == 3 && hasRain:
		return 2
	case count == 3:
		return 3
	}
	return 0
}

func overThreshold(count, threshold int) int {
	if count < threshold {
		return 0
	}
	return 1 + (count - threshold)
}

func hasAll(present map[int]bool, months []int) bool {
	for _, m := range months {
		if !present[m] {
			return false
		}
	}
	return true
}
