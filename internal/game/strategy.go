package game

import "github.com/jason-s-yu/gostop/internal/models"

// Decision is a go/stop choice.
type Decision int

const (
	DecisionGo Decision = iota
	DecisionStop
)

// Strategy drives a scripted seat. The engine consults it whenever that seat
// owns a blocked phase.
type Strategy interface {
	ChoosePlay(hand, field []models.Card) models.Card
	ChooseFieldCard(played models.Card, candidates []models.Card) models.Card
	ChooseGoOrStop(score, goCount int) Decision
}

// SimpleStrategy plays the first hand card that captures something, otherwise
// the first card, and stops once its score reaches Threshold.
type SimpleStrategy struct {
	Threshold int
}

// ScriptedOpponent is the strategy practice rounds seat against a human: it
// stops at the first go/stop decision the rules offer.
func ScriptedOpponent(r Rules) SimpleStrategy {
	return SimpleStrategy{Threshold: r.GoStopThreshold}
}

func (s SimpleStrategy) ChoosePlay(hand, field []models.Card) models.Card {
	onField := make(map[int]int)
	for _, c := range field {
		onField[c.Month]++
	}
	for _, c := range hand {
		if n := onField[c.Month]; n == 1 || n == 2 {
			return c
		}
	}
	return hand[0]
}

func (s SimpleStrategy) ChooseFieldCard(_ models.Card, candidates []models.Card) models.Card {
	return candidates[0]
}

func (s SimpleStrategy) ChooseGoOrStop(score, _ int) Decision {
	if score >= s.Threshold {
		return DecisionStop
	}
	return DecisionGo
}
