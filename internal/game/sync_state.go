// internal/game/sync_state.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/jason-s-yu/gostop/internal/scoring"
)

// PendingState describes what a blocked phase is waiting for, so a passive
// client can render the prompt.
type PendingState struct {
	Card       *models.Card  `json:"card,omitempty"` // hand or drawn card awaiting a field choice
	Candidates []models.Card `json:"candidates,omitempty"`
	Score      int           `json:"score,omitempty"` // go/stop decision score
}

// GameState is the full replicated snapshot the host publishes.
type GameState struct {
	Phase       Phase              `json:"phase"`
	CurrentTurn Side               `json:"currentTurn"`
	TurnNumber  int                `json:"turnNumber"`
	Field       []models.Card      `json:"field"`
	Deck        []models.Card      `json:"deck"`
	Player      models.PlayerState `json:"player"`
	Opponent    models.PlayerState `json:"opponent"`
	Pending     *PendingState      `json:"pending,omitempty"`
	Result      *Result            `json:"result,omitempty"`
}

// Snapshot captures the engine's current state.
func (e *Engine) Snapshot() GameState {
	gs := GameState{
		Phase:       e.phase,
		CurrentTurn: e.turn,
		TurnNumber:  e.turnNumber,
		Field:       e.field.Cards(),
		Player:      e.playerState(SidePlayer),
		Opponent:    e.playerState(SideOpponent),
		Result:      e.result,
	}
	if e.deck != nil {
		gs.Deck = e.deck.Cards()
	}
	switch e.phase {
	case PhaseSelecting:
		gs.Pending = &PendingState{Card: e.pendingHand, Candidates: e.Candidates()}
	case PhaseDeckSelecting:
		gs.Pending = &PendingState{Card: e.pendingDeck, Candidates: e.Candidates()}
	case PhaseGoStop:
		gs.Pending = &PendingState{Score: e.pendingScore}
	}
	return gs
}

func (e *Engine) playerState(side Side) models.PlayerState {
	s := e.seats[side]
	return models.PlayerState{
		ID:        s.info.ID,
		Name:      s.info.Name,
		Hand:      s.hand.Cards(),
		Collected: s.collected.Grouped(),
		Score:     scoring.Calculate(s.collected.Cards()).BaseTotal,
		GoCount:   s.goCount,
	}
}

// View is the card layout rebuilt from a snapshot on the passive side.
type View struct {
	Phase      Phase
	Turn       Side
	TurnNumber int
	Deck       *models.Deck
	Field      *models.Field
	Hands      [2]*models.Hand
	Collected  [2]*models.CollectedSet
	Pending    *PendingState
}

// Restore rebuilds the piles described by a snapshot. It fails if any card is
// unknown or duplicated. A pending card lives in no pile, so it counts toward
// the 48 as well.
func (gs GameState) Restore() (*View, error) {
	v := &View{
		Phase:      gs.Phase,
		Turn:       gs.CurrentTurn,
		TurnNumber: gs.TurnNumber,
		Deck:       models.NewDeck(gs.Deck),
		Field:      models.NewField(),
		Hands:      [2]*models.Hand{models.NewHand(gs.Player.Hand), models.NewHand(gs.Opponent.Hand)},
		Collected: [2]*models.CollectedSet{
			models.NewCollectedSet(gs.Player.Collected.All()...),
			models.NewCollectedSet(gs.Opponent.Collected.All()...),
		},
		Pending: gs.Pending,
	}
	for _, c := range gs.Field {
		v.Field.Add(c)
	}

	seen := make(map[int]bool, models.DeckSize)
	check := func(cards []models.Card) error {
		for _, c := range cards {
			known, ok := models.CardByID(c.ID)
			if !ok || known != c {
				return fmt.Errorf("unknown card %v", c)
			}
			if seen[c.ID] {
				return fmt.Errorf("duplicate card %v", c)
			}
			seen[c.ID] = true
		}
		return nil
	}
	groups := [][]models.Card{
		gs.Deck, gs.Field,
		gs.Player.Hand, gs.Opponent.Hand,
		gs.Player.Collected.All(), gs.Opponent.Collected.All(),
	}
	if gs.Pending != nil && gs.Pending.Card != nil && gs.Phase != PhaseWaiting {
		groups = append(groups, []models.Card{*gs.Pending.Card})
	}
	for _, g := range groups {
		if err := check(g); err != nil {
			return nil, err
		}
	}
	if gs.Phase != PhaseWaiting && len(seen) != models.DeckSize {
		return nil, fmt.Errorf("snapshot holds %d cards, want %d", len(seen), models.DeckSize)
	}
	return v, nil
}
