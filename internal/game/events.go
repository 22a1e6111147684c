// internal/game/events.go
package game

import (
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/jason-s-yu/gostop/internal/scoring"
)

// EventType names an outbound engine event.
type EventType string

const (
	EventTurnStart             EventType = "turnStart"
	EventTurnEnd               EventType = "turnEnd"
	EventTurnSkipped           EventType = "turnSkipped"
	EventResolving             EventType = "resolving"
	EventScoreUpdate           EventType = "scoreUpdate"
	EventCollectedUpdate       EventType = "collectedUpdate"
	EventRequireFieldSelection EventType = "requireFieldSelection"
	EventRequireDeckSelection  EventType = "requireDeckSelection"
	EventGoStopDecision        EventType = "goStopDecision"
	EventGoDeclared            EventType = "goDeclared"
	EventStopDeclared          EventType = "stopDeclared"
	EventShake                 EventType = "shake"
	EventBomb                  EventType = "bomb"
	EventPpuk                  EventType = "ppuk"
	EventGameEnd               EventType = "gameEnd"
	EventGameAborted           EventType = "gameAborted"
)

// Card sources carried on resolving events.
const (
	SourceHand = "hand"
	SourceDeck = "deck"
)

// Event is the single outbound message shape. Only the fields relevant to Type are set.
type Event struct {
	Type       EventType        `json:"type"`
	Side       *Side            `json:"side,omitempty"`
	TurnNumber int              `json:"turnNumber,omitempty"`
	Card       *models.Card     `json:"card,omitempty"`
	Source     string           `json:"source,omitempty"`
	Candidates []models.Card    `json:"candidates,omitempty"`
	Month      int              `json:"month,omitempty"`
	Months     []int            `json:"months,omitempty"`
	Score      int              `json:"score,omitempty"`
	GoCount    int              `json:"goCount,omitempty"`
	Scores     *SideScores      `json:"scores,omitempty"`
	Collected  *CollectedUpdate `json:"collected,omitempty"`
	Result     *Result          `json:"result,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// SideScores carries the running (pre-multiplier) score of each seat.
type SideScores struct {
	Player   int `json:"player"`
	Opponent int `json:"opponent"`
}

// CollectedView is one seat's captured cards with per-type counts.
type CollectedView struct {
	Counts map[models.CardType]int `json:"counts"`
	Cards  models.CollectedGroups  `json:"cards"`
}

// CollectedUpdate is the payload of collectedUpdate.
type CollectedUpdate struct {
	Player   CollectedView `json:"player"`
	Opponent CollectedView `json:"opponent"`
}

// Result is the outcome of a round. Winner is nil for a draw or an aborted round.
type Result struct {
	Winner   *Side             `json:"winner,omitempty"`
	Draw     bool              `json:"draw"`
	Aborted  bool              `json:"aborted,omitempty"`
	Reason   string            `json:"reason"`
	Player   scoring.Breakdown `json:"player"`
	Opponent scoring.Breakdown `json:"opponent"`
}

// Round end reasons.
const (
	ReasonStop    = "stop"
	ReasonNatural = "natural"
)

// Listener receives engine events synchronously on the goroutine that drove the engine.
type Listener interface {
	HandleEvent(ev Event)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(ev Event)

func (f ListenerFunc) HandleEvent(ev Event) { f(ev) }

type listenerEntry struct {
	id int
	l  Listener
}

// listeners is a small registry; removal keeps delivery order stable.
type listeners struct {
	next    int
	entries []listenerEntry
}

func (ls *listeners) add(l Listener) func() {
	ls.next++
	id := ls.next
	ls.entries = append(ls.entries, listenerEntry{id: id, l: l})
	return func() {
		for i, e := range ls.entries {
			if e.id == id {
				ls.entries = append(ls.entries[:i:i], ls.entries[i+1:]...)
				return
			}
		}
	}
}

func (ls *listeners) emit(ev Event) {
	for _, e := range ls.entries {
		e.l.HandleEvent(ev)
	}
}

func sidePtr(s Side) *Side { return &s }

func cardPtr(c models.Card) *models.Card { return &c }
