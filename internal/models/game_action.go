// internal/models/game_action.go
package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ActionType tags an intent written by a passive client to the last-action slot.
type ActionType string

const (
	ActionPlayCard        ActionType = "PLAY_CARD"
	ActionSelectFieldCard ActionType = "SELECT_FIELD_CARD"
	ActionDeclareGo       ActionType = "DECLARE_GO"
	ActionDeclareStop     ActionType = "DECLARE_STOP"
)

// GameAction captures a remote player's in-game intent. Pointer fields are
// omitted when the action type does not use them.
type GameAction struct {
	Type         ActionType `json:"type"`
	PlayerID     uuid.UUID  `json:"playerId"`
	CardID       *int       `json:"cardId,omitempty"`
	TargetCardID *int       `json:"targetCardId,omitempty"`
	TargetMonth  *int       `json:"targetMonth,omitempty"`
	Timestamp    int64      `json:"timestamp"` // epoch millis, strictly increasing per sender
}

// Valid reports whether the action carries the fields its type requires.
func (a GameAction) Valid() bool {
	switch a.Type {
	case ActionPlayCard, ActionSelectFieldCard:
		return a.CardID != nil
	case ActionDeclareGo, ActionDeclareStop:
		return true
	}
	return false
}

// IntPtr is a small helper for building actions.
func IntPtr(v int) *int { return &v }

// Round log entry kinds.
const (
	LogAction = "action"
	LogResult = "result"
)

// RoundLogEntry is what the host writes to a room's log key for every applied
// intent and once more when the round ends. Result holds the JSON-encoded
// round result for LogResult entries.
type RoundLogEntry struct {
	Index  int             `json:"index"`
	Kind   string          `json:"kind"`
	Action *GameAction     `json:"action,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}
