// internal/game/phase.go
package game

import "fmt"

// Phase is the closed set of turn engine states.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseDealing
	PhasePlayerTurn
	PhaseOpponentTurn
	PhaseSelecting     // hand card matched two field cards
	PhaseDeckSelecting // drawn card matched two field cards
	PhaseResolving
	PhaseGoStop
	PhaseGameOver
)

var phaseNames = [...]string{
	PhaseWaiting:       "waiting",
	PhaseDealing:       "dealing",
	PhasePlayerTurn:    "playerTurn",
	PhaseOpponentTurn:  "opponentTurn",
	PhaseSelecting:     "selecting",
	PhaseDeckSelecting: "deckSelecting",
	PhaseResolving:     "resolving",
	PhaseGoStop:        "goStop",
	PhaseGameOver:      "gameOver",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// transitions lists the legal successors of each phase. Any live phase may
// also move to PhaseGameOver when a round is aborted.
var transitions = map[Phase][]Phase{
	PhaseWaiting:       {PhaseDealing},
	PhaseDealing:       {PhasePlayerTurn, PhaseOpponentTurn},
	PhasePlayerTurn:    {PhaseResolving},
	PhaseOpponentTurn:  {PhaseResolving},
	PhaseSelecting:     {PhaseResolving},
	PhaseDeckSelecting: {PhaseResolving},
	PhaseResolving:     {PhaseSelecting, PhaseDeckSelecting, PhaseGoStop, PhasePlayerTurn, PhaseOpponentTurn},
	PhaseGoStop:        {PhasePlayerTurn, PhaseOpponentTurn},
	PhaseGameOver:      nil,
}

func canTransition(from, to Phase) bool {
	if to == PhaseGameOver {
		return from != PhaseGameOver
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Intent is an inbound request from a player, local or replicated.
type Intent int

const (
	IntentPlayCard Intent = iota
	IntentSelectField
	IntentSelectDeck
	IntentDeclareGo
	IntentDeclareStop
	IntentSkip
)

func (i Intent) String() string {
	switch i {
	case IntentPlayCard:
		return "playCard"
	case IntentSelectField:
		return "selectFieldCard"
	case IntentSelectDeck:
		return "selectDeckCard"
	case IntentDeclareGo:
		return "declareGo"
	case IntentDeclareStop:
		return "declareStop"
	case IntentSkip:
		return "skip"
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// accepts reports whether an intent is legal while the engine is in phase p.
// Turn ownership is checked separately.
func (p Phase) accepts(i Intent) bool {
	switch p {
	case PhasePlayerTurn, PhaseOpponentTurn:
		return i == IntentPlayCard || i == IntentSkip
	case PhaseSelecting:
		return i == IntentSelectField || i == IntentSkip
	case PhaseDeckSelecting:
		return i == IntentSelectDeck || i == IntentSkip
	case PhaseGoStop:
		return i == IntentDeclareGo || i == IntentDeclareStop || i == IntentSkip
	case PhaseWaiting, PhaseDealing, PhaseResolving, PhaseGameOver:
		return false
	}
	return false
}

// Blocked reports whether the engine is waiting on a decision from the turn owner.
func (p Phase) Blocked() bool {
	switch p {
	case PhasePlayerTurn, PhaseOpponentTurn, PhaseSelecting, PhaseDeckSelecting, PhaseGoStop:
		return true
	}
	return false
}

// Side identifies a seat. In networked play the host is always SidePlayer.
type Side int

const (
	SidePlayer Side = iota
	SideOpponent
)

// Other returns the opposing seat.
func (s Side) Other() Side {
	if s == SidePlayer {
		return SideOpponent
	}
	return SidePlayer
}

func (s Side) String() string {
	if s == SideOpponent {
		return "opponent"
	}
	return "player"
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "player":
		*s = SidePlayer
	case "opponent":
		*s = SideOpponent
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

func turnPhase(s Side) Phase {
	if s == SideOpponent {
		return PhaseOpponentTurn
	}
	return PhasePlayerTurn
}
