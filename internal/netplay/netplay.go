// Package netplay replicates one host-owned game.Engine to a passive guest
// over a channel.Channel. The host is always game.SidePlayer and the guest,
// who joined second, plays first as game.SideOpponent.
package netplay

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrOpponentLeft ends a round whose opponent presence marker disappeared.
var ErrOpponentLeft = errors.New("opponent left the room")

// Defaults for Config.
const (
	DefaultHeartbeat = 2 * time.Second
	presenceValue    = "1"
)

// Config describes one side of a replicated round.
type Config struct {
	RoomID   uuid.UUID
	Self     game.SeatInfo
	Opponent game.SeatInfo

	// Heartbeat is how often the host republishes the snapshot regardless of changes.
	Heartbeat time.Duration
	// TurnTimeout forces a skip when a seat leaves a blocked phase unanswered.
	// Zero falls back to the engine rules' TurnTimeoutSec; negative disables it.
	TurnTimeout time.Duration

	Logger logrus.FieldLogger
	// Listener receives the host engine's events on the host goroutine.
	Listener game.Listener
	// EngineOptions are appended after the host's own engine options.
	EngineOptions []game.Option
}

func (c *Config) withDefaults() {
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

func (c Config) logger(role string) logrus.FieldLogger {
	return c.Logger.WithFields(logrus.Fields{
		"room":   c.RoomID,
		"player": c.Self.ID,
		"role":   role,
	})
}

// stamper hands out strictly increasing millisecond timestamps.
type stamper struct {
	last int64
}

func (s *stamper) next() int64 {
	now := time.Now().UnixMilli()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// Dispatch maps an action onto the engine entry points of side. It is shared
// by the replication host and local front ends.
func Dispatch(e *game.Engine, side game.Side, a models.GameAction) error {
	if !a.Valid() {
		return fmt.Errorf("malformed %s action: %w", a.Type, game.ErrIllegalIntent)
	}
	if e.Turn() != side {
		return fmt.Errorf("%s action from %s out of turn: %w", a.Type, side, game.ErrIllegalIntent)
	}
	opp := side == game.SideOpponent
	switch a.Type {
	case models.ActionPlayCard:
		opts := game.PlayOptions{TargetCardID: a.TargetCardID, TargetMonth: a.TargetMonth}
		if opp {
			return e.OpponentPlayCard(*a.CardID, opts)
		}
		return e.PlayCard(*a.CardID, opts)
	case models.ActionSelectFieldCard:
		switch e.Phase() {
		case game.PhaseDeckSelecting:
			if opp {
				return e.OpponentSelectDeckCard(*a.CardID)
			}
			return e.SelectDeckCard(*a.CardID)
		default:
			if opp {
				return e.OpponentSelectFieldCard(*a.CardID)
			}
			return e.SelectFieldCard(*a.CardID)
		}
	case models.ActionDeclareGo:
		return e.DeclareGo()
	case models.ActionDeclareStop:
		return e.DeclareStop()
	}
	return fmt.Errorf("unknown action %q: %w", a.Type, game.ErrIllegalIntent)
}
