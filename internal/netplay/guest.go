package netplay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/sirupsen/logrus"
)

// hostGraceBeats is how many heartbeats the guest waits for the host's
// presence marker before treating the room as abandoned.
const hostGraceBeats = 3

// Guest renders the host's snapshots and writes intents to the last-action
// slot. It never holds engine state.
type Guest struct {
	ch     channel.Channel
	cfg    Config
	logger logrus.FieldLogger

	mu     sync.Mutex
	stamps stamper
	last   *game.GameState
}

// NewGuest builds the guest side. cfg.Opponent is the host.
func NewGuest(ch channel.Channel, cfg Config) *Guest {
	cfg.withDefaults()
	return &Guest{ch: ch, cfg: cfg, logger: cfg.logger("guest")}
}

// State returns the newest snapshot received, or nil.
func (g *Guest) State() *game.GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Run announces the guest and calls onState for every snapshot until the round
// has a result (nil), the host disappears (ErrOpponentLeft) or ctx is done.
// A host whose presence does not show within a few heartbeats counts as gone.
func (g *Guest) Run(ctx context.Context, onState func(game.GameState)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	room := g.cfg.RoomID

	states, err := g.ch.Subscribe(ctx, channel.StateKey(room))
	if err != nil {
		return fmt.Errorf("watch snapshots: %w", err)
	}
	hostPresence, err := g.ch.Subscribe(ctx, channel.PresenceKey(room, g.cfg.Opponent.ID))
	if err != nil {
		return fmt.Errorf("watch host presence: %w", err)
	}
	if err := g.ch.SetEphemeral(ctx, channel.PresenceKey(room, g.cfg.Self.ID), []byte(presenceValue)); err != nil {
		return fmt.Errorf("announce guest presence: %w", err)
	}

	// a host that is already gone never publishes a removal
	grace := time.NewTimer(hostGraceBeats * g.cfg.Heartbeat)
	defer grace.Stop()
	hostSeen := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-grace.C:
			if !hostSeen {
				g.logger.Error("host presence never appeared")
				return ErrOpponentLeft
			}

		case v, ok := <-states:
			if !ok {
				return fmt.Errorf("snapshots: %w", channel.ErrClosed)
			}
			if v == nil {
				continue
			}
			var gs game.GameState
			if err := json.Unmarshal(v, &gs); err != nil {
				g.logger.WithError(err).Warn("invalid snapshot")
				continue
			}
			g.mu.Lock()
			g.last = &gs
			g.mu.Unlock()
			if onState != nil {
				onState(gs)
			}
			if gs.Result != nil {
				return nil
			}

		case v, ok := <-hostPresence:
			if !ok {
				return fmt.Errorf("host presence: %w", channel.ErrClosed)
			}
			if v != nil {
				hostSeen = true
				continue
			}
			if hostSeen {
				g.logger.Error("host presence gone")
				return ErrOpponentLeft
			}
		}
	}
}

// Send writes an intent to the last-action slot. It does not wait for the
// host; the next snapshot shows the outcome.
func (g *Guest) Send(ctx context.Context, a models.GameAction) error {
	g.mu.Lock()
	a.PlayerID = g.cfg.Self.ID
	a.Timestamp = g.stamps.next()
	g.mu.Unlock()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	if err := g.ch.Set(ctx, channel.ActionKey(g.cfg.RoomID), data); err != nil {
		return fmt.Errorf("send %s: %w", a.Type, err)
	}
	return nil
}

// PlayCard sends a PLAY_CARD intent.
func (g *Guest) PlayCard(ctx context.Context, cardID int, opts game.PlayOptions) error {
	return g.Send(ctx, models.GameAction{
		Type:         models.ActionPlayCard,
		CardID:       models.IntPtr(cardID),
		TargetCardID: opts.TargetCardID,
		TargetMonth:  opts.TargetMonth,
	})
}

// SelectCard answers either a field or a deck selection; the host decides by phase.
func (g *Guest) SelectCard(ctx context.Context, cardID int) error {
	return g.Send(ctx, models.GameAction{Type: models.ActionSelectFieldCard, CardID: models.IntPtr(cardID)})
}

func (g *Guest) DeclareGo(ctx context.Context) error {
	return g.Send(ctx, models.GameAction{Type: models.ActionDeclareGo})
}

func (g *Guest) DeclareStop(ctx context.Context) error {
	return g.Send(ctx, models.GameAction{Type: models.ActionDeclareStop})
}
