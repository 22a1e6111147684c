package netplay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/sirupsen/logrus"
)

type localIntent struct {
	action models.GameAction
	reply  chan error
}

// Host owns the only live engine of a networked round. All engine access
// happens on the goroutine running Run.
type Host struct {
	ch     channel.Channel
	cfg    Config
	logger logrus.FieldLogger
	engine *game.Engine

	local    chan localIntent
	started  atomic.Bool
	dirty    bool
	lastSeen int64 // newest applied guest timestamp
	logIndex int
	stamps   stamper
}

// NewHost builds the host side. The engine is created here but only dealt
// once the guest's presence marker shows up.
func NewHost(ch channel.Channel, cfg Config) *Host {
	cfg.withDefaults()
	h := &Host{
		ch:     ch,
		cfg:    cfg,
		logger: cfg.logger("host"),
		local:  make(chan localIntent),
	}
	opts := []game.Option{
		game.WithSeats(cfg.Self, cfg.Opponent),
		game.WithFirstTurn(game.SideOpponent),
		game.WithLogger(h.logger),
	}
	h.engine = game.NewEngine(append(opts, cfg.EngineOptions...)...)
	if h.cfg.TurnTimeout == 0 {
		h.cfg.TurnTimeout = time.Duration(h.engine.Rules().TurnTimeoutSec) * time.Second
	}
	h.engine.Subscribe(game.ListenerFunc(func(game.Event) { h.dirty = true }))
	if cfg.Listener != nil {
		h.engine.Subscribe(cfg.Listener)
	}
	return h
}

// Engine exposes the engine for inspection. It must not be touched while Run is active.
func (h *Host) Engine() *game.Engine { return h.engine }

// Started reports whether the round was dealt.
func (h *Host) Started() bool { return h.started.Load() }

// Submit applies a local intent of the host seat on the Run goroutine and
// returns the engine's verdict.
func (h *Host) Submit(ctx context.Context, a models.GameAction) error {
	a.PlayerID = h.cfg.Self.ID
	li := localIntent{action: a, reply: make(chan error, 1)}
	select {
	case h.local <- li:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-li.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start deals the round exactly once, however many readiness signals arrive.
func (h *Host) start() error {
	if !h.started.CompareAndSwap(false, true) {
		return nil
	}
	h.logger.Info("opponent present, dealing")
	if err := h.engine.Start(); err != nil {
		return fmt.Errorf("start round: %w", err)
	}
	return nil
}

// Run announces the host, waits for the guest, and drives the round until it
// ends (nil), the guest disappears (ErrOpponentLeft) or ctx is done.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	room := h.cfg.RoomID

	if err := h.ch.SetEphemeral(ctx, channel.PresenceKey(room, h.cfg.Self.ID), []byte(presenceValue)); err != nil {
		return fmt.Errorf("announce host presence: %w", err)
	}
	presence, err := h.ch.Subscribe(ctx, channel.PresenceKey(room, h.cfg.Opponent.ID))
	if err != nil {
		return fmt.Errorf("watch guest presence: %w", err)
	}
	actions, err := h.ch.Subscribe(ctx, channel.ActionKey(room))
	if err != nil {
		return fmt.Errorf("watch actions: %w", err)
	}
	h.publish(ctx)

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()
	turnTimer := time.NewTimer(time.Hour)
	turnTimer.Stop()
	defer turnTimer.Stop()
	var timeout <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case v, ok := <-presence:
			if !ok {
				return fmt.Errorf("guest presence: %w", channel.ErrClosed)
			}
			if v != nil {
				if err := h.start(); err != nil {
					return err
				}
				break
			}
			if h.started.Load() {
				h.logger.Error("guest presence gone, aborting round")
				h.engine.Abort(ErrOpponentLeft.Error())
				h.publish(ctx)
				h.appendResult(ctx)
				return ErrOpponentLeft
			}

		case v, ok := <-actions:
			if !ok {
				return fmt.Errorf("action slot: %w", channel.ErrClosed)
			}
			h.handleRemote(ctx, v)

		case li := <-h.local:
			err := h.apply(ctx, game.SidePlayer, li.action)
			li.reply <- err

		case <-heartbeat.C:
			h.publish(ctx)

		case <-timeout:
			timeout = nil
			if h.started.Load() && h.engine.Phase().Blocked() {
				h.logger.WithFields(logrus.Fields{
					"turn":  h.engine.Turn(),
					"phase": h.engine.Phase(),
				}).Info("turn timed out, skipping")
				if err := h.engine.Skip(); err != nil {
					h.logger.WithError(err).Debug("skip rejected")
				}
			}
		}

		if h.dirty {
			h.dirty = false
			h.publish(ctx)
			if h.cfg.TurnTimeout > 0 && h.engine.Phase().Blocked() {
				turnTimer.Reset(h.cfg.TurnTimeout)
				timeout = turnTimer.C
			}
		}
		if h.engine.Phase() == game.PhaseGameOver {
			h.appendResult(ctx)
			return nil
		}
	}
}

// handleRemote applies one value from the last-action slot.
func (h *Host) handleRemote(ctx context.Context, v []byte) {
	if v == nil {
		return
	}
	var a models.GameAction
	if err := json.Unmarshal(v, &a); err != nil {
		h.logger.WithError(err).Warn("invalid action in slot")
		return
	}
	switch {
	case a.PlayerID == h.cfg.Self.ID:
		return
	case a.PlayerID != h.cfg.Opponent.ID:
		h.logger.WithField("actor", a.PlayerID).Debug("action from unseated player dropped")
		return
	case a.Timestamp <= h.lastSeen:
		return
	}
	h.lastSeen = a.Timestamp
	if !h.started.Load() {
		h.logger.WithField("type", a.Type).Debug("action before deal dropped")
		return
	}
	if err := h.apply(ctx, game.SideOpponent, a); err != nil {
		h.logger.WithError(err).WithField("type", a.Type).Debug("remote action dropped")
	}
}

func (h *Host) apply(ctx context.Context, side game.Side, a models.GameAction) error {
	if !h.started.Load() {
		return fmt.Errorf("round not dealt: %w", game.ErrIllegalIntent)
	}
	if a.Timestamp == 0 {
		a.Timestamp = h.stamps.next()
	}
	if err := Dispatch(h.engine, side, a); err != nil {
		return err
	}
	h.appendLog(ctx, models.RoundLogEntry{Kind: models.LogAction, Action: &a})
	return nil
}

func (h *Host) appendResult(ctx context.Context) {
	res := h.engine.Result()
	if res == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		h.logger.WithError(err).Warn("marshal round result")
		return
	}
	h.appendLog(ctx, models.RoundLogEntry{Kind: models.LogResult, Result: data})
}

func (h *Host) appendLog(ctx context.Context, entry models.RoundLogEntry) {
	h.logIndex++
	entry.Index = h.logIndex
	data, err := json.Marshal(entry)
	if err != nil {
		h.logger.WithError(err).Warn("marshal log entry")
		return
	}
	if err := h.ch.Set(ctx, channel.LogKey(h.cfg.RoomID), data); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.WithError(err).Warn("append round log")
	}
}

// publish writes the snapshot. Failures are logged and left to the next heartbeat.
func (h *Host) publish(ctx context.Context) {
	data := game.StateToBytes(h.engine.Snapshot())
	if err := h.ch.Set(ctx, channel.StateKey(h.cfg.RoomID), data); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.WithError(err).Warn("publish snapshot")
	}
}
