package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/jason-s-yu/gostop/internal/netplay"
	"github.com/sirupsen/logrus"
)

// readLines feeds stdin lines to the returned channel until EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// latest keeps only the newest snapshot, matching the channel's own buffering.
func latest(ch chan game.GameState, gs game.GameState) {
	select {
	case ch <- gs:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- gs:
	default:
	}
}

func stateKey(gs game.GameState) string {
	return fmt.Sprintf("%d/%s/%s/%d/%d/%t", gs.TurnNumber, gs.Phase, gs.CurrentTurn, len(gs.Field), len(gs.Deck), gs.Result != nil)
}

// interact renders snapshots for side and submits what the user types, until
// done reports the end of the round.
func interact(ctx context.Context, side game.Side, states <-chan game.GameState, lines <-chan string,
	out io.Writer, submit func(models.GameAction) error, done <-chan error) error {
	var (
		last   *game.GameState
		shown  string
		redraw = func(gs game.GameState) {
			last = &gs
			if k := stateKey(gs); k != shown {
				shown = k
				render(out, gs, side)
			}
		}
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-done:
			select {
			case gs := <-states:
				redraw(gs)
			default:
			}
			return err

		case gs := <-states:
			redraw(gs)

		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if last == nil {
				fmt.Fprintln(out, "waiting for the deal...")
				continue
			}
			a, err := parseInput(*last, side, line)
			if errors.Is(err, errQuit) {
				return err
			}
			if err == nil {
				err = submit(a)
			}
			if err != nil {
				fmt.Fprintln(out, err)
			}
		}
	}
}

// playHost runs the authoritative engine and lets the user play the host seat.
func playHost(ctx context.Context, ch channel.Channel, cfg netplay.Config, lines <-chan string, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	raw, err := ch.Subscribe(ctx, channel.StateKey(cfg.RoomID))
	if err != nil {
		return err
	}
	states := make(chan game.GameState, 1)
	go func() {
		for v := range raw {
			var gs game.GameState
			if v != nil && json.Unmarshal(v, &gs) == nil {
				latest(states, gs)
			}
		}
	}()

	h := netplay.NewHost(ch, cfg)
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	return interact(ctx, game.SidePlayer, states, lines, out, func(a models.GameAction) error {
		return h.Submit(ctx, a)
	}, done)
}

// playGuest renders the host's snapshots and sends the user's intents.
func playGuest(ctx context.Context, ch channel.Channel, cfg netplay.Config, lines <-chan string, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := netplay.NewGuest(ch, cfg)
	states := make(chan game.GameState, 1)
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx, func(gs game.GameState) { latest(states, gs) })
	}()
	return interact(ctx, game.SideOpponent, states, lines, out, func(a models.GameAction) error {
		return g.Send(ctx, a)
	}, done)
}

// practice plays a local round against the scripted opponent.
func practice(name string, opts []game.Option, lines <-chan string, out io.Writer, logger logrus.FieldLogger) error {
	rules := game.DefaultRules()
	base := []game.Option{
		game.WithRules(rules),
		game.WithSeats(game.SeatInfo{ID: uuid.New(), Name: name}, game.SeatInfo{ID: uuid.New(), Name: "AI"}),
		game.WithStrategy(game.SideOpponent, game.ScriptedOpponent(rules)),
		game.WithLogger(logger),
	}
	e := game.NewEngine(append(base, opts...)...)
	if err := e.Start(); err != nil {
		return err
	}
	for e.Phase() != game.PhaseGameOver {
		gs := e.Snapshot()
		render(out, gs, game.SidePlayer)
		line, ok := <-lines
		if !ok {
			e.Abort("player left")
			return errQuit
		}
		a, err := parseInput(gs, game.SidePlayer, line)
		if errors.Is(err, errQuit) {
			e.Abort("player left")
			return err
		}
		if err == nil {
			a.PlayerID = e.Seat(game.SidePlayer).ID
			err = netplay.Dispatch(e, game.SidePlayer, a)
		}
		if err != nil {
			fmt.Fprintln(out, err)
		}
	}
	render(out, e.Snapshot(), game.SidePlayer)
	return nil
}
