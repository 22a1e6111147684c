package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
)

var (
	errNotYourTurn = errors.New("not your turn")
	errQuit        = errors.New("quit")
)

// seatState returns the snapshot half that belongs to side.
func seatState(gs game.GameState, side game.Side) models.PlayerState {
	if side == game.SideOpponent {
		return gs.Opponent
	}
	return gs.Player
}

// owns reports whether side is expected to answer the snapshot's phase.
func owns(gs game.GameState, side game.Side) bool {
	switch gs.Phase {
	case game.PhasePlayerTurn, game.PhaseOpponentTurn, game.PhaseSelecting,
		game.PhaseDeckSelecting, game.PhaseGoStop:
		return gs.CurrentTurn == side
	}
	return false
}

func cardList(cards []models.Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, c)
	}
	return strings.Join(parts, "  ")
}

func collectedLine(g models.CollectedGroups) string {
	counts := g.Counts()
	return fmt.Sprintf("kwang %d  animal %d  ribbon %d  pi %d",
		counts[models.Kwang], counts[models.Animal], counts[models.Ribbon], counts[models.Pi])
}

// render prints the snapshot from side's seat. The other hand is shown only as a count.
func render(w io.Writer, gs game.GameState, side game.Side) {
	me, them := seatState(gs, side), seatState(gs, side.Other())
	fmt.Fprintf(w, "\n--- turn %d, %s (%s to act) ---\n", gs.TurnNumber, gs.Phase, gs.CurrentTurn)
	fmt.Fprintf(w, "%s: %d cards in hand, score %d, go %d | %s\n",
		them.Name, len(them.Hand), them.Score, them.GoCount, collectedLine(them.Collected))
	fmt.Fprintf(w, "field: %s\n", strings.Join(cardStrings(gs.Field), " "))
	fmt.Fprintf(w, "deck: %d\n", len(gs.Deck))
	fmt.Fprintf(w, "you (%s): score %d, go %d | %s\n", me.Name, me.Score, me.GoCount, collectedLine(me.Collected))
	fmt.Fprintf(w, "hand: %s\n", cardList(me.Hand))

	if gs.Result != nil {
		renderResult(w, *gs.Result, side)
		return
	}
	if !owns(gs, side) {
		fmt.Fprintln(w, "waiting for opponent...")
		return
	}
	switch gs.Phase {
	case game.PhaseSelecting, game.PhaseDeckSelecting:
		fmt.Fprintf(w, "%s matches two field cards, pick one: %s\n", gs.Pending.Card, cardList(gs.Pending.Candidates))
	case game.PhaseGoStop:
		fmt.Fprintf(w, "score %d: go or stop?\n", gs.Pending.Score)
	default:
		fmt.Fprintln(w, "play a card by number (q quits)")
	}
}

func cardStrings(cards []models.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

func renderResult(w io.Writer, res game.Result, side game.Side) {
	mine, theirs := res.Player, res.Opponent
	if side == game.SideOpponent {
		mine, theirs = theirs, mine
	}
	switch {
	case res.Aborted:
		fmt.Fprintf(w, "round aborted: %s\n", res.Reason)
	case res.Draw:
		fmt.Fprintln(w, "round drawn")
	case res.Winner != nil && *res.Winner == side:
		fmt.Fprintf(w, "you win with %d (%s)\n", mine.Total, res.Reason)
	default:
		fmt.Fprintf(w, "you lose, opponent scored %d (%s)\n", theirs.Total, res.Reason)
	}
}

// parseInput turns one line typed at the prompt into an intent for side.
// Numbers are 1-based positions in the hand or the candidate list.
func parseInput(gs game.GameState, side game.Side, line string) (models.GameAction, error) {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "q" || line == "quit" {
		return models.GameAction{}, errQuit
	}
	if !owns(gs, side) {
		return models.GameAction{}, errNotYourTurn
	}

	switch gs.Phase {
	case game.PhaseGoStop:
		switch line {
		case "go", "g":
			return models.GameAction{Type: models.ActionDeclareGo}, nil
		case "stop", "s":
			return models.GameAction{Type: models.ActionDeclareStop}, nil
		}
		return models.GameAction{}, fmt.Errorf("answer go or stop")

	case game.PhaseSelecting, game.PhaseDeckSelecting:
		c, err := pick(gs.Pending.Candidates, line)
		if err != nil {
			return models.GameAction{}, err
		}
		return models.GameAction{Type: models.ActionSelectFieldCard, CardID: models.IntPtr(c.ID)}, nil
	}

	c, err := pick(seatState(gs, side).Hand, line)
	if err != nil {
		return models.GameAction{}, err
	}
	return models.GameAction{Type: models.ActionPlayCard, CardID: models.IntPtr(c.ID)}, nil
}

func pick(cards []models.Card, line string) (models.Card, error) {
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(cards) {
		return models.Card{}, fmt.Errorf("enter a number from 1 to %d", len(cards))
	}
	return cards[n-1], nil
}
