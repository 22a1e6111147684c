package netplay

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seats struct {
	room  uuid.UUID
	host  game.SeatInfo
	guest game.SeatInfo
}

func newSeats() seats {
	return seats{
		room:  uuid.New(),
		host:  game.SeatInfo{ID: uuid.New(), Name: "host"},
		guest: game.SeatInfo{ID: uuid.New(), Name: "guest"},
	}
}

func (s seats) hostConfig(seed int64) Config {
	return Config{
		RoomID:        s.room,
		Self:          s.host,
		Opponent:      s.guest,
		Heartbeat:     20 * time.Millisecond,
		EngineOptions: []game.Option{game.WithSeed(seed)},
	}
}

func (s seats) guestConfig() Config {
	return Config{RoomID: s.room, Self: s.guest, Opponent: s.host, Heartbeat: 20 * time.Millisecond}
}

// nextAction picks the first legal move for whoever owns the turn.
func nextAction(phase game.Phase, hand []models.Card, candidates []models.Card) models.GameAction {
	switch phase {
	case game.PhaseSelecting, game.PhaseDeckSelecting:
		return models.GameAction{Type: models.ActionSelectFieldCard, CardID: models.IntPtr(candidates[0].ID)}
	case game.PhaseGoStop:
		return models.GameAction{Type: models.ActionDeclareGo}
	}
	return models.GameAction{Type: models.ActionPlayCard, CardID: models.IntPtr(hand[0].ID)}
}

func remote(t *testing.T, s seats, a models.GameAction, ts int64) []byte {
	t.Helper()
	a.PlayerID = s.guest.ID
	a.Timestamp = ts
	data, err := json.Marshal(a)
	require.NoError(t, err)
	return data
}

func startedHost(t *testing.T, s seats, seed int64) (*Host, channel.Channel) {
	t.Helper()
	ch := channel.NewMemoryStore().Client()
	h := NewHost(ch, s.hostConfig(seed))
	require.NoError(t, h.start())
	require.Equal(t, game.PhaseOpponentTurn, h.engine.Phase(), "guest plays first")
	return h, ch
}

// advanceToHostTurn plays guest moves until the host owns the turn.
func advanceToHostTurn(t *testing.T, s seats, h *Host, ts *int64) {
	t.Helper()
	e := h.engine
	for i := 0; e.Turn() == game.SideOpponent && e.Phase() != game.PhaseGameOver; i++ {
		require.Less(t, i, 10)
		*ts++
		a := nextAction(e.Phase(), e.Hand(game.SideOpponent), e.Candidates())
		h.handleRemote(context.Background(), remote(t, s, a, *ts))
	}
}

func TestStartLatchDealsOnce(t *testing.T) {
	s := newSeats()
	h, _ := startedHost(t, s, 1)
	deck := h.engine.DeckLen()
	hand := h.engine.Hand(game.SideOpponent)

	require.NoError(t, h.start())
	require.NoError(t, h.start())
	assert.Equal(t, deck, h.engine.DeckLen())
	assert.Equal(t, hand, h.engine.Hand(game.SideOpponent))
	assert.Equal(t, 1, h.engine.TurnNumber())
}

func TestRemotePlayIsApplied(t *testing.T) {
	s := newSeats()
	h, _ := startedHost(t, s, 2)
	card := h.engine.Hand(game.SideOpponent)[0]

	a := models.GameAction{Type: models.ActionPlayCard, CardID: models.IntPtr(card.ID)}
	h.handleRemote(context.Background(), remote(t, s, a, 1))
	assert.NotContains(t, h.engine.Hand(game.SideOpponent), card)
}

func TestSelfEchoIgnored(t *testing.T) {
	s := newSeats()
	h, _ := startedHost(t, s, 3)
	card := h.engine.Hand(game.SideOpponent)[0]

	// an opponent card played under the host's own id must not move anything
	echo, err := json.Marshal(models.GameAction{
		Type: models.ActionPlayCard, PlayerID: s.host.ID, CardID: models.IntPtr(card.ID), Timestamp: 1,
	})
	require.NoError(t, err)
	h.handleRemote(context.Background(), echo)
	assert.Contains(t, h.engine.Hand(game.SideOpponent), card)
	assert.Equal(t, 1, h.engine.TurnNumber())
}

func TestUnseatedActorIgnored(t *testing.T) {
	s := newSeats()
	h, _ := startedHost(t, s, 3)
	card := h.engine.Hand(game.SideOpponent)[0]

	stranger, err := json.Marshal(models.GameAction{
		Type: models.ActionPlayCard, PlayerID: uuid.New(), CardID: models.IntPtr(card.ID), Timestamp: 1,
	})
	require.NoError(t, err)
	h.handleRemote(context.Background(), stranger)
	h.handleRemote(context.Background(), []byte("not json"))
	h.handleRemote(context.Background(), nil)
	assert.Contains(t, h.engine.Hand(game.SideOpponent), card)
}

func TestOutOfTurnStopDropped(t *testing.T) {
	s := newSeats()
	h, _ := startedHost(t, s, 4)
	var ts int64
	advanceToHostTurn(t, s, h, &ts)
	require.Equal(t, game.PhasePlayerTurn, h.engine.Phase())
	turn := h.engine.TurnNumber()

	ts++
	h.handleRemote(context.Background(), remote(t, s, models.GameAction{Type: models.ActionDeclareStop}, ts))
	assert.Equal(t, game.PhasePlayerTurn, h.engine.Phase())
	assert.Equal(t, turn, h.engine.TurnNumber())
	assert.Nil(t, h.engine.Result())
}

func TestHostLocalOutOfTurnIsIllegal(t *testing.T) {
	s := newSeats()
	h, _ := startedHost(t, s, 5)
	err := h.apply(context.Background(), game.SidePlayer, models.GameAction{Type: models.ActionDeclareStop})
	assert.ErrorIs(t, err, game.ErrIllegalIntent)

	err = h.apply(context.Background(), game.SidePlayer, models.GameAction{Type: models.ActionPlayCard})
	assert.ErrorIs(t, err, game.ErrIllegalIntent, "missing card id")
}

func TestStaleTimestampIgnored(t *testing.T) {
	s := newSeats()
	h, _ := startedHost(t, s, 6)
	var ts int64 = 100
	advanceToHostTurn(t, s, h, &ts)

	// host moves until the guest owns the turn again
	for i := 0; h.engine.Turn() == game.SidePlayer && h.engine.Phase() != game.PhaseGameOver; i++ {
		require.Less(t, i, 10)
		a := nextAction(h.engine.Phase(), h.engine.Hand(game.SidePlayer), h.engine.Candidates())
		require.NoError(t, h.apply(context.Background(), game.SidePlayer, a))
	}
	require.Equal(t, game.PhaseOpponentTurn, h.engine.Phase())
	card := h.engine.Hand(game.SideOpponent)[0]
	play := models.GameAction{Type: models.ActionPlayCard, CardID: models.IntPtr(card.ID)}

	h.handleRemote(context.Background(), remote(t, s, play, ts))
	assert.Contains(t, h.engine.Hand(game.SideOpponent), card, "replayed timestamp")

	h.handleRemote(context.Background(), remote(t, s, play, ts+1))
	assert.NotContains(t, h.engine.Hand(game.SideOpponent), card)
}

func TestActionBeforeDealDropped(t *testing.T) {
	s := newSeats()
	h := NewHost(channel.NewMemoryStore().Client(), s.hostConfig(1))
	h.handleRemote(context.Background(), remote(t, s, models.GameAction{Type: models.ActionDeclareGo}, 1))
	assert.Equal(t, game.PhaseWaiting, h.engine.Phase())
	assert.False(t, h.Started())
}

func TestFullRoundThroughDispatchWritesLog(t *testing.T) {
	s := newSeats()
	h, ch := startedHost(t, s, 7)
	ctx := context.Background()
	var ts int64
	for i := 0; h.engine.Phase() != game.PhaseGameOver; i++ {
		require.Less(t, i, 200)
		e := h.engine
		side := e.Turn()
		a := nextAction(e.Phase(), e.Hand(side), e.Candidates())
		if side == game.SideOpponent {
			ts++
			h.handleRemote(ctx, remote(t, s, a, ts))
		} else {
			require.NoError(t, h.apply(ctx, side, a))
		}
		require.Equal(t, models.DeckSize, e.CardCount())
	}
	h.appendResult(ctx)

	raw, err := ch.Get(ctx, channel.LogKey(s.room))
	require.NoError(t, err)
	var entry models.RoundLogEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, models.LogResult, entry.Kind)
	assert.Greater(t, entry.Index, 10)

	var res game.Result
	require.NoError(t, json.Unmarshal(entry.Result, &res))
	assert.Equal(t, game.ReasonNatural, res.Reason)
}

// waitState reads snapshots until cond holds.
func waitState(t *testing.T, states <-chan []byte, cond func(game.GameState) bool) game.GameState {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case v, ok := <-states:
			require.True(t, ok, "snapshot subscription closed")
			if v == nil {
				continue
			}
			var gs game.GameState
			require.NoError(t, json.Unmarshal(v, &gs))
			if cond(gs) {
				return gs
			}
		case <-deadline:
			t.Fatal("snapshot condition not reached")
		}
	}
}

func TestHostWaitsForGuestThenDeals(t *testing.T) {
	s := newSeats()
	store := channel.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := NewHost(store.Client(), s.hostConfig(8))
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	obs := store.Client()
	states, err := obs.Subscribe(ctx, channel.StateKey(s.room))
	require.NoError(t, err)
	waitState(t, states, func(gs game.GameState) bool { return gs.Phase == game.PhaseWaiting })

	guest := store.Client()
	presence := channel.PresenceKey(s.room, s.guest.ID)
	require.NoError(t, guest.SetEphemeral(ctx, presence, []byte("1")))
	dealt := waitState(t, states, func(gs game.GameState) bool { return gs.Phase == game.PhaseOpponentTurn })

	// duplicate readiness signals
	require.NoError(t, guest.SetEphemeral(ctx, presence, []byte("1")))
	require.NoError(t, guest.SetEphemeral(ctx, presence, []byte("1")))
	time.Sleep(60 * time.Millisecond)
	later := waitState(t, states, func(game.GameState) bool { return true })
	assert.Equal(t, dealt.Deck, later.Deck)
	assert.Equal(t, dealt.Opponent.Hand, later.Opponent.Hand)
	assert.Equal(t, 1, later.TurnNumber)

	// guest vanishes
	require.NoError(t, guest.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrOpponentLeft)
	case <-time.After(3 * time.Second):
		t.Fatal("host did not notice the guest leaving")
	}
	raw, err := obs.Get(ctx, channel.StateKey(s.room))
	require.NoError(t, err)
	var final game.GameState
	require.NoError(t, json.Unmarshal(raw, &final))
	require.NotNil(t, final.Result)
	assert.True(t, final.Result.Aborted)
	assert.Equal(t, game.PhaseGameOver, final.Phase)
}

func TestTurnTimeoutSkips(t *testing.T) {
	s := newSeats()
	store := channel.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := s.hostConfig(9)
	cfg.TurnTimeout = 50 * time.Millisecond
	h := NewHost(store.Client(), cfg)
	go h.Run(ctx)

	obs := store.Client()
	states, err := obs.Subscribe(ctx, channel.StateKey(s.room))
	require.NoError(t, err)
	require.NoError(t, store.Client().SetEphemeral(ctx, channel.PresenceKey(s.room, s.guest.ID), []byte("1")))

	first := waitState(t, states, func(gs game.GameState) bool { return gs.Phase == game.PhaseOpponentTurn })
	skipped := waitState(t, states, func(gs game.GameState) bool { return gs.TurnNumber > first.TurnNumber })
	// nobody played: the guest kept all ten cards
	assert.Len(t, skipped.Opponent.Hand, len(first.Opponent.Hand))
	assert.Less(t, len(skipped.Deck), len(first.Deck))
}

func TestTurnTimeoutFromRules(t *testing.T) {
	s := newSeats()
	rules := game.DefaultRules()
	rules.TurnTimeoutSec = 7

	cfg := s.hostConfig(9)
	cfg.EngineOptions = append(cfg.EngineOptions, game.WithRules(rules))
	assert.Equal(t, 7*time.Second, NewHost(channel.NewMemoryStore().Client(), cfg).cfg.TurnTimeout)

	cfg.TurnTimeout = 50 * time.Millisecond
	assert.Equal(t, 50*time.Millisecond, NewHost(channel.NewMemoryStore().Client(), cfg).cfg.TurnTimeout, "explicit timeout wins")

	cfg.TurnTimeout = 0
	rules.TurnTimeoutSec = 0
	cfg.EngineOptions = append(cfg.EngineOptions, game.WithRules(rules))
	assert.Zero(t, NewHost(channel.NewMemoryStore().Client(), cfg).cfg.TurnTimeout)
}

func TestGuestGivesUpWithoutHostPresence(t *testing.T) {
	s := newSeats()
	store := channel.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// the host left after the room filled; only its last snapshot remains
	waiting, err := json.Marshal(game.GameState{Phase: game.PhaseWaiting})
	require.NoError(t, err)
	require.NoError(t, store.Client().Set(ctx, channel.StateKey(s.room), waiting))

	g := NewGuest(store.Client(), s.guestConfig())
	start := time.Now()
	err = g.Run(ctx, nil)
	assert.ErrorIs(t, err, ErrOpponentLeft)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotNil(t, g.State())
	assert.Equal(t, game.PhaseWaiting, g.State().Phase)
}

// driver answers snapshots for one seat, once per distinct decision point.
func driver(side game.Side, send func(models.GameAction) error) func(game.GameState) {
	lastKey := ""
	return func(gs game.GameState) {
		if gs.Result != nil || gs.CurrentTurn != side || !gs.Phase.Blocked() {
			return
		}
		ps := gs.Player
		if side == game.SideOpponent {
			ps = gs.Opponent
		}
		key := fmt.Sprintf("%d/%s/%d", gs.TurnNumber, gs.Phase, len(ps.Hand))
		if key == lastKey {
			return
		}
		lastKey = key
		var candidates []models.Card
		if gs.Pending != nil {
			candidates = gs.Pending.Candidates
		}
		// a rejected move shows up as an unchanged snapshot
		_ = send(nextAction(gs.Phase, ps.Hand, candidates))
	}
}

func TestHostGuestPlayFullRound(t *testing.T) {
	s := newSeats()
	store := channel.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := NewHost(store.Client(), s.hostConfig(10))
	g := NewGuest(store.Client(), s.guestConfig())

	hostDone := make(chan error, 1)
	go func() { hostDone <- h.Run(ctx) }()

	// the host's UI reads the same snapshots the guest does
	obs := store.Client()
	hostStates, err := obs.Subscribe(ctx, channel.StateKey(s.room))
	require.NoError(t, err)
	// the host announces itself before publishing the waiting snapshot
	waitState(t, hostStates, func(gs game.GameState) bool { return gs.Phase == game.PhaseWaiting })
	go func() {
		drive := driver(game.SidePlayer, func(a models.GameAction) error { return h.Submit(ctx, a) })
		for v := range hostStates {
			var gs game.GameState
			if v != nil && json.Unmarshal(v, &gs) == nil {
				drive(gs)
			}
		}
	}()

	guestDrive := driver(game.SideOpponent, func(a models.GameAction) error { return g.Send(ctx, a) })
	require.NoError(t, g.Run(ctx, guestDrive))

	final := g.State()
	require.NotNil(t, final)
	require.NotNil(t, final.Result)
	assert.False(t, final.Result.Aborted)
	assert.Equal(t, game.PhaseGameOver, final.Phase)

	select {
	case err := <-hostDone:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("host did not finish")
	}
	view, err := final.Restore()
	require.NoError(t, err)
	assert.Equal(t, game.PhaseGameOver, view.Phase)
}
