package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeckComposition(t *testing.T) {
	cards := AllCards()
	require.Len(t, cards, DeckSize)

	counts := make(map[CardType]int)
	piPoints := 0
	perMonth := make(map[int]int)
	for i, c := range cards {
		assert.Equal(t, i, c.ID)
		assert.True(t, c.Valid())
		counts[c.Type]++
		piPoints += c.PiValue()
		perMonth[c.Month]++
	}
	assert.Equal(t, 5, counts[Kwang])
	assert.Equal(t, 9, counts[Animal])
	assert.Equal(t, 10, counts[Ribbon])
	assert.Equal(t, 24, counts[Pi])
	assert.Equal(t, 27, piPoints)
	for m := 1; m <= 12; m++ {
		assert.Equal(t, 4, perMonth[m], "month %d", m)
	}
}

func TestDoublePiTable(t *testing.T) {
	for _, c := range AllCards() {
		want := (c.Month == 9 || c.Month == 11 || c.Month == 12) && c.Variant == 4
		assert.Equal(t, want, c.IsDoublePi(), "card %s", c)
	}
	assert.Equal(t, 0, CardAt(1, 1).PiValue())
	assert.Equal(t, 1, CardAt(1, 3).PiValue())
}

func TestCardLookup(t *testing.T) {
	c, ok := CardByID(44)
	require.True(t, ok)
	assert.Equal(t, RainMonth, c.Month)
	assert.Equal(t, Kwang, c.Type)
	assert.Equal(t, c, CardAt(12, 1))

	_, ok = CardByID(48)
	assert.False(t, ok)
	_, ok = CardByID(-1)
	assert.False(t, ok)
	assert.Panics(t, func() { CardAt(13, 1) })
	assert.False(t, Card{ID: 0, Month: 2}.Valid())
	assert.Equal(t, "12-1(kwang)", c.String())
}

func TestActionValid(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		action GameAction
		want   bool
	}{
		{"play with card", GameAction{Type: ActionPlayCard, PlayerID: id, CardID: IntPtr(3)}, true},
		{"play without card", GameAction{Type: ActionPlayCard, PlayerID: id}, false},
		{"select without card", GameAction{Type: ActionSelectFieldCard, PlayerID: id}, false},
		{"go", GameAction{Type: ActionDeclareGo, PlayerID: id}, true},
		{"stop", GameAction{Type: ActionDeclareStop, PlayerID: id}, true},
		{"unknown", GameAction{Type: "DANCE", PlayerID: id}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.action.Valid())
		})
	}
}

func TestActionWireShape(t *testing.T) {
	a := GameAction{Type: ActionDeclareGo, PlayerID: uuid.Nil, Timestamp: 5}
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"DECLARE_GO","playerId":"00000000-0000-0000-0000-000000000000","timestamp":5}`, string(data))
}

func TestRoomOpponent(t *testing.T) {
	host, guest := uuid.New(), uuid.New()
	r := Room{ID: uuid.New(), HostID: host}
	assert.False(t, r.Full())
	r.GuestID = guest
	assert.True(t, r.Full())
	assert.Equal(t, guest, r.Opponent(host))
	assert.Equal(t, host, r.Opponent(guest))
	assert.Equal(t, uuid.Nil, r.Opponent(uuid.New()))
}
