package game

import (
	"encoding/json"
	"testing"

	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	l := layout{first: []int{10}, field: []int{8, 9}, deck: []int{20}}
	e, _ := setupEngine(t, l)
	require.NoError(t, e.Skip())
	require.NoError(t, e.OpponentPlayCard(e.Hand(SideOpponent)[0].ID, PlayOptions{}))

	data := StateToBytes(e.Snapshot())
	var gs GameState
	require.NoError(t, json.Unmarshal(data, &gs))

	view, err := gs.Restore()
	require.NoError(t, err)
	assert.Equal(t, e.Phase(), view.Phase)
	assert.Equal(t, e.Turn(), view.Turn)
	assert.Equal(t, e.TurnNumber(), view.TurnNumber)
	assert.ElementsMatch(t, ids(e.Field()), ids(view.Field.Cards()))
	assert.Equal(t, ids(e.deck.Cards()), ids(view.Deck.Cards()))
	assert.ElementsMatch(t, ids(e.Hand(SidePlayer)), ids(view.Hands[SidePlayer].Cards()))
	assert.ElementsMatch(t, ids(e.Hand(SideOpponent)), ids(view.Hands[SideOpponent].Cards()))
	assert.ElementsMatch(t, ids(e.Collected(SidePlayer)), ids(view.Collected[SidePlayer].Cards()))
	assert.ElementsMatch(t, ids(e.Collected(SideOpponent)), ids(view.Collected[SideOpponent].Cards()))
}

func TestSnapshotCarriesPendingSelection(t *testing.T) {
	l := layout{first: []int{10}, field: []int{8, 9}}
	e, _ := setupEngine(t, l)
	require.NoError(t, e.PlayCard(10, PlayOptions{}))

	var gs GameState
	require.NoError(t, json.Unmarshal(StateToBytes(e.Snapshot()), &gs))
	assert.Equal(t, PhaseSelecting, gs.Phase)
	require.NotNil(t, gs.Pending)
	require.NotNil(t, gs.Pending.Card)
	assert.Equal(t, 10, gs.Pending.Card.ID)
	assert.ElementsMatch(t, []int{8, 9}, ids(gs.Pending.Candidates))

	_, err := gs.Restore()
	require.NoError(t, err)
}

func TestSnapshotWireNames(t *testing.T) {
	e, _ := setupEngine(t, layout{})
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(StateToBytes(e.Snapshot()), &raw))

	for _, key := range []string{"phase", "currentTurn", "turnNumber", "field", "deck", "player", "opponent"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "playerTurn", raw["phase"])
	assert.Equal(t, "player", raw["currentTurn"])
	player := raw["player"].(map[string]interface{})
	for _, key := range []string{"id", "name", "hand", "collected", "score", "goCount"} {
		assert.Contains(t, player, key)
	}
}

func TestRestoreRejectsBrokenSnapshot(t *testing.T) {
	e, _ := setupEngine(t, layout{})
	gs := e.Snapshot()

	dup := gs
	dup.Field = append(append([]models.Card{}, gs.Field...), gs.Deck[0])
	_, err := dup.Restore()
	assert.Error(t, err)

	short := gs
	short.Deck = gs.Deck[1:]
	_, err = short.Restore()
	assert.Error(t, err)

	bad := gs
	bad.Deck = append([]models.Card{{ID: 3, Month: 7}}, gs.Deck[1:]...)
	_, err = bad.Restore()
	assert.Error(t, err)
}

func TestEventToBytes(t *testing.T) {
	s := SideOpponent
	data := EventToBytes(Event{Type: EventBomb, Side: &s, Month: 4})
	assert.JSONEq(t, `{"type":"bomb","side":"opponent","month":4}`, string(data))
}
