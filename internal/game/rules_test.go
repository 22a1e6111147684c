package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesUpdate(t *testing.T) {
	r := DefaultRules()
	err := r.Update(map[string]interface{}{
		"goStopThreshold": float64(3),
		"turnTimeoutSec":  0,
		"multipliers":     map[string]interface{}{"piBak": float64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, r.GoStopThreshold)
	assert.Equal(t, 0, r.TurnTimeoutSec)
	assert.Equal(t, 3, r.Multipliers.PiBak)
	assert.Equal(t, 2, r.Multipliers.GwangBak)
}

func TestRulesUpdateRejects(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]interface{}
	}{
		{"string threshold", map[string]interface{}{"goStopThreshold": "7"}},
		{"zero threshold", map[string]interface{}{"goStopThreshold": 0}},
		{"negative timeout", map[string]interface{}{"turnTimeoutSec": -1}},
		{"multipliers not a map", map[string]interface{}{"multipliers": 2}},
		{"zero factor", map[string]interface{}{"multipliers": map[string]interface{}{"shake": 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules(tt.in, DefaultRules())
			assert.Error(t, err)
		})
	}
}

func TestRulesUpdateIsAllOrNothing(t *testing.T) {
	r := DefaultRules()
	for i := 0; i < 20; i++ {
		err := r.Update(map[string]interface{}{
			"goStopThreshold": float64(3),
			"multipliers": map[string]interface{}{
				"shake": float64(4),
				"piBak": float64(5),
				"goBak": float64(0),
			},
		})
		require.Error(t, err)
		assert.Equal(t, DefaultRules(), r, "a rejected key leaves every field unchanged")
	}
}

func TestParseRulesKeepsCurrent(t *testing.T) {
	cur := DefaultRules()
	got, err := ParseRules(map[string]interface{}{"goStopThreshold": nil}, cur)
	require.NoError(t, err)
	assert.Equal(t, cur, got)
}

func TestThresholdFromRulesGatesGoStop(t *testing.T) {
	rules := DefaultRules()
	rules.GoStopThreshold = 6
	e, _ := setupEngine(t, goStopLayout, WithRules(rules))
	moveToCollected(t, e, SidePlayer, 0, 8, 28, 1, 5, 9)
	require.NoError(t, e.PlayCard(12, PlayOptions{}))
	assert.Equal(t, PhaseGoStop, e.Phase())
}

func TestPhaseTransitions(t *testing.T) {
	assert.True(t, canTransition(PhaseWaiting, PhaseDealing))
	assert.False(t, canTransition(PhaseWaiting, PhasePlayerTurn))
	assert.True(t, canTransition(PhaseSelecting, PhaseGameOver))
	assert.False(t, canTransition(PhaseGameOver, PhaseGameOver))
	assert.False(t, canTransition(PhaseGoStop, PhaseSelecting))

	for _, p := range []Phase{PhaseWaiting, PhaseGoStop, PhaseDeckSelecting, PhaseGameOver} {
		got, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePhase("nope")
	assert.Error(t, err)
}
