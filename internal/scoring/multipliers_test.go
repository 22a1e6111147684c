package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoMultiplier(t *testing.T) {
	for goCount, want := range map[int]int{0: 1, 1: 2, 2: 3, 3: 4, 4: 8, 5: 16} {
		assert.Equal(t, want, GoMultiplier(goCount), "goCount %d", goCount)
	}
}

func TestApplyMultipliersNeutral(t *testing.T) {
	own := Breakdown{BaseTotal: 7, Total: 7, AnimalCount: 2}
	opp := Breakdown{PiCount: 12, KwangCount: 1, AnimalCount: 3}

	got := ApplyMultipliers(own, opp, Context{}, DefaultConstants())
	if assert.NotNil(t, got.Multipliers) {
		assert.Equal(t, 1, got.Multipliers.Product())
	}
	assert.Equal(t, 7, got.Total)
}

func TestApplyMultipliersEachFactor(t *testing.T) {
	k := DefaultConstants()
	neutralOpp := Breakdown{PiCount: 12, KwangCount: 1, AnimalCount: 3}
	own := Breakdown{BaseTotal: 7}

	tests := []struct {
		name  string
		own   Breakdown
		opp   Breakdown
		ctx   Context
		check func(m Multipliers) int
	}{
		{"go", own, neutralOpp, Context{GoCount: 2}, func(m Multipliers) int { return m.Go }},
		{"shake", own, neutralOpp, Context{Shaken: true}, func(m Multipliers) int { return m.Shake }},
		{"ppuk", own, neutralOpp, Context{Ppuk: true}, func(m Multipliers) int { return m.Ppuk }},
		{"pi bak", own, Breakdown{PiCount: 9, KwangCount: 1, AnimalCount: 3}, Context{}, func(m Multipliers) int { return m.PiBak }},
		{"gwang bak", own, Breakdown{PiCount: 12, AnimalCount: 3}, Context{}, func(m Multipliers) int { return m.GwangBak }},
		{"mung bak", own, Breakdown{PiCount: 12, KwangCount: 1}, Context{}, func(m Multipliers) int { return m.MungBak }},
		{"mung dda", Breakdown{BaseTotal: 7, AnimalCount: 7}, neutralOpp, Context{}, func(m Multipliers) int { return m.MungDda }},
		{"go bak", own, neutralOpp, Context{OpponentGoCount: 1}, func(m Multipliers) int { return m.GoBak }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyMultipliers(tt.own, tt.opp, tt.ctx, k)
			want := 2
			if tt.name == "go" {
				want = 3
			}
			assert.Equal(t, want, tt.check(*got.Multipliers))
			assert.Equal(t, want, got.Multipliers.Product())
			assert.Equal(t, tt.own.BaseTotal*want, got.Total)
		})
	}
}

func TestApplyMultipliersCompose(t *testing.T) {
	own := Breakdown{BaseTotal: 8, AnimalCount: 7}
	opp := Breakdown{PiCount: 3}
	got := ApplyMultipliers(own, opp, Context{GoCount: 1, Shaken: true, OpponentGoCount: 1}, DefaultConstants())
	// go 2, shake 2, pi bak 2, gwang bak 2, mung dda 2, mung bak 2, go bak 2
	assert.Equal(t, 128, got.Multipliers.Product())
	assert.Equal(t, 8*128, got.Total)
}
