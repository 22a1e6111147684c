package scoring

// Constants are the fixed factors of the multiplier family.
type Constants struct {
	Shake    int `json:"shake"`
	Ppuk     int `json:"ppuk"`
	PiBak    int `json:"piBak"`
	GwangBak int `json:"gwangBak"`
	MungDda  int `json:"mungDda"`
	MungBak  int `json:"mungBak"`
	GoBak    int `json:"goBak"`
}

// DefaultConstants doubles the score for each triggered condition.
func DefaultConstants() Constants {
	return Constants{Shake: 2, Ppuk: 2, PiBak: 2, GwangBak: 2, MungDda: 2, MungBak: 2, GoBak: 2}
}

// Context is what a side brings to a scoring checkpoint besides its cards.
type Context struct {
	GoCount         int
	Shaken          bool
	Ppuk            bool
	OpponentGoCount int
}

// GoMultiplier maps a go count to its factor: 1, 2, 3, then doubling.
func GoMultiplier(goCount int) int {
	switch {
	case goCount <= 0:
		return 1
	case goCount == 1:
		return 2
	case goCount == 2:
		return 3
	}
	return 1 << (goCount - 1)
}

// ApplyMultipliers returns own with its multipliers filled in and Total set to
// BaseTotal times their product. The bak factors read the opponent's counters,
// mung-dda reads the side's own animal count.
func ApplyMultipliers(own, opponent Breakdown, ctx Context, k Constants) Breakdown {
	pick := func(cond bool, factor int) int {
		if cond {
			return factor
		}
		return 1
	}
	m := Multipliers{
		Go:       GoMultiplier(ctx.GoCount),
		Shake:    pick(ctx.Shaken, k.Shake),
		Ppuk:     pick(ctx.Ppuk, k.Ppuk),
		PiBak:    pick(opponent.PiCount < PiThreshold, k.PiBak),
		GwangBak: pick(opponent.KwangCount == 0, k.GwangBak),
		MungDda:  pick(own.AnimalCount >= MungDdaThreshold, k.MungDda),
		MungBak:  pick(opponent.AnimalCount == 0, k.MungBak),
		GoBak:    pick(ctx.OpponentGoCount > 0, k.GoBak),
	}
	own.Multipliers = &m
	own.Total = own.BaseTotal * m.Product()
	return own
}
