// internal/game/rules.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/gostop/internal/scoring"
)

// Rules holds the tunable constants of a round.
type Rules struct {
	GoStopThreshold int               `json:"goStopThreshold"` // minimum score that offers a go/stop decision
	TurnTimeoutSec  int               `json:"turnTimeoutSec"`  // seconds a human has to act before a forced skip; 0 disables
	Multipliers     scoring.Constants `json:"multipliers"`
}

// DefaultRules returns the canonical ruleset.
func DefaultRules() Rules {
	return Rules{
		GoStopThreshold: 7,
		TurnTimeoutSec:  30,
		Multipliers:     scoring.DefaultConstants(),
	}
}

// Update will update the rules with the new values provided.
// Keys that are absent or nil are ignored, and the old value persists.
// Either every key applies or, on error, none does.
func (rules *Rules) Update(newRules map[string]interface{}) error {
	assignInt := func(field *int, src map[string]interface{}, key string, minVal int) error {
		val, exists := src[key]
		if !exists || val == nil {
			return nil
		}
		var v int
		switch n := val.(type) {
		case float64: // JSON numbers decode as float64
			v = int(n)
		case int:
			v = n
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if v < minVal {
			return fmt.Errorf("%s must be at least %d", key, minVal)
		}
		*field = v
		return nil
	}

	next := *rules
	if err := assignInt(&next.GoStopThreshold, newRules, "goStopThreshold", 1); err != nil {
		return err
	}
	if err := assignInt(&next.TurnTimeoutSec, newRules, "turnTimeoutSec", 0); err != nil {
		return err
	}

	if raw, exists := newRules["multipliers"]; exists && raw != nil {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("invalid type for multipliers")
		}
		k := &next.Multipliers
		for _, f := range []struct {
			key   string
			field *int
		}{
			{"shake", &k.Shake},
			{"ppuk", &k.Ppuk},
			{"piBak", &k.PiBak},
			{"gwangBak", &k.GwangBak},
			{"mungDda", &k.MungDda},
			{"mungBak", &k.MungBak},
			{"goBak", &k.GoBak},
		} {
			if err := assignInt(f.field, m, f.key, 1); err != nil {
				return fmt.Errorf("multipliers: %w", err)
			}
		}
	}

	*rules = next
	return nil
}

// ParseRules applies a map of overrides to a copy of current.
func ParseRules(rules map[string]interface{}, current Rules) (Rules, error) {
	updated := current
	err := updated.Update(rules)
	return updated, err
}
