// internal/game/utils.go
package game

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// EventToBytes marshals an Event into JSON bytes.
// Logs a warning and returns empty JSON "{}" on marshalling error.
func EventToBytes(ev Event) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).WithField("type", ev.Type).Warn("failed to marshal event")
		return []byte("{}")
	}
	return data
}

// StateToBytes marshals a snapshot, with the same fallback as EventToBytes.
func StateToBytes(gs GameState) []byte {
	data, err := json.Marshal(gs)
	if err != nil {
		log.WithError(err).Warn("failed to marshal game state")
		return []byte("{}")
	}
	return data
}
