package models

import "github.com/google/uuid"

// PlayerState is one side of a replicated snapshot.
type PlayerState struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Hand      []Card          `json:"hand"`
	Collected CollectedGroups `json:"collected"`
	Score     int             `json:"score"`
	GoCount   int             `json:"goCount"`
}
