package historian

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/cache"
	"github.com/jason-s-yu/gostop/internal/database"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/jason-s-yu/gostop/internal/scoring"
)

// ActionRoundEnd is the action type of result records.
const ActionRoundEnd = "ROUND_END"

// Payload keys of result records.
const (
	payloadResult   = "result"
	payloadPlayer   = "playerId"
	payloadOpponent = "opponentId"
)

// RecordFromLog turns one entry of a room's log key into a queue record. The
// room supplies the seat ids a bare result does not carry.
func RecordFromLog(room models.Room, entry models.RoundLogEntry, now time.Time) (cache.RoundActionRecord, error) {
	rec := cache.RoundActionRecord{
		Kind:        entry.Kind,
		RoomID:      room.ID,
		ActionIndex: entry.Index,
	}
	switch entry.Kind {
	case models.LogAction:
		if entry.Action == nil {
			return rec, fmt.Errorf("log entry %d has no action", entry.Index)
		}
		payload, err := toMap(entry.Action)
		if err != nil {
			return rec, err
		}
		rec.ActorUserID = entry.Action.PlayerID
		rec.ActionType = string(entry.Action.Type)
		rec.ActionPayload = payload
		rec.Timestamp = entry.Action.Timestamp
	case models.LogResult:
		var result map[string]interface{}
		if err := json.Unmarshal(entry.Result, &result); err != nil {
			return rec, fmt.Errorf("decode result of log entry %d: %w", entry.Index, err)
		}
		rec.ActorUserID = room.HostID
		rec.ActionType = ActionRoundEnd
		rec.ActionPayload = map[string]interface{}{
			payloadResult:   result,
			payloadPlayer:   room.HostID.String(),
			payloadOpponent: room.GuestID.String(),
		}
		rec.Timestamp = now.UnixMilli()
	default:
		return rec, fmt.Errorf("unknown log entry kind %q", entry.Kind)
	}
	return rec, nil
}

func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// toActionRow maps a queue record onto its round_actions row.
func toActionRow(rec cache.RoundActionRecord) (database.ActionRow, error) {
	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return database.ActionRow{}, fmt.Errorf("encode payload: %w", err)
	}
	return database.ActionRow{
		RoomID:  rec.RoomID,
		Index:   rec.ActionIndex,
		ActorID: rec.ActorUserID,
		Type:    rec.ActionType,
		Payload: payload,
		At:      time.UnixMilli(rec.Timestamp),
	}, nil
}

// toResultRow decodes the round result carried by a result record.
func toResultRow(rec cache.RoundActionRecord) (database.ResultRow, error) {
	raw, err := json.Marshal(rec.ActionPayload[payloadResult])
	if err != nil {
		return database.ResultRow{}, err
	}
	var res game.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return database.ResultRow{}, fmt.Errorf("decode round result: %w", err)
	}
	ids := [2]uuid.UUID{}
	for side, key := range map[game.Side]string{game.SidePlayer: payloadPlayer, game.SideOpponent: payloadOpponent} {
		s, _ := rec.ActionPayload[key].(string)
		id, err := uuid.Parse(s)
		if err != nil {
			return database.ResultRow{}, fmt.Errorf("result record %s: bad %s: %w", rec.RoomID, key, err)
		}
		ids[side] = id
	}

	row := database.ResultRow{RoomID: rec.RoomID, Status: database.StatusCompleted, Reason: res.Reason}
	if res.Aborted {
		row.Status = database.StatusAborted
		return row, nil
	}
	if res.Winner != nil {
		w := ids[*res.Winner]
		row.WinnerID = &w
	}
	for side, b := range [2]scoring.Breakdown{res.Player, res.Opponent} {
		data, err := json.Marshal(b)
		if err != nil {
			return database.ResultRow{}, err
		}
		row.Seats = append(row.Seats, database.SeatResult{
			PlayerID:  ids[side],
			Score:     b.Total,
			Won:       res.Winner != nil && int(*res.Winner) == side,
			Breakdown: data,
		})
	}
	return row, nil
}
