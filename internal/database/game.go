// internal/database/game.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Round statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusAborted    = "aborted"
	StatusAbandoned  = "abandoned"
)

// ActionRow is one applied intent of a round.
type ActionRow struct {
	RoomID  uuid.UUID
	Index   int
	ActorID uuid.UUID
	Type    string
	Payload []byte // JSON
	At      time.Time
}

// SeatResult is one seat's final score.
type SeatResult struct {
	PlayerID  uuid.UUID
	Score     int
	Won       bool
	Breakdown []byte // JSON scoring.Breakdown
}

// ResultRow is the outcome of a round.
type ResultRow struct {
	RoomID   uuid.UUID
	Status   string // StatusCompleted or StatusAborted
	Reason   string
	WinnerID *uuid.UUID
	Seats    []SeatResult
}

// InsertActionTx records one action, creating the round row on first sight.
// Re-delivered actions are ignored.
func InsertActionTx(ctx context.Context, tx pgx.Tx, row ActionRow) error {
	upsertRound := `
		INSERT INTO rounds (room_id, status, start_time)
		VALUES ($1, 'in_progress', $2)
		ON CONFLICT (room_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertRound, row.RoomID, row.At); err != nil {
		return fmt.Errorf("upsert round %s: %w", row.RoomID, err)
	}

	payload := row.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	insertAction := `
		INSERT INTO round_actions (
			room_id, action_index, actor_user_id, action_type, action_payload, acted_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, action_index) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertAction,
		row.RoomID, row.Index, row.ActorID, row.Type, payload, row.At,
	); err != nil {
		return fmt.Errorf("insert action %d of %s: %w", row.Index, row.RoomID, err)
	}
	return nil
}

// FinishRoundTx closes the round row and stores the per-seat results.
func FinishRoundTx(ctx context.Context, tx pgx.Tx, row ResultRow) error {
	finalize := `
		INSERT INTO rounds (room_id, status, end_time, end_reason, winner_id)
		VALUES ($1, $2, NOW(), $3, $4)
		ON CONFLICT (room_id)
		DO UPDATE SET status = $2, end_time = NOW(), end_reason = $3, winner_id = $4
	`
	if _, err := tx.Exec(ctx, finalize, row.RoomID, row.Status, row.Reason, row.WinnerID); err != nil {
		return fmt.Errorf("finalize round %s: %w", row.RoomID, err)
	}

	for _, s := range row.Seats {
		q := `
			INSERT INTO round_results (room_id, player_id, score, did_win, breakdown)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (room_id, player_id)
			DO UPDATE SET score = $3, did_win = $4, breakdown = $5
		`
		if _, err := tx.Exec(ctx, q, row.RoomID, s.PlayerID, s.Score, s.Won, s.Breakdown); err != nil {
			return fmt.Errorf("insert result of %s: %w", s.PlayerID, err)
		}
	}
	return nil
}

// Store writes historian batches to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps pool; a nil pool means DB.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		pool = DB
	}
	return &Store{pool: pool}
}

// WriteBatch persists actions, then results, in a single transaction.
func (s *Store) WriteBatch(ctx context.Context, actions []ActionRow, results []ResultRow) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, a := range actions {
			if err := InsertActionTx(ctx, tx, a); err != nil {
				return err
			}
		}
		for _, r := range results {
			if err := FinishRoundTx(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkAbandoned flags a round that is still in progress. It reports whether a
// row changed.
func (s *Store) MarkAbandoned(ctx context.Context, roomID uuid.UUID) (bool, error) {
	q := `
		UPDATE rounds
		SET status = 'abandoned', end_time = NOW()
		WHERE room_id = $1 AND status = 'in_progress'
	`
	tag, err := s.pool.Exec(ctx, q, roomID)
	if err != nil {
		return false, fmt.Errorf("mark round %s abandoned: %w", roomID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RoundStatus returns the stored status of a round.
func (s *Store) RoundStatus(ctx context.Context, roomID uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM rounds WHERE room_id = $1`, roomID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("round %s status: %w", roomID, err)
	}
	return status, nil
}

// ActionCount returns how many actions a round has stored.
func (s *Store) ActionCount(ctx context.Context, roomID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM round_actions WHERE room_id = $1`, roomID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count actions of %s: %w", roomID, err)
	}
	return n, nil
}
