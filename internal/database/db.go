package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DB is the process-wide pool, set by ConnectDB.
var DB *pgxpool.Pool

// ConnectDB opens the pool for url (a postgres:// DSN), pings it and stores it in DB.
func ConnectDB(ctx context.Context, url string) error {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("db ping error: %w", err)
	}

	DB = pool
	logrus.WithField("host", config.ConnConfig.Host).Info("connected to database")
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	room_id     UUID PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'in_progress',
	start_time  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time    TIMESTAMPTZ,
	end_reason  TEXT,
	winner_id   UUID
);

CREATE TABLE IF NOT EXISTS round_actions (
	room_id        UUID NOT NULL REFERENCES rounds(room_id) ON DELETE CASCADE,
	action_index   INT NOT NULL,
	actor_user_id  UUID NOT NULL,
	action_type    TEXT NOT NULL,
	action_payload JSONB NOT NULL DEFAULT '{}',
	acted_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (room_id, action_index)
);

CREATE TABLE IF NOT EXISTS round_results (
	room_id    UUID NOT NULL REFERENCES rounds(room_id) ON DELETE CASCADE,
	player_id  UUID NOT NULL,
	score      INT NOT NULL,
	did_win    BOOLEAN NOT NULL,
	breakdown  JSONB NOT NULL,
	PRIMARY KEY (room_id, player_id)
);
`

// EnsureSchema creates the round tables when they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
