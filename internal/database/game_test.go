package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool needs DATABASE_URL pointing at a scratch database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, ConnectDB(ctx, url))
	t.Cleanup(DB.Close)
	require.NoError(t, EnsureSchema(ctx, DB))
	return DB
}

func TestStoreRoundLifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewStore(pool)
	room, host, guest := uuid.New(), uuid.New(), uuid.New()

	actions := []ActionRow{
		{RoomID: room, Index: 1, ActorID: guest, Type: "PLAY_CARD", Payload: []byte(`{"cardId":4}`), At: time.Now()},
		{RoomID: room, Index: 2, ActorID: host, Type: "PLAY_CARD", At: time.Now()},
	}
	require.NoError(t, s.WriteBatch(ctx, actions, nil))
	// redelivery is harmless
	require.NoError(t, s.WriteBatch(ctx, actions[:1], nil))

	n, err := s.ActionCount(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	status, err := s.RoundStatus(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, status)

	res := ResultRow{
		RoomID: room, Status: StatusCompleted, Reason: "stop", WinnerID: &guest,
		Seats: []SeatResult{
			{PlayerID: host, Score: 0, Breakdown: []byte(`{}`)},
			{PlayerID: guest, Score: 9, Won: true, Breakdown: []byte(`{"total":9}`)},
		},
	}
	require.NoError(t, s.WriteBatch(ctx, nil, []ResultRow{res}))
	status, err = s.RoundStatus(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	changed, err := s.MarkAbandoned(ctx, room)
	require.NoError(t, err)
	assert.False(t, changed, "finished rounds are not abandoned")
}

func TestMarkAbandoned(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewStore(pool)
	room := uuid.New()
	require.NoError(t, s.WriteBatch(ctx, []ActionRow{
		{RoomID: room, Index: 1, ActorID: uuid.New(), Type: "DECLARE_GO", At: time.Now()},
	}, nil))

	changed, err := s.MarkAbandoned(ctx, room)
	require.NoError(t, err)
	assert.True(t, changed)
	status, err := s.RoundStatus(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, status)
}
