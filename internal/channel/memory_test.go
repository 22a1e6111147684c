package channel

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}
	return nil
}

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Client()

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, c.Delete(ctx, "a"))
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySubscribeDeliversCurrentThenChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryStore()
	writer, reader := store.Client(), store.Client()

	require.NoError(t, writer.Set(ctx, "k", []byte("v1")))
	ch, err := reader.Subscribe(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), recv(t, ch))

	require.NoError(t, writer.Set(ctx, "k", []byte("v2")))
	assert.Equal(t, []byte("v2"), recv(t, ch))

	require.NoError(t, writer.Delete(ctx, "k"))
	assert.Nil(t, recv(t, ch))

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestMemorySlowSubscriberSeesLatest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Client()
	ch, err := c.Subscribe(ctx, "k")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer*3; i++ {
		require.NoError(t, c.Set(ctx, "k", []byte{byte(i)}))
	}
	var last []byte
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, []byte{byte(subscriberBuffer*3 - 1)}, last)
}

func TestMemoryCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Client()

	ok, err := c.CompareAndSwap(ctx, "k", nil, []byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CompareAndSwap(ctx, "k", nil, []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok, "key exists")

	ok, err = c.CompareAndSwap(ctx, "k", []byte("x"), []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("b"), v)

	ok, err = c.CompareAndSwap(ctx, "missing", []byte("a"), []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Client()
	room := uuid.New()
	require.NoError(t, c.Set(ctx, RoomKey(room), []byte("{}")))
	require.NoError(t, c.Set(ctx, StateKey(room), []byte("{}")))
	require.NoError(t, c.Set(ctx, "other", []byte("{}")))

	keys, err := c.Keys(ctx, RoomPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{RoomKey(room), StateKey(room)}, keys)
}

func TestMemoryCloseDropsEphemeralKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	host, guest := store.Client(), store.Client()
	room := uuid.New()
	hostID, guestID := uuid.New(), uuid.New()

	require.NoError(t, host.SetEphemeral(ctx, PresenceKey(room, hostID), []byte("1")))
	require.NoError(t, guest.SetEphemeral(ctx, PresenceKey(room, guestID), []byte("1")))
	require.NoError(t, guest.Set(ctx, ActionKey(room), []byte("a")))

	watch, err := host.Subscribe(ctx, PresenceKey(room, guestID))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), recv(t, watch))

	require.NoError(t, guest.Close())
	assert.Nil(t, recv(t, watch))

	_, err = host.Get(ctx, PresenceKey(room, guestID))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = host.Get(ctx, PresenceKey(room, hostID))
	assert.NoError(t, err)
	_, err = host.Get(ctx, ActionKey(room))
	assert.NoError(t, err, "persistent keys survive the writer")

	assert.ErrorIs(t, guest.Set(ctx, "k", nil), ErrClosed)
}

func TestMemorySetClearsEphemeralOwnership(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b := store.Client(), store.Client()

	require.NoError(t, a.SetEphemeral(ctx, "k", []byte("a")))
	require.NoError(t, b.Set(ctx, "k", []byte("b")))
	require.NoError(t, a.Close())

	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v)
}

func TestSplitRoomKey(t *testing.T) {
	room, user := uuid.New(), uuid.New()

	id, rest, ok := SplitRoomKey(RoomKey(room))
	require.True(t, ok)
	assert.Equal(t, room, id)
	assert.Empty(t, rest)

	_, rest, ok = SplitRoomKey(LogKey(room))
	require.True(t, ok)
	assert.Equal(t, "log", rest)

	owner, ok := PresenceOwner(PresenceKey(room, user))
	require.True(t, ok)
	assert.Equal(t, user, owner)

	_, ok = PresenceOwner(StateKey(room))
	assert.False(t, ok)
	_, _, ok = SplitRoomKey("rooms:waiting")
	assert.False(t, ok)
	_, _, ok = SplitRoomKey("room:not-a-uuid:state")
	assert.False(t, ok)
}
