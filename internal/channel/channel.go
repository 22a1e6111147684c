// Package channel defines the shared key/value broadcast channel that
// networked play is replicated over, with an in-memory implementation and a
// websocket client for the relay server.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Get for an absent key.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("channel closed")
)

// Channel is a reliable-enough key/value store with change notification.
type Channel interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value and notifies subscribers of key.
	Set(ctx context.Context, key string, value []byte) error
	// SetEphemeral is Set for a value that disappears when this client goes away.
	SetEphemeral(ctx context.Context, key string, value []byte) error
	// Delete removes key; subscribers receive a nil value.
	Delete(ctx context.Context, key string) error
	// CompareAndSwap stores new only if the current value equals old. A nil old
	// means the key must be absent.
	CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error)
	// Keys lists the keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Subscribe delivers the current value of key, if any, then every change.
	// The returned channel is closed when ctx ends or the Channel closes.
	Subscribe(ctx context.Context, key string) (<-chan []byte, error)
	Close() error
}

// RoomIndex is an optional ordered index of rooms waiting for a guest.
// Backends without one are searched with Keys.
type RoomIndex interface {
	AddWaiting(ctx context.Context, roomID uuid.UUID, createdAt time.Time) error
	RemoveWaiting(ctx context.Context, roomID uuid.UUID) error
	Waiting(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// RoomPrefix is the key prefix shared by every room record.
const RoomPrefix = "room:"

// RoomKey holds the models.Room record.
func RoomKey(roomID uuid.UUID) string { return RoomPrefix + roomID.String() }

// StateKey holds the host's latest game.GameState snapshot.
func StateKey(roomID uuid.UUID) string { return fmt.Sprintf("room:%s:state", roomID) }

// ActionKey is the single last-action slot of a room.
func ActionKey(roomID uuid.UUID) string { return fmt.Sprintf("room:%s:action", roomID) }

// LogKey receives one models.RoundLogEntry per applied intent.
func LogKey(roomID uuid.UUID) string { return fmt.Sprintf("room:%s:log", roomID) }

// PresenceKey is a seat's ephemeral presence marker.
func PresenceKey(roomID, userID uuid.UUID) string {
	return fmt.Sprintf("room:%s:presence:%s", roomID, userID)
}

// subscriberBuffer bounds each subscription. When a subscriber falls behind the
// oldest pending value is dropped, so it always converges on the latest one.
const subscriberBuffer = 16

func offer(ch chan []byte, value []byte) {
	for {
		select {
		case ch <- value:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// SplitRoomKey parses a key under RoomPrefix into its room id and the part
// after it ("" for the room record itself, "state", "presence:{user}", ...).
func SplitRoomKey(key string) (roomID uuid.UUID, rest string, ok bool) {
	if !strings.HasPrefix(key, RoomPrefix) {
		return uuid.Nil, "", false
	}
	idPart, rest, _ := strings.Cut(strings.TrimPrefix(key, RoomPrefix), ":")
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, rest, true
}

// PresenceOwner returns the user a presence key belongs to.
func PresenceOwner(key string) (uuid.UUID, bool) {
	_, rest, ok := SplitRoomKey(key)
	if !ok {
		return uuid.Nil, false
	}
	user, found := strings.CutPrefix(rest, "presence:")
	if !found {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(user)
	return id, err == nil
}
