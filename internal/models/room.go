// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus tracks the matchmaking lifecycle of a room.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting" // host present, no guest yet
	RoomPlaying RoomStatus = "playing"
	RoomClosed  RoomStatus = "closed"
)

// Room is the record stored under room:{id} in the shared channel.
type Room struct {
	ID        uuid.UUID  `json:"id"`
	HostID    uuid.UUID  `json:"hostId"`
	HostName  string     `json:"hostName"`
	GuestID   uuid.UUID  `json:"guestId,omitempty"`
	GuestName string     `json:"guestName,omitempty"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Full reports whether both seats are taken.
func (r Room) Full() bool { return r.GuestID != uuid.Nil }

// Opponent returns the other seat's id for userID, or uuid.Nil if userID is not seated.
func (r Room) Opponent(userID uuid.UUID) uuid.UUID {
	switch userID {
	case r.HostID:
		return r.GuestID
	case r.GuestID:
		return r.HostID
	}
	return uuid.Nil
}
