// internal/lobby/lobby.go
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrRoomFull     = errors.New("room is full")
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotSeated is returned when a user acts on a room they hold no seat in.
	ErrNotSeated = errors.New("user is not seated in room")
)

// joinAttempts bounds the compare-and-swap retries of JoinRoom.
const joinAttempts = 5

// Role is a seat's part in the replication protocol.
type Role int

const (
	RoleHost Role = iota
	RoleGuest
)

func (r Role) String() string {
	if r == RoleGuest {
		return "guest"
	}
	return "host"
}

// Service runs the room handshake over a shared channel. When the channel
// also implements channel.RoomIndex, open rooms are looked up through it.
type Service struct {
	ch     channel.Channel
	index  channel.RoomIndex
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService returns a Service using ch. A nil logger means the standard logger.
func NewService(ch channel.Channel, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{ch: ch, logger: logger, now: time.Now}
	if idx, ok := ch.(channel.RoomIndex); ok {
		s.index = idx
	}
	return s
}

// WithIndex overrides the room index; nil forces key scans.
func (s *Service) WithIndex(idx channel.RoomIndex) *Service {
	s.index = idx
	return s
}

// CreateRoom opens a waiting room hosted by host.
func (s *Service) CreateRoom(ctx context.Context, host game.SeatInfo) (models.Room, error) {
	room := models.Room{
		ID:        uuid.New(),
		HostID:    host.ID,
		HostName:  host.Name,
		Status:    models.RoomWaiting,
		CreatedAt: s.now().UTC(),
	}
	data, err := json.Marshal(room)
	if err != nil {
		return models.Room{}, err
	}
	ok, err := s.ch.CompareAndSwap(ctx, channel.RoomKey(room.ID), nil, data)
	if err != nil {
		return models.Room{}, fmt.Errorf("create room: %w", err)
	}
	if !ok {
		return models.Room{}, fmt.Errorf("create room: id %s already taken", room.ID)
	}
	if s.index != nil {
		if err := s.index.AddWaiting(ctx, room.ID, room.CreatedAt); err != nil {
			s.logger.WithError(err).WithField("room", room.ID).Warn("room index add failed")
		}
	}
	s.logger.WithFields(logrus.Fields{"room": room.ID, "player": host.ID}).Info("room created")
	return room, nil
}

// GetRoom loads one room record.
func (s *Service) GetRoom(ctx context.Context, roomID uuid.UUID) (models.Room, error) {
	room, _, err := s.load(ctx, roomID)
	return room, err
}

func (s *Service) load(ctx context.Context, roomID uuid.UUID) (models.Room, []byte, error) {
	raw, err := s.ch.Get(ctx, channel.RoomKey(roomID))
	if errors.Is(err, channel.ErrNotFound) {
		return models.Room{}, nil, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	var room models.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return models.Room{}, nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return room, raw, nil
}

// JoinRoom takes the guest seat of a waiting room. Joining a room you already
// sit in returns it unchanged.
func (s *Service) JoinRoom(ctx context.Context, roomID uuid.UUID, guest game.SeatInfo) (models.Room, error) {
	for attempt := 0; attempt < joinAttempts; attempt++ {
		room, raw, err := s.load(ctx, roomID)
		if err != nil {
			return models.Room{}, err
		}
		if room.Status == models.RoomClosed {
			return models.Room{}, ErrRoomNotFound
		}
		if guest.ID == room.HostID || guest.ID == room.GuestID {
			return room, nil
		}
		if room.Full() {
			return models.Room{}, ErrRoomFull
		}

		room.GuestID = guest.ID
		room.GuestName = guest.Name
		room.Status = models.RoomPlaying
		data, err := json.Marshal(room)
		if err != nil {
			return models.Room{}, err
		}
		swapped, err := s.ch.CompareAndSwap(ctx, channel.RoomKey(roomID), raw, data)
		if err != nil {
			return models.Room{}, fmt.Errorf("join room %s: %w", roomID, err)
		}
		if !swapped {
			continue
		}
		if s.index != nil {
			if err := s.index.RemoveWaiting(ctx, roomID); err != nil {
				s.logger.WithError(err).WithField("room", roomID).Warn("room index remove failed")
			}
		}
		s.logger.WithFields(logrus.Fields{"room": roomID, "player": guest.ID}).Info("guest joined")
		return room, nil
	}
	return models.Room{}, fmt.Errorf("join room %s: too much contention", roomID)
}

// FindOpenRooms lists up to limit waiting rooms, oldest first. An index error
// falls back to scanning every room key.
func (s *Service) FindOpenRooms(ctx context.Context, limit int) ([]models.Room, error) {
	if s.index != nil {
		ids, err := s.index.Waiting(ctx, limit)
		if err == nil {
			rooms := make([]models.Room, 0, len(ids))
			for _, id := range ids {
				room, err := s.GetRoom(ctx, id)
				if errors.Is(err, ErrRoomNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				if room.Status == models.RoomWaiting && !room.Full() {
					rooms = append(rooms, room)
				}
			}
			return rooms, nil
		}
		s.logger.WithError(err).Warn("room index unavailable, scanning rooms")
	}
	return s.scanOpenRooms(ctx, limit)
}

func (s *Service) scanOpenRooms(ctx context.Context, limit int) ([]models.Room, error) {
	keys, err := s.ch.Keys(ctx, channel.RoomPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan rooms: %w", err)
	}
	var rooms []models.Room
	for _, key := range keys {
		// room:{id} only, not its state/action/presence sub-keys
		rest := strings.TrimPrefix(key, channel.RoomPrefix)
		if strings.Contains(rest, ":") {
			continue
		}
		id, err := uuid.Parse(rest)
		if err != nil {
			continue
		}
		room, err := s.GetRoom(ctx, id)
		if err != nil {
			continue
		}
		if room.Status == models.RoomWaiting && !room.Full() {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

// QuickMatch joins the oldest open room not hosted by seat, or creates one.
func (s *Service) QuickMatch(ctx context.Context, seat game.SeatInfo) (models.Room, Role, error) {
	rooms, err := s.FindOpenRooms(ctx, 10)
	if err != nil {
		return models.Room{}, RoleHost, err
	}
	for _, r := range rooms {
		if r.HostID == seat.ID {
			continue
		}
		room, err := s.JoinRoom(ctx, r.ID, seat)
		if errors.Is(err, ErrRoomFull) || errors.Is(err, ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return models.Room{}, RoleGuest, err
		}
		return room, RoleGuest, nil
	}
	room, err := s.CreateRoom(ctx, seat)
	return room, RoleHost, err
}

// WaitForGuest blocks until someone takes the guest seat of roomID.
func (s *Service) WaitForGuest(ctx context.Context, roomID uuid.UUID) (models.Room, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates, err := s.ch.Subscribe(ctx, channel.RoomKey(roomID))
	if err != nil {
		return models.Room{}, fmt.Errorf("watch room %s: %w", roomID, err)
	}
	for {
		select {
		case <-ctx.Done():
			return models.Room{}, ctx.Err()
		case v, ok := <-updates:
			if !ok {
				return models.Room{}, channel.ErrClosed
			}
			if v == nil {
				return models.Room{}, ErrRoomNotFound
			}
			var room models.Room
			if err := json.Unmarshal(v, &room); err != nil {
				return models.Room{}, fmt.Errorf("decode room %s: %w", roomID, err)
			}
			if room.Status == models.RoomClosed {
				return models.Room{}, ErrRoomNotFound
			}
			if room.Full() {
				return room, nil
			}
		}
	}
}

// CloseRoom marks the room closed and clears its replicated keys. Only a
// seated user may close it.
func (s *Service) CloseRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	room, raw, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if _, err := RoleOf(room, userID); err != nil {
		return err
	}
	room.Status = models.RoomClosed
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	if _, err := s.ch.CompareAndSwap(ctx, channel.RoomKey(roomID), raw, data); err != nil {
		return fmt.Errorf("close room %s: %w", roomID, err)
	}
	for _, key := range []string{channel.StateKey(roomID), channel.ActionKey(roomID), channel.LogKey(roomID)} {
		if err := s.ch.Delete(ctx, key); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("clear room key")
		}
	}
	if s.index != nil {
		if err := s.index.RemoveWaiting(ctx, roomID); err != nil {
			s.logger.WithError(err).WithField("room", roomID).Warn("room index remove failed")
		}
	}
	s.logger.WithFields(logrus.Fields{"room": roomID, "player": userID}).Info("room closed")
	return nil
}

// RoleOf tells which seat userID holds.
func RoleOf(room models.Room, userID uuid.UUID) (Role, error) {
	switch {
	case userID == uuid.Nil:
	case userID == room.HostID:
		return RoleHost, nil
	case userID == room.GuestID:
		return RoleGuest, nil
	}
	return RoleHost, ErrNotSeated
}

// Seats returns the host and guest seat infos of a full room.
func Seats(room models.Room) (host, guest game.SeatInfo) {
	return game.SeatInfo{ID: room.HostID, Name: room.HostName},
		game.SeatInfo{ID: room.GuestID, Name: room.GuestName}
}
