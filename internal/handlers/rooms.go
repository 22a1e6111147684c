// internal/handlers/rooms.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/auth"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/lobby"
	"github.com/jason-s-yu/gostop/internal/models"
)

// RoomResponse pairs a room with the caller's role in it.
type RoomResponse struct {
	Room models.Room `json:"room"`
	Role string      `json:"role,omitempty"`
}

// requireIdentity authenticates the request or writes the error response.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, err := authenticate(r)
	if errors.Is(err, errMissingToken) {
		http.Error(w, "missing auth_token", http.StatusUnauthorized)
		return id, false
	}
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return id, false
	}
	return id, true
}

func seatOf(id auth.Identity) game.SeatInfo {
	return game.SeatInfo{ID: id.ID, Name: id.Name}
}

func roomID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid room id format", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeLobbyError maps lobby sentinels onto status codes.
func (s *Server) writeLobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lobby.ErrRoomNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, lobby.ErrRoomFull):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lobby.ErrNotSeated):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		s.Logger.WithError(err).Error("room request failed")
		http.Error(w, "room request failed", http.StatusInternalServerError)
	}
}

// ListRoomsHandler returns open rooms, oldest first. ?limit= caps the list.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rooms, err := s.Lobby.FindOpenRooms(r.Context(), limit)
	if err != nil {
		s.writeLobbyError(w, err)
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// CreateRoomHandler opens a room hosted by the caller.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	room, err := s.Lobby.CreateRoom(r.Context(), seatOf(id))
	if err != nil {
		s.writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RoomResponse{Room: room, Role: lobby.RoleHost.String()})
}

// QuickMatchHandler joins the oldest open room or opens a new one.
func (s *Server) QuickMatchHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	room, role, err := s.Lobby.QuickMatch(r.Context(), seatOf(id))
	if err != nil {
		s.writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RoomResponse{Room: room, Role: role.String()})
}

// GetRoomHandler returns one room and, if seated, the caller's role.
func (s *Server) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	rid, ok := roomID(w, r)
	if !ok {
		return
	}
	room, err := s.Lobby.GetRoom(r.Context(), rid)
	if err != nil {
		s.writeLobbyError(w, err)
		return
	}
	resp := RoomResponse{Room: room}
	if role, err := lobby.RoleOf(room, id.ID); err == nil {
		resp.Role = role.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// JoinRoomHandler takes the guest seat.
func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	rid, ok := roomID(w, r)
	if !ok {
		return
	}
	room, err := s.Lobby.JoinRoom(r.Context(), rid, seatOf(id))
	if err != nil {
		s.writeLobbyError(w, err)
		return
	}
	role, _ := lobby.RoleOf(room, id.ID)
	writeJSON(w, http.StatusOK, RoomResponse{Room: room, Role: role.String()})
}

// CloseRoomHandler closes a room the caller sits in.
func (s *Server) CloseRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	rid, ok := roomID(w, r)
	if !ok {
		return
	}
	if err := s.Lobby.CloseRoom(r.Context(), rid, id.ID); err != nil {
		s.writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
