package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/auth"
)

const maxNameLen = 32

type sessionRequest struct {
	Name string `json:"name"`
}

// SessionResponse is returned by POST /session.
type SessionResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Token string    `json:"token"`
}

// CreateSessionHandler mints an anonymous identity and sets the auth_token cookie.
func (s *Server) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad session request payload", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Guest"
	}
	if len(name) > maxNameLen {
		http.Error(w, "name too long", http.StatusBadRequest)
		return
	}

	id, token, err := auth.NewSession(name)
	if err != nil {
		s.Logger.WithError(err).Error("create session")
		http.Error(w, "could not create session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, http.StatusCreated, SessionResponse{ID: id.ID, Name: id.Name, Token: token})
}
