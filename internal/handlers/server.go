// internal/handlers/server.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/gostop/internal/cache"
	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/lobby"
	"github.com/jason-s-yu/gostop/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Connector opens one backend channel client. Every relay connection gets its
// own, so closing it drops exactly that connection's ephemeral keys.
type Connector func() channel.Channel

// Journal receives the round records tapped from room log keys.
type Journal interface {
	Publish(ctx context.Context, rec cache.RoundActionRecord) error
}

// Server holds the dependencies shared by every handler.
type Server struct {
	Logger  *logrus.Logger
	Connect Connector
	Lobby   *lobby.Service
	// Journal may be nil, in which case log keys are relayed but not queued.
	Journal Journal
	Games   *game.Store
	Rules   game.Rules
	AIDelay time.Duration

	// AllowedOrigins feeds the CORS handler; entries may contain one wildcard.
	AllowedOrigins []string
}

// DefaultOrigins accepts any http or https origin.
var DefaultOrigins = []string{"https://*", "http://*"}

// NewServer wires a Server over connect. The lobby keeps one long-lived client.
func NewServer(logger *logrus.Logger, connect Connector) *Server {
	return &Server{
		Logger:  logger,
		Connect: connect,
		Lobby:   lobby.NewService(connect(), logger),
		Games:   game.NewStore(),
		Rules:   game.DefaultRules(),

		AllowedOrigins: DefaultOrigins,
	}
}

// Routes returns the full HTTP surface, logged.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.LogMiddleware(s.Logger))

	// session endpoints
	r.Post("/session", s.CreateSessionHandler)

	// room endpoints
	r.Get("/rooms", s.ListRoomsHandler)
	r.Post("/rooms", s.CreateRoomHandler)
	r.Post("/rooms/quick", s.QuickMatchHandler)
	r.Get("/rooms/{id}", s.GetRoomHandler)
	r.Post("/rooms/{id}/join", s.JoinRoomHandler)
	r.Delete("/rooms/{id}", s.CloseRoomHandler)

	// websockets
	r.Get("/relay/ws", s.RelayWSHandler())
	r.Get("/practice/ws", s.PracticeWSHandler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "practiceRounds": s.Games.Len()})
	})
	return r
}
