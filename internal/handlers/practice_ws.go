// internal/handlers/practice_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/auth"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/middleware"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/jason-s-yu/gostop/internal/netplay"
	"github.com/sirupsen/logrus"
)

// PracticeSubprotocol is spoken on /practice/ws.
const PracticeSubprotocol = "game"

// PracticeMessage is every server-to-client message of a practice round.
type PracticeMessage struct {
	Type    string          `json:"type"` // "event", "state", "error" or "pong"
	Event   json.RawMessage `json:"event,omitempty"`
	State   *game.GameState `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
}

// PracticeWSHandler runs a round for the caller against the scripted
// opponent. The engine lives in s.Games for as long as the socket does.
// Optional query: seed (deterministic shuffle).
func (s *Server) PracticeWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := authenticate(r)
		if err != nil {
			http.Error(w, "invalid or missing auth_token", http.StatusUnauthorized)
			return
		}
		if s.Games.FindBySeat(id.ID) != nil {
			http.Error(w, "practice round already running", http.StatusConflict)
			return
		}
		var seedOpt []game.Option
		if v := r.URL.Query().Get("seed"); v != "" {
			seed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				http.Error(w, "invalid seed", http.StatusBadRequest)
				return
			}
			seedOpt = append(seedOpt, game.WithSeed(seed))
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{PracticeSubprotocol},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			s.Logger.WithError(err).Warn("practice accept")
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != PracticeSubprotocol {
			c.Close(BadSubprotocolError, "Client must use the 'game' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		e := s.newPracticeEngine(id, c, seedOpt)
		logger := s.Logger.WithFields(logrus.Fields{"player": id.ID, "round": e.ID})

		s.Games.Add(e)
		defer s.Games.Delete(e.ID)

		if err := e.Start(); err != nil {
			logger.WithError(err).Error("start practice round")
			c.Close(InvalidRoundIDError, "could not start round")
			return
		}
		sendState(ctx, c, e)

		err = readPracticeMessages(ctx, c, e, logger)
		if e.Result() == nil {
			e.Abort("player left")
		}
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "round over")
	}
}

func (s *Server) newPracticeEngine(id auth.Identity, c *websocket.Conn, extra []game.Option) *game.Engine {
	opts := []game.Option{
		game.WithRules(s.Rules),
		game.WithSeats(game.SeatInfo{ID: id.ID, Name: id.Name}, game.SeatInfo{ID: uuid.New(), Name: "AI"}),
		game.WithStrategy(game.SideOpponent, game.ScriptedOpponent(s.Rules)),
		game.WithAIDelay(s.AIDelay),
		game.WithLogger(s.Logger.WithField("player", id.ID)),
	}
	e := game.NewEngine(append(opts, extra...)...)
	// events are emitted on the read goroutine, so writes stay ordered
	e.Subscribe(game.ListenerFunc(func(ev game.Event) {
		sendWsMessage(context.Background(), c, PracticeMessage{Type: "event", Event: game.EventToBytes(ev)})
	}))
	return e
}

// readPracticeMessages applies the client's intents until the round ends or
// the socket closes.
func readPracticeMessages(ctx context.Context, c *websocket.Conn, e *game.Engine, logger logrus.FieldLogger) error {
	for e.Phase() != game.PhaseGameOver {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var a models.GameAction
		if err := json.Unmarshal(data, &a); err != nil {
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}
		if a.Type == "ping" {
			sendWsMessage(ctx, c, PracticeMessage{Type: "pong"})
			continue
		}
		a.PlayerID = e.Seat(game.SidePlayer).ID
		a.Timestamp = time.Now().UnixMilli()
		if err := netplay.Dispatch(e, game.SidePlayer, a); err != nil {
			logger.WithError(err).Debug("practice intent rejected")
			sendWsError(ctx, c, err.Error())
			continue
		}
		sendState(ctx, c, e)
	}
	return nil
}

func sendState(ctx context.Context, c *websocket.Conn, e *game.Engine) {
	gs := e.Snapshot()
	sendWsMessage(ctx, c, PracticeMessage{Type: "state", State: &gs})
}

// sendWsMessage marshals a message and sends it with a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("marshal websocket message")
		return
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			logrus.WithError(err).Debug("write websocket message")
		}
		// Let the read loop handle connection closure detection.
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, PracticeMessage{Type: "error", Message: errorMsg})
}
