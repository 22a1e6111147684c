// internal/handlers/relay_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/auth"
	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/historian"
	"github.com/jason-s-yu/gostop/internal/lobby"
	"github.com/jason-s-yu/gostop/internal/middleware"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/sirupsen/logrus"
)

var errForbiddenKey = errors.New("key not writable by this session")

// RelayWSHandler upgrades to the relay subprotocol and fronts a fresh backend
// channel for the connection. When the socket drops the channel is closed and
// with it every ephemeral key the client wrote, which is how opponents learn
// that a player left.
func (s *Server) RelayWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := authenticate(r)
		if err != nil {
			http.Error(w, "invalid or missing auth_token", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{channel.RelaySubprotocol},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			s.Logger.WithError(err).Warn("relay accept")
			return
		}
		defer c.Close(websocket.StatusInternalError, "relay handler exit")

		if c.Subprotocol() != channel.RelaySubprotocol {
			c.Close(BadSubprotocolError, "client must use the 'relay' subprotocol")
			return
		}
		c.SetReadLimit(1 << 20)
		middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

		sess := &relaySession{
			server: s,
			id:     id,
			conn:   c,
			ch:     s.Connect(),
			logger: s.Logger.WithField("player", id.ID),
			subs:   make(map[uint64]context.CancelFunc),
		}
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		err = sess.serve(ctx)
		sess.close()
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// relaySession is one relay websocket and its backend client.
type relaySession struct {
	server *Server
	id     auth.Identity
	conn   *websocket.Conn
	ch     channel.Channel
	logger logrus.FieldLogger

	mu   sync.Mutex
	subs map[uint64]context.CancelFunc
}

// serve reads request frames until the socket closes. A normal close is not an error.
func (rs *relaySession) serve(ctx context.Context) error {
	for {
		msgType, data, err := rs.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}
		var f channel.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			rs.logger.WithError(err).Warn("invalid relay frame")
			continue
		}
		if f.Op == channel.OpUnsubscribe {
			rs.unsubscribe(f.ID)
			continue
		}
		res := rs.handle(ctx, f)
		res.ID, res.Op = f.ID, channel.OpResult
		if err := rs.send(ctx, res); err != nil {
			return err
		}
	}
}

func (rs *relaySession) handle(ctx context.Context, f channel.Frame) channel.Frame {
	var res channel.Frame
	if err := rs.authorize(ctx, f); err != nil {
		rs.logger.WithError(err).WithFields(logrus.Fields{"op": f.Op, "key": f.Key}).Warn("relay request refused")
		res.Error = err.Error()
		return res
	}

	var err error
	switch f.Op {
	case channel.OpGet:
		var v []byte
		v, err = rs.ch.Get(ctx, f.Key)
		if errors.Is(err, channel.ErrNotFound) {
			err = nil
		} else if err == nil {
			res.Found, res.Value = true, v
		}
	case channel.OpSet:
		if err = rs.ch.Set(ctx, f.Key, f.Value); err == nil {
			rs.tapLog(ctx, f.Key, f.Value)
		}
	case channel.OpSetEphemeral:
		err = rs.ch.SetEphemeral(ctx, f.Key, f.Value)
	case channel.OpDelete:
		err = rs.ch.Delete(ctx, f.Key)
	case channel.OpCAS:
		res.Swapped, err = rs.ch.CompareAndSwap(ctx, f.Key, f.Old, f.Value)
	case channel.OpKeys:
		res.Keys, err = rs.ch.Keys(ctx, f.Prefix)
	case channel.OpSubscribe:
		err = rs.subscribe(ctx, f.ID, f.Key)
	default:
		err = fmt.Errorf("unknown op %q", f.Op)
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// authorize keeps a session from speaking for someone else: presence markers
// and actions must carry the caller's id, only a room's host publishes its
// snapshot and log, and room records change only in ways the lobby would.
func (rs *relaySession) authorize(ctx context.Context, f channel.Frame) error {
	switch f.Op {
	case channel.OpSet, channel.OpSetEphemeral, channel.OpDelete, channel.OpCAS:
	default:
		return nil
	}
	if owner, ok := channel.PresenceOwner(f.Key); ok {
		if owner != rs.id.ID {
			return errForbiddenKey
		}
		return nil
	}
	roomID, rest, ok := channel.SplitRoomKey(f.Key)
	if !ok {
		return nil
	}
	if rest == "" {
		return rs.authorizeRoom(ctx, roomID, f)
	}

	room, err := rs.server.Lobby.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if _, err := lobby.RoleOf(room, rs.id.ID); err != nil {
		return errForbiddenKey
	}
	if f.Op == channel.OpDelete {
		return nil
	}
	switch rest {
	case "action":
		var a models.GameAction
		if err := json.Unmarshal(f.Value, &a); err != nil {
			return fmt.Errorf("invalid action: %w", err)
		}
		if a.PlayerID != rs.id.ID {
			return errForbiddenKey
		}
	case "state", "log":
		if room.HostID != rs.id.ID {
			return errForbiddenKey
		}
	}
	return nil
}

// authorizeRoom admits the three room record changes the lobby makes: a host
// creating its room, a guest taking the empty seat, and a seated player
// updating status. Nobody may reseat the room.
func (rs *relaySession) authorizeRoom(ctx context.Context, roomID uuid.UUID, f channel.Frame) error {
	existing, err := rs.server.Lobby.GetRoom(ctx, roomID)
	exists := err == nil
	if err != nil && !errors.Is(err, lobby.ErrRoomNotFound) {
		return err
	}
	_, seatErr := lobby.RoleOf(existing, rs.id.ID)
	seated := exists && seatErr == nil

	if f.Op == channel.OpDelete {
		if exists && !seated {
			return errForbiddenKey
		}
		return nil
	}

	var next models.Room
	if err := json.Unmarshal(f.Value, &next); err != nil {
		return fmt.Errorf("invalid room: %w", err)
	}
	if next.ID != roomID {
		return errForbiddenKey
	}
	switch {
	case !exists:
		if next.HostID != rs.id.ID || next.GuestID != uuid.Nil {
			return errForbiddenKey
		}
	case next.HostID != existing.HostID:
		return errForbiddenKey
	case seated:
		if next.GuestID != existing.GuestID {
			return errForbiddenKey
		}
	default:
		if existing.Full() || next.GuestID != rs.id.ID {
			return errForbiddenKey
		}
	}
	return nil
}

// tapLog forwards a host's log entry to the journal queue.
func (rs *relaySession) tapLog(ctx context.Context, key string, value []byte) {
	journal := rs.server.Journal
	if journal == nil {
		return
	}
	roomID, rest, ok := channel.SplitRoomKey(key)
	if !ok || rest != "log" {
		return
	}
	logger := rs.logger.WithField("room", roomID)
	var entry models.RoundLogEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		logger.WithError(err).Warn("invalid round log entry")
		return
	}
	room, err := rs.server.Lobby.GetRoom(ctx, roomID)
	if err != nil {
		logger.WithError(err).Warn("round log for unknown room")
		return
	}
	rec, err := historian.RecordFromLog(room, entry, time.Now())
	if err != nil {
		logger.WithError(err).Warn("convert round log entry")
		return
	}
	if err := journal.Publish(ctx, rec); err != nil {
		logger.WithError(err).Warn("queue round record")
	}
}

func (rs *relaySession) subscribe(ctx context.Context, id uint64, key string) error {
	subCtx, cancel := context.WithCancel(ctx)
	updates, err := rs.ch.Subscribe(subCtx, key)
	if err != nil {
		cancel()
		return err
	}
	rs.mu.Lock()
	if old, ok := rs.subs[id]; ok {
		old()
	}
	rs.subs[id] = cancel
	rs.mu.Unlock()

	go func() {
		defer cancel()
		for v := range updates {
			f := channel.Frame{ID: id, Op: channel.OpUpdate, Key: key, Value: v, Deleted: v == nil}
			if err := rs.send(subCtx, f); err != nil {
				return
			}
		}
	}()
	return nil
}

func (rs *relaySession) unsubscribe(id uint64) {
	rs.mu.Lock()
	cancel, ok := rs.subs[id]
	delete(rs.subs, id)
	rs.mu.Unlock()
	if ok {
		cancel()
	}
}

// send writes one frame with a bounded wait.
func (rs *relaySession) send(ctx context.Context, f channel.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return rs.conn.Write(wctx, websocket.MessageText, data)
}

// close ends every subscription and releases the backend client.
func (rs *relaySession) close() {
	rs.mu.Lock()
	for id, cancel := range rs.subs {
		cancel()
		delete(rs.subs, id)
	}
	rs.mu.Unlock()
	if err := rs.ch.Close(); err != nil {
		rs.logger.WithError(err).Warn("close relay backend")
	}
}

