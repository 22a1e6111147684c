package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/gostop/internal/game"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// practiceFrame decodes only what the tests inspect.
type practiceFrame struct {
	Type    string          `json:"type"`
	State   *game.GameState `json:"state"`
	Message string          `json:"message"`
}

func dialPractice(ctx context.Context, t *testing.T, srv *httptest.Server, token, query string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Cookie", "auth_token="+token)
	c, _, err := websocket.Dial(ctx, wsURL(srv, "/practice/ws"+query), &websocket.DialOptions{
		Subprotocols: []string{PracticeSubprotocol},
		HTTPHeader:   header,
	})
	require.NoError(t, err)
	return c
}

func readFrame(ctx context.Context, t *testing.T, c *websocket.Conn) practiceFrame {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var f practiceFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// readState skips events until the next state or error frame.
func readState(ctx context.Context, t *testing.T, c *websocket.Conn) practiceFrame {
	t.Helper()
	for {
		f := readFrame(ctx, t, c)
		if f.Type != "event" {
			return f
		}
	}
}

func writeAction(ctx context.Context, t *testing.T, c *websocket.Conn, a models.GameAction) {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func practiceMove(gs *game.GameState) models.GameAction {
	switch gs.Phase {
	case game.PhaseSelecting, game.PhaseDeckSelecting:
		return models.GameAction{Type: models.ActionSelectFieldCard, CardID: models.IntPtr(gs.Pending.Candidates[0].ID)}
	case game.PhaseGoStop:
		return models.GameAction{Type: models.ActionDeclareStop}
	}
	return models.GameAction{Type: models.ActionPlayCard, CardID: models.IntPtr(gs.Player.Hand[0].ID)}
}

func TestPracticeRoundPlaysToCompletion(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	_, token := login(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dialPractice(ctx, t, srv, token, "?seed=7")
	defer c.Close(websocket.StatusNormalClosure, "")

	f := readState(ctx, t, c)
	require.Equal(t, "state", f.Type)
	require.NotEqual(t, game.PhaseWaiting, f.State.Phase)
	assert.Equal(t, 1, s.Games.Len())

	for i := 0; f.State.Phase != game.PhaseGameOver; i++ {
		require.Less(t, i, 100, "round did not finish")
		writeAction(ctx, t, c, practiceMove(f.State))
		f = readState(ctx, t, c)
		require.Equal(t, "state", f.Type, f.Message)
	}
	require.NotNil(t, f.State.Result)

	_, _, err := c.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	require.Eventually(t, func() bool { return s.Games.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPracticeRejectsIllegalAndAnswersPing(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	_, token := login(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dialPractice(ctx, t, srv, token, "?seed=3")

	f := readState(ctx, t, c)
	require.Equal(t, "state", f.Type)

	writeAction(ctx, t, c, models.GameAction{Type: models.ActionDeclareGo})
	f = readState(ctx, t, c)
	assert.Equal(t, "error", f.Type)
	assert.NotEmpty(t, f.Message)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{")))
	assert.Equal(t, "error", readState(ctx, t, c).Type)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", readState(ctx, t, c).Type)

	// leaving mid-round aborts and releases the engine
	c.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool { return s.Games.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPracticeRejectsSecondRoundAndBadSeed(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	_, token := login(t, "carol")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dialPractice(ctx, t, srv, token, "")
	defer c.Close(websocket.StatusNormalClosure, "")
	require.Equal(t, "state", readState(ctx, t, c).Type)

	header := http.Header{}
	header.Set("Cookie", "auth_token="+token)
	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/practice/ws"), &websocket.DialOptions{
		Subprotocols: []string{PracticeSubprotocol},
		HTTPHeader:   header,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, other := login(t, "dave")
	header.Set("Cookie", "auth_token="+other)
	_, resp, err = websocket.Dial(ctx, wsURL(srv, "/practice/ws?seed=x"), &websocket.DialOptions{
		Subprotocols: []string{PracticeSubprotocol},
		HTTPHeader:   header,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
