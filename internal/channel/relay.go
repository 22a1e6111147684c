package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Relay is a Channel backed by a relay server over one websocket. Ephemeral
// keys written through it are removed by the server when the socket drops.
type Relay struct {
	conn   *websocket.Conn
	logger logrus.FieldLogger
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Frame
	subs    map[uint64]chan []byte
	closed  bool
	done    chan struct{}
}

var _ Channel = (*Relay)(nil)

// Dial connects to a relay endpoint such as ws://host:8080/relay/ws. token is
// the session JWT sent as the auth_token cookie.
func Dial(ctx context.Context, url, token string, logger logrus.FieldLogger) (*Relay, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", "auth_token="+token)
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{RelaySubprotocol},
		HTTPHeader:   header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	if conn.Subprotocol() != RelaySubprotocol {
		conn.Close(websocket.StatusPolicyViolation, "relay subprotocol required")
		return nil, fmt.Errorf("relay %s did not accept subprotocol %q", url, RelaySubprotocol)
	}
	conn.SetReadLimit(1 << 20)

	r := &Relay{
		conn:    conn,
		logger:  logger.WithField("relay", url),
		pending: make(map[uint64]chan Frame),
		subs:    make(map[uint64]chan []byte),
		done:    make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *Relay) readLoop() {
	defer r.shutdown()
	for {
		_, data, err := r.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				r.logger.Debug("relay closed")
			} else {
				r.logger.WithError(err).Warn("relay read failed")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			r.logger.WithError(err).Warn("invalid relay frame")
			continue
		}

		r.mu.Lock()
		switch f.Op {
		case OpUpdate:
			if ch, ok := r.subs[f.ID]; ok {
				if f.Deleted {
					offer(ch, nil)
				} else {
					offer(ch, f.Value)
				}
			}
		case OpResult:
			if ch, ok := r.pending[f.ID]; ok {
				delete(r.pending, f.ID)
				ch <- f
			}
		}
		r.mu.Unlock()
	}
}

// shutdown fails outstanding requests and ends every subscription.
func (r *Relay) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
}

func (r *Relay) request(ctx context.Context, f Frame) (Frame, error) {
	f.ID = r.nextID.Add(1)
	reply := make(chan Frame, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Frame{}, ErrClosed
	}
	r.pending[f.ID] = reply
	r.mu.Unlock()

	if err := r.write(ctx, f); err != nil {
		r.forget(f.ID)
		return Frame{}, err
	}
	select {
	case res, ok := <-reply:
		if !ok {
			return Frame{}, ErrClosed
		}
		if res.Error != "" {
			return res, fmt.Errorf("relay %s %s: %s", f.Op, f.Key, res.Error)
		}
		return res, nil
	case <-ctx.Done():
		r.forget(f.ID)
		return Frame{}, ctx.Err()
	}
}

func (r *Relay) forget(id uint64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

func (r *Relay) write(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal relay frame: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.conn.Write(wctx, websocket.MessageText, data); err != nil {
		select {
		case <-r.done:
			return ErrClosed
		default:
		}
		return fmt.Errorf("write relay frame: %w", err)
	}
	return nil
}

func (r *Relay) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := r.request(ctx, Frame{Op: OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, ErrNotFound
	}
	if res.Value == nil {
		return []byte{}, nil
	}
	return res.Value, nil
}

func (r *Relay) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.request(ctx, Frame{Op: OpSet, Key: key, Value: value})
	return err
}

func (r *Relay) SetEphemeral(ctx context.Context, key string, value []byte) error {
	_, err := r.request(ctx, Frame{Op: OpSetEphemeral, Key: key, Value: value})
	return err
}

func (r *Relay) Delete(ctx context.Context, key string) error {
	_, err := r.request(ctx, Frame{Op: OpDelete, Key: key})
	return err
}

func (r *Relay) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	res, err := r.request(ctx, Frame{Op: OpCAS, Key: key, Old: old, Value: new})
	if err != nil {
		return false, err
	}
	return res.Swapped, nil
}

func (r *Relay) Keys(ctx context.Context, prefix string) ([]string, error) {
	res, err := r.request(ctx, Frame{Op: OpKeys, Prefix: prefix})
	if err != nil {
		return nil, err
	}
	return res.Keys, nil
}

// Subscribe registers the subscription before asking the server, so the
// server's immediate push of the current value is never missed.
func (r *Relay) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	id := r.nextID.Add(1)
	ch := make(chan []byte, subscriberBuffer)
	reply := make(chan Frame, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.subs[id] = ch
	r.pending[id] = reply
	r.mu.Unlock()

	if err := r.write(ctx, Frame{ID: id, Op: OpSubscribe, Key: key}); err != nil {
		r.dropSub(id)
		return nil, err
	}
	select {
	case res, ok := <-reply:
		if !ok {
			return nil, ErrClosed
		}
		if res.Error != "" {
			r.dropSub(id)
			return nil, fmt.Errorf("relay subscribe %s: %s", key, res.Error)
		}
	case <-ctx.Done():
		r.dropSub(id)
		return nil, ctx.Err()
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-r.done:
			return
		}
		if r.dropSub(id) {
			uctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := r.write(uctx, Frame{ID: id, Op: OpUnsubscribe}); err != nil && !errors.Is(err, ErrClosed) {
				r.logger.WithError(err).Debug("unsubscribe failed")
			}
		}
	}()
	return ch, nil
}

// dropSub closes a subscription; it reports false if it was already gone.
func (r *Relay) dropSub(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	ch, ok := r.subs[id]
	if !ok {
		return false
	}
	delete(r.subs, id)
	close(ch)
	return true
}

// Close ends the websocket; the server then drops this client's ephemeral keys.
func (r *Relay) Close() error {
	err := r.conn.Close(websocket.StatusNormalClosure, "")
	r.shutdown()
	if err != nil && websocket.CloseStatus(err) == -1 {
		r.logger.WithError(err).Debug("relay close")
	}
	return nil
}
