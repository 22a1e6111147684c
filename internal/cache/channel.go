package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// waitingIndexKey is the sorted set of rooms waiting for a guest, scored by creation time.
const waitingIndexKey = "rooms:waiting"

func notifyTopic(key string) string { return "notify:" + key }

// Channel implements channel.Channel on Redis. Values live in plain string
// keys; every write publishes on notify:{key}, and subscribers re-read the key
// on each notification so they always converge on the stored value.
//
// Ephemeral keys carry a TTL that a background loop refreshes while the
// Channel is open. Close deletes them right away; a crashed process loses
// them when the TTL runs out.
type Channel struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger

	mu      sync.Mutex
	owned   map[string]struct{}
	closed  bool
	stop    chan struct{}
	started bool
}

var (
	_ channel.Channel   = (*Channel)(nil)
	_ channel.RoomIndex = (*Channel)(nil)
)

// NewChannel wraps a shared client. ttl bounds how long an ephemeral key
// outlives a client that vanished without closing.
func NewChannel(rdb *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Channel {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Channel{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		owned:  make(map[string]struct{}),
		stop:   make(chan struct{}),
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) Get(ctx context.Context, key string) ([]byte, error) {
	if c.isClosed() {
		return nil, channel.ErrClosed
	}
	v, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, channel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (c *Channel) write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, ttl)
		pipe.Publish(ctx, notifyTopic(key), "set")
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Channel) Set(ctx context.Context, key string, value []byte) error {
	if c.isClosed() {
		return channel.ErrClosed
	}
	if err := c.write(ctx, key, value, 0); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.owned, key)
	c.mu.Unlock()
	return nil
}

func (c *Channel) SetEphemeral(ctx context.Context, key string, value []byte) error {
	if c.isClosed() {
		return channel.ErrClosed
	}
	if err := c.write(ctx, key, value, c.ttl); err != nil {
		return err
	}
	c.mu.Lock()
	c.owned[key] = struct{}{}
	if !c.started {
		c.started = true
		go c.keepAlive()
	}
	c.mu.Unlock()
	return nil
}

// keepAlive refreshes ephemeral TTLs until Close.
func (c *Channel) keepAlive() {
	ticker := time.NewTicker(c.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.ttl/3)
			if err := c.Refresh(ctx); err != nil {
				c.logger.WithError(err).Warn("refresh ephemeral keys")
			}
			cancel()
		}
	}
}

// Refresh extends the TTL of every ephemeral key this Channel wrote.
func (c *Channel) Refresh(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.owned))
	for k := range c.owned {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	if len(keys) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Expire(ctx, k, c.ttl)
		}
		return nil
	})
	return err
}

func (c *Channel) del(ctx context.Context, key string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Publish(ctx, notifyTopic(key), "del")
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (c *Channel) Delete(ctx context.Context, key string) error {
	if c.isClosed() {
		return channel.ErrClosed
	}
	c.mu.Lock()
	delete(c.owned, key)
	c.mu.Unlock()
	return c.del(ctx, key)
}

// CompareAndSwap uses WATCH so a concurrent writer aborts the transaction.
func (c *Channel) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	if c.isClosed() {
		return false, channel.ErrClosed
	}
	swapped := false
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if old == nil && exists {
			return nil
		}
		if old != nil && (!exists || string(cur) != string(old)) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, new, 0)
			pipe.Publish(ctx, notifyTopic(key), "set")
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis cas %s: %w", key, err)
	}
	return swapped, nil
}

func (c *Channel) Keys(ctx context.Context, prefix string) ([]string, error) {
	if c.isClosed() {
		return nil, channel.ErrClosed
	}
	var keys []string
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Subscribe follows key through its notify topic. Redis expires keys without
// publishing, so while the key is present it is also polled every ttl/3 and a
// key that vanished unannounced is delivered as nil.
func (c *Channel) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	if c.isClosed() {
		return nil, channel.ErrClosed
	}
	ps := c.rdb.Subscribe(ctx, notifyTopic(key))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", key, err)
	}

	out := make(chan []byte, 16)
	present := false
	send := func(v []byte) {
		present = v != nil
		select {
		case out <- v:
		default:
			// drop the oldest queued value; the next read converges anyway
			select {
			case <-out:
			default:
			}
			out <- v
		}
	}
	deliver := func() {
		v, err := c.rdb.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			v = nil
		case err != nil:
			if ctx.Err() == nil {
				c.logger.WithError(err).WithField("key", key).Warn("redis read after notify")
			}
			return
		}
		send(v)
	}
	expired := func() {
		n, err := c.rdb.Exists(ctx, key).Result()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.WithError(err).WithField("key", key).Warn("redis exists poll")
			}
			return
		}
		if n == 0 {
			c.logger.WithField("key", key).Debug("key expired")
			send(nil)
		}
	}

	if v, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		send(v)
	}

	go func() {
		defer close(out)
		defer ps.Close()
		poll := time.NewTicker(c.ttl / 3)
		defer poll.Stop()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				deliver()
			case <-poll.C:
				if present {
					expired()
				}
			}
		}
	}()
	return out, nil
}

// AddWaiting indexes a room open for a guest.
func (c *Channel) AddWaiting(ctx context.Context, roomID uuid.UUID, createdAt time.Time) error {
	err := c.rdb.ZAdd(ctx, waitingIndexKey, redis.Z{
		Score:  float64(createdAt.UnixMilli()),
		Member: roomID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("index room %s: %w", roomID, err)
	}
	return nil
}

// RemoveWaiting drops a room from the index.
func (c *Channel) RemoveWaiting(ctx context.Context, roomID uuid.UUID) error {
	if err := c.rdb.ZRem(ctx, waitingIndexKey, roomID.String()).Err(); err != nil {
		return fmt.Errorf("unindex room %s: %w", roomID, err)
	}
	return nil
}

// Waiting lists up to limit waiting rooms, oldest first.
func (c *Channel) Waiting(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}
	members, err := c.rdb.ZRange(ctx, waitingIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list waiting rooms: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			c.logger.WithField("member", m).Warn("bad room id in waiting index")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close deletes this client's ephemeral keys and ends its subscriptions. The
// shared redis.Client stays open.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	keys := make([]string, 0, len(c.owned))
	for k := range c.owned {
		keys = append(keys, k)
	}
	c.owned = make(map[string]struct{})
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var errs []error
	for _, k := range keys {
		if err := c.del(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
