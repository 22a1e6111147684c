// Package historian pops round records from the Redis queue and persists them
// to Postgres in batches, marking rounds abandoned once they go quiet.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/cache"
	"github.com/jason-s-yu/gostop/internal/database"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source yields queued records; cache.Queue is the production one.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (cache.RoundActionRecord, bool, error)
}

// Sink persists batches; database.Store is the production one.
type Sink interface {
	WriteBatch(ctx context.Context, actions []database.ActionRow, results []database.ResultRow) error
	MarkAbandoned(ctx context.Context, roomID uuid.UUID) (bool, error)
}

// Config tunes the service. Zero values take the defaults below.
type Config struct {
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a round may go without records before it is marked abandoned.
	Inactivity    time.Duration
	CheckInterval time.Duration
	PopTimeout    time.Duration
	Logger        logrus.FieldLogger
}

func (c *Config) withDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.FlushDelay <= 0 {
		c.FlushDelay = 500 * time.Millisecond
	}
	if c.Inactivity <= 0 {
		c.Inactivity = 10 * time.Minute
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Service encapsulates the queue and database logic for capturing rounds.
type Service struct {
	src    Source
	sink   Sink
	cfg    Config
	logger logrus.FieldLogger

	lastActivity sync.Map // map[uuid.UUID]time.Time

	batchMu sync.Mutex
	actions []database.ActionRow
	results []database.ResultRow
}

// New builds a Service reading src and writing sink.
func New(src Source, sink Sink, cfg Config) *Service {
	cfg.withDefaults()
	return &Service{
		src:     src,
		sink:    sink,
		cfg:     cfg,
		logger:  cfg.Logger.WithField("component", "historian"),
		actions: make([]database.ActionRow, 0, cfg.BatchSize),
	}
}

// Run reads the queue and watches for inactive rounds until ctx is done. The
// pending batch is flushed on the way out.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("historian started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.inactivityLoop(gctx) })
	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := s.Flush(flushCtx); ferr != nil {
		s.logger.WithError(ferr).Error("final flush")
	}
	s.logger.Info("historian shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) readLoop(ctx context.Context) error {
	lastFlush := time.Now()
	pop := min(s.cfg.PopTimeout, s.cfg.FlushDelay)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, ok, err := s.src.Pop(ctx, pop)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			s.logger.WithError(err).Error("queue pop")
		case ok:
			s.Add(ctx, rec)
		}
		if time.Since(lastFlush) >= s.cfg.FlushDelay {
			if err := s.Flush(ctx); err != nil {
				s.logger.WithError(err).Error("flush batch")
			}
			lastFlush = time.Now()
		}
	}
}

// Add converts rec into the pending batch and flushes once it is full.
func (s *Service) Add(ctx context.Context, rec cache.RoundActionRecord) {
	entry := s.logger.WithFields(logrus.Fields{"room": rec.RoomID, "index": rec.ActionIndex})
	s.batchMu.Lock()
	switch rec.Kind {
	case cache.RecordResult:
		row, err := toResultRow(rec)
		if err != nil {
			s.batchMu.Unlock()
			entry.WithError(err).Warn("invalid result record")
			return
		}
		s.results = append(s.results, row)
		s.lastActivity.Delete(rec.RoomID)
	default:
		row, err := toActionRow(rec)
		if err != nil {
			s.batchMu.Unlock()
			entry.WithError(err).Warn("invalid action record")
			return
		}
		s.actions = append(s.actions, row)
		s.lastActivity.Store(rec.RoomID, time.Now())
	}
	full := len(s.actions)+len(s.results) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if full {
		if err := s.Flush(ctx); err != nil {
			entry.WithError(err).Error("flush batch")
		}
	}
}

// Flush writes the pending batch in one transaction. A failed batch is kept
// for the next attempt.
func (s *Service) Flush(ctx context.Context) error {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	if len(s.actions) == 0 && len(s.results) == 0 {
		return nil
	}
	if err := s.sink.WriteBatch(ctx, s.actions, s.results); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"actions": len(s.actions),
		"results": len(s.results),
	}).Debug("flushed batch")
	s.actions = make([]database.ActionRow, 0, s.cfg.BatchSize)
	s.results = nil
	return nil
}

func (s *Service) inactivityLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.checkInactivity(ctx, now)
		}
	}
}

// checkInactivity marks every round quiet for longer than the threshold.
func (s *Service) checkInactivity(ctx context.Context, now time.Time) {
	s.lastActivity.Range(func(key, val interface{}) bool {
		roomID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.cfg.Inactivity {
			return true
		}
		// pending actions must land before the round row is flagged
		if err := s.Flush(ctx); err != nil {
			s.logger.WithError(err).Error("flush before abandon")
			return false
		}
		changed, err := s.sink.MarkAbandoned(ctx, roomID)
		if err != nil {
			s.logger.WithError(err).WithField("room", roomID).Error("mark abandoned")
			return true
		}
		if changed {
			s.logger.WithField("room", roomID).Info("round marked abandoned after inactivity")
		}
		s.lastActivity.Delete(roomID)
		return true
	})
}
