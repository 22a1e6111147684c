// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/gostop/internal/auth"
	"github.com/jason-s-yu/gostop/internal/cache"
	"github.com/jason-s-yu/gostop/internal/channel"
	"github.com/jason-s-yu/gostop/internal/config"
	"github.com/jason-s-yu/gostop/internal/handlers"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	ttl, err := auth.ParseTokenTTL(cfg.TokenExpire)
	if err != nil {
		logger.WithError(err).Fatal("TOKEN_EXPIRE_TIME")
	}
	if err := auth.Init(ttl); err != nil {
		logger.WithError(err).Fatal("init auth keys")
	}

	srv, err := newServer(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("init backend")
	}
	srv.AIDelay = cfg.AIDelay
	srv.AllowedOrigins = cfg.AllowedOrigins

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{"addr": cfg.Addr, "backend": cfg.Backend}).Info("server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
	logger.Info("server stopped")
}

// newServer picks the channel backend. The memory backend keeps rooms inside
// this process; the redis backend shares them and queues round logs for the
// historian.
func newServer(cfg config.Server, logger *logrus.Logger) (*handlers.Server, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
			return nil, err
		}
		srv := handlers.NewServer(logger, func() channel.Channel {
			return cache.NewChannel(cache.Rdb, cfg.PresenceTTL, logger)
		})
		srv.Journal = cache.NewQueue(cache.Rdb, cfg.QueueName)
		return srv, nil
	default:
		store := channel.NewMemoryStore()
		return handlers.NewServer(logger, func() channel.Channel { return store.Client() }), nil
	}
}
