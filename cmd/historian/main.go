// cmd/historian/main.go is the asynchronous historian: it pops round records
// from the Redis queue and persists them to Postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/gostop/internal/cache"
	"github.com/jason-s-yu/gostop/internal/config"
	"github.com/jason-s-yu/gostop/internal/database"
	"github.com/jason-s-yu/gostop/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadHistorian()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ConnectDB(ctx, cfg.DatabaseURL); err != nil {
		logger.WithError(err).Fatal("connect database")
	}
	defer database.DB.Close()
	if err := database.EnsureSchema(ctx, database.DB); err != nil {
		logger.WithError(err).Fatal("ensure schema")
	}

	if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
		logger.WithError(err).Fatal("connect redis")
	}
	defer cache.Rdb.Close()

	svc := historian.New(cache.NewQueue(cache.Rdb, cfg.QueueName), database.NewStore(database.DB), historian.Config{
		BatchSize:  cfg.BatchSize,
		FlushDelay: cfg.FlushInterval(),
		Inactivity: cfg.Inactivity,
		Logger:     logger,
	})
	logger.WithFields(logrus.Fields{"queue": cfg.QueueName, "batch": cfg.BatchSize}).Info("historian running")
	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Fatal("historian stopped")
	}
	logger.Info("historian stopped")
}
