// cmd/historian is an asynchronous historian service that pops room history from
// a Redis queue and persists it to PostgreSQL in batches.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/carpool/internal/cache"
	"github.com/jason-s-yu/carpool/internal/config"
	"github.com/jason-s-yu/carpool/internal/database"
	"github.com/jason-s-yu/carpool/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	log := logrus.NewEntry(logger).WithField("service", "carpool-historian")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.WithError(err).Fatal("schema bootstrap failed")
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	svc := historian.New(
		historian.NewRedisQueue(rdb, cfg.HistorianQueueName),
		database.NewRecordStore(pool),
		historian.Options{
			BatchSize:  cfg.HistorianBatchSize,
			FlushEvery: cfg.HistorianFlush(),
			RoomIdle:   cfg.HistorianRoomIdle,
		},
		log.WithField("queue", cfg.HistorianQueueName),
	)
	if err := svc.Run(ctx); err != nil {
		log.WithError(err).Error("historian stopped with error")
	}
	log.Info("Historian shutdown complete.")
}
