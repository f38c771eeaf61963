// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/carpool/internal/auth"
	"github.com/jason-s-yu/carpool/internal/broadcast"
	"github.com/jason-s-yu/carpool/internal/cache"
	"github.com/jason-s-yu/carpool/internal/config"
	"github.com/jason-s-yu/carpool/internal/database"
	"github.com/jason-s-yu/carpool/internal/handlers"
	"github.com/jason-s-yu/carpool/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	log := logrus.NewEntry(logger).WithField("service", "carpool")

	pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ttl, err := cfg.TokenTTL()
	if err != nil {
		return err
	}
	var sessions *auth.Sessions
	if cfg.JWTPrivateKey != "" {
		sessions, err = auth.NewSessionsFromPath(cfg.JWTPrivateKey, cfg.JWTPublicKey, ttl)
	} else {
		log.Warn("JWT_PRIVATE_KEY_PATH not set, generating an ephemeral signing key")
		sessions, err = auth.NewSessions(ttl)
	}
	if err != nil {
		return err
	}

	directory := database.NewDirectory(pool)
	identities := cache.NewCachedDirectory(directory, rdb, cfg.IdentityCacheTTL, log.WithField("component", "identity"))
	gateway := broadcast.NewGateway(log.WithField("component", "gateway"))
	store := room.NewRoomStore(cfg.RoomOptions(), room.Deps{
		Identity: identities,
		Records:  recordStore(cfg, pool, rdb, log),
		Gateway:  gateway,
		Log:      log,
	})
	defer store.Shutdown()

	srv := &handlers.Server{
		Rooms:          store,
		Gateway:        gateway,
		Sessions:       sessions,
		Users:          directory,
		Reviews:        database.NewReviewStore(pool),
		Identities:     identities,
		Log:            log,
		OriginPatterns: cfg.OriginPatterns(),
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store.RunReaper(gctx, cfg.RoomReapEvery, cfg.RoomIdleTimeout)
		return nil
	})
	g.Go(func() error {
		log.Infof("Running on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Shutdown does not wait on hijacked websockets; store.Shutdown stops the rooms.
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// recordStore picks where room history goes according to HISTORY_MODE.
func recordStore(cfg config.Config, pool *pgxpool.Pool, rdb *redis.Client, log *logrus.Entry) room.RecordStore {
	if cfg.HistoryMode == config.HistoryDirect {
		log.Info("writing room history directly to postgres")
		return database.NewRecordStore(pool)
	}
	log.WithField("queue", cfg.HistorianQueueName).Info("queueing room history for the historian")
	return cache.NewQueuedRecordStore(rdb, cfg.HistorianQueueName)
}
