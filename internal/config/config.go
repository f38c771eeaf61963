// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// History modes select where room history is written.
const (
	HistoryDirect = "direct" // straight to Postgres
	HistoryQueued = "queued" // pushed to Redis and drained by cmd/historian
)

// Config is read from the environment (and .env via godotenv/autoload in cmd/*).
type Config struct {
	Port      int    `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
	// AllowedOrigins is a comma separated list of websocket origin patterns.
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisDB     int    `env:"REDIS_DB,default=0"`

	HistoryMode        string        `env:"HISTORY_MODE,default=queued"`
	HistorianQueueName string        `env:"HISTORIAN_QUEUE_NAME,default=carpool_records"`
	HistorianBatchSize int           `env:"HISTORIAN_BATCH_SIZE,default=20"`
	HistorianFlushMs   int           `env:"HISTORIAN_FLUSH_MS,default=500"`
	HistorianRoomIdle  time.Duration `env:"HISTORIAN_ROOM_IDLE,default=10m"`

	RoomCapacityMin     int           `env:"ROOM_CAPACITY_MIN,default=2"`
	RoomCapacityMax     int           `env:"ROOM_CAPACITY_MAX,default=4"`
	CountdownWindow     int           `env:"COUNTDOWN_WINDOW,default=30"`
	CountdownTick       time.Duration `env:"COUNTDOWN_TICK,default=1s"`
	SettleDelay         time.Duration `env:"SETTLE_DELAY,default=2s"`
	ReconnectPolicy     string        `env:"RECONNECT_POLICY,default=resume"`
	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT,default=3s"`
	CollaboratorRetries int           `env:"COLLABORATOR_RETRIES,default=2"`
	DuplicateWindow     time.Duration `env:"DUPLICATE_WINDOW,default=2s"`
	// RoomIdleTimeout reaps settled or expired rooms; 0 disables the reaper.
	RoomIdleTimeout time.Duration `env:"ROOM_IDLE_TIMEOUT,default=30m"`
	RoomReapEvery   time.Duration `env:"ROOM_REAP_INTERVAL,default=1m"`

	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL,default=5m"`
	TokenExpireTime  string        `env:"TOKEN_EXPIRE_TIME,default=72h"`
	JWTPrivateKey    string        `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKey     string        `env:"JWT_PUBLIC_KEY_PATH"`
}

// Load unmarshals the process environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that parse fine but cannot work together.
func (c Config) Validate() error {
	if c.HistoryMode != HistoryDirect && c.HistoryMode != HistoryQueued {
		return fmt.Errorf("config error: HISTORY_MODE must be %q or %q, got %q", HistoryDirect, HistoryQueued, c.HistoryMode)
	}
	if _, err := room.ParseReconnectPolicy(c.ReconnectPolicy); err != nil {
		return fmt.Errorf("config error: RECONNECT_POLICY: %w", err)
	}
	if err := c.RoomOptions().Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.HistorianBatchSize < 1 {
		return fmt.Errorf("config error: HISTORIAN_BATCH_SIZE must be positive, got %d", c.HistorianBatchSize)
	}
	if _, err := c.TokenTTL(); err != nil {
		return fmt.Errorf("config error: TOKEN_EXPIRE_TIME: %w", err)
	}
	return nil
}

// RoomOptions maps the room settings onto room.Options.
func (c Config) RoomOptions() room.Options {
	policy, _ := room.ParseReconnectPolicy(c.ReconnectPolicy)
	return room.Options{
		CapacityMin:         c.RoomCapacityMin,
		CapacityMax:         c.RoomCapacityMax,
		CountdownWindow:     c.CountdownWindow,
		CountdownTick:       c.CountdownTick,
		SettleDelay:         c.SettleDelay,
		Reconnect:           policy,
		CollaboratorTimeout: c.CollaboratorTimeout,
		CollaboratorRetries: c.CollaboratorRetries,
		DuplicateWindow:     c.DuplicateWindow,
	}
}

// TokenTTL parses TOKEN_EXPIRE_TIME. "never" and "0" disable expiry.
func (c Config) TokenTTL() (time.Duration, error) {
	switch c.TokenExpireTime {
	case "", "0", "never":
		return 0, nil
	}
	return time.ParseDuration(c.TokenExpireTime)
}

// OriginPatterns splits AllowedOrigins for websocket.Accept.
func (c Config) OriginPatterns() []string {
	parts := lo.Map(strings.Split(c.AllowedOrigins, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Compact(parts)
}

// HistorianFlush is the flush interval as a duration.
func (c Config) HistorianFlush() time.Duration {
	return time.Duration(c.HistorianFlushMs) * time.Millisecond
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.WithField("level", c.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
