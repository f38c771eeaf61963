// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, HistoryQueued, cfg.HistoryMode)
	assert.Equal(t, "carpool_records", cfg.HistorianQueueName)
	assert.Equal(t, 500*time.Millisecond, cfg.HistorianFlush())

	opts := cfg.RoomOptions()
	assert.Equal(t, 2, opts.CapacityMin)
	assert.Equal(t, 4, opts.CapacityMax)
	assert.Equal(t, 30, opts.CountdownWindow)
	assert.Equal(t, time.Second, opts.CountdownTick)
	assert.Equal(t, 2*time.Second, opts.SettleDelay)
	assert.Equal(t, room.ReconnectResume, opts.Reconnect)
	assert.Equal(t, 30*time.Minute, cfg.RoomIdleTimeout)
	assert.Equal(t, time.Minute, cfg.RoomReapEvery)

	ttl, err := cfg.TokenTTL()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, ttl)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ROOM_CAPACITY_MAX", "6")
	t.Setenv("COUNTDOWN_TICK", "250ms")
	t.Setenv("RECONNECT_POLICY", "fresh")
	t.Setenv("HISTORY_MODE", "direct")
	t.Setenv("TOKEN_EXPIRE_TIME", "never")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.RoomOptions().CapacityMax)
	assert.Equal(t, 250*time.Millisecond, cfg.RoomOptions().CountdownTick)
	assert.Equal(t, room.ReconnectFresh, cfg.RoomOptions().Reconnect)
	assert.Equal(t, HistoryDirect, cfg.HistoryMode)

	ttl, err := cfg.TokenTTL()
	require.NoError(t, err)
	assert.Zero(t, ttl)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string][2]string{
		"capacity bounds":  {"ROOM_CAPACITY_MIN", "5"},
		"history mode":     {"HISTORY_MODE", "kafka"},
		"reconnect policy": {"RECONNECT_POLICY", "sometimes"},
		"token ttl":        {"TOKEN_EXPIRE_TIME", "soon"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Config{LogLevel: "debug", LogFormat: "json"}
	logger := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg = Config{LogLevel: "chatty"}
	assert.Equal(t, logrus.InfoLevel, cfg.NewLogger().GetLevel())
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*"}, Config{AllowedOrigins: "*"}.OriginPatterns())
	assert.Equal(t, []string{"app.example.com", "*.example.org"}, Config{AllowedOrigins: " app.example.com, ,*.example.org"}.OriginPatterns())
	assert.Empty(t, Config{}.OriginPatterns())
}
