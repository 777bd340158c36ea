package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setBase(t *testing.T) {
	t.Setenv("IRIS_BASE_URL", "http://iris.local")
	t.Setenv("IRIS_WS_URL", "ws://iris.local/ws")
	t.Setenv("BOT_PREFIX", "!chess")
}

func TestParseDefaults(t *testing.T) {
	setBase(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, StorageRedis, cfg.StorageType)
	require.Equal(t, 3*time.Second, cfg.PersistTimeout)
	require.Equal(t, 72*time.Hour, cfg.InvitationRetention)
	require.Equal(t, 15*time.Minute, cfg.JanitorInterval)
	require.Equal(t, 10, cfg.LeaderboardSize)
	require.Equal(t, 64, cfg.MaxConcurrentCommands)
	require.Equal(t, "info", cfg.Log.Level)
	require.True(t, cfg.RoomAllowed("any-room"))
}

func TestParseRequiresGatewayKeys(t *testing.T) {
	t.Setenv("IRIS_BASE_URL", "")
	t.Setenv("IRIS_WS_URL", "ws://iris.local/ws")
	t.Setenv("BOT_PREFIX", "!chess")
	_, err := Parse()
	require.ErrorContains(t, err, "IRIS_BASE_URL")
}

func TestParseStorageRequirements(t *testing.T) {
	setBase(t)
	t.Setenv("STORAGE_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := Parse()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("STORAGE_TYPE", "Memory")
	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, StorageMemory, cfg.StorageType)

	t.Setenv("STORAGE_TYPE", "mongo")
	_, err = Parse()
	require.ErrorContains(t, err, "unsupported STORAGE_TYPE")
}

func TestParseOverridesAndRooms(t *testing.T) {
	setBase(t)
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/m.db")
	t.Setenv("PERSIST_TIMEOUT", "750ms")
	t.Setenv("LEADERBOARD_SIZE", "5")
	t.Setenv("ALLOWED_ROOMS", " room-a, ,room-b ")

	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, 750*time.Millisecond, cfg.PersistTimeout)
	require.Equal(t, 5, cfg.LeaderboardSize)
	require.Equal(t, []string{"room-a", "room-b"}, cfg.AllowedRooms)
	require.True(t, cfg.RoomAllowed("room-b"))
	require.False(t, cfg.RoomAllowed("room-c"))
}

func TestParseRejectsBadDuration(t *testing.T) {
	setBase(t)
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("PERSIST_TIMEOUT", "soon")
	_, err := Parse()
	require.ErrorContains(t, err, "parse env")
}

func TestParseEgressMode(t *testing.T) {
	setBase(t)
	t.Setenv("STORAGE_TYPE", "memory")
	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, "http", cfg.EgressMode)

	t.Setenv("EGRESS_MODE", " WS ")
	cfg, err = Parse()
	require.NoError(t, err)
	require.Equal(t, "ws", cfg.EgressMode)

	t.Setenv("EGRESS_MODE", "carrier-pigeon")
	_, err = Parse()
	require.ErrorContains(t, err, "EGRESS_MODE")
}

func TestLoadStorageSkipsGatewayKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("IRIS_BASE_URL", "")
	t.Setenv("BOT_PREFIX", "")
	t.Setenv("STORAGE_TYPE", "sqlite")
	cfg, err := LoadStorage()
	require.NoError(t, err)
	require.Equal(t, "data/matches.db", cfg.SQLitePath)

	_, err = Load()
	require.ErrorContains(t, err, "IRIS_BASE_URL")
}
