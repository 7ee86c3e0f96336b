package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"LOCAL_MEDIUM", "MONGODB_URI", "REMOTE_FEED", "SYNC_BACKUP_INTERVAL", "REMOTE_TIMEOUT", "REDIS_HOST", "REDIS_PORT", "WEBSOCKET_PATH"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, MediumSQLite, cfg.LocalMedium)
	assert.Equal(t, 5*time.Second, cfg.SyncBackupInterval)
	assert.Equal(t, 5*time.Second, cfg.RemoteTimeout)
	assert.False(t, cfg.RemoteEnabled())
	assert.Equal(t, "localhost:6379", cfg.Redis.GetAddr())
	assert.Equal(t, "/ws/v1/listen", cfg.Realtime.WebSocketPath)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("LOCAL_MEDIUM", "redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_KEY_PREFIX", "site")
	t.Setenv("SYNC_BACKUP_INTERVAL", "2s")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("REMOTE_FEED", "none")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, MediumRedis, cfg.LocalMedium)
	assert.Equal(t, "cache:6379", cfg.Redis.GetAddr())
	assert.Equal(t, "site", cfg.Redis.KeyPrefix)
	assert.Equal(t, 2*time.Second, cfg.SyncBackupInterval)
	assert.True(t, cfg.RemoteEnabled())
}

func TestValidate_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LocalMedium = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RemoteFeed = FeedWebSocket
	assert.Error(t, cfg.Validate())
	cfg.RemoteFeedURL = "ws://peer:3000/ws/v1/listen"
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MediumMemory, cfg.LocalMedium)
	assert.Equal(t, FeedNone, cfg.RemoteFeed)
}
