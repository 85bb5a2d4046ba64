package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		// Given: an empty config file
		path := writeConfig(t, "{}\n")

		// When: it is loaded
		conf, err := Load(path)

		// Then: every field has its default
		require.NoError(t, err)
		assert.Equal(t, "info", conf.LogLevel)
		assert.Equal(t, "9090", conf.HTTPPort)
		assert.Equal(t, "8080", conf.SocketPort)
		assert.Equal(t, StorageRedis, conf.Storage)
		assert.Equal(t, "localhost:6379", conf.Redis.GetRedisAddr())
		assert.Empty(t, conf.Tracing.Endpoint)
	})

	t.Run("FileAndEnvironment", func(t *testing.T) {
		// Given: a config file and an environment override
		path := writeConfig(t, "log-level: debug\nstorage: memory\nredis:\n  host: cache\n  port: \"6380\"\n")
		t.Setenv("RENJU_REDIS_HOST", "redis.internal")

		// When: it is loaded
		conf, err := Load(path)

		// Then: the environment wins over the file
		require.NoError(t, err)
		assert.Equal(t, "debug", conf.LogLevel)
		assert.Equal(t, StorageMemory, conf.Storage)
		assert.Equal(t, "redis.internal:6380", conf.Redis.GetRedisAddr())
	})

	t.Run("UnknownStorage", func(t *testing.T) {
		path := writeConfig(t, "storage: postgres\n")

		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		assert.Panics(t, func() {
			MustLoad(filepath.Join(t.TempDir(), "missing.yml"))
		})
	})
}
