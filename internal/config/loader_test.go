package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("ZNC_TEST_HOST", "redis.internal")

	assert.Equal(t, "host: redis.internal", expandEnv("host: ${ZNC_TEST_HOST}"))
	assert.Equal(t, "port: 6380", expandEnv("port: ${ZNC_TEST_UNSET_PORT:6380}"))
	assert.Equal(t, "pw: ${ZNC_TEST_UNSET_PW}", expandEnv("pw: ${ZNC_TEST_UNSET_PW}"))
	assert.Equal(t, "empty: ", expandEnv("empty: ${ZNC_TEST_UNSET_EMPTY:}"))
}

func TestLoadFrom(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)

		assert.Equal(t, "z-novel-context", cfg.App.Name)
		assert.Equal(t, 1000, cfg.Chunking.MaxChunkSize)
		assert.True(t, cfg.Chunking.PreserveScenes)
		assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
		assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr())
	})

	t.Run("file values and placeholders override defaults", func(t *testing.T) {
		t.Setenv("ZNC_TEST_MAX_CHUNK", "321")
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := "chunking:\n  max_chunk_size: ${ZNC_TEST_MAX_CHUNK}\n  preserve_chapters: false\nsession:\n  ttl: 15m\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := LoadFrom(path)
		require.NoError(t, err)

		assert.Equal(t, 321, cfg.Chunking.MaxChunkSize)
		assert.False(t, cfg.Chunking.PreserveChapters)
		assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
	})

	t.Run("environment specific file is merged", func(t *testing.T) {
		t.Setenv("APP_ENV", "test")
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("chunking:\n  context_window: 3\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.test.yaml"), []byte("chunking:\n  context_window: 5\n"), 0o644))

		cfg, err := LoadFrom(filepath.Join(dir, "config.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Chunking.ContextWindow)
	})
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}
