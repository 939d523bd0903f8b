package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "gogotex_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("TICKET_SECRET", "testsecret123456789012345678901234")
	t.Setenv("COMPILE_REMOTE_URLS", "https://a.example/compile, ,https://b.example/compile")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "localhost:6379", cfg.RedisAddr())
	require.Equal(t, []string{"https://a.example/compile", "https://b.example/compile"}, cfg.Compile.RemoteURLs)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 5*time.Second, cfg.Collab.DebounceDelay)
	require.Equal(t, 30*time.Second, cfg.Collab.SweepInterval)
	require.Equal(t, 50, cfg.Collab.VersionMinDelta)
	require.Equal(t, 30*time.Second, cfg.Collab.VersionQuietInterval)
	require.InDelta(t, 0.1, cfg.Collab.VersionPruneProbability, 1e-9)
	require.Equal(t, 4, cfg.Compile.MaxStrategies)
	require.Equal(t, "downloads", cfg.Compile.DownloadDir)
}
